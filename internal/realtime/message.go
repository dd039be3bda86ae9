package realtime

import (
	"github.com/google/uuid"
)

type Event string

const (
	EventGenerationStarted Event = "ReportGenerationStarted"
	EventSectionCompleted  Event = "ReportSectionCompleted"
	EventReportCompleted   Event = "ReportCompleted"
	EventReportFailed      Event = "ReportFailed"
	EventReportCancelled   Event = "ReportCancelled"
)

// Message is one lifecycle event, addressed to the channel of the report it concerns.
type Message struct {
	Channel string `json:"channel"`
	Event   Event  `json:"event"`
	Data    any    `json:"data,omitempty"`
}

func ReportChannel(reportID uuid.UUID) string {
	return "report:" + reportID.String()
}
