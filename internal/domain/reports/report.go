package reports

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusConfiguring = "configuring"
	StatusGenerating  = "generating"
	StatusCompleted   = "completed"
	StatusError       = "error"
)

// Report is the unit of work and its persisted artifact. Content is set only while
// Status is completed; SectionResults and SearchTrace are written after every attempt.
// RunID identifies the generation attempt that owns the row while it is generating.
type Report struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ParentID            uuid.UUID      `gorm:"type:uuid;column:parent_id;not null;index" json:"parent_id"`
	CollectionID        string         `gorm:"column:collection_id;not null;index" json:"collection_id"`
	Name                string         `gorm:"column:name;not null" json:"name"`
	Status              string         `gorm:"column:status;not null;index" json:"status"`
	CustomPrompt        string         `gorm:"column:custom_prompt;type:text" json:"custom_prompt"`
	SectionOutline      datatypes.JSON `gorm:"column:section_outline;type:jsonb" json:"section_outline"`
	SectionResults      datatypes.JSON `gorm:"column:section_results;type:jsonb" json:"section_results"`
	SearchTrace         datatypes.JSON `gorm:"column:search_trace;type:jsonb" json:"search_trace"`
	Content             *string        `gorm:"column:content;type:text" json:"content"`
	Error               string         `gorm:"column:error" json:"error,omitempty"`
	Version             int            `gorm:"column:version;not null;default:1" json:"version"`
	RunID               *uuid.UUID     `gorm:"type:uuid;column:run_id;index" json:"-"`
	GenerationStartedAt *time.Time     `gorm:"column:generation_started_at" json:"generation_started_at,omitempty"`
	CompletedAt         *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Report) TableName() string { return "report" }

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Version == 0 {
		r.Version = 1
	}
	return nil
}

// Outline decodes SectionOutline; an empty column decodes to an empty outline.
func (r *Report) Outline() ([]Section, error) {
	out := []Section{}
	if r == nil || len(r.SectionOutline) == 0 || string(r.SectionOutline) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(r.SectionOutline, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Report) Results() ([]SectionResult, error) {
	out := []SectionResult{}
	if r == nil || len(r.SectionResults) == 0 || string(r.SectionResults) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(r.SectionResults, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Report) Trace() ([]SectionSearch, error) {
	out := []SectionSearch{}
	if r == nil || len(r.SearchTrace) == 0 || string(r.SearchTrace) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(r.SearchTrace, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// JSON marshals v for a jsonb column; nil slices encode as [].
func JSON[T any](v []T) datatypes.JSON {
	if v == nil {
		v = []T{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(b)
}
