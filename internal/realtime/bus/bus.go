package bus

import (
	"context"

	"github.com/yungbote/research-reports/internal/realtime"
)

// Bus carries lifecycle events between instances. Publish is best effort for callers;
// StartForwarder delivers every message seen on the bus to onMsg until ctx ends.
type Bus interface {
	Publish(ctx context.Context, msg realtime.Message) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error
	Close() error
}
