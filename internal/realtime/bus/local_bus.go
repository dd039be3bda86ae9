package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/yungbote/research-reports/internal/realtime"
)

// localBus delivers messages in-process. It serves single-instance deployments without Redis.
type localBus struct {
	mu        sync.RWMutex
	receivers []func(m realtime.Message)
	closed    bool
}

func NewLocalBus() Bus {
	return &localBus{}
}

func (b *localBus) Publish(ctx context.Context, msg realtime.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return fmt.Errorf("local event bus closed")
	}
	for _, fn := range b.receivers {
		fn(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.Message)) error {
	if onMsg == nil {
		return fmt.Errorf("onMsg callback required")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("local event bus closed")
	}
	var active sync.Mutex
	stopped := false
	b.receivers = append(b.receivers, func(m realtime.Message) {
		active.Lock()
		defer active.Unlock()
		if stopped {
			return
		}
		onMsg(m)
	})
	go func() {
		<-ctx.Done()
		active.Lock()
		stopped = true
		active.Unlock()
	}()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.receivers = nil
	return nil
}
