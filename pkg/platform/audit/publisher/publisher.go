package publisher

import (
	"context"

	audit "everkeep/pkg/platform/audit"
	"everkeep/pkg/platform/sentinel"
)

// ChannelPublisher hands events to the background worker over a buffered
// channel. Emit never blocks a request handler: when the buffer is full the
// event is rejected and the caller decides whether that is fatal (it is not,
// for operational events).
type ChannelPublisher struct {
	inbox chan audit.Event
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{inbox: make(chan audit.Event, buffer)}
}

// Inbox exposes the receive side for the worker.
func (p *ChannelPublisher) Inbox() <-chan audit.Event { return p.inbox }

func (p *ChannelPublisher) Emit(ctx context.Context, event audit.Event) error {
	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return sentinel.ErrUnavailable
	}
}

// Nop discards events; used where audit wiring is optional (tests, tools).
type Nop struct{}

func (Nop) Emit(context.Context, audit.Event) error { return nil }
