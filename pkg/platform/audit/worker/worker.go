package worker

import (
	"context"
	"log/slog"

	audit "everkeep/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. A failed
// append is logged and dropped rather than crashing the loop: audit is
// best-effort for operational events, and the store retains its own
// durability guarantees for the ones written inside request transactions.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func New(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				w.logger.ErrorContext(ctx, "audit append failed",
					"action", event.Action,
					"subject", event.Subject,
					"error", err,
				)
			}
		}
	}
}
