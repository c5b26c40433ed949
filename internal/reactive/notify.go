package reactive

import (
	"context"
	"log/slog"
)

// Notifier is the user-facing channel for render-time failures. A failed
// re-render of one component must not crash the page: the error is
// routed here and the component keeps its last-good DOM state.
type Notifier interface {
	Notify(ctx context.Context, message string, err error)
}

// LogNotifier routes notifications to a structured logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify implements Notifier.
func (n LogNotifier) Notify(ctx context.Context, message string, err error) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.ErrorContext(ctx, message, "error", err)
}
