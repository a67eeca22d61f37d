package dispatch

import (
	"context"
	"log/slog"
)

// LogNotifier is the default delivery channel: it records the notification
// without ever logging plaintext content. Deployments wire a real channel
// (email, SMS) behind the Notifier interface instead.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, notification Notification) error {
	n.logger.InfoContext(ctx, "delivering message notification",
		"message_id", notification.MessageID.String(),
		"recipient", notification.RecipientEmail,
		"anonymous", notification.SenderName == "",
		"has_preview", notification.Preview != "")
	return nil
}
