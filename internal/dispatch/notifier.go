package dispatch

//go:generate mockgen -source=notifier.go -destination=mocks/mocks.go -package=mocks Notifier

import (
	"context"

	id "everkeep/pkg/domain"
)

// Notification is the payload handed to the external notification channel for
// one (message, recipient) pair. When the message withholds a preview the
// Preview field stays empty and no plaintext leaves the service; when the
// sender chose anonymity SenderName stays empty.
type Notification struct {
	MessageID      id.MessageID
	MessageTitle   string
	MessageType    string
	RecipientName  string
	RecipientEmail string
	RecipientPhone string
	SenderName     string
	Preview        string
}

// Notifier is the external delivery channel (email, SMS). A non-nil error
// leaves the link undelivered so the next run retries.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// DeliveryFailure records one failed notification within a run.
type DeliveryFailure struct {
	MessageID   id.MessageID
	RecipientID id.RecipientID
	Err         error
}

// DeliveryReport summarizes one dispatcher run. Failures are retried on the
// next run, never within the same one.
type DeliveryReport struct {
	DueMessages       int
	Notified          int
	MessagesDelivered int
	Failures          []DeliveryFailure
}
