package audit

import (
	"context"
	"time"

	id "everkeep/pkg/domain"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp time.Time
	UserID    id.UserID
	// Subject is the entity acted on (message ID, contact ID, recipient ID).
	Subject string
	Action  string
	// Decision captures the outcome where one exists ("scheduled", "draft",
	// "quorum_met", "quorum_pending").
	Decision string
	Reason   string
	// ActorID tracks who performed the action when different from UserID:
	// the attesting trusted contact, or "dispatcher" for background delivery.
	ActorID   string
	RequestID string
}

// Audit event names. The deceased flip and delivery events are the ones a
// reviewer of this system will reach for first, so they are never sampled.
const (
	EventUserCreated        = "user_created"
	EventMessageDrafted     = "message_drafted"
	EventMessageScheduled   = "message_scheduled"
	EventMessageUpdated     = "message_updated"
	EventMessageDeleted     = "message_deleted"
	EventMessageDelivered   = "message_delivered"
	EventRecipientNotified  = "recipient_notified"
	EventNotifyFailed       = "notify_failed"
	EventPassingAttested    = "passing_attested"
	EventUserMarkedDeceased = "user_marked_deceased"
)

// Store persists audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// Publisher is the seam services emit through; the worker drains it into a
// Store or an external sink.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}
