package models

import (
	"time"

	id "everkeep/pkg/domain"
)

// MessageType classifies the content a message carries.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeVideo, TypeDocument:
		return true
	}
	return false
}

// MessageStatus is the lifecycle state of a message.
type MessageStatus string

const (
	StatusDraft     MessageStatus = "draft"
	StatusScheduled MessageStatus = "scheduled"
	StatusDelivered MessageStatus = "delivered"
)

// CanTransitionTo encodes the forward-only lifecycle: draft → scheduled →
// delivered. Re-saving in the same state is allowed; nothing ever leaves
// delivered.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	switch s {
	case StatusDraft:
		return next == StatusDraft || next == StatusScheduled
	case StatusScheduled:
		return next == StatusScheduled || next == StatusDelivered
	default:
		return false
	}
}

// DeliveryType selects the trigger that releases a message.
type DeliveryType string

const (
	// DeliveryDate releases at a fixed future time.
	DeliveryDate DeliveryType = "date"
	// DeliveryPassing releases once the owner's passing reaches attestation
	// quorum.
	DeliveryPassing DeliveryType = "passing"
)

func (t DeliveryType) Valid() bool {
	return t == DeliveryDate || t == DeliveryPassing
}

// Message is the core unit of content.
//
// Invariants:
//   - Title is non-empty and at most 100 characters
//   - Content holds AEAD ciphertext; ContentKey holds the wrapped per-message
//     data key; plaintext never reaches a store
//   - DeliveryType=date ⇒ DeliveryDate set and in the future at scheduling
//   - DeliveryType=passing ⇒ DeliveryDate nil; delivery gates on the owner's
//     deceased flag
//   - LastUpdated is the optimistic-concurrency token: every write compares
//     and swaps on it so a concurrent edit and delivery scan cannot lose
//     updates
//   - A delivered message is immutable
type Message struct {
	ID              id.MessageID  `json:"id"`
	OwnerID         id.UserID     `json:"owner_id"`
	Title           string        `json:"title"`
	Content         string        `json:"-"`
	ContentKey      string        `json:"-"`
	Type            MessageType   `json:"type"`
	Status          MessageStatus `json:"status"`
	DeliveryType    DeliveryType  `json:"delivery_type"`
	DeliveryDate    *time.Time    `json:"delivery_date,omitempty"`
	NotifyAnonymous bool          `json:"notify_anonymous"`
	NotifyPreview   bool          `json:"notify_preview"`
	LastUpdated     time.Time     `json:"last_updated"`
}

// MessageRecipient links a message to one recipient and carries the
// per-recipient delivery state. Delivered is the de-duplication key the
// dispatcher relies on.
type MessageRecipient struct {
	ID               id.LinkID      `json:"id"`
	MessageID        id.MessageID   `json:"message_id"`
	RecipientID      id.RecipientID `json:"recipient_id"`
	NotificationSent bool           `json:"notification_sent"`
	Delivered        bool           `json:"delivered"`
}
