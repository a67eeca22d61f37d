package store

import (
	"context"
	"time"

	"everkeep/internal/message/models"
	id "everkeep/pkg/domain"
)

// Store persists messages together with their recipient links. Links live
// behind the same interface because create/update must write both
// all-or-nothing; splitting them across stores would push the transaction
// boundary into the service.
//
// Sentinel errors:
//   - ErrNotFound: no such message/link
//   - ErrConflict: compare-and-swap on LastUpdated lost a race
//   - ErrAlreadyUsed: MarkLinkDelivered on an already-delivered link
type Store interface {
	// Create persists the message and its links atomically.
	Create(ctx context.Context, message *models.Message, links []*models.MessageRecipient) error
	FindByID(ctx context.Context, messageID id.MessageID) (*models.Message, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Message, error)
	// Update rewrites the message and replaces its link set atomically,
	// guarded by a compare-and-swap on the previous LastUpdated value.
	Update(ctx context.Context, message *models.Message, links []*models.MessageRecipient, expectedLastUpdated time.Time) error
	// Delete removes the links first, then the message (FK order).
	Delete(ctx context.Context, messageID id.MessageID) error

	ListLinks(ctx context.Context, messageID id.MessageID) ([]*models.MessageRecipient, error)
	// MarkLinkDelivered sets notification_sent and delivered with a guard on
	// delivered = false, so overlapping dispatcher runs cannot double-notify.
	MarkLinkDelivered(ctx context.Context, linkID id.LinkID) error
	// MarkDelivered moves a scheduled message to delivered, CAS-guarded the
	// same way Update is.
	MarkDelivered(ctx context.Context, messageID id.MessageID, expectedLastUpdated time.Time, now time.Time) error

	// ListDueByDate returns scheduled date-triggered messages whose delivery
	// date is at or before now.
	ListDueByDate(ctx context.Context, now time.Time) ([]*models.Message, error)
	// ListScheduledPassing returns scheduled passing-triggered messages; the
	// caller filters by the owner's deceased flag.
	ListScheduledPassing(ctx context.Context) ([]*models.Message, error)

	// HasScheduledLinks reports whether the recipient is attached to any
	// scheduled message (guards recipient deletion).
	HasScheduledLinks(ctx context.Context, recipientID id.RecipientID) (bool, error)
	// DeleteLinksByRecipient cascades a recipient deletion to its links.
	DeleteLinksByRecipient(ctx context.Context, recipientID id.RecipientID) error
}
