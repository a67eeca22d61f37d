package store

import (
	"context"

	"everkeep/internal/recipient/models"
	id "everkeep/pkg/domain"
)

// Store persists recipients. Implementations return sentinel.ErrNotFound for
// unknown IDs.
type Store interface {
	Create(ctx context.Context, recipient *models.Recipient) error
	FindByID(ctx context.Context, recipientID id.RecipientID) (*models.Recipient, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Recipient, error)
	Update(ctx context.Context, recipient *models.Recipient) error
	Delete(ctx context.Context, recipientID id.RecipientID) error
}
