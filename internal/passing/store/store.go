package store

import (
	"context"

	"everkeep/internal/passing/models"
	id "everkeep/pkg/domain"
)

// Store persists trusted contacts and their attestations. Both live behind
// one interface because quorum evaluation reads them together.
//
// Sentinel errors:
//   - ErrNotFound: no such contact
//   - ErrConflict: duplicate attestation for the same (owner, contact) pair
//   - ErrAlreadyUsed: verifying an already-verified contact
type Store interface {
	CreateContact(ctx context.Context, contact *models.TrustedContact) error
	FindContactByID(ctx context.Context, contactID id.ContactID) (*models.TrustedContact, error)
	ListContactsByOwner(ctx context.Context, ownerID id.UserID) ([]*models.TrustedContact, error)
	UpdateContact(ctx context.Context, contact *models.TrustedContact) error
	DeleteContact(ctx context.Context, contactID id.ContactID) error
	// MarkContactVerified flips the verified flag with a guard so the
	// transition happens exactly once.
	MarkContactVerified(ctx context.Context, contactID id.ContactID) error
	CountVerifiedContacts(ctx context.Context, ownerID id.UserID) (int, error)

	// CreateAttestation enforces uniqueness per (owner, contact) and returns
	// ErrConflict on a duplicate.
	CreateAttestation(ctx context.Context, attestation *models.PassingAttestation) error
	CountAttestations(ctx context.Context, ownerID id.UserID) (int, error)
}
