package user

import (
	"context"
	"time"

	"everkeep/internal/auth/models"
	id "everkeep/pkg/domain"
)

// Store persists users. Implementations return sentinel errors
// (pkg/platform/sentinel) for infrastructure facts:
//   - ErrNotFound: no such user
//   - ErrConflict: username or email already taken
//   - ErrAlreadyUsed: MarkDeceased on a user already marked deceased
type Store interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, userID id.UserID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// MarkDeceased flips the monotonic deceased flag. The guarded write is
	// what makes the quorum flip happen exactly once even when two
	// attestations race.
	MarkDeceased(ctx context.Context, userID id.UserID, confirmedAt time.Time) error
}
