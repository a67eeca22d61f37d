package models

import (
	"time"

	id "everkeep/pkg/domain"
)

// User is an account owner.
//
// Invariants:
//   - Username and Email are unique across the store (case-insensitive)
//   - PasswordHash is a bcrypt hash, never the raw password
//   - Deceased is monotonic: false → true exactly once, written only by the
//     passing-verification service; DeceasedConfirmedAt is set at the flip
//
// Users are never hard-deleted: scheduled messages and the audit trail
// reference them after the owner can no longer act.
type User struct {
	ID                  id.UserID  `json:"id"`
	Username            string     `json:"username"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	FirstName           string     `json:"first_name,omitempty"`
	LastName            string     `json:"last_name,omitempty"`
	Deceased            bool       `json:"deceased"`
	DeceasedConfirmedAt *time.Time `json:"deceased_confirmed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}
