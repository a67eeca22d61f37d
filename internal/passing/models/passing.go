package models

import (
	"time"

	id "everkeep/pkg/domain"
)

// TrustedContact is a person the owner trusts to attest to their passing.
// Only verified contacts count toward quorum; verification is a separate,
// explicit step after creation.
type TrustedContact struct {
	ID       id.ContactID `json:"id"`
	OwnerID  id.UserID    `json:"owner_id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Phone    string       `json:"phone,omitempty"`
	Verified bool         `json:"verified"`
}

// PassingAttestation records one trusted contact's statement that the owner
// has passed. At most one attestation exists per (owner, contact) pair;
// attesting again is idempotent.
type PassingAttestation struct {
	ID         id.AttestationID `json:"id"`
	OwnerID    id.UserID        `json:"owner_id"`
	ContactID  id.ContactID     `json:"contact_id"`
	AttestedAt time.Time        `json:"attested_at"`
}
