// Package domain holds the typed identifiers shared by every layer.
//
// Each entity gets its own UUID wrapper so the compiler rejects cross-entity
// assignment (passing a RecipientID where a MessageID is expected is a bug
// we want caught at compile time, not in production).
package domain

import (
	"github.com/google/uuid"

	dErrors "everkeep/pkg/domain-errors"
)

type (
	// UserID identifies an account owner.
	UserID uuid.UUID
	// RecipientID identifies a person who may receive messages.
	RecipientID uuid.UUID
	// MessageID identifies a composed message.
	MessageID uuid.UUID
	// LinkID identifies a message-recipient delivery link.
	LinkID uuid.UUID
	// ContactID identifies a trusted contact.
	ContactID uuid.UUID
	// AttestationID identifies a single passing attestation.
	AttestationID uuid.UUID
)

func NewUserID() UserID               { return UserID(uuid.New()) }
func NewRecipientID() RecipientID     { return RecipientID(uuid.New()) }
func NewMessageID() MessageID         { return MessageID(uuid.New()) }
func NewLinkID() LinkID               { return LinkID(uuid.New()) }
func NewContactID() ContactID         { return ContactID(uuid.New()) }
func NewAttestationID() AttestationID { return AttestationID(uuid.New()) }

func (id UserID) String() string        { return uuid.UUID(id).String() }
func (id RecipientID) String() string   { return uuid.UUID(id).String() }
func (id MessageID) String() string     { return uuid.UUID(id).String() }
func (id LinkID) String() string        { return uuid.UUID(id).String() }
func (id ContactID) String() string     { return uuid.UUID(id).String() }
func (id AttestationID) String() string { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id RecipientID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id MessageID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id LinkID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id ContactID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id AttestationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// The wrappers are defined types, so they do not inherit uuid.UUID's text
// marshaling; without these methods encoding/json would emit a byte array
// instead of the canonical string form.

func (id UserID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id RecipientID) MarshalText() ([]byte, error)   { return []byte(id.String()), nil }
func (id MessageID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id LinkID) MarshalText() ([]byte, error)        { return []byte(id.String()), nil }
func (id ContactID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id AttestationID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *RecipientID) UnmarshalText(b []byte) error {
	parsed, err := ParseRecipientID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *MessageID) UnmarshalText(b []byte) error {
	parsed, err := ParseMessageID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *LinkID) UnmarshalText(b []byte) error {
	parsed, err := ParseLinkID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ContactID) UnmarshalText(b []byte) error {
	parsed, err := ParseContactID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *AttestationID) UnmarshalText(b []byte) error {
	parsed, err := ParseAttestationID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// parseUUID enforces the shared trust-boundary invariant: IDs must be valid,
// non-empty, non-nil UUIDs.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be empty")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	parsed, err := parseUUID(s)
	return UserID(parsed), err
}

func ParseRecipientID(s string) (RecipientID, error) {
	parsed, err := parseUUID(s)
	return RecipientID(parsed), err
}

func ParseMessageID(s string) (MessageID, error) {
	parsed, err := parseUUID(s)
	return MessageID(parsed), err
}

func ParseLinkID(s string) (LinkID, error) {
	parsed, err := parseUUID(s)
	return LinkID(parsed), err
}

func ParseContactID(s string) (ContactID, error) {
	parsed, err := parseUUID(s)
	return ContactID(parsed), err
}

func ParseAttestationID(s string) (AttestationID, error) {
	parsed, err := parseUUID(s)
	return AttestationID(parsed), err
}
