package models

import (
	id "everkeep/pkg/domain"
)

// Recipient is a person a user can address messages to. Recipients belong to
// exactly one owner; the owner check happens in the service layer on every
// read and write.
type Recipient struct {
	ID           id.RecipientID `json:"id"`
	OwnerID      id.UserID      `json:"owner_id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Relationship string         `json:"relationship,omitempty"`
}
