package service

import (
	"context"
	"errors"
	"strings"

	"everkeep/internal/recipient/models"
	recipientstore "everkeep/internal/recipient/store"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/platform/sentinel"
)

// LinkChecker is the slice of the message store the recipient service needs:
// it guards deletion of a recipient that a scheduled message still addresses,
// and cascades link removal otherwise.
type LinkChecker interface {
	HasScheduledLinks(ctx context.Context, recipientID id.RecipientID) (bool, error)
	DeleteLinksByRecipient(ctx context.Context, recipientID id.RecipientID) error
}

// CreateRequest carries the writable recipient fields.
type CreateRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

type Service struct {
	recipients recipientstore.Store
	links      LinkChecker
}

func New(recipients recipientstore.Store, links LinkChecker) *Service {
	return &Service{recipients: recipients, links: links}
}

func (s *Service) Create(ctx context.Context, ownerID id.UserID, req CreateRequest) (*models.Recipient, error) {
	if err := validate(&req); err != nil {
		return nil, err
	}
	recipient := &models.Recipient{
		ID:           id.NewRecipientID(),
		OwnerID:      ownerID,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Relationship: req.Relationship,
	}
	if err := s.recipients.Create(ctx, recipient); err != nil {
		return nil, dErrors.WrapStore("could not create recipient", err)
	}
	return recipient, nil
}

func (s *Service) Get(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID) (*models.Recipient, error) {
	return s.owned(ctx, ownerID, recipientID)
}

func (s *Service) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*models.Recipient, error) {
	recipients, err := s.recipients.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.WrapStore("could not list recipients", err)
	}
	return recipients, nil
}

func (s *Service) Update(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID, req CreateRequest) (*models.Recipient, error) {
	recipient, err := s.owned(ctx, ownerID, recipientID)
	if err != nil {
		return nil, err
	}
	if err := validate(&req); err != nil {
		return nil, err
	}
	recipient.Name = req.Name
	recipient.Email = req.Email
	recipient.Phone = req.Phone
	recipient.Relationship = req.Relationship
	if err := s.recipients.Update(ctx, recipient); err != nil {
		return nil, dErrors.WrapStore("could not update recipient", err)
	}
	return recipient, nil
}

// Delete removes a recipient and cascades its message links. A recipient a
// scheduled message still addresses cannot be deleted; dropping it would
// silently shrink that message's audience.
func (s *Service) Delete(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID) error {
	if _, err := s.owned(ctx, ownerID, recipientID); err != nil {
		return err
	}
	attached, err := s.links.HasScheduledLinks(ctx, recipientID)
	if err != nil {
		return dErrors.WrapStore("could not check recipient links", err)
	}
	if attached {
		return dErrors.New(dErrors.CodeConflict, "recipient is attached to a scheduled message")
	}
	if err := s.links.DeleteLinksByRecipient(ctx, recipientID); err != nil {
		return dErrors.WrapStore("could not remove recipient links", err)
	}
	if err := s.recipients.Delete(ctx, recipientID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "recipient not found")
		}
		return dErrors.WrapStore("could not delete recipient", err)
	}
	return nil
}

// owned loads a recipient and enforces ownership, not-found before forbidden.
func (s *Service) owned(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID) (*models.Recipient, error) {
	recipient, err := s.recipients.FindByID(ctx, recipientID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "recipient not found")
		}
		return nil, dErrors.WrapStore("could not look up recipient", err)
	}
	if recipient.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "recipient belongs to another user")
	}
	return recipient, nil
}

func validate(req *CreateRequest) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	return nil
}
