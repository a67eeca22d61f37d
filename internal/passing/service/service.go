package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	authmodels "everkeep/internal/auth/models"
	"everkeep/internal/passing/models"
	passingstore "everkeep/internal/passing/store"
	"everkeep/internal/platform/metrics"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	audit "everkeep/pkg/platform/audit"
	"everkeep/pkg/platform/sentinel"
)

// Clock is injected so tests control "now".
type Clock func() time.Time

// UserMarker is the slice of the user store the verification workflow owns:
// reading the deceased flag and flipping it once quorum is met.
type UserMarker interface {
	FindByID(ctx context.Context, userID id.UserID) (*authmodels.User, error)
	MarkDeceased(ctx context.Context, userID id.UserID, confirmedAt time.Time) error
}

// ContactRequest carries the writable trusted-contact fields.
type ContactRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// AttestResult reports the quorum state after an attestation.
type AttestResult struct {
	AlreadyAttested bool `json:"already_attested"`
	Attestations    int  `json:"attestations"`
	Threshold       int  `json:"threshold"`
	QuorumMet       bool `json:"quorum_met"`
}

// Service is the passing-verification workflow: trusted-contact management,
// attestation collection, and the exactly-once deceased flip when quorum is
// reached.
type Service struct {
	store         passingstore.Store
	users         UserMarker
	audit         audit.Publisher
	metrics       *metrics.Metrics
	clock         Clock
	quorumMinimum int
}

func New(store passingstore.Store, users UserMarker, auditor audit.Publisher,
	m *metrics.Metrics, clock Clock, quorumMinimum int) *Service {
	if clock == nil {
		clock = time.Now
	}
	if auditor == nil {
		auditor = nopPublisher{}
	}
	if quorumMinimum < 1 {
		quorumMinimum = 1
	}
	return &Service{
		store:         store,
		users:         users,
		audit:         auditor,
		metrics:       m,
		clock:         clock,
		quorumMinimum: quorumMinimum,
	}
}

type nopPublisher struct{}

func (nopPublisher) Emit(context.Context, audit.Event) error { return nil }

func (s *Service) CreateContact(ctx context.Context, ownerID id.UserID, req ContactRequest) (*models.TrustedContact, error) {
	if err := validateContact(&req); err != nil {
		return nil, err
	}
	contact := &models.TrustedContact{
		ID:      id.NewContactID(),
		OwnerID: ownerID,
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
	}
	if err := s.store.CreateContact(ctx, contact); err != nil {
		return nil, dErrors.WrapStore("could not create trusted contact", err)
	}
	return contact, nil
}

func (s *Service) ListContacts(ctx context.Context, ownerID id.UserID) ([]*models.TrustedContact, error) {
	contacts, err := s.store.ListContactsByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.WrapStore("could not list trusted contacts", err)
	}
	return contacts, nil
}

func (s *Service) UpdateContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID, req ContactRequest) (*models.TrustedContact, error) {
	contact, err := s.ownedContact(ctx, ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if err := validateContact(&req); err != nil {
		return nil, err
	}
	contact.Name = req.Name
	contact.Email = req.Email
	contact.Phone = req.Phone
	if err := s.store.UpdateContact(ctx, contact); err != nil {
		return nil, dErrors.WrapStore("could not update trusted contact", err)
	}
	return contact, nil
}

func (s *Service) DeleteContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID) error {
	if _, err := s.ownedContact(ctx, ownerID, contactID); err != nil {
		return err
	}
	if err := s.store.DeleteContact(ctx, contactID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "trusted contact not found")
		}
		return dErrors.WrapStore("could not delete trusted contact", err)
	}
	return nil
}

// VerifyContact marks a contact as verified. Only verified contacts can
// attest and count toward quorum. Re-verifying is a no-op.
func (s *Service) VerifyContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID) (*models.TrustedContact, error) {
	contact, err := s.ownedContact(ctx, ownerID, contactID)
	if err != nil {
		return nil, err
	}
	if err := s.store.MarkContactVerified(ctx, contactID); err != nil && !errors.Is(err, sentinel.ErrAlreadyUsed) {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "trusted contact not found")
		}
		return nil, dErrors.WrapStore("could not verify trusted contact", err)
	}
	contact.Verified = true
	return contact, nil
}

// Attest records a trusted contact's statement that the owner has passed,
// then re-evaluates quorum. Only a verified contact of that owner may attest;
// every other case fails with the same forbidden error so callers learn
// nothing about contacts that exist for other users. A repeat attestation is
// reported, not rejected.
func (s *Service) Attest(ctx context.Context, ownerID id.UserID, contactID id.ContactID) (*AttestResult, error) {
	contact, err := s.store.FindContactByID(ctx, contactID)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.WrapStore("could not look up trusted contact", err)
	}
	if err != nil || contact.OwnerID != ownerID || !contact.Verified {
		return nil, dErrors.New(dErrors.CodeForbidden, "not a verified trusted contact of this user")
	}

	now := s.clock()
	alreadyAttested := false
	attestation := &models.PassingAttestation{
		ID:         id.NewAttestationID(),
		OwnerID:    ownerID,
		ContactID:  contactID,
		AttestedAt: now,
	}
	if err := s.store.CreateAttestation(ctx, attestation); err != nil {
		if !errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.WrapStore("could not record attestation", err)
		}
		alreadyAttested = true
	}

	if !alreadyAttested {
		if s.metrics != nil {
			s.metrics.Attestations.Inc()
		}
		_ = s.audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    ownerID,
			Subject:   ownerID.String(),
			Action:    audit.EventPassingAttested,
			ActorID:   contactID.String(),
		})
	}

	result, err := s.evaluateQuorum(ctx, ownerID, contactID, now)
	if err != nil {
		return nil, err
	}
	result.AlreadyAttested = alreadyAttested
	return result, nil
}

// evaluateQuorum recomputes the threshold and flips the deceased flag when it
// is crossed. The flip is monotonic: once set it never reverts, and the
// guarded store update makes the transition exactly-once under concurrent
// attestations.
func (s *Service) evaluateQuorum(ctx context.Context, ownerID id.UserID, actorID id.ContactID, now time.Time) (*AttestResult, error) {
	attestations, err := s.store.CountAttestations(ctx, ownerID)
	if err != nil {
		return nil, dErrors.WrapStore("could not count attestations", err)
	}
	verified, err := s.store.CountVerifiedContacts(ctx, ownerID)
	if err != nil {
		return nil, dErrors.WrapStore("could not count verified contacts", err)
	}

	threshold := s.threshold(verified)
	result := &AttestResult{Attestations: attestations, Threshold: threshold}
	if attestations < threshold {
		_ = s.audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    ownerID,
			Subject:   ownerID.String(),
			Action:    audit.EventPassingAttested,
			Decision:  "quorum_pending",
			Reason:    fmt.Sprintf("%d of %d attestations", attestations, threshold),
			ActorID:   actorID.String(),
		})
		return result, nil
	}

	result.QuorumMet = true
	err = s.users.MarkDeceased(ctx, ownerID, now)
	switch {
	case err == nil:
		if s.metrics != nil {
			s.metrics.DeceasedFlips.Inc()
		}
		_ = s.audit.Emit(ctx, audit.Event{
			Timestamp: now,
			UserID:    ownerID,
			Subject:   ownerID.String(),
			Action:    audit.EventUserMarkedDeceased,
			Decision:  "quorum_met",
			Reason:    fmt.Sprintf("%d of %d attestations", attestations, threshold),
			ActorID:   actorID.String(),
		})
	case errors.Is(err, sentinel.ErrAlreadyUsed):
		// Another attestation already crossed the threshold.
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	default:
		return nil, dErrors.WrapStore("could not mark user deceased", err)
	}
	return result, nil
}

// threshold is max(configured minimum, majority of verified contacts).
func (s *Service) threshold(verifiedContacts int) int {
	majority := (verifiedContacts + 1) / 2
	if majority < s.quorumMinimum {
		return s.quorumMinimum
	}
	return majority
}

// IsDeceased reports the workflow's output for a user.
func (s *Service) IsDeceased(ctx context.Context, userID id.UserID) (bool, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, dErrors.New(dErrors.CodeNotFound, "user not found")
		}
		return false, dErrors.WrapStore("could not look up user", err)
	}
	return user.Deceased, nil
}

func (s *Service) ownedContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID) (*models.TrustedContact, error) {
	contact, err := s.store.FindContactByID(ctx, contactID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "trusted contact not found")
		}
		return nil, dErrors.WrapStore("could not look up trusted contact", err)
	}
	if contact.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "trusted contact belongs to another user")
	}
	return contact, nil
}

func validateContact(req *ContactRequest) error {
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
