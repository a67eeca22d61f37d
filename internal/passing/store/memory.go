package store

import (
	"context"
	"sort"
	"sync"

	"everkeep/internal/passing/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

type attestationKey struct {
	owner   id.UserID
	contact id.ContactID
}

type InMemory struct {
	mu           sync.RWMutex
	contacts     map[id.ContactID]*models.TrustedContact
	attestations map[attestationKey]*models.PassingAttestation
}

func NewInMemory() *InMemory {
	return &InMemory{
		contacts:     make(map[id.ContactID]*models.TrustedContact),
		attestations: make(map[attestationKey]*models.PassingAttestation),
	}
}

func (s *InMemory) CreateContact(_ context.Context, contact *models.TrustedContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.contacts[contact.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *contact
	s.contacts[contact.ID] = &clone
	return nil
}

func (s *InMemory) FindContactByID(_ context.Context, contactID id.ContactID) (*models.TrustedContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	contact, ok := s.contacts[contactID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *contact
	return &clone, nil
}

func (s *InMemory) ListContactsByOwner(_ context.Context, ownerID id.UserID) ([]*models.TrustedContact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TrustedContact
	for _, contact := range s.contacts {
		if contact.OwnerID == ownerID {
			clone := *contact
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) UpdateContact(_ context.Context, contact *models.TrustedContact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contacts[contact.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *contact
	s.contacts[contact.ID] = &clone
	return nil
}

func (s *InMemory) DeleteContact(_ context.Context, contactID id.ContactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[contactID]
	if !ok {
		return sentinel.ErrNotFound
	}
	for key := range s.attestations {
		if key.contact == contact.ID {
			delete(s.attestations, key)
		}
	}
	delete(s.contacts, contactID)
	return nil
}

func (s *InMemory) MarkContactVerified(_ context.Context, contactID id.ContactID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	contact, ok := s.contacts[contactID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if contact.Verified {
		return sentinel.ErrAlreadyUsed
	}
	contact.Verified = true
	return nil
}

func (s *InMemory) CountVerifiedContacts(_ context.Context, ownerID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, contact := range s.contacts {
		if contact.OwnerID == ownerID && contact.Verified {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) CreateAttestation(_ context.Context, attestation *models.PassingAttestation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := attestationKey{owner: attestation.OwnerID, contact: attestation.ContactID}
	if _, exists := s.attestations[key]; exists {
		return sentinel.ErrConflict
	}
	clone := *attestation
	s.attestations[key] = &clone
	return nil
}

func (s *InMemory) CountAttestations(_ context.Context, ownerID id.UserID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for key := range s.attestations {
		if key.owner == ownerID {
			count++
		}
	}
	return count, nil
}
