package store

import (
	"context"
	"sort"
	"sync"

	"everkeep/internal/recipient/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

type InMemory struct {
	mu         sync.RWMutex
	recipients map[id.RecipientID]*models.Recipient
}

func NewInMemory() *InMemory {
	return &InMemory{recipients: make(map[id.RecipientID]*models.Recipient)}
}

func (s *InMemory) Create(_ context.Context, recipient *models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.recipients[recipient.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *recipient
	s.recipients[recipient.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, recipientID id.RecipientID) (*models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	recipient, ok := s.recipients[recipientID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *recipient
	return &clone, nil
}

func (s *InMemory) ListByOwner(_ context.Context, ownerID id.UserID) ([]*models.Recipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Recipient
	for _, recipient := range s.recipients {
		if recipient.OwnerID == ownerID {
			clone := *recipient
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) Update(_ context.Context, recipient *models.Recipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipients[recipient.ID]; !ok {
		return sentinel.ErrNotFound
	}
	clone := *recipient
	s.recipients[recipient.ID] = &clone
	return nil
}

func (s *InMemory) Delete(_ context.Context, recipientID id.RecipientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.recipients[recipientID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.recipients, recipientID)
	return nil
}
