package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"everkeep/internal/message/models"
	id "everkeep/pkg/domain"
	"everkeep/pkg/platform/sentinel"
)

// InMemory keeps messages and links under one lock, which gives it the same
// all-or-nothing and compare-and-swap semantics the postgres implementation
// gets from transactions and guarded updates.
type InMemory struct {
	mu       sync.RWMutex
	messages map[id.MessageID]*models.Message
	links    map[id.LinkID]*models.MessageRecipient
}

func NewInMemory() *InMemory {
	return &InMemory{
		messages: make(map[id.MessageID]*models.Message),
		links:    make(map[id.LinkID]*models.MessageRecipient),
	}
}

func (s *InMemory) Create(_ context.Context, message *models.Message, links []*models.MessageRecipient) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.messages[message.ID]; exists {
		return sentinel.ErrConflict
	}
	clone := *message
	s.messages[message.ID] = &clone
	for _, link := range links {
		linkClone := *link
		s.links[link.ID] = &linkClone
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, messageID id.MessageID) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	message, ok := s.messages[messageID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *message
	return &clone, nil
}

func (s *InMemory) ListByOwner(_ context.Context, ownerID id.UserID) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.OwnerID == ownerID {
			clone := *message
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdated.After(out[j].LastUpdated) })
	return out, nil
}

func (s *InMemory) Update(_ context.Context, message *models.Message, links []*models.MessageRecipient, expectedLastUpdated time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.messages[message.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !existing.LastUpdated.Equal(expectedLastUpdated) {
		return sentinel.ErrConflict
	}
	clone := *message
	s.messages[message.ID] = &clone
	for linkID, link := range s.links {
		if link.MessageID == message.ID {
			delete(s.links, linkID)
		}
	}
	for _, link := range links {
		linkClone := *link
		s.links[link.ID] = &linkClone
	}
	return nil
}

func (s *InMemory) Delete(_ context.Context, messageID id.MessageID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.messages[messageID]; !ok {
		return sentinel.ErrNotFound
	}
	for linkID, link := range s.links {
		if link.MessageID == messageID {
			delete(s.links, linkID)
		}
	}
	delete(s.messages, messageID)
	return nil
}

func (s *InMemory) ListLinks(_ context.Context, messageID id.MessageID) ([]*models.MessageRecipient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.MessageRecipient
	for _, link := range s.links {
		if link.MessageID == messageID {
			clone := *link
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemory) MarkLinkDelivered(_ context.Context, linkID id.LinkID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	link, ok := s.links[linkID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if link.Delivered {
		return sentinel.ErrAlreadyUsed
	}
	link.NotificationSent = true
	link.Delivered = true
	return nil
}

func (s *InMemory) MarkDelivered(_ context.Context, messageID id.MessageID, expectedLastUpdated time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	message, ok := s.messages[messageID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !message.LastUpdated.Equal(expectedLastUpdated) {
		return sentinel.ErrConflict
	}
	if message.Status != models.StatusScheduled {
		return sentinel.ErrInvalidState
	}
	message.Status = models.StatusDelivered
	message.LastUpdated = now
	return nil
}

func (s *InMemory) ListDueByDate(_ context.Context, now time.Time) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.Status != models.StatusScheduled || message.DeliveryType != models.DeliveryDate {
			continue
		}
		if message.DeliveryDate != nil && !message.DeliveryDate.After(now) {
			clone := *message
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *InMemory) ListScheduledPassing(_ context.Context) ([]*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Message
	for _, message := range s.messages {
		if message.Status == models.StatusScheduled && message.DeliveryType == models.DeliveryPassing {
			clone := *message
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (s *InMemory) HasScheduledLinks(_ context.Context, recipientID id.RecipientID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, link := range s.links {
		if link.RecipientID != recipientID {
			continue
		}
		if message, ok := s.messages[link.MessageID]; ok && message.Status == models.StatusScheduled {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemory) DeleteLinksByRecipient(_ context.Context, recipientID id.RecipientID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for linkID, link := range s.links {
		if link.RecipientID == recipientID {
			delete(s.links, linkID)
		}
	}
	return nil
}
