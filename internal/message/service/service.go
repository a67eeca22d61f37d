package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"everkeep/internal/message/models"
	messagestore "everkeep/internal/message/store"
	"everkeep/internal/platform/metrics"
	recipientmodels "everkeep/internal/recipient/models"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	audit "everkeep/pkg/platform/audit"
	"everkeep/pkg/platform/sentinel"
)

const maxTitleLength = 100

// Clock is injected so tests control "now".
type Clock func() time.Time

// Codec is the confidentiality seam. Content is sealed before it reaches the
// store and opened only when the owner reads it back or the dispatcher
// prepares a preview.
type Codec interface {
	Seal(plaintext string) (ciphertext string, keyMaterial string, err error)
	Open(ciphertext string, keyMaterial string) (string, error)
}

// RecipientFinder is the slice of the recipient store the lifecycle engine
// needs to verify that addressed recipients exist and belong to the caller.
type RecipientFinder interface {
	FindByID(ctx context.Context, recipientID id.RecipientID) (*recipientmodels.Recipient, error)
}

// DeceasedChecker reports whether a user's passing has been confirmed. Backed
// by the passing-verification workflow's output on the user record.
type DeceasedChecker interface {
	IsDeceased(ctx context.Context, userID id.UserID) (bool, error)
}

// WriteRequest carries the writable message fields for create and update.
type WriteRequest struct {
	Title           string           `json:"title"`
	Content         string           `json:"content"`
	Type            string           `json:"type"`
	DeliveryType    string           `json:"delivery_type"`
	DeliveryDate    *time.Time       `json:"delivery_date,omitempty"`
	NotifyAnonymous bool             `json:"notify_anonymous"`
	NotifyPreview   bool             `json:"notify_preview"`
	RecipientIDs    []id.RecipientID `json:"recipient_ids"`
}

// View is a message joined with its recipient set. Content is populated only
// on single-message reads; list responses omit plaintext.
type View struct {
	*models.Message
	Content      string           `json:"content,omitempty"`
	RecipientIDs []id.RecipientID `json:"recipient_ids"`
}

// Service is the message lifecycle engine: it validates, encrypts, computes
// the draft/scheduled status, and enforces the forward-only lifecycle with
// delivered as a terminal, immutable state.
type Service struct {
	messages   messagestore.Store
	recipients RecipientFinder
	users      DeceasedChecker
	codec      Codec
	audit      audit.Publisher
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	clock      Clock
}

func New(messages messagestore.Store, recipients RecipientFinder, users DeceasedChecker,
	codec Codec, auditor audit.Publisher, m *metrics.Metrics, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	if auditor == nil {
		auditor = nopPublisher{}
	}
	return &Service{
		messages:   messages,
		recipients: recipients,
		users:      users,
		codec:      codec,
		audit:      auditor,
		metrics:    m,
		tracer:     otel.Tracer("everkeep/message"),
		clock:      clock,
	}
}

type nopPublisher struct{}

func (nopPublisher) Emit(context.Context, audit.Event) error { return nil }

// Create validates, encrypts, and persists a new message with its links in a
// single atomic write. The resulting status is scheduled when the delivery
// trigger is fully configured and at least one recipient is addressed,
// otherwise draft.
func (s *Service) Create(ctx context.Context, ownerID id.UserID, req WriteRequest) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "message.create")
	defer span.End()

	now := s.clock()
	if err := s.validate(&req, now); err != nil {
		return nil, err
	}
	if err := s.checkRecipients(ctx, ownerID, req.RecipientIDs); err != nil {
		return nil, err
	}

	ciphertext, keyMaterial, err := s.codec.Seal(req.Content)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "could not encrypt content", err)
	}

	message := &models.Message{
		ID:              id.NewMessageID(),
		OwnerID:         ownerID,
		Title:           req.Title,
		Content:         ciphertext,
		ContentKey:      keyMaterial,
		Type:            models.MessageType(req.Type),
		Status:          computeStatus(&req),
		DeliveryType:    models.DeliveryType(req.DeliveryType),
		DeliveryDate:    req.DeliveryDate,
		NotifyAnonymous: req.NotifyAnonymous,
		NotifyPreview:   req.NotifyPreview,
		LastUpdated:     now,
	}
	links := buildLinks(message.ID, req.RecipientIDs)

	if err := s.messages.Create(ctx, message, links); err != nil {
		return nil, dErrors.WrapStore("could not create message", err)
	}

	span.SetAttributes(
		attribute.String("message.id", message.ID.String()),
		attribute.String("message.status", string(message.Status)),
	)
	if s.metrics != nil {
		s.metrics.MessagesCreated.WithLabelValues(string(message.Status)).Inc()
	}
	action := audit.EventMessageDrafted
	if message.Status == models.StatusScheduled {
		action = audit.EventMessageScheduled
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    ownerID,
		Subject:   message.ID.String(),
		Action:    action,
		Decision:  string(message.Status),
	})

	return s.view(message, req.Content, req.RecipientIDs), nil
}

// Get returns one message with decrypted content for its owner.
func (s *Service) Get(ctx context.Context, ownerID id.UserID, messageID id.MessageID) (*View, error) {
	message, err := s.owned(ctx, ownerID, messageID)
	if err != nil {
		return nil, err
	}
	plaintext, err := s.codec.Open(message.Content, message.ContentKey)
	if err != nil {
		return nil, err
	}
	recipientIDs, err := s.linkRecipients(ctx, messageID)
	if err != nil {
		return nil, err
	}
	return s.view(message, plaintext, recipientIDs), nil
}

// ListByOwner returns the owner's messages joined with their recipient sets.
// Plaintext content stays out of list responses.
func (s *Service) ListByOwner(ctx context.Context, ownerID id.UserID) ([]*View, error) {
	messages, err := s.messages.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, dErrors.WrapStore("could not list messages", err)
	}
	views := make([]*View, 0, len(messages))
	for _, message := range messages {
		recipientIDs, err := s.linkRecipients(ctx, message.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, s.view(message, "", recipientIDs))
	}
	return views, nil
}

// Update re-validates, re-encrypts, and replaces the link set, guarded by a
// compare-and-swap on LastUpdated. A delivered message never changes.
func (s *Service) Update(ctx context.Context, ownerID id.UserID, messageID id.MessageID, req WriteRequest) (*View, error) {
	existing, err := s.owned(ctx, ownerID, messageID)
	if err != nil {
		return nil, err
	}
	if existing.Status == models.StatusDelivered {
		return nil, dErrors.New(dErrors.CodeImmutableState, "a delivered message cannot be modified")
	}

	now := s.clock()
	if err := s.validate(&req, now); err != nil {
		return nil, err
	}
	if existing.Status == models.StatusScheduled && len(req.RecipientIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a scheduled message needs at least one recipient")
	}
	if err := s.checkRecipients(ctx, ownerID, req.RecipientIDs); err != nil {
		return nil, err
	}

	nextStatus := computeStatus(&req)
	if !existing.Status.CanTransitionTo(nextStatus) {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "message lifecycle only moves forward")
	}

	ciphertext, keyMaterial, err := s.codec.Seal(req.Content)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "could not encrypt content", err)
	}

	updated := &models.Message{
		ID:              existing.ID,
		OwnerID:         existing.OwnerID,
		Title:           req.Title,
		Content:         ciphertext,
		ContentKey:      keyMaterial,
		Type:            models.MessageType(req.Type),
		Status:          nextStatus,
		DeliveryType:    models.DeliveryType(req.DeliveryType),
		DeliveryDate:    req.DeliveryDate,
		NotifyAnonymous: req.NotifyAnonymous,
		NotifyPreview:   req.NotifyPreview,
		LastUpdated:     now,
	}
	links := buildLinks(updated.ID, req.RecipientIDs)

	if err := s.messages.Update(ctx, updated, links, existing.LastUpdated); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "message was modified concurrently")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return nil, dErrors.WrapStore("could not update message", err)
	}

	_ = s.audit.Emit(ctx, audit.Event{
		Timestamp: now,
		UserID:    ownerID,
		Subject:   updated.ID.String(),
		Action:    audit.EventMessageUpdated,
		Decision:  string(updated.Status),
	})
	return s.view(updated, req.Content, req.RecipientIDs), nil
}

// Delete removes a message and its links. Delivered messages are part of the
// permanent record and cannot be deleted.
func (s *Service) Delete(ctx context.Context, ownerID id.UserID, messageID id.MessageID) error {
	message, err := s.owned(ctx, ownerID, messageID)
	if err != nil {
		return err
	}
	if message.Status == models.StatusDelivered {
		return dErrors.New(dErrors.CodeImmutableState, "a delivered message cannot be deleted")
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return dErrors.WrapStore("could not delete message", err)
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Timestamp: s.clock(),
		UserID:    ownerID,
		Subject:   messageID.String(),
		Action:    audit.EventMessageDeleted,
	})
	return nil
}

// DueForDelivery returns every scheduled message whose trigger has fired:
// date-triggered messages past their delivery date, and passing-triggered
// messages whose owner's deceased flag is set.
func (s *Service) DueForDelivery(ctx context.Context, now time.Time) ([]*models.Message, error) {
	due, err := s.messages.ListDueByDate(ctx, now)
	if err != nil {
		return nil, dErrors.WrapStore("could not list due messages", err)
	}

	passing, err := s.messages.ListScheduledPassing(ctx)
	if err != nil {
		return nil, dErrors.WrapStore("could not list passing messages", err)
	}
	// One deceased lookup per owner, not per message.
	deceased := make(map[id.UserID]bool)
	for _, message := range passing {
		flag, seen := deceased[message.OwnerID]
		if !seen {
			flag, err = s.users.IsDeceased(ctx, message.OwnerID)
			if err != nil {
				return nil, err
			}
			deceased[message.OwnerID] = flag
		}
		if flag {
			due = append(due, message)
		}
	}
	return due, nil
}

// owned loads a message and enforces ownership, not-found before forbidden.
func (s *Service) owned(ctx context.Context, ownerID id.UserID, messageID id.MessageID) (*models.Message, error) {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "message not found")
		}
		return nil, dErrors.WrapStore("could not look up message", err)
	}
	if message.OwnerID != ownerID {
		return nil, dErrors.New(dErrors.CodeForbidden, "message belongs to another user")
	}
	return message, nil
}

func (s *Service) validate(req *WriteRequest, now time.Time) error {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "title is required")
	}
	// The limit is characters, not bytes, matching the schema's char_length
	// check; a multibyte title must not be rejected early.
	if utf8.RuneCountInString(req.Title) > maxTitleLength {
		return dErrors.New(dErrors.CodeInvalidInput, "title must be at most 100 characters")
	}
	if req.Content == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "content is required")
	}
	if !models.MessageType(req.Type).Valid() {
		return dErrors.New(dErrors.CodeInvalidInput, "type must be text, video or document")
	}
	switch models.DeliveryType(req.DeliveryType) {
	case models.DeliveryDate:
		if req.DeliveryDate == nil {
			return dErrors.New(dErrors.CodeInvalidInput, "a date-triggered message needs a delivery date")
		}
		if !req.DeliveryDate.After(now) {
			return dErrors.New(dErrors.CodeInvalidInput, "delivery date must be in the future")
		}
	case models.DeliveryPassing:
		if req.DeliveryDate != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "a passing-triggered message cannot carry a delivery date")
		}
	default:
		return dErrors.New(dErrors.CodeInvalidInput, "delivery type must be date or passing")
	}
	return nil
}

// checkRecipients verifies each addressed recipient exists and belongs to the
// caller. A recipient owned by someone else yields forbidden without hinting
// at its existence.
func (s *Service) checkRecipients(ctx context.Context, ownerID id.UserID, recipientIDs []id.RecipientID) error {
	seen := make(map[id.RecipientID]struct{}, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		if _, dup := seen[recipientID]; dup {
			return dErrors.New(dErrors.CodeInvalidInput, "duplicate recipient")
		}
		seen[recipientID] = struct{}{}

		recipient, err := s.recipients.FindByID(ctx, recipientID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeForbidden, "recipient is not available")
			}
			return dErrors.WrapStore("could not look up recipient", err)
		}
		if recipient.OwnerID != ownerID {
			return dErrors.New(dErrors.CodeForbidden, "recipient is not available")
		}
	}
	return nil
}

// computeStatus applies the scheduling rule: a fully configured trigger plus
// at least one recipient means scheduled, anything less stays draft.
// Validation has already guaranteed the trigger configuration is coherent.
func computeStatus(req *WriteRequest) models.MessageStatus {
	if len(req.RecipientIDs) == 0 {
		return models.StatusDraft
	}
	return models.StatusScheduled
}

func buildLinks(messageID id.MessageID, recipientIDs []id.RecipientID) []*models.MessageRecipient {
	links := make([]*models.MessageRecipient, 0, len(recipientIDs))
	for _, recipientID := range recipientIDs {
		links = append(links, &models.MessageRecipient{
			ID:          id.NewLinkID(),
			MessageID:   messageID,
			RecipientID: recipientID,
		})
	}
	return links
}

func (s *Service) view(message *models.Message, plaintext string, recipientIDs []id.RecipientID) *View {
	if recipientIDs == nil {
		recipientIDs = []id.RecipientID{}
	}
	return &View{Message: message, Content: plaintext, RecipientIDs: recipientIDs}
}

func (s *Service) linkRecipients(ctx context.Context, messageID id.MessageID) ([]id.RecipientID, error) {
	links, err := s.messages.ListLinks(ctx, messageID)
	if err != nil {
		return nil, dErrors.WrapStore("could not list message recipients", err)
	}
	recipientIDs := make([]id.RecipientID, 0, len(links))
	for _, link := range links {
		recipientIDs = append(recipientIDs, link.RecipientID)
	}
	return recipientIDs, nil
}
