package dispatch_test

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	authmodels "everkeep/internal/auth/models"
	userstore "everkeep/internal/auth/store/user"
	"everkeep/internal/dispatch"
	"everkeep/internal/dispatch/mocks"
	"everkeep/internal/message/crypto"
	"everkeep/internal/message/models"
	messageservice "everkeep/internal/message/service"
	messagestore "everkeep/internal/message/store"
	recipientmodels "everkeep/internal/recipient/models"
	recipientstore "everkeep/internal/recipient/store"
	id "everkeep/pkg/domain"
)

type DispatcherSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	notifier   *mocks.MockNotifier
	dispatcher *dispatch.Dispatcher
	messages   *messagestore.InMemory
	recipients *recipientstore.InMemory
	users      *userstore.InMemory
	svc        *messageservice.Service
	ctx        context.Context
	owner      id.UserID
	now        time.Time
}

func (s *DispatcherSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	key := make([]byte, crypto.KeySize)
	_, err := rand.Read(key)
	s.Require().NoError(err)
	codec, err := crypto.NewCodec(key)
	s.Require().NoError(err)

	s.messages = messagestore.NewInMemory()
	s.recipients = recipientstore.NewInMemory()
	s.users = userstore.NewInMemory()
	s.owner = s.newUser("orla", "Orla", "Quinn")

	clock := func() time.Time { return s.now }
	s.svc = messageservice.New(s.messages, s.recipients, deceasedAdapter{s.users}, codec, nil, nil, clock)
	s.dispatcher = dispatch.New(s.svc, s.messages, s.recipients, s.users,
		codec, s.notifier, nil, nil, nil, clock, nil, time.Minute, 10*time.Second)
}

func (s *DispatcherSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestDispatcherSuite(t *testing.T) {
	suite.Run(t, new(DispatcherSuite))
}

// deceasedAdapter exposes the user store's deceased flag through the
// lifecycle engine's checker seam.
type deceasedAdapter struct {
	users *userstore.InMemory
}

func (a deceasedAdapter) IsDeceased(ctx context.Context, userID id.UserID) (bool, error) {
	user, err := a.users.FindByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return user.Deceased, nil
}

func (s *DispatcherSuite) newUser(username, first, last string) id.UserID {
	user := &authmodels.User{
		ID:           id.NewUserID(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$hash",
		FirstName:    first,
		LastName:     last,
		CreatedAt:    s.now,
	}
	s.Require().NoError(s.users.Create(s.ctx, user))
	return user.ID
}

func (s *DispatcherSuite) newRecipient(owner id.UserID, name string) id.RecipientID {
	recipient := &recipientmodels.Recipient{
		ID:      id.NewRecipientID(),
		OwnerID: owner,
		Name:    name,
		Email:   name + "@example.com",
	}
	s.Require().NoError(s.recipients.Create(s.ctx, recipient))
	return recipient.ID
}

func (s *DispatcherSuite) scheduleDateMessage(recipientIDs []id.RecipientID, due time.Time, preview, anonymous bool) id.MessageID {
	view, err := s.svc.Create(s.ctx, s.owner, messageservice.WriteRequest{
		Title:           "when the time comes",
		Content:         "open the blue box",
		Type:            "text",
		DeliveryType:    "date",
		DeliveryDate:    &due,
		NotifyPreview:   preview,
		NotifyAnonymous: anonymous,
		RecipientIDs:    recipientIDs,
	})
	s.Require().NoError(err)
	s.Require().Equal(models.StatusScheduled, view.Status)
	return view.ID
}

func (s *DispatcherSuite) TestNothingDueNothingHappens() {
	due := s.now.Add(24 * time.Hour)
	s.scheduleDateMessage([]id.RecipientID{s.newRecipient(s.owner, "ria")}, due, true, false)

	report, err := s.dispatcher.RunOnce(s.ctx, s.now)
	s.Require().NoError(err)
	s.Zero(report.DueMessages)
	s.Zero(report.Notified)
}

func (s *DispatcherSuite) TestDeliversDueMessageEndToEnd() {
	due := s.now.Add(24 * time.Hour)
	recipientID := s.newRecipient(s.owner, "ria")
	messageID := s.scheduleDateMessage([]id.RecipientID{recipientID}, due, true, false)

	runAt := due.Add(24 * time.Hour)
	s.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n dispatch.Notification) error {
			s.Equal(messageID, n.MessageID)
			s.Equal("when the time comes", n.MessageTitle)
			s.Equal("ria", n.RecipientName)
			s.Equal("Orla Quinn", n.SenderName)
			s.Equal("open the blue box", n.Preview)
			return nil
		})

	report, err := s.dispatcher.RunOnce(s.ctx, runAt)
	s.Require().NoError(err)
	s.Equal(1, report.DueMessages)
	s.Equal(1, report.Notified)
	s.Equal(1, report.MessagesDelivered)
	s.Empty(report.Failures)

	stored, err := s.messages.FindByID(s.ctx, messageID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, stored.Status)
}

func (s *DispatcherSuite) TestRunOnceIsIdempotent() {
	due := s.now.Add(time.Hour)
	recipientID := s.newRecipient(s.owner, "ria")
	s.scheduleDateMessage([]id.RecipientID{recipientID}, due, false, false)

	runAt := due.Add(time.Hour)
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	first, err := s.dispatcher.RunOnce(s.ctx, runAt)
	s.Require().NoError(err)
	s.Equal(1, first.Notified)

	// Second run with no state change: zero further notify calls.
	second, err := s.dispatcher.RunOnce(s.ctx, runAt)
	s.Require().NoError(err)
	s.Zero(second.DueMessages)
	s.Zero(second.Notified)
}

func (s *DispatcherSuite) TestPreviewOffKeepsPlaintextInside() {
	due := s.now.Add(time.Hour)
	recipientID := s.newRecipient(s.owner, "ria")
	s.scheduleDateMessage([]id.RecipientID{recipientID}, due, false, true)

	s.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n dispatch.Notification) error {
			s.Empty(n.Preview)
			s.Empty(n.SenderName)
			return nil
		})

	_, err := s.dispatcher.RunOnce(s.ctx, due.Add(time.Minute))
	s.Require().NoError(err)
}

func (s *DispatcherSuite) TestPartialFailureRetriesOnlyFailedRecipient() {
	due := s.now.Add(time.Hour)
	okRecipient := s.newRecipient(s.owner, "ada")
	failRecipient := s.newRecipient(s.owner, "bea")
	messageID := s.scheduleDateMessage([]id.RecipientID{okRecipient, failRecipient}, due, false, false)

	runAt := due.Add(time.Minute)
	notifyErr := errors.New("smtp unavailable")
	s.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n dispatch.Notification) error {
			if n.RecipientName == "bea" {
				return notifyErr
			}
			return nil
		}).Times(2)

	first, err := s.dispatcher.RunOnce(s.ctx, runAt)
	s.Require().NoError(err)
	s.Equal(1, first.Notified)
	s.Require().Len(first.Failures, 1)
	s.Equal(failRecipient, first.Failures[0].RecipientID)
	s.Zero(first.MessagesDelivered)

	// The message stays scheduled until every recipient is reached.
	stored, err := s.messages.FindByID(s.ctx, messageID)
	s.Require().NoError(err)
	s.Equal(models.StatusScheduled, stored.Status)

	// Next run retries only the failed recipient.
	s.notifier.EXPECT().
		Notify(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, n dispatch.Notification) error {
			s.Equal("bea", n.RecipientName)
			return nil
		})

	second, err := s.dispatcher.RunOnce(s.ctx, runAt)
	s.Require().NoError(err)
	s.Equal(1, second.Notified)
	s.Equal(1, second.MessagesDelivered)
	s.Empty(second.Failures)

	stored, err = s.messages.FindByID(s.ctx, messageID)
	s.Require().NoError(err)
	s.Equal(models.StatusDelivered, stored.Status)
}

func (s *DispatcherSuite) TestPassingTriggeredDeliveryGatesOnDeceased() {
	recipientID := s.newRecipient(s.owner, "ria")
	view, err := s.svc.Create(s.ctx, s.owner, messageservice.WriteRequest{
		Title:        "read this when I am gone",
		Content:      "look after each other",
		Type:         "text",
		DeliveryType: "passing",
		RecipientIDs: []id.RecipientID{recipientID},
	})
	s.Require().NoError(err)
	s.Require().Equal(models.StatusScheduled, view.Status)

	report, err := s.dispatcher.RunOnce(s.ctx, s.now)
	s.Require().NoError(err)
	s.Zero(report.DueMessages)

	// Quorum confirmed the passing; the next run delivers.
	s.Require().NoError(s.users.MarkDeceased(s.ctx, s.owner, s.now))
	s.notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).Return(nil)

	report, err = s.dispatcher.RunOnce(s.ctx, s.now)
	s.Require().NoError(err)
	s.Equal(1, report.DueMessages)
	s.Equal(1, report.Notified)
	s.Equal(1, report.MessagesDelivered)
}
