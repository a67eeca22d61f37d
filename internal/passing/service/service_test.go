package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	authmodels "everkeep/internal/auth/models"
	userstore "everkeep/internal/auth/store/user"
	passingstore "everkeep/internal/passing/store"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

type PassingServiceSuite struct {
	suite.Suite
	svc   *Service
	store *passingstore.InMemory
	users *userstore.InMemory
	ctx   context.Context
	owner id.UserID
	now   time.Time
}

func (s *PassingServiceSuite) SetupTest() {
	s.store = passingstore.NewInMemory()
	s.users = userstore.NewInMemory()
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.owner = s.newUser("owner")
	s.svc = New(s.store, s.users, nil, nil, func() time.Time { return s.now }, 1)
}

func TestPassingServiceSuite(t *testing.T) {
	suite.Run(t, new(PassingServiceSuite))
}

func (s *PassingServiceSuite) newUser(username string) id.UserID {
	user := &authmodels.User{
		ID:           id.NewUserID(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$2a$10$hash",
		CreatedAt:    s.now,
	}
	s.Require().NoError(s.users.Create(s.ctx, user))
	return user.ID
}

func (s *PassingServiceSuite) verifiedContact(owner id.UserID, name string) id.ContactID {
	contact, err := s.svc.CreateContact(s.ctx, owner, ContactRequest{Name: name, Email: name + "@example.com"})
	s.Require().NoError(err)
	_, err = s.svc.VerifyContact(s.ctx, owner, contact.ID)
	s.Require().NoError(err)
	return contact.ID
}

func (s *PassingServiceSuite) TestContactCRUD() {
	contact, err := s.svc.CreateContact(s.ctx, s.owner, ContactRequest{Name: "nina", Email: "nina@example.com"})
	s.Require().NoError(err)
	s.False(contact.Verified)

	s.Run("validation", func() {
		_, err := s.svc.CreateContact(s.ctx, s.owner, ContactRequest{Name: "", Email: "x@y.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
		_, err = s.svc.CreateContact(s.ctx, s.owner, ContactRequest{Name: "n", Email: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	s.Run("list is owner-scoped", func() {
		other := s.newUser("other")
		_, err := s.svc.CreateContact(s.ctx, other, ContactRequest{Name: "theirs", Email: "t@example.com"})
		s.Require().NoError(err)

		contacts, err := s.svc.ListContacts(s.ctx, s.owner)
		s.Require().NoError(err)
		s.Require().Len(contacts, 1)
		s.Equal("nina", contacts[0].Name)
	})

	s.Run("update preserves verified flag", func() {
		_, err := s.svc.VerifyContact(s.ctx, s.owner, contact.ID)
		s.Require().NoError(err)

		updated, err := s.svc.UpdateContact(s.ctx, s.owner, contact.ID, ContactRequest{Name: "nina p", Email: "nina@example.com"})
		s.Require().NoError(err)
		s.Equal("nina p", updated.Name)
		s.True(updated.Verified)
	})

	s.Run("ownership checks", func() {
		stranger := s.newUser("stranger")
		_, err := s.svc.UpdateContact(s.ctx, stranger, contact.ID, ContactRequest{Name: "x", Email: "x@y.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		err = s.svc.DeleteContact(s.ctx, stranger, contact.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("delete", func() {
		s.Require().NoError(s.svc.DeleteContact(s.ctx, s.owner, contact.ID))
		contacts, err := s.svc.ListContacts(s.ctx, s.owner)
		s.Require().NoError(err)
		s.Empty(contacts)
	})
}

func (s *PassingServiceSuite) TestAttestAuthorization() {
	contactID := s.verifiedContact(s.owner, "carl")

	s.Run("unverified contact cannot attest", func() {
		unverified, err := s.svc.CreateContact(s.ctx, s.owner, ContactRequest{Name: "newbie", Email: "newbie@example.com"})
		s.Require().NoError(err)
		_, errAttest := s.svc.Attest(s.ctx, s.owner, unverified.ID)
		s.True(dErrors.HasCode(errAttest, dErrors.CodeForbidden))
	})

	s.Run("contact of another user and unknown contact are indistinguishable", func() {
		other := s.newUser("someone")
		_, errForeign := s.svc.Attest(s.ctx, other, contactID)
		s.True(dErrors.HasCode(errForeign, dErrors.CodeForbidden))

		_, errUnknown := s.svc.Attest(s.ctx, other, id.NewContactID())
		s.True(dErrors.HasCode(errUnknown, dErrors.CodeForbidden))
		s.Equal(errUnknown.Error(), errForeign.Error())
	})
}

func (s *PassingServiceSuite) TestAttestIsIdempotent() {
	contactID := s.verifiedContact(s.owner, "carl")

	first, err := s.svc.Attest(s.ctx, s.owner, contactID)
	s.Require().NoError(err)
	s.False(first.AlreadyAttested)
	s.Equal(1, first.Attestations)

	second, err := s.svc.Attest(s.ctx, s.owner, contactID)
	s.Require().NoError(err)
	s.True(second.AlreadyAttested)
	s.Equal(1, second.Attestations)
}

func (s *PassingServiceSuite) TestQuorumMajorityOfThree() {
	// Threshold for 3 verified contacts is ceil(3/2) = 2.
	first := s.verifiedContact(s.owner, "first")
	second := s.verifiedContact(s.owner, "second")
	third := s.verifiedContact(s.owner, "third")

	result, err := s.svc.Attest(s.ctx, s.owner, first)
	s.Require().NoError(err)
	s.Equal(2, result.Threshold)
	s.False(result.QuorumMet)

	deceased, err := s.svc.IsDeceased(s.ctx, s.owner)
	s.Require().NoError(err)
	s.False(deceased)

	result, err = s.svc.Attest(s.ctx, s.owner, second)
	s.Require().NoError(err)
	s.True(result.QuorumMet)

	deceased, err = s.svc.IsDeceased(s.ctx, s.owner)
	s.Require().NoError(err)
	s.True(deceased)

	s.Run("further attestations never revert the flag", func() {
		result, err := s.svc.Attest(s.ctx, s.owner, third)
		s.Require().NoError(err)
		s.True(result.QuorumMet)

		deceased, err := s.svc.IsDeceased(s.ctx, s.owner)
		s.Require().NoError(err)
		s.True(deceased)
	})
}

func (s *PassingServiceSuite) TestQuorumConfiguredMinimumWins() {
	// One verified contact gives majority 1, but the configured minimum of 2
	// takes precedence.
	strict := New(s.store, s.users, nil, nil, func() time.Time { return s.now }, 2)
	contactID := s.verifiedContact(s.owner, "only")

	result, err := strict.Attest(s.ctx, s.owner, contactID)
	s.Require().NoError(err)
	s.Equal(2, result.Threshold)
	s.False(result.QuorumMet)

	deceased, err := strict.IsDeceased(s.ctx, s.owner)
	s.Require().NoError(err)
	s.False(deceased)
}

func (s *PassingServiceSuite) TestSingleContactDefaultQuorum() {
	// Default minimum 1: a single verified contact's attestation flips the flag.
	contactID := s.verifiedContact(s.owner, "solo")

	result, err := s.svc.Attest(s.ctx, s.owner, contactID)
	s.Require().NoError(err)
	s.Equal(1, result.Threshold)
	s.True(result.QuorumMet)

	deceased, err := s.svc.IsDeceased(s.ctx, s.owner)
	s.Require().NoError(err)
	s.True(deceased)
}

func (s *PassingServiceSuite) TestVerifyContactIsIdempotent() {
	contact, err := s.svc.CreateContact(s.ctx, s.owner, ContactRequest{Name: "v", Email: "v@example.com"})
	s.Require().NoError(err)

	verified, err := s.svc.VerifyContact(s.ctx, s.owner, contact.ID)
	s.Require().NoError(err)
	s.True(verified.Verified)

	again, err := s.svc.VerifyContact(s.ctx, s.owner, contact.ID)
	s.Require().NoError(err)
	s.True(again.Verified)
}
