package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"everkeep/internal/auth/models"
	"everkeep/internal/auth/secrets"
	userstore "everkeep/internal/auth/store/user"
	"everkeep/internal/platform/metrics"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
	"everkeep/pkg/email"
	audit "everkeep/pkg/platform/audit"
	"everkeep/pkg/platform/sentinel"
)

// Clock is injected so tests control "now".
type Clock func() time.Time

// RegisterRequest carries the fields a new account needs.
type RegisterRequest struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Service owns account registration and credential checks. Token issuance
// lives in jwt_token; the transport layer composes the two.
type Service struct {
	users   userstore.Store
	audit   audit.Publisher
	metrics *metrics.Metrics
	clock   Clock
}

func New(users userstore.Store, auditor audit.Publisher, m *metrics.Metrics, clock Clock) *Service {
	if clock == nil {
		clock = time.Now
	}
	if auditor == nil {
		auditor = nopPublisher{}
	}
	return &Service{users: users, audit: auditor, metrics: m, clock: clock}
}

type nopPublisher struct{}

func (nopPublisher) Emit(context.Context, audit.Event) error { return nil }

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "username is required")
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	if len(req.Password) < 8 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password must be at least 8 characters")
	}

	hash, err := secrets.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	firstName := strings.TrimSpace(req.FirstName)
	lastName := strings.TrimSpace(req.LastName)
	if firstName == "" && lastName == "" {
		// Notifications carry a sender name; derive one so accounts created
		// without names still deliver with something presentable.
		firstName, lastName = email.DeriveNameFromEmail(req.Email)
	}

	user := &models.User{
		ID:           id.NewUserID(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		CreatedAt:    s.clock(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "username or email already in use")
		}
		return nil, dErrors.WrapStore("could not create user", err)
	}

	if s.metrics != nil {
		s.metrics.UsersCreated.Inc()
	}
	_ = s.audit.Emit(ctx, audit.Event{
		Timestamp: s.clock(),
		UserID:    user.ID,
		Subject:   user.ID.String(),
		Action:    audit.EventUserCreated,
	})
	return user, nil
}

// Login verifies credentials and returns the account. The error is the same
// for an unknown username and a wrong password so callers cannot enumerate
// accounts.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.users.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return nil, dErrors.WrapStore("could not look up user", err)
	}
	if err := secrets.Verify(password, user.PasswordHash); err != nil {
		return nil, err
	}
	return user, nil
}

// IsDeceased exposes the verification workflow's output to callers that only
// need the fact, not the user record.
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
