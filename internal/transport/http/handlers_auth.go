package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	authmodels "everkeep/internal/auth/models"
	authservice "everkeep/internal/auth/service"
	dErrors "everkeep/pkg/domain-errors"
)

const accessTokenTTL = 24 * time.Hour

type AuthService interface {
	Register(ctx context.Context, req authservice.RegisterRequest) (*authmodels.User, error)
	Login(ctx context.Context, username, password string) (*authmodels.User, error)
}

type TokenIssuer interface {
	GenerateAccessToken(userID uuid.UUID, sessionID uuid.UUID, expiresIn time.Duration) (string, error)
}

type AuthHandler struct {
	auth   AuthService
	tokens TokenIssuer
}

func NewAuthHandler(auth AuthService, tokens TokenIssuer) *AuthHandler {
	return &AuthHandler{auth: auth, tokens: tokens}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponse struct {
	User        *authmodels.User `json:"user"`
	AccessToken string           `json:"access_token"`
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req authservice.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	user, err := h.auth.Register(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWithSession(w, user, http.StatusCreated)
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	h.respondWithSession(w, user, http.StatusOK)
}

func (h *AuthHandler) respondWithSession(w http.ResponseWriter, user *authmodels.User, status int) {
	token, err := h.tokens.GenerateAccessToken(uuid.UUID(user.ID), uuid.New(), accessTokenTTL)
	if err != nil {
		writeError(w, dErrors.Wrap(dErrors.CodeInternal, "could not issue token", err))
		return
	}
	respond(w, status, sessionResponse{User: user, AccessToken: token})
}
