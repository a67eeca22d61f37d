package middleware_test

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"everkeep/internal/platform/middleware"
	"everkeep/pkg/testutil"
)

type stubValidator struct {
	claims *middleware.JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*middleware.JWTClaims, error) {
	return v.claims, v.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func TestRequireAuth(t *testing.T) {
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user_id":"` + middleware.GetUserID(r.Context()) + `"}`))
	})

	testutil.Given(t, "a request without a bearer token", func(t *testing.T) {
		handler := middleware.RequireAuth(stubValidator{}, discardLogger())(echo)
		rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/api/messages/"))
		testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
	})

	testutil.Given(t, "a token the validator rejects", func(t *testing.T) {
		handler := middleware.RequireAuth(stubValidator{err: errors.New("expired")}, discardLogger())(echo)
		req := testutil.NewRequest(t, http.MethodGet, "/api/messages/")
		req.Header.Set("Authorization", "Bearer stale")
		testutil.AssertStatusAndError(t, testutil.DoRequest(handler, req), http.StatusUnauthorized, "unauthorized")
	})

	testutil.Given(t, "a valid token", func(t *testing.T) {
		validator := stubValidator{claims: &middleware.JWTClaims{UserID: "u-1", SessionID: "s-1"}}
		handler := middleware.RequireAuth(validator, discardLogger())(echo)
		req := testutil.NewRequest(t, http.MethodGet, "/api/messages/")
		req.Header.Set("Authorization", "Bearer good")
		rr := testutil.DoRequest(handler, req)
		testutil.AssertStatusOK(t, rr)
		testutil.AssertJSONContains(t, rr, "user_id", "u-1")
	})
}

func TestContextAccessors(t *testing.T) {
	req := testutil.NewRequest(t, http.MethodGet, "/")
	req = testutil.WithAuth(req, "user-42", "session-9")
	assert.Equal(t, "user-42", middleware.GetUserID(req.Context()))
	assert.Equal(t, "session-9", middleware.GetSessionID(req.Context()))

	bare := testutil.NewRequest(t, http.MethodGet, "/")
	assert.Empty(t, middleware.GetUserID(bare.Context()))
	assert.Empty(t, middleware.GetSessionID(bare.Context()))
}

func TestRequestIDAssignedWhenMissing(t *testing.T) {
	var seen string
	handler := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetRequestID(r.Context())
	}))

	rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/"))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rr.Header().Get("X-Request-ID"))
}

func TestContentTypeJSON(t *testing.T) {
	handler := middleware.ContentTypeJSON(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	testutil.When(t, "a write sends a JSON body", func(t *testing.T) {
		req := testutil.NewJSONRequest(t, http.MethodPost, "/api/messages/", map[string]string{"title": "x"})
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})

	testutil.When(t, "a write sends a non-JSON body", func(t *testing.T) {
		req := testutil.NewRequestWithBody(t, http.MethodPost, "/api/messages/", "title=x")
		req.Header.Set("Content-Type", "text/plain")
		rr := testutil.DoRequest(handler, req)
		assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)
	})
}

func TestRecoveryTurnsPanicInto500(t *testing.T) {
	handler := middleware.Recovery(discardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := testutil.DoRequest(handler, testutil.NewRequest(t, http.MethodGet, "/"))
	testutil.AssertStatus(t, rr, http.StatusInternalServerError)
}
