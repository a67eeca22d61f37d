package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"everkeep/internal/platform/middleware"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

// Handlers groups the per-domain handler sets the router mounts.
type Handlers struct {
	Auth       *AuthHandler
	Messages   *MessageHandler
	Recipients *RecipientHandler
	Passing    *PassingHandler
}

// NewRouter wires the public surface. Everything under /api except
// register/login/attest requires a bearer token; attest is reachable by
// trusted contacts who are not account holders.
func NewRouter(h Handlers, validator middleware.JWTValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.Post("/register", h.Auth.handleRegister)
		r.Post("/login", h.Auth.handleLogin)
		r.Post("/attest", h.Passing.handleAttest)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(validator, logger))

			r.Route("/messages", func(r chi.Router) {
				r.Post("/", h.Messages.handleCreate)
				r.Get("/", h.Messages.handleList)
				r.Get("/{messageID}", h.Messages.handleGet)
				r.Put("/{messageID}", h.Messages.handleUpdate)
				r.Delete("/{messageID}", h.Messages.handleDelete)
			})

			r.Route("/recipients", func(r chi.Router) {
				r.Post("/", h.Recipients.handleCreate)
				r.Get("/", h.Recipients.handleList)
				r.Get("/{recipientID}", h.Recipients.handleGet)
				r.Put("/{recipientID}", h.Recipients.handleUpdate)
				r.Delete("/{recipientID}", h.Recipients.handleDelete)
			})

			r.Route("/contacts", func(r chi.Router) {
				r.Post("/", h.Passing.handleCreateContact)
				r.Get("/", h.Passing.handleListContacts)
				r.Put("/{contactID}", h.Passing.handleUpdateContact)
				r.Delete("/{contactID}", h.Passing.handleDeleteContact)
				r.Post("/{contactID}/verify", h.Passing.handleVerifyContact)
			})

			r.Get("/me/deceased", h.Passing.handleIsDeceased)
		})
	})
	return r
}

// callerID reads the authenticated user out of the request context.
func callerID(r *http.Request) (id.UserID, error) {
	raw := middleware.GetUserID(r.Context())
	userID, err := id.ParseUserID(raw)
	if err != nil {
		return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "invalid caller identity")
	}
	return userID, nil
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

// writeError centralizes domain error translation so every handler returns
// the same JSON envelope.
func writeError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	message := "internal error"
	var domErr *dErrors.Error
	if errors.As(err, &domErr) {
		message = domErr.Message
	}
	respond(w, dErrors.ToHTTPStatus(code), map[string]string{
		"error":   string(code),
		"message": message,
	})
}
