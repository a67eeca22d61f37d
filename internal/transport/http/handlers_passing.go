package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	passingmodels "everkeep/internal/passing/models"
	passingservice "everkeep/internal/passing/service"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

type PassingService interface {
	CreateContact(ctx context.Context, ownerID id.UserID, req passingservice.ContactRequest) (*passingmodels.TrustedContact, error)
	ListContacts(ctx context.Context, ownerID id.UserID) ([]*passingmodels.TrustedContact, error)
	UpdateContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID, req passingservice.ContactRequest) (*passingmodels.TrustedContact, error)
	DeleteContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID) error
	VerifyContact(ctx context.Context, ownerID id.UserID, contactID id.ContactID) (*passingmodels.TrustedContact, error)
	Attest(ctx context.Context, ownerID id.UserID, contactID id.ContactID) (*passingservice.AttestResult, error)
	IsDeceased(ctx context.Context, userID id.UserID) (bool, error)
}

type PassingHandler struct {
	passing PassingService
}

func NewPassingHandler(passing PassingService) *PassingHandler {
	return &PassingHandler{passing: passing}
}

func (h *PassingHandler) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req passingservice.ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	contact, err := h.passing.CreateContact(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusCreated, contact)
}

func (h *PassingHandler) handleListContacts(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contacts, err := h.passing.ListContacts(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, contacts)
}

func (h *PassingHandler) handleUpdateContact(w http.ResponseWriter, r *http.Request) {
	ownerID, contactID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req passingservice.ContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	contact, err := h.passing.UpdateContact(r.Context(), ownerID, contactID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, contact)
}

func (h *PassingHandler) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	ownerID, contactID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.passing.DeleteContact(r.Context(), ownerID, contactID); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (h *PassingHandler) handleVerifyContact(w http.ResponseWriter, r *http.Request) {
	ownerID, contactID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	contact, err := h.passing.VerifyContact(r.Context(), ownerID, contactID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, contact)
}

type attestRequest struct {
	OwnerUserID string `json:"owner_user_id"`
	ContactID   string `json:"contact_id"`
}

// handleAttest is deliberately unauthenticated: trusted contacts are not
// account holders. The service answers every bad combination with the same
// forbidden error, so this endpoint cannot be used to enumerate contacts.
func (h *PassingHandler) handleAttest(w http.ResponseWriter, r *http.Request) {
	var req attestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	ownerID, err := id.ParseUserID(req.OwnerUserID)
	if err != nil {
		writeError(w, err)
		return
	}
	contactID, err := id.ParseContactID(req.ContactID)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.passing.Attest(r.Context(), ownerID, contactID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, result)
}

func (h *PassingHandler) handleIsDeceased(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deceased, err := h.passing.IsDeceased(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, map[string]bool{"deceased": deceased})
}

func (h *PassingHandler) target(r *http.Request) (id.UserID, id.ContactID, error) {
	ownerID, err := callerID(r)
	if err != nil {
		return id.UserID{}, id.ContactID{}, err
	}
	contactID, err := id.ParseContactID(chi.URLParam(r, "contactID"))
	if err != nil {
		return id.UserID{}, id.ContactID{}, err
	}
	return ownerID, contactID, nil
}
