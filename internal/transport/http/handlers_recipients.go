package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	recipientmodels "everkeep/internal/recipient/models"
	recipientservice "everkeep/internal/recipient/service"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

type RecipientService interface {
	Create(ctx context.Context, ownerID id.UserID, req recipientservice.CreateRequest) (*recipientmodels.Recipient, error)
	Get(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID) (*recipientmodels.Recipient, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*recipientmodels.Recipient, error)
	Update(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID, req recipientservice.CreateRequest) (*recipientmodels.Recipient, error)
	Delete(ctx context.Context, ownerID id.UserID, recipientID id.RecipientID) error
}

type RecipientHandler struct {
	recipients RecipientService
}

func NewRecipientHandler(recipients RecipientService) *RecipientHandler {
	return &RecipientHandler{recipients: recipients}
}

func (h *RecipientHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req recipientservice.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	recipient, err := h.recipients.Create(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusCreated, recipient)
}

func (h *RecipientHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, recipientID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recipient, err := h.recipients.Get(r.Context(), ownerID, recipientID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, recipient)
}

func (h *RecipientHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	recipients, err := h.recipients.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, recipients)
}

func (h *RecipientHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, recipientID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req recipientservice.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	recipient, err := h.recipients.Update(r.Context(), ownerID, recipientID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, recipient)
}

func (h *RecipientHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, recipientID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.recipients.Delete(r.Context(), ownerID, recipientID); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (h *RecipientHandler) target(r *http.Request) (id.UserID, id.RecipientID, error) {
	ownerID, err := callerID(r)
	if err != nil {
		return id.UserID{}, id.RecipientID{}, err
	}
	recipientID, err := id.ParseRecipientID(chi.URLParam(r, "recipientID"))
	if err != nil {
		return id.UserID{}, id.RecipientID{}, err
	}
	return ownerID, recipientID, nil
}
