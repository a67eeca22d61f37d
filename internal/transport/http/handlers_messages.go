package httptransport

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	messageservice "everkeep/internal/message/service"
	id "everkeep/pkg/domain"
	dErrors "everkeep/pkg/domain-errors"
)

type MessageService interface {
	Create(ctx context.Context, ownerID id.UserID, req messageservice.WriteRequest) (*messageservice.View, error)
	Get(ctx context.Context, ownerID id.UserID, messageID id.MessageID) (*messageservice.View, error)
	ListByOwner(ctx context.Context, ownerID id.UserID) ([]*messageservice.View, error)
	Update(ctx context.Context, ownerID id.UserID, messageID id.MessageID, req messageservice.WriteRequest) (*messageservice.View, error)
	Delete(ctx context.Context, ownerID id.UserID, messageID id.MessageID) error
}

type MessageHandler struct {
	messages MessageService
}

func NewMessageHandler(messages MessageService) *MessageHandler {
	return &MessageHandler{messages: messages}
}

func (h *MessageHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req messageservice.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	view, err := h.messages.Create(r.Context(), ownerID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusCreated, view)
}

func (h *MessageHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, messageID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := h.messages.Get(r.Context(), ownerID, messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (h *MessageHandler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, err := callerID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	views, err := h.messages.ListByOwner(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, views)
}

func (h *MessageHandler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, messageID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req messageservice.WriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	view, err := h.messages.Update(r.Context(), ownerID, messageID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusOK, view)
}

func (h *MessageHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, messageID, err := h.target(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.messages.Delete(r.Context(), ownerID, messageID); err != nil {
		writeError(w, err)
		return
	}
	respond(w, http.StatusNoContent, nil)
}

func (h *MessageHandler) target(r *http.Request) (id.UserID, id.MessageID, error) {
	ownerID, err := callerID(r)
	if err != nil {
		return id.UserID{}, id.MessageID{}, err
	}
	messageID, err := id.ParseMessageID(chi.URLParam(r, "messageID"))
	if err != nil {
		return id.UserID{}, id.MessageID{}, err
	}
	return ownerID, messageID, nil
}
