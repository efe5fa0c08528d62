// Package conversation exposes the conversation controller to the view
// over REST endpoints.
package conversation

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/scholarchat/gateway/internal/model/chat"
	"github.com/scholarchat/gateway/internal/search"
	conversationservice "github.com/scholarchat/gateway/internal/service/conversation"
	"github.com/scholarchat/gateway/pkg/utils"
)

// Handler maps view actions onto controller operations.
type Handler struct {
	ctrl *conversationservice.Controller
	log  *zap.Logger
}

// New creates the conversation handler.
func New(ctrl *conversationservice.Controller, log *zap.Logger) *Handler {
	return &Handler{ctrl: ctrl, log: log}
}

// RegisterRoutes wires the conversation endpoints.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/state", h.handleState)
	r.Post("/conversation/new", h.handleNewChat)
	r.Post("/conversation/select", h.handleSelectSession)
	r.Post("/conversation/send", h.handleSend)
	r.Post("/conversation/reveal", h.handleReveal)
	r.Post("/documents/toggle", h.handleToggleDocument)
	r.Post("/documents/remove", h.handleRemoveDocument)
	r.Put("/filters", h.handleUpdateFilters)
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleNewChat(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.StartNewChat(); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleSelectSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SessionID int64 `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.ctrl.SelectSession(r.Context(), payload.SessionID); err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot())
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	answer, err := h.ctrl.SendQuery(r.Context(), payload.Query)
	if err != nil {
		respondControllerError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, answer)
}

func (h *Handler) handleReveal(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EntryID string `json:"entry_id"`
		Marker  int    `json:"marker"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ref, ok := h.ctrl.RevealCitation(payload.EntryID, payload.Marker)
	if !ok {
		// Out-of-range markers are not an error; the reveal just no-ops.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ref)
}

func (h *Handler) handleToggleDocument(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PaperID string `json:"paper_id"`
		Title   string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.PaperID == "" {
		utils.RespondError(w, http.StatusBadRequest, "paper_id is required")
		return
	}
	h.ctrl.ToggleDocument(payload.PaperID, payload.Title)
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot().WorkingSet)
}

func (h *Handler) handleRemoveDocument(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		PaperID string `json:"paper_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.ctrl.RemoveDocument(payload.PaperID)
	utils.RespondJSON(w, http.StatusOK, h.ctrl.Snapshot().WorkingSet)
}

func (h *Handler) handleUpdateFilters(w http.ResponseWriter, r *http.Request) {
	var filters chat.ActiveFilters
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.ctrl.UpdateFilters(filters)
	utils.RespondJSON(w, http.StatusOK, filters)
}

// respondControllerError maps controller failures onto HTTP statuses:
// validation rejections are client errors, upstream trouble is a gateway
// problem.
func respondControllerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, conversationservice.ErrEmptyQuery):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, conversationservice.ErrBusy):
		utils.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, search.ErrTimeout):
		utils.RespondError(w, http.StatusGatewayTimeout, err.Error())
	default:
		var apiErr *search.APIError
		if errors.As(err, &apiErr) {
			utils.RespondError(w, http.StatusBadGateway, apiErr.Message)
			return
		}
		utils.RespondError(w, http.StatusBadGateway, err.Error())
	}
}
