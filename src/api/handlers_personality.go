package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	companion "github.com/Protocol-Lattice/go-companion"
	"github.com/Protocol-Lattice/go-companion/src/memory/model"
)

// PersonalityHandler exposes learned traits and on-demand analysis.
type PersonalityHandler struct {
	svc *companion.Service
}

func NewPersonalityHandler(svc *companion.Service) *PersonalityHandler {
	return &PersonalityHandler{svc: svc}
}

// Get handles GET /v1/personality/{agentID}
func (h *PersonalityHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Profile(r.Context(), chi.URLParam(r, "agentID"), GetUserID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// AnalyzeHistory handles POST /v1/personality/{agentID}/analyze
func (h *PersonalityHandler) AnalyzeHistory(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.AnalyzeHistory(r.Context(), chi.URLParam(r, "agentID"), GetUserID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

type analyzeMessageRequest struct {
	Message string `json:"message"`
}

// AnalyzeMessage handles PUT /v1/personality/{agentID}/analyze
func (h *PersonalityHandler) AnalyzeMessage(w http.ResponseWriter, r *http.Request) {
	var req analyzeMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	res, err := h.svc.AnalyzeMessage(r.Context(), chi.URLParam(r, "agentID"), GetUserID(r), req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}

// HistoryHandler exposes the recency log.
type HistoryHandler struct {
	svc *companion.Service
}

func NewHistoryHandler(svc *companion.Service) *HistoryHandler {
	return &HistoryHandler{svc: svc}
}

// Get handles GET /v1/history/{agentID}
func (h *HistoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	recent, err := h.svc.History(r.Context(), agentID, GetUserID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agentId": agentID, "history": recent})
}

// AgentHandler manages agent profiles.
type AgentHandler struct {
	svc *companion.Service
}

func NewAgentHandler(svc *companion.Service) *AgentHandler {
	return &AgentHandler{svc: svc}
}

// List handles GET /v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Agents(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// Save handles PUT /v1/agents/{agentID}
func (h *AgentHandler) Save(w http.ResponseWriter, r *http.Request) {
	var profile model.AgentProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	profile.ID = chi.URLParam(r, "agentID")
	if profile.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.svc.AgentSaved(r.Context(), profile, GetUserID(r)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
