package api

import (
	"net/http"

	companion "github.com/Protocol-Lattice/go-companion"
)

type HealthResponse struct {
	Status      string `json:"status"`
	VectorIndex string `json:"vectorIndex"`
}

type HealthHandler struct {
	svc *companion.Service
}

func NewHealthHandler(svc *companion.Service) *HealthHandler {
	return &HealthHandler{svc: svc}
}

// Health reports degraded once similarity recall has been switched off.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Metrics()
	resp := HealthResponse{Status: "ok", VectorIndex: snap.VectorIndex}
	status := http.StatusOK
	if h.svc.Degraded() {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// Metrics handles GET /metrics.json
func (h *HealthHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Metrics())
}
