// Package api is the HTTP surface of the companion service.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	companion "github.com/Protocol-Lattice/go-companion"
)

// NewRouter creates the Chi router with all routes and middleware.
func NewRouter(svc *companion.Service, apiKey string, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	r.Use(CORS)
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	healthH := NewHealthHandler(svc)
	chatH := NewChatHandler(svc, logger)
	personalityH := NewPersonalityHandler(svc)
	historyH := NewHistoryHandler(svc)
	agentH := NewAgentHandler(svc)

	r.Get("/health", healthH.Health)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(apiKey))
		r.Get("/metrics.json", healthH.Metrics)
		r.Get("/v1/agents", agentH.List)

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Route("/v1/chat/{agentID}", func(r chi.Router) {
				r.Post("/", chatH.Chat)
				r.Get("/stream", chatH.Stream)
			})
			r.Route("/v1/personality/{agentID}", func(r chi.Router) {
				r.Get("/", personalityH.Get)
				r.Post("/analyze", personalityH.AnalyzeHistory)
				r.Put("/analyze", personalityH.AnalyzeMessage)
			})
			r.Put("/v1/agents/{agentID}", agentH.Save)
			r.Get("/v1/history/{agentID}", historyH.Get)
		})
	})
	return r
}
