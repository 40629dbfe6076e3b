package api

import (
	"net/http"

	"github.com/chorusnet/chorus/internal/api/handlers"
	"github.com/chorusnet/chorus/internal/api/middleware"
	"github.com/chorusnet/chorus/internal/config"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the coordinator HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Registry
		r.Route("/agents", func(r chi.Router) {
			r.Post("/", h.RegisterAgent)
			r.Get("/discover", h.DiscoverAgents)
			r.Route("/{agentID}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Delete("/", h.UnregisterAgent)
				r.Post("/heartbeat", h.Heartbeat)
			})
		})
		r.Get("/skills", h.ListSkills)

		// Ledger
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.CreateAccount)
			r.Get("/{ownerID}", h.GetBalance)
		})
		r.Post("/transfers", h.Transfer)
		r.Get("/transfers", h.AuditLog)
		r.Get("/economy", h.EconomyStats)

		// Reputation
		r.Route("/reputation", func(r chi.Router) {
			r.Get("/{agentID}", h.GetReputation)
			r.Get("/{agentID}/history", h.ReputationHistory)
		})
		r.Get("/leaderboard", h.Leaderboard)
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version":"` + cfg.Version + `"}`))
	}
}
