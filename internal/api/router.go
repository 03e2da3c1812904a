package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// HealthDeps are the probes the health and status endpoints report on. Any
// nil probe is simply omitted from the response.
type HealthDeps struct {
	Ping          func(ctx context.Context) error
	PendingEvents func(ctx context.Context) (int64, error)
	LLMConfigured bool
	LLMModel      string
}

// NewRouter wires the HTTP surface.
func NewRouter(h *Handlers, health HealthDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Batches are synchronous and slow by design, so the timeout has to
	// cover a full run, not a single page.
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://localhost:*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(health))

	r.Route("/api", func(r chi.Router) {
		r.Post("/scrape/run", h.RunBatch)
		r.Post("/scrape/test", h.TestVendor)
		r.Post("/alerts/check", h.CheckAlerts)

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", h.ListTargets)
			r.Post("/", h.CreateTarget)
			r.Get("/{targetID}/trend", h.GetTrend)
		})

		r.Get("/products/{productID}/vendors", h.RankVendors)
	})

	return r
}

func healthHandler(deps HealthDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		health := map[string]interface{}{
			"status": "ok",
			"llm": map[string]interface{}{
				"configured": deps.LLMConfigured,
				"model":      deps.LLMModel,
			},
		}

		status := http.StatusOK

		if deps.Ping != nil {
			if err := deps.Ping(r.Context()); err != nil {
				health["status"] = "degraded"
				health["database"] = err.Error()
				status = http.StatusServiceUnavailable
			} else {
				health["database"] = "ok"
			}
		}

		if deps.PendingEvents != nil {
			if pending, err := deps.PendingEvents(r.Context()); err == nil {
				health["outbox"] = map[string]interface{}{"pending": pending}
				if pending > 1000 && health["status"] == "ok" {
					health["status"] = "warning"
				}
			}
		}

		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(health)
	}
}
