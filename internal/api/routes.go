package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://app.adscale.io", "http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(RequireUser)

		r.Route("/adAutoScale", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
			r.Post("/run", h.RunNow)
			r.Post("/adjust-budget", h.AdjustBudget)

			r.Route("/stats", func(r chi.Router) {
				r.Get("/budget-changes", h.BudgetChanges)
				r.Get("/budget-resets-daily", h.BudgetResetsDaily)
			})

			r.Route("/{ruleID}", func(r chi.Router) {
				r.Get("/", h.GetRule)
				r.Put("/", h.UpdateRule)
				r.Delete("/", h.DeleteRule)
				r.Post("/test", h.TestRule)
			})
		})

		r.Route("/adMetrics", func(r chi.Router) {
			r.Get("/budget-status", h.BudgetStatus)
		})
	})

	return r
}
