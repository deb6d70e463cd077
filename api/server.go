/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, carried into the audit log
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the admin frontend

ROUTE GROUPS:
  /api/sessions/*   Session listing and approval workflow
  /api/payroll/*    Pay periods, invoices, adjustments
  /api/health       Liveness probe
  /metrics          Prometheus scrape endpoint (optional)

SECURITY NOTE:
  No authentication middleware. An upstream gateway is expected to
  authenticate and set the X-Actor-* headers.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions toggles optional surfaces.
type RouterOptions struct {
	Metrics     bool
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID", "X-Actor-Role"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Session routes
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/bulk-approve", h.BulkApprove)
			r.Post("/bulk-reject", h.BulkReject)
			r.Route("/{id}", func(r chi.Router) {
				r.Post("/approve", h.ApproveSession)
				r.Post("/reject", h.RejectSession)
				r.Get("/history", h.GetHistory)
				r.Get("/window-check", h.CheckWindow)
			})
		})

		// Payroll routes
		r.Route("/payroll", func(r chi.Router) {
			r.Delete("/adjustments/{id}", h.VoidAdjustment)
			r.Route("/{weekStart}", func(r chi.Router) {
				r.Get("/", h.GetPayPeriod)
				r.Post("/generate", h.GenerateInvoices)
				r.Post("/lock", h.LockPayPeriod)
				r.Get("/adjustments", h.ListAdjustments)
				r.Post("/adjustments", h.CreateAdjustment)
			})
		})

		r.Get("/health", h.Health)
	})

	if opts.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}
