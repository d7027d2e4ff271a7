/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zerolog request logging (includes the request ID)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the student and admin apps

ROUTE GROUPS:
  /api/student/*        Student leave applications
  /api/students/{id}/*  Per-student history, summary and audit
  /api/admin/*          Review queue and counter reconciliation
  /api/scenarios/*      Demo scenarios (dev only)
  /api/health           Liveness and database check

SECURITY NOTE:
  No authentication middleware. Deploy behind a gateway that authenticates
  students and staff.

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Request logger
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Student routes
		r.Route("/student", func(r chi.Router) {
			r.Post("/leave-application", h.SubmitLeaveApplication)
		})

		r.Route("/students/{id}", func(r chi.Router) {
			r.Get("/leave-requests", h.GetStudentLeaveRequests)
			r.Get("/leave-summary", h.GetStudentLeaveSummary)
			r.Get("/audit", h.GetStudentAudit)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/leave-requests", h.ListLeaveRequests)
			r.Put("/leave-requests", h.ReviewLeaveRequest)
			r.Post("/reconciliation", h.TriggerReconciliation)
			r.Get("/reconciliation/runs", h.ListReconciliationRuns)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
