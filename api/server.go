/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. AccessLog:  Structured request log (zap) and latency histogram
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/rights/*         Rights, rules and renewals
  /api/departments/*    Organization hierarchy
  /api/collections/*    Rights offered to accounts
  /api/users/*          Users, applicable rights, submitted requests
  /api/requests/*       Request lookup
  /api/managers/*       Waiting requests and decisions
  /api/scenarios/*      Demo scenarios
  /metrics              Prometheus exposition
  /health               Liveness probe

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured. origins
// lists the frontends allowed by CORS.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(h.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", h.metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Right routes
		r.Route("/rights", func(r chi.Router) {
			r.Get("/", h.ListRights)
			r.Post("/", h.CreateRight)
			r.Get("/{id}", h.GetRight)
			r.Post("/{id}/rules", h.AddRule)
			r.Post("/{id}/renewals", h.AddRenewal)
		})

		// Organization routes
		r.Route("/departments", func(r chi.Router) {
			r.Get("/", h.ListDepartments)
			r.Post("/", h.CreateDepartment)
			r.Get("/{id}/ancestors", h.GetAncestors)
		})
		r.Route("/collections", func(r chi.Router) {
			r.Post("/", h.CreateCollection)
			r.Get("/{id}", h.GetCollection)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Get("/{id}/rights", h.GetUserRights)
			r.Get("/{id}/requests", h.ListUserRequests)
			r.Post("/{id}/requests", h.SubmitRequest)
		})

		// Workflow routes
		r.Get("/requests/{id}", h.GetRequest)
		r.Route("/managers/{id}/waitingrequests", func(r chi.Router) {
			r.Get("/", h.WaitingRequests)
			r.Put("/{requestID}", h.DecideRequest)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// accessLog writes one structured line per request and feeds the latency
// histogram, labelled with the route pattern rather than the raw path.
func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		elapsed := time.Since(start)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		h.metrics.ObserveHTTP(route, status, elapsed)
		h.logger.Info("http request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", elapsed),
		)
	})
}
