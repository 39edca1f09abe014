package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each dependency check behind GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/chain", func(r chi.Router) {
			r.Get("/", s.handleGetChain)
			r.Get("/summary", s.handleGetSummary)
			r.Put("/current", s.handleSetCurrent)
			r.Put("/frequency", s.handleSetFrequency)
			r.Put("/output", s.handleSetOutput)
			r.Put("/lockin", s.handleSetLockIn)
			r.Get("/advisory", s.handleGetAdvisory)
			r.Put("/advisory", s.handleSetAdvisory)
			r.Get("/converter", s.handleGetConverter)
			r.Put("/converter", s.handleSetConverter)
			r.Get("/preamp", s.handleGetPreamp)
			r.Put("/preamp", s.handleSetPreamp)
		})

		r.Get("/journal", s.handleListJournal)
	})

	return r
}

// handleHealth reports the server version, the state of each registered
// dependency and the journal schema. Any failing dependency or pending
// migration makes the response 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make(map[string]string, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			components[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	body := map[string]any{
		"status":     status,
		"version":    s.version,
		"chain_id":   s.chain.ChainID(),
		"components": components,
	}
	if s.schema != nil {
		schema, ok := s.schemaStatus(r.Context())
		if !ok {
			body["status"] = "degraded"
			code = http.StatusServiceUnavailable
		}
		body["schema"] = schema
	}

	writeJSON(w, code, body)
}

// schemaStatus summarises the migration state. ok is false when the status
// cannot be read or migrations are pending.
func (s *Server) schemaStatus(ctx context.Context) (map[string]any, bool) {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	applied, pending, err := s.schema.GetMigrationStatus(ctx)
	if err != nil {
		return map[string]any{"error": err.Error()}, false
	}
	version := ""
	if len(applied) > 0 {
		version = applied[len(applied)-1].Version
	}
	return map[string]any{
		"version": version,
		"applied": len(applied),
		"pending": len(pending),
	}, len(pending) == 0
}
