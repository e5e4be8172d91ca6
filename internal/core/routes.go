package core

import (
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout is the soft deadline applied to every request
// context. Batch email jobs run through the job runner, not a request, so
// nothing legitimate should take longer than this.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in
// request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Cron-Secret",
	"X-Api-Key",
}

// RouteSet carries the per-group registrars from the handlers package. The
// indirection keeps core free of handler imports.
type RouteSet struct {
	// Public endpoints: no authentication.
	Public func(r chi.Router)
	// User endpoints: identity header plus whitelist enforcement.
	User func(r chi.Router)
	// Admin endpoints: bcrypt-verified admin API key.
	Admin func(r chi.Router)
	// Cron endpoints: shared cron secret.
	Cron func(r chi.Router)
}

// MountRoutes applies the global middleware chain and mounts the route
// groups under /v1, each behind its auth middleware. GET /health stays at
// the root, outside the versioned namespace.
//
// Middleware order matters: the recoverer is outermost so it catches
// everything, the request id precedes the logger so log lines carry it, and
// the auth middlewares run per group rather than globally because each group
// authenticates differently.
func (s *Server) MountRoutes(routes RouteSet) {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.Config.Security.CorsAllowedOrigins))

	s.router.Get("/health", s.HandleHealth)

	s.router.Route("/v1", func(r chi.Router) {
		if routes.Public != nil {
			r.Group(routes.Public)
		}
		if routes.User != nil {
			r.Group(func(r chi.Router) {
				r.Use(s.UserIdentityMiddleware)
				routes.User(r)
			})
		}
		if routes.Admin != nil {
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.AdminKeyMiddleware)
				routes.Admin(r)
			})
		}
		if routes.Cron != nil {
			r.Route("/cron", func(r chi.Router) {
				r.Use(s.CronSecretMiddleware)
				routes.Cron(r)
			})
		}
	})
}
