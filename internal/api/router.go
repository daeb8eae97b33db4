// Package api is the HTTP edge of the security subsystem: a thin chi
// router exposing the Session Manager's open/close protocol plus
// the health endpoint an operator's load balancer polls. It owns no
// domain logic of its own — every handler delegates straight into
// internal/session or internal/security, grounded on the teacher's
// internal/api package (router.go, health.go, middleware stack).
package api

import (
	"log/slog"

	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	apimw "github.com/synccore/authcore/internal/api/middleware"
	"github.com/synccore/authcore/internal/security"
	"github.com/synccore/authcore/internal/session"
)

// Server bundles the router with the dependencies its handlers close
// over.
type Server struct {
	Router *chi.Mux

	pool *pgxpool.Pool
	log  *slog.Logger
	core *security.Core
	sess *session.Manager
}

// NewServer builds the router: middleware stack first, then routes.
// pool may be nil — health reports bare liveness in that case, which is
// how session_test-style unit tests exercise this package without a
// real database. core may also be nil — /readyz then reports session
// stats only, which is how tests that don't stand up a full Security
// Core still exercise this route.
func NewServer(pool *pgxpool.Pool, log *slog.Logger, sessions *session.Manager, core *security.Core) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	sentryHandler := sentryhttp.New(sentryhttp.Options{Repanic: true})
	r.Use(sentryHandler.Handle)

	r.Use(apimw.RequestLogger)
	r.Use(apimw.PanicRecovery)

	limiter := apimw.NewIPRateLimiter(20, 40)
	r.Use(limiter.Middleware)

	s := &Server{Router: r, pool: pool, log: log, core: core, sess: sessions}

	r.Get("/healthz", s.HealthHandler())
	r.Get("/readyz", s.ReadyHandler())

	authHandler := NewAuthHandler(sessions)
	r.Route("/api/v1/auth", func(r chi.Router) {
		r.Post("/login", authHandler.Login)
		r.Post("/login/device", authHandler.LoginDevice)
		r.Delete("/sessions/{sessionID}", authHandler.Logout)
	})

	return s
}
