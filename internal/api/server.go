// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gridhub/authgate/internal/config"
	"github.com/gridhub/authgate/internal/flow"
	"github.com/gridhub/authgate/internal/state"
	"github.com/gridhub/authgate/internal/store"
	"github.com/gridhub/authgate/internal/terms"
	"github.com/gridhub/authgate/internal/token"
)

// Server bundles the handlers of the HTTP surface.
type Server struct {
	cfg      *config.Config
	store    *store.Store
	orch     *flow.Orchestrator
	codec    *state.Codec
	encoder  *token.Encoder
	terms    *terms.Service
	validate *validator.Validate
	cookie   flow.CookieConfig
}

// NewServer creates the HTTP server.
func NewServer(cfg *config.Config, st *store.Store, orch *flow.Orchestrator, codec *state.Codec, encoder *token.Encoder, termsSvc *terms.Service) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		orch:     orch,
		codec:    codec,
		encoder:  encoder,
		terms:    termsSvc,
		validate: validator.New(),
		cookie: flow.CookieConfig{
			Name:   cfg.Cookie.Name,
			Domain: cfg.Cookie.Domain,
			Path:   cfg.Cookie.Path,
			Secure: cfg.Cookie.Secure,
		},
	}
}

// Router assembles the route tree and middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(requestLogger)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	if len(s.cfg.Security.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.Security.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.cfg.Security.RateLimitReqs > 0 {
		r.Use(httprate.LimitByIP(s.cfg.Security.RateLimitReqs, s.cfg.Security.RateLimitWindow))
	}

	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Get("/oidc/login", s.Login)
	r.Get("/oidc/login/callback", s.LoginCallback)
	r.Post("/oidc/login/invalidate", s.LoginInvalidate)
	r.Post("/logout", s.Logout)

	r.Get("/profile", s.Profile)

	r.Get("/token/forward-auth", s.ForwardAuth)
	r.Get("/token/inspect", s.TokenInspect)
	r.Post("/token/create-test-token", s.CreateTestToken)

	r.Get("/terms", s.Terms)
	r.Post("/terms/accept", s.TermsAccept)

	return r
}
