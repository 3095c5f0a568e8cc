// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package main is the entry point for the Authgate server.
//
// Authgate is an OpenID Connect authentication gateway: it runs the broker
// login flow (MitID / NemID via Signaturgruppen) on behalf of frontend
// clients, manages users and their identity-provider links, mints opaque
// session tokens and exchanges them for signed internal bearer tokens at
// the edge proxy's forward-auth endpoint.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: Load settings from environment variables and config files (Koanf v2)
//  2. Crypto: Field cipher for SSN and id_token encryption at rest
//  3. Database: SQLite store with embedded goose migrations
//  4. Identity Provider: Signaturgruppen backend with circuit breaker
//  5. Orchestrator: Login flow state machine
//  6. HTTP Server: REST API with Prometheus metrics
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// Required settings:
//   - SERVICE_PUBLIC_URL: Public base URL of this gateway
//   - SECURITY_TOKEN_SECRET: Secret signing internal bearer tokens
//   - SECURITY_STATE_SECRET: Secret signing login state tokens
//   - SECURITY_ENCRYPTION_KEY: Key for field encryption at rest
//   - IDP_AUTHORITY_URL, IDP_CLIENT_ID, IDP_CLIENT_SECRET: Broker credentials
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete (10s timeout)
//   - Closes the database connection
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gridhub/authgate/internal/api"
	"github.com/gridhub/authgate/internal/config"
	"github.com/gridhub/authgate/internal/crypto"
	"github.com/gridhub/authgate/internal/flow"
	"github.com/gridhub/authgate/internal/idp"
	"github.com/gridhub/authgate/internal/logging"
	"github.com/gridhub/authgate/internal/state"
	"github.com/gridhub/authgate/internal/store"
	"github.com/gridhub/authgate/internal/terms"
	"github.com/gridhub/authgate/internal/token"
)

func main() {
	// Load configuration first to get logging settings
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("public_url", cfg.Service.PublicURL).
		Str("db_path", cfg.Database.Path).
		Str("idp_authority", cfg.IdP.AuthorityURL).
		Msg("Configuration loaded")

	cipher, err := crypto.NewCipher(cfg.Security.EncryptionKey, "")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize field cipher")
	}
	encoder := token.NewEncoder(cfg.Security.TokenSecret)
	codec := state.NewCodec(cfg.Security.StateSecret, cfg.Security.StateMaxAge)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Open(ctx, cfg.Database.Path, cipher, encoder)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	backend := idp.NewSignaturgruppen(idp.SignaturgruppenConfig{
		AuthorityURL: cfg.IdP.AuthorityURL,
		ClientID:     cfg.IdP.ClientID,
		ClientSecret: cfg.IdP.ClientSecret,
		Scopes:       cfg.IdP.Scopes,
		Timeout:      cfg.IdP.Timeout,
	})

	orch := flow.New(flow.Config{
		CallbackURL:    cfg.CallbackURL(),
		TermsURL:       cfg.TermsURL(),
		TermsAcceptURL: cfg.TermsAcceptURL(),
		DefaultScopes:  cfg.Security.DefaultScopes,
		TokenExpiry:    cfg.Security.TokenExpiry,
		ValidateSSN:    cfg.IdP.ValidateSSN,
		Language:       cfg.IdP.Language,
		Cookie: flow.CookieConfig{
			Name:   cfg.Cookie.Name,
			Domain: cfg.Cookie.Domain,
			Path:   cfg.Cookie.Path,
			Secure: cfg.Cookie.Secure,
		},
	}, st, codec, cipher, backend)

	server := api.NewServer(cfg, st, orch, codec, encoder, terms.NewService(cfg.Terms.Folder))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", addr).Msg("HTTP server listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Error().Err(err).Msg("HTTP server shutdown error")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("HTTP server error")
		}
	}

	logging.Info().Msg("Application stopped gracefully")
}
