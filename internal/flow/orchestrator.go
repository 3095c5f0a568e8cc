// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package flow implements the login orchestrator: the state machine that
// decides the next step after each hop of a login (authorize, callback,
// terms, success or failure).
//
// The orchestrator is stateless between requests. All flow context travels
// in the signed AuthState; all durable effects happen in one transaction
// per decision.
package flow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gridhub/authgate/internal/crypto"
	"github.com/gridhub/authgate/internal/idp"
	"github.com/gridhub/authgate/internal/logging"
	"github.com/gridhub/authgate/internal/models"
	"github.com/gridhub/authgate/internal/state"
	"github.com/gridhub/authgate/internal/store"
)

// ErrTermsNotAccepted indicates the user-creation path was reached without
// recorded terms acceptance. This is a logic error; the caller must roll
// back, never silently create the user.
var ErrTermsNotAccepted = errors.New("user creation without terms acceptance")

// Config holds the orchestrator's flow parameters.
type Config struct {
	// CallbackURL is the absolute redirect URI registered at the IdP.
	CallbackURL string

	// TermsURL and TermsAcceptURL are the absolute URLs of the terms
	// endpoints, passed to the frontend on the terms redirect.
	TermsURL       string
	TermsAcceptURL string

	// DefaultScopes are granted on every minted internal token.
	DefaultScopes []string

	// TokenExpiry is the lifetime of a minted session.
	TokenExpiry time.Duration

	// ValidateSSN requests the SSN scope on authorization.
	ValidateSSN bool

	// Language selects the IdP UI language, e.g. "da" or "en".
	Language string

	Cookie CookieConfig
}

// NextStep is one orchestrator decision: where the client goes next.
// The endpoint renders it either as a 307 redirect (browser hops) or as a
// 200 JSON body (programmatic POSTs).
type NextStep struct {
	// NextURL is the target of the step.
	NextURL string

	// State is the re-encoded AuthState, set on the terms hop.
	State string

	// Cookie is the session cookie, set when a session was minted.
	Cookie *http.Cookie
}

// Orchestrator decides the next step of a login flow.
type Orchestrator struct {
	cfg     Config
	store   *store.Store
	codec   *state.Codec
	cipher  *crypto.Cipher
	backend idp.Backend

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a login orchestrator.
func New(cfg Config, st *store.Store, codec *state.Codec, cipher *crypto.Cipher, backend idp.Backend) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   st,
		codec:   codec,
		cipher:  cipher,
		backend: backend,
		now:     time.Now,
	}
}

// BeginLogin starts a flow: encodes a fresh AuthState and returns the IdP
// authorize URL the client should visit.
func (o *Orchestrator) BeginLogin(feURL, returnURL string) (string, error) {
	encoded, err := o.codec.Encode(&state.AuthState{
		FeURL:     feURL,
		ReturnURL: returnURL,
	})
	if err != nil {
		return "", err
	}
	return o.backend.CreateAuthorizationURL(encoded, o.cfg.CallbackURL, o.cfg.ValidateSSN, o.cfg.Language)
}

// HandleCallback processes the IdP callback: exchanges the code, folds the
// verified token into the state and decides the next step. A failed
// exchange terminates the flow with E505; the code is never retried.
func (o *Orchestrator) HandleCallback(ctx context.Context, s *state.AuthState, code string) (*NextStep, error) {
	start := o.now()
	token, err := o.backend.FetchToken(ctx, code, "", o.cfg.CallbackURL)
	TokenExchangeDuration.WithLabelValues(providerLabel(s.IdentityProvider)).
		Observe(o.now().Sub(start).Seconds())
	if err != nil {
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Msg("IdP token exchange failed")
		LoginAttempts.WithLabelValues(providerLabel(s.IdentityProvider), "failure").Inc()
		return o.Failure(s, CodeTokenExchange)
	}

	encryptedIDToken, err := o.cipher.Encrypt(token.IDToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting id_token: %w", err)
	}

	s.IDToken = encryptedIDToken
	s.TIN = token.TIN
	s.IdentityProvider = token.Provider
	s.ExternalSubject = token.Subject

	return o.NextStep(ctx, s)
}

// NextStep decides the next step for the state: mint a session for a known
// user, prompt for terms for an unknown one, or create-then-mint once the
// terms are accepted.
func (o *Orchestrator) NextStep(ctx context.Context, s *state.AuthState) (*NextStep, error) {
	user, err := o.store.GetUserByExternalSubject(ctx, nil, s.IdentityProvider, s.ExternalSubject)
	if err != nil {
		return nil, err
	}

	switch {
	case user != nil:
		return o.mint(ctx, user, s)
	case !s.TermsAccepted:
		return o.promptTerms(s)
	default:
		return o.createAndMint(ctx, s)
	}
}

// Decline terminates the flow after the user declined the terms. The
// pending IdP session is invalidated on a best-effort basis; no user row
// is created.
func (o *Orchestrator) Decline(ctx context.Context, s *state.AuthState) (*NextStep, error) {
	o.logoutIdP(ctx, s.IDToken)
	LoginAttempts.WithLabelValues(providerLabel(s.IdentityProvider), "failure").Inc()
	return o.Failure(s, CodeTermsDeclined)
}

// Invalidate aborts a pending flow: best-effort logout of the IdP session
// carried in the state. Local state needs no cleanup, nothing is persisted
// before the mint.
func (o *Orchestrator) Invalidate(ctx context.Context, s *state.AuthState) {
	o.logoutIdP(ctx, s.IDToken)
}

// LogoutIdP invalidates the IdP session behind a raw id_token,
// best-effort. Used by the logout endpoint with the id_token from the
// session row.
func (o *Orchestrator) LogoutIdP(ctx context.Context, rawIDToken string) {
	if rawIDToken == "" {
		return
	}
	if err := o.backend.Logout(ctx, rawIDToken); err != nil {
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Msg("IdP logout failed")
		IdPLogouts.WithLabelValues("failure").Inc()
		return
	}
	IdPLogouts.WithLabelValues("success").Inc()
}

// Failure builds the terminal failure step for the code.
func (o *Orchestrator) Failure(s *state.AuthState, code ErrorCode) (*NextStep, error) {
	target, err := state.FailureURL(s, string(code), code.Message())
	if err != nil {
		return nil, err
	}
	return &NextStep{NextURL: target}, nil
}

// promptTerms redirects the client to the frontend terms page, carrying
// the re-encoded state plus the terms endpoints.
func (o *Orchestrator) promptTerms(s *state.AuthState) (*NextStep, error) {
	encoded, err := o.codec.Encode(s)
	if err != nil {
		return nil, err
	}

	target, err := state.AppendURL(s.FeURL, "/terms", url.Values{
		"state":            {encoded},
		"terms_url":        {o.cfg.TermsURL},
		"terms_accept_url": {o.cfg.TermsAcceptURL},
	})
	if err != nil {
		return nil, err
	}

	LoginAttempts.WithLabelValues(providerLabel(s.IdentityProvider), "terms_prompt").Inc()
	return &NextStep{NextURL: target, State: encoded}, nil
}

// createAndMint creates the user, links the external identity and mints
// the session, all in one transaction.
func (o *Orchestrator) createAndMint(ctx context.Context, s *state.AuthState) (*NextStep, error) {
	if !s.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}

	var step *NextStep
	err := o.store.WithTx(ctx, func(tx *sql.Tx) error {
		user, err := o.store.GetOrCreateUser(ctx, tx, "", s.TIN)
		if err != nil {
			return err
		}
		if err := o.store.AttachExternalUser(ctx, tx, user, s.IdentityProvider, s.ExternalSubject); err != nil {
			return err
		}

		step, err = o.mintTx(ctx, tx, user, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// mint mints a session for an existing user in its own transaction.
func (o *Orchestrator) mint(ctx context.Context, user *models.User, s *state.AuthState) (*NextStep, error) {
	var step *NextStep
	err := o.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		step, err = o.mintTx(ctx, tx, user, s)
		return err
	})
	if err != nil {
		return nil, err
	}
	return step, nil
}

// mintTx performs the session mint inside the caller's transaction:
// login record, internal token, session row, cookie.
func (o *Orchestrator) mintTx(ctx context.Context, tx *sql.Tx, user *models.User, s *state.AuthState) (*NextStep, error) {
	if err := o.store.RegisterUserLogin(ctx, tx, user); err != nil {
		return nil, err
	}

	rawIDToken, err := o.cipher.Decrypt(s.IDToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting id_token: %w", err)
	}

	issued := o.now()
	expires := issued.Add(o.cfg.TokenExpiry)

	opaque, err := o.store.CreateToken(ctx, tx, issued, expires, user.Subject, rawIDToken, o.cfg.DefaultScopes)
	if err != nil {
		return nil, err
	}

	target, err := state.SuccessURL(s)
	if err != nil {
		return nil, err
	}

	logger := logging.Ctx(ctx)
	logger.Info().
		Str("subject", user.Subject).
		Str("provider", s.IdentityProvider).
		Msg("session minted")
	LoginAttempts.WithLabelValues(providerLabel(s.IdentityProvider), "success").Inc()

	return &NextStep{
		NextURL: target,
		Cookie:  o.cfg.Cookie.New(opaque, expires),
	}, nil
}

// logoutIdP decrypts the embedded id_token and invalidates the IdP
// session, best-effort.
func (o *Orchestrator) logoutIdP(ctx context.Context, encryptedIDToken string) {
	rawIDToken, err := o.cipher.Decrypt(encryptedIDToken)
	if err != nil {
		logger := logging.Ctx(ctx)
		logger.Warn().Err(err).Msg("cannot decrypt id_token for IdP logout")
		return
	}
	o.LogoutIdP(ctx, rawIDToken)
}

// providerLabel keeps the metric label well-defined before the provider
// is known.
func providerLabel(provider string) string {
	if provider == "" {
		return "unknown"
	}
	return provider
}
