// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package idp implements the relying-party side of the OpenID Connect
// conversation with the external Identity Provider: building authorize
// URLs, exchanging authorization codes for verified token bundles, and
// back-channel session logout.
package idp

import (
	"context"
	"errors"
	"time"
)

// Adapter errors
var (
	// ErrTokenExchange indicates the authorization code could not be
	// exchanged for tokens (network failure or non-200 from the IdP).
	ErrTokenExchange = errors.New("token exchange failed")

	// ErrVerification indicates a token from the IdP failed signature
	// verification or is missing required claims.
	ErrVerification = errors.New("token verification failed")
)

// Token is the verified token bundle returned by the IdP on code exchange.
// SSN and TIN are only present when the corresponding scopes were granted.
type Token struct {
	// Subject is the IdP's subject identifier (the `sub` claim).
	Subject string

	// Provider names the concrete identity scheme the user
	// authenticated with, e.g. "mitid" or "nemid".
	Provider string

	Issued  time.Time
	Expires time.Time
	Scope   []string

	// IDToken is the raw id_token, kept for back-channel logout.
	IDToken string

	SSN string
	TIN string

	// IsPrivate and IsCompany reflect the IdP identity_type claim.
	IsPrivate bool
	IsCompany bool
}

// Backend abstracts one OIDC relying-party session against the IdP.
type Backend interface {
	// CreateAuthorizationURL builds the IdP authorize URL carrying the
	// encoded flow state. validateSSN requests the SSN scope; language,
	// when non-empty, selects the IdP UI language.
	CreateAuthorizationURL(state, callbackURI string, validateSSN bool, language string) (string, error)

	// FetchToken exchanges an authorization code for a verified Token.
	FetchToken(ctx context.Context, code, state, redirectURI string) (*Token, error)

	// Logout invalidates the IdP session behind the given raw id_token.
	// Callers treat failures as best-effort.
	Logout(ctx context.Context, idToken string) error
}
