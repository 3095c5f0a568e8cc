// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package state implements the signed AuthState token that threads login
// flow context across IdP redirects and back-channel hops.
//
// AuthState is generated when the client requests an authorization URL. It
// encodes to a compact JWT which travels in the OIDC state parameter, is
// returned by the Identity Provider on callback, and is handed to the
// frontend for the terms step. Carrying the whole flow context in a signed
// value is what keeps this service stateless.
package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Codec errors
var (
	// ErrDecode indicates the state token could not be decoded: bad
	// signature, malformed payload or missing required fields.
	ErrDecode = errors.New("invalid state token")

	// ErrExpired indicates the state token is older than the allowed age.
	ErrExpired = errors.New("state token expired")
)

// AuthState carries the context of one login flow.
//
// The id_token field, when set, holds the IdP id_token encrypted with the
// field cipher before being placed inside the state, so a leaked signing
// key does not expose the IdP token.
type AuthState struct {
	// FeURL is the frontend base URL, target of the terms redirect.
	FeURL string `json:"fe_url"`

	// ReturnURL is where the client is sent when the flow terminates.
	ReturnURL string `json:"return_url"`

	// TermsAccepted records whether the user accepted the terms.
	TermsAccepted bool `json:"terms_accepted"`

	// TermsVersion is the version of the terms the user responded to.
	TermsVersion string `json:"terms_version,omitempty"`

	// IDToken is the IdP id_token, symmetrically encrypted.
	IDToken string `json:"id_token,omitempty"`

	// TIN is the tax identification number from the IdP userinfo token.
	TIN string `json:"tin,omitempty"`

	// IdentityProvider is the provider the user authenticated with.
	IdentityProvider string `json:"identity_provider,omitempty"`

	// ExternalSubject is the IdP's subject for the user.
	ExternalSubject string `json:"external_subject,omitempty"`
}

// stateClaims is the JWT claim set wrapping an AuthState.
type stateClaims struct {
	AuthState
	jwt.RegisteredClaims
}

// Codec signs and verifies AuthState tokens with a process-wide secret.
// Integrity is mandatory; confidentiality is not (the only secret inside
// the state, the id_token, is separately encrypted).
type Codec struct {
	secret []byte
	maxAge time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

// NewCodec creates a state codec. maxAge bounds how old a decoded state may
// be; zero disables the age check.
func NewCodec(secret string, maxAge time.Duration) *Codec {
	return &Codec{
		secret: []byte(secret),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Encode signs the state and returns the compact token string.
func (c *Codec) Encode(s *AuthState) (string, error) {
	claims := stateClaims{
		AuthState: *s,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(c.now()),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return token, nil
}

// Decode verifies the token and returns the embedded state.
// Returns ErrDecode when the signature is invalid, the payload is malformed
// or a required field is missing, and ErrExpired when the token is older
// than the configured maximum age.
func (c *Codec) Decode(raw string) (*AuthState, error) {
	var claims stateClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}

	if claims.FeURL == "" || claims.ReturnURL == "" {
		return nil, fmt.Errorf("%w: missing required fields", ErrDecode)
	}

	if c.maxAge > 0 {
		if claims.IssuedAt == nil {
			return nil, fmt.Errorf("%w: missing iat", ErrDecode)
		}
		if c.now().Sub(claims.IssuedAt.Time) > c.maxAge {
			return nil, ErrExpired
		}
	}

	s := claims.AuthState
	return &s, nil
}
