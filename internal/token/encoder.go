// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package token signs and verifies the internal bearer token that downstream
// services consume from the forward-auth header.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gridhub/authgate/internal/models"
)

// ErrDecode indicates an internal token could not be verified: bad
// signature, malformed payload, or expired.
var ErrDecode = errors.New("invalid internal token")

// internalClaims is the JWT claim set for an internal token.
type internalClaims struct {
	Actor string   `json:"actor"`
	Scope []string `json:"scope"`
	jwt.RegisteredClaims
}

// Encoder signs and verifies internal tokens with the process-wide secret.
type Encoder struct {
	secret []byte

	// now is replaceable in tests.
	now func() time.Time
}

// NewEncoder creates an internal token encoder.
func NewEncoder(secret string) *Encoder {
	return &Encoder{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Encode signs the internal token and returns the compact bearer string.
func (e *Encoder) Encode(t *models.InternalToken) (string, error) {
	claims := internalClaims{
		Actor: t.Actor,
		Scope: t.Scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   t.Subject,
			IssuedAt:  jwt.NewNumericDate(t.Issued),
			ExpiresAt: jwt.NewNumericDate(t.Expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(e.secret)
	if err != nil {
		return "", fmt.Errorf("sign internal token: %w", err)
	}
	return signed, nil
}

// Decode verifies the bearer string and returns the embedded token.
// Expired tokens are rejected.
func (e *Encoder) Decode(raw string) (*models.InternalToken, error) {
	var claims internalClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return e.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(e.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDecode, err.Error())
	}

	if claims.Subject == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing required claims", ErrDecode)
	}

	return &models.InternalToken{
		Issued:  claims.IssuedAt.Time,
		Expires: claims.ExpiresAt.Time,
		Actor:   claims.Actor,
		Subject: claims.Subject,
		Scope:   claims.Scope,
	}, nil
}
