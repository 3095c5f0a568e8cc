// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package idp

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Identity types reported by the Signaturgruppen broker.
const (
	identityTypePrivate      = "private"
	identityTypeProfessional = "professional"
)

// idClaims is the claim set of the broker's id_token.
type idClaims struct {
	Provider string `json:"idp"`
	jwt.RegisteredClaims
}

// userinfoClaims is the claim set of the broker's userinfo_token. The
// namespaced claims carry the Danish national identifiers: dk.cpr is the
// CPR number (SSN) and nemid.cvr is the CVR number (TIN).
type userinfoClaims struct {
	Provider     string `json:"idp"`
	IdentityType string `json:"identity_type"`
	SSN          string `json:"dk.cpr"`
	TIN          string `json:"nemid.cvr"`
	jwt.RegisteredClaims
}

// parseTokens verifies both broker tokens and assembles the Token bundle.
func (s *Signaturgruppen) parseTokens(ctx context.Context, rawIDToken, rawUserinfoToken string) (*Token, error) {
	var id idClaims
	if err := s.verify(ctx, rawIDToken, &id); err != nil {
		return nil, fmt.Errorf("%w: id_token: %s", ErrVerification, err.Error())
	}
	if id.Subject == "" || id.IssuedAt == nil || id.ExpiresAt == nil || id.Provider == "" {
		return nil, fmt.Errorf("%w: id_token missing required claims", ErrVerification)
	}

	var userinfo userinfoClaims
	if err := s.verify(ctx, rawUserinfoToken, &userinfo); err != nil {
		return nil, fmt.Errorf("%w: userinfo_token: %s", ErrVerification, err.Error())
	}
	if userinfo.Subject != "" && userinfo.Subject != id.Subject {
		return nil, fmt.Errorf("%w: subject mismatch between id_token and userinfo_token", ErrVerification)
	}

	return &Token{
		Subject:   id.Subject,
		Provider:  id.Provider,
		Issued:    id.IssuedAt.Time,
		Expires:   id.ExpiresAt.Time,
		IDToken:   rawIDToken,
		SSN:       userinfo.SSN,
		TIN:       userinfo.TIN,
		IsPrivate: userinfo.IdentityType == identityTypePrivate,
		IsCompany: userinfo.IdentityType == identityTypeProfessional,
	}, nil
}

// verify parses a broker JWT and checks its RSA signature against the
// cached JWKS.
func (s *Signaturgruppen) verify(ctx context.Context, raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		kid, ok := t.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("token missing kid header")
		}
		return s.jwks.GetKey(ctx, kid)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
	)
	return err
}
