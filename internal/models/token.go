// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package models

import "time"

// SessionToken is a user session persisted in the store.
//
// Each session carries two tokens: the signed internal token used by our own
// services, and the raw IdP id_token kept for back-channel logout at the
// Identity Provider. The opaque token is the primary key and the only value
// ever handed to browser clients (via the session cookie).
type SessionToken struct {
	// OpaqueToken is a random UUID, safe to pass to frontend clients.
	// It carries no information in itself; the edge proxy exchanges it
	// for the internal token via the forward-auth endpoint.
	OpaqueToken string `json:"opaque_token"`

	// InternalToken is the signed internal bearer token.
	InternalToken string `json:"-"`

	// IDToken is the raw id_token from the Identity Provider.
	IDToken string `json:"-"`

	// Subject identifies the user owning this session.
	Subject string `json:"subject"`

	// Issued is when the session token was issued.
	Issued time.Time `json:"issued"`

	// Expires is when the session token expires. Always after Issued.
	Expires time.Time `json:"expires"`
}

// ValidAt reports whether the token is valid at the given instant,
// i.e. issued <= t < expires.
func (t *SessionToken) ValidAt(at time.Time) bool {
	return !at.Before(t.Issued) && at.Before(t.Expires)
}

// InternalToken is the signed bearer token consumed by downstream services.
// It is never persisted in decoded form; the encoded string lives on the
// SessionToken row.
type InternalToken struct {
	// Issued is when the token was issued.
	Issued time.Time `json:"issued"`

	// Expires is when the token expires.
	Expires time.Time `json:"expires"`

	// Actor is the subject acting on behalf of Subject.
	// For ordinary logins actor == subject.
	Actor string `json:"actor"`

	// Subject is the user the token was issued for.
	Subject string `json:"subject"`

	// Scope lists the granted scopes.
	Scope []string `json:"scope"`
}

// UserProfile is the profile payload returned by the profile endpoint.
type UserProfile struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Scope   []string `json:"scope"`
	Company string   `json:"company,omitempty"`
}
