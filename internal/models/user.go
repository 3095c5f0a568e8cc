// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package models defines the persistent and wire-level data types shared
// across the gateway: users, identity-provider links, login records,
// session tokens and the signed internal token.
package models

import "time"

// User represents a user known to the system.
//
// Users are uniquely identified by their subject, an opaque UUID minted on
// first login. At least one of SSN (encrypted) or TIN must be set.
type User struct {
	// Subject is the opaque UUID identifying the user.
	Subject string `json:"subject"`

	// SSN is the user's social security number, encrypted at rest.
	// Empty for company users.
	SSN string `json:"-"`

	// TIN is the company's tax identification number.
	// Empty for private users.
	TIN string `json:"tin,omitempty"`

	// CreatedAt is when the user row was created.
	CreatedAt time.Time `json:"created_at"`
}

// ExternalUser binds one Identity Provider identity to one User.
//
// A single User can have multiple external logins, either via different
// Identity Providers or via different login methods at the same provider
// (logging in via MitID or NemID yields different external subjects even
// for the same person).
type ExternalUser struct {
	// ID is the surrogate key of the link row.
	ID int64 `json:"id"`

	// Subject references the owning User.
	Subject string `json:"subject"`

	// IdentityProvider is the ID/name of the Identity Provider.
	IdentityProvider string `json:"identity_provider"`

	// ExternalSubject is the Identity Provider's unique ID of the user.
	ExternalSubject string `json:"external_subject"`

	// CreatedAt is when the user first signed in via this provider.
	CreatedAt time.Time `json:"created_at"`
}

// LoginRecord is an append-only audit row recording a successful login.
// Rows are never mutated or deleted.
type LoginRecord struct {
	// ID is the surrogate key of the record.
	ID int64 `json:"id"`

	// Subject identifies the user who logged in.
	Subject string `json:"subject"`

	// CreatedAt is when the login happened.
	CreatedAt time.Time `json:"created_at"`
}
