// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package flow

import (
	"net/http"
	"time"
)

// CookieConfig describes the session cookie handed to browser clients.
// The cookie value is always the opaque session token, never the internal
// token.
type CookieConfig struct {
	Name   string
	Domain string
	Path   string
	Secure bool
}

// New builds the session cookie carrying the opaque token.
func (c CookieConfig) New(value string, expires time.Time) *http.Cookie {
	path := c.Path
	if path == "" {
		path = "/"
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Domain:   c.Domain,
		Path:     path,
		Expires:  expires,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// Expired builds the cookie that clears the session in the browser: same
// attributes, empty value, expiry in the past.
func (c CookieConfig) Expired() *http.Cookie {
	cookie := c.New("", time.Unix(0, 0))
	cookie.MaxAge = -1
	return cookie
}
