// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package state

import (
	"fmt"
	"net/url"
	"strings"
)

// AppendURL appends a path suffix and extra query parameters to a URL.
// Existing query parameters are kept; keys present in extra override keys
// already on the URL. The clients own return_url and fe_url, so their
// parameters must survive the round trip through the login flow.
func AppendURL(rawURL, pathExtra string, extra url.Values) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if pathExtra != "" {
		u.Path = strings.TrimSuffix(u.Path, "/") + "/" + strings.TrimPrefix(pathExtra, "/")
	}

	query := u.Query()
	for key, values := range extra {
		query.Del(key)
		for _, value := range values {
			query.Add(key, value)
		}
	}
	u.RawQuery = query.Encode()

	return u.String(), nil
}

// FailureURL builds the URL a failed login flow redirects to: the client's
// return_url with success=0, the internal error code and a human-readable
// error message appended.
func FailureURL(s *AuthState, errorCode, errorMessage string) (string, error) {
	return AppendURL(s.ReturnURL, "", url.Values{
		"success":    {"0"},
		"error_code": {errorCode},
		"error":      {errorMessage},
	})
}

// SuccessURL builds the URL a completed login flow redirects to: the
// client's return_url with success=1 appended.
func SuccessURL(s *AuthState) (string, error) {
	return AppendURL(s.ReturnURL, "", url.Values{
		"success": {"1"},
	})
}
