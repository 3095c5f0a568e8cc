// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package api exposes the gateway's HTTP surface: login, callback, terms,
// logout, forward-auth and token endpoints.
package api

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/gridhub/authgate/internal/logging"
)

// errorBody is the JSON body of non-2xx responses.
type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// writeJSON writes v with the given status code.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger := logging.Ctx(r.Context())
		logger.Error().Err(err).Msg("failed to encode response")
	}
}

// badRequest writes a 400 with the message.
func badRequest(w http.ResponseWriter, r *http.Request, message string) {
	writeJSON(w, r, http.StatusBadRequest, errorBody{Error: message})
}

// unauthorized writes a 401.
func unauthorized(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusUnauthorized, errorBody{Error: "unauthorized"})
}

// internalError writes a 500. The underlying error is logged, never sent.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.Ctx(r.Context())
	logger.Error().Err(err).Msg("internal error")
	writeJSON(w, r, http.StatusInternalServerError, errorBody{Error: "internal error"})
}
