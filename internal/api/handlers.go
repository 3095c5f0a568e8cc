// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/gridhub/authgate/internal/flow"
	"github.com/gridhub/authgate/internal/logging"
	"github.com/gridhub/authgate/internal/models"
)

// forwardAuthScheme is the exact prefix downstream services expect on the
// forward-auth Authorization header. The colon after Bearer is part of
// the contract.
const forwardAuthScheme = "Bearer: "

// nextStepBody is the JSON shape of flow decisions returned on POST paths.
type nextStepBody struct {
	NextURL string `json:"next_url"`
	State   string `json:"state,omitempty"`
}

// Health reports liveness.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// Login starts a login flow and returns the IdP authorize URL.
//
// GET /oidc/login?return_url=...&fe_url=...
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	req := struct {
		ReturnURL string `validate:"required,url"`
		FeURL     string `validate:"required,url"`
	}{
		ReturnURL: r.URL.Query().Get("return_url"),
		FeURL:     r.URL.Query().Get("fe_url"),
	}
	if err := s.validate.Struct(req); err != nil {
		badRequest(w, r, "return_url and fe_url are required and must be valid URLs")
		return
	}

	next, err := s.orch.BeginLogin(req.FeURL, req.ReturnURL)
	if err != nil {
		internalError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, nextStepBody{NextURL: next})
}

// LoginCallback handles the IdP redirect back to us. Browser path: every
// outcome is a 307, either onward to the frontend terms page or to the
// client's return_url with success/error markers. Only an unparseable
// state yields a plain 400, there is nowhere to redirect to.
//
// GET /oidc/login/callback?state=...&code=...&error=...&error_description=...
func (s *Server) LoginCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	authState, err := s.codec.Decode(query.Get("state"))
	if err != nil {
		badRequest(w, r, "invalid state")
		return
	}

	if code := flow.MapIdPError(query.Get("error"), query.Get("error_description")); code != "" {
		logger := logging.Ctx(r.Context())
		logger.Info().
			Str("error", query.Get("error")).
			Str("error_description", query.Get("error_description")).
			Msg("IdP returned an error on callback")

		step, err := s.orch.Failure(authState, code)
		if err != nil {
			internalError(w, r, err)
			return
		}
		s.redirect(w, r, step)
		return
	}

	step, err := s.orch.HandleCallback(r.Context(), authState, query.Get("code"))
	if err != nil {
		internalError(w, r, err)
		return
	}
	s.redirect(w, r, step)
}

// LoginInvalidate aborts a pending login flow: the IdP session carried in
// the state is invalidated best-effort. Nothing is persisted before the
// mint, so there is no local cleanup.
//
// POST /oidc/login/invalidate {state}
func (s *Server) LoginInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid body")
		return
	}

	authState, err := s.codec.Decode(req.State)
	if err != nil {
		badRequest(w, r, "invalid state")
		return
	}

	s.orch.Invalidate(r.Context(), authState)
	writeJSON(w, r, http.StatusOK, map[string]any{})
}

// Logout ends the session behind the request's opaque token: deletes the
// session row, invalidates the IdP session best-effort and expires the
// cookie. Always succeeds; an unknown token deletes nothing and contacts
// no one.
//
// POST /logout
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if opaque := s.opaqueToken(r); opaque != "" {
		session, err := s.store.GetToken(ctx, nil, opaque, false)
		if err != nil {
			internalError(w, r, err)
			return
		}
		if session != nil {
			if _, err := s.store.DeleteToken(ctx, nil, opaque); err != nil {
				internalError(w, r, err)
				return
			}
			s.orch.LogoutIdP(ctx, session.IDToken)
		}
	}

	http.SetCookie(w, s.cookie.Expired())
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// Profile returns the profile carried by the bearer token.
//
// GET /profile
func (s *Server) Profile(w http.ResponseWriter, r *http.Request) {
	internal := s.bearerInternalToken(r)
	if internal == nil {
		unauthorized(w, r)
		return
	}

	// Name and company come from a user registry lookup once one exists;
	// the token itself carries neither.
	writeJSON(w, r, http.StatusOK, map[string]any{
		"success": true,
		"profile": models.UserProfile{
			ID:    internal.Subject,
			Name:  "",
			Scope: internal.Scope,
		},
	})
}

// ForwardAuth exchanges the session cookie for the internal bearer token.
// Called by the edge proxy on every request, so it must stay a single
// indexed lookup with no side effects.
//
// GET /token/forward-auth
func (s *Server) ForwardAuth(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(s.cookie.Name)
	if err != nil || cookie.Value == "" {
		unauthorized(w, r)
		return
	}

	session, err := s.store.GetToken(r.Context(), nil, cookie.Value, true)
	if err != nil {
		internalError(w, r, err)
		return
	}
	if session == nil {
		unauthorized(w, r)
		return
	}

	w.Header().Set("Authorization", forwardAuthScheme+session.InternalToken)
	writeJSON(w, r, http.StatusOK, map[string]bool{"success": true})
}

// TokenInspect decodes the bearer token and returns its claims.
//
// GET /token/inspect
func (s *Server) TokenInspect(w http.ResponseWriter, r *http.Request) {
	internal := s.bearerInternalToken(r)
	if internal == nil {
		unauthorized(w, r)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"token": internal})
}

// CreateTestToken signs an arbitrary internal token. Only mounted in
// debug deployments; hidden otherwise.
//
// POST /token/create-test-token {token}
func (s *Server) CreateTestToken(w http.ResponseWriter, r *http.Request) {
	if !s.cfg.Security.Debug {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Token models.InternalToken `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid body")
		return
	}

	encoded, err := s.encoder.Encode(&req.Token)
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"token": encoded})
}

// Terms returns the current terms document.
//
// GET /terms
func (s *Server) Terms(w http.ResponseWriter, r *http.Request) {
	doc, err := s.terms.Latest()
	if err != nil {
		internalError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, doc)
}

// TermsAccept records the user's terms decision and continues the flow:
// acceptance mints the session, decline terminates with E4 and
// invalidates the pending IdP session.
//
// POST /terms/accept {state, accepted, version}
func (s *Server) TermsAccept(w http.ResponseWriter, r *http.Request) {
	var req struct {
		State    string `json:"state" validate:"required"`
		Accepted *bool  `json:"accepted" validate:"required"`
		Version  string `json:"version"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, r, "invalid body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		badRequest(w, r, "state and accepted are required")
		return
	}

	authState, err := s.codec.Decode(req.State)
	if err != nil {
		badRequest(w, r, "invalid state")
		return
	}

	authState.TermsAccepted = *req.Accepted
	authState.TermsVersion = req.Version

	var step *flow.NextStep
	if *req.Accepted {
		step, err = s.orch.NextStep(r.Context(), authState)
	} else {
		step, err = s.orch.Decline(r.Context(), authState)
	}
	if err != nil {
		if errors.Is(err, flow.ErrTermsNotAccepted) {
			badRequest(w, r, "terms not accepted")
			return
		}
		internalError(w, r, err)
		return
	}

	if step.Cookie != nil {
		http.SetCookie(w, step.Cookie)
	}
	writeJSON(w, r, http.StatusOK, nextStepBody{NextURL: step.NextURL, State: step.State})
}

// redirect renders a flow step as a 307, setting the session cookie when
// the step minted one.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, step *flow.NextStep) {
	if step.Cookie != nil {
		http.SetCookie(w, step.Cookie)
	}
	http.Redirect(w, r, step.NextURL, http.StatusTemporaryRedirect)
}

// opaqueToken extracts the opaque session token from the cookie or, as a
// fallback, from a bearer Authorization header.
func (s *Server) opaqueToken(r *http.Request) string {
	if cookie, err := r.Cookie(s.cookie.Name); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	return bearerValue(r)
}

// bearerInternalToken verifies the Authorization bearer as an internal
// token. Returns nil when missing or invalid.
func (s *Server) bearerInternalToken(r *http.Request) *models.InternalToken {
	raw := bearerValue(r)
	if raw == "" {
		return nil
	}
	internal, err := s.encoder.Decode(raw)
	if err != nil {
		return nil
	}
	return internal
}

// bearerValue extracts the value of a standard bearer Authorization
// header, "" when absent.
func bearerValue(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
