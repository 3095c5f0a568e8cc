// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package idp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/gridhub/authgate/internal/logging"
)

// Signaturgruppen endpoint paths, relative to the authority URL.
const (
	authorizePath = "/connect/authorize"
	tokenPath     = "/connect/token"
	jwksPath      = "/.well-known/openid-configuration/jwks"
	logoutPath    = "/api/v1/session/logout"
)

// SignaturgruppenConfig configures the Signaturgruppen OIDC backend.
type SignaturgruppenConfig struct {
	// AuthorityURL is the IdP base URL; all endpoints derive from it.
	AuthorityURL string

	ClientID     string
	ClientSecret string

	// Scopes requested on every authorization, e.g.
	// ["openid", "mitid", "nemid", "userinfo_token"].
	Scopes []string

	// Timeout bounds each outbound call. Defaults to 30s.
	Timeout time.Duration
}

// Signaturgruppen is the Backend implementation for the Signaturgruppen
// NemLog-in broker fronting MitID and NemID.
type Signaturgruppen struct {
	cfg        SignaturgruppenConfig
	httpClient *http.Client
	jwks       *JWKSCache
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

var _ Backend = (*Signaturgruppen)(nil)

// NewSignaturgruppen creates a Signaturgruppen backend. Endpoint URLs are
// derived from the configured authority URL.
func NewSignaturgruppen(cfg SignaturgruppenConfig) *Signaturgruppen {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.AuthorityURL = strings.TrimRight(cfg.AuthorityURL, "/")

	client := &http.Client{Timeout: cfg.Timeout}

	return &Signaturgruppen{
		cfg:        cfg,
		httpClient: client,
		jwks:       NewJWKSCache(cfg.AuthorityURL+jwksPath, client, 15*time.Minute),
		breaker: gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "idp",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("IdP circuit breaker state change")
			},
		}),
	}
}

// CreateAuthorizationURL builds the authorize URL for one login attempt.
func (s *Signaturgruppen) CreateAuthorizationURL(state, callbackURI string, validateSSN bool, language string) (string, error) {
	scopes := make([]string, len(s.cfg.Scopes))
	copy(scopes, s.cfg.Scopes)
	if validateSSN {
		scopes = append(scopes, "ssn")
	}

	query := url.Values{
		"client_id":     {s.cfg.ClientID},
		"redirect_uri":  {callbackURI},
		"response_type": {"code"},
		"scope":         {strings.Join(scopes, " ")},
		"state":         {state},
		"nonce":         {uuid.NewString()},
	}
	if language != "" {
		query.Set("language", language)
	}

	return s.cfg.AuthorityURL + authorizePath + "?" + query.Encode(), nil
}

// FetchToken exchanges the authorization code and verifies the returned
// id_token and userinfo_token against the IdP's published keys.
func (s *Signaturgruppen) FetchToken(ctx context.Context, code, state, redirectURI string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {s.cfg.ClientID},
		"client_secret": {s.cfg.ClientSecret},
	}

	body, err := s.breaker.Execute(func() ([]byte, error) {
		return s.postForm(ctx, s.cfg.AuthorityURL+tokenPath, form)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTokenExchange, err.Error())
	}

	var resp struct {
		IDToken       string `json:"id_token"`
		AccessToken   string `json:"access_token"`
		UserinfoToken string `json:"userinfo_token"`
		Scope         string `json:"scope"`
		ExpiresIn     int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed token response: %s", ErrTokenExchange, err.Error())
	}
	if resp.IDToken == "" || resp.UserinfoToken == "" {
		return nil, fmt.Errorf("%w: token response missing id_token or userinfo_token", ErrTokenExchange)
	}

	token, err := s.parseTokens(ctx, resp.IDToken, resp.UserinfoToken)
	if err != nil {
		return nil, err
	}
	token.Scope = strings.Fields(resp.Scope)

	return token, nil
}

// Logout invalidates the IdP session. The broker expects a POST with the
// raw id_token in a JSON body.
func (s *Signaturgruppen) Logout(ctx context.Context, idToken string) error {
	payload, err := json.Marshal(map[string]string{"id_token": idToken})
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() ([]byte, error) {
		return s.postJSON(ctx, s.cfg.AuthorityURL+logoutPath, payload)
	})
	if err != nil {
		return fmt.Errorf("IdP logout failed: %w", err)
	}
	return nil
}

// postForm issues a form-encoded POST and returns the response body.
func (s *Signaturgruppen) postForm(ctx context.Context, target string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req)
}

// postJSON issues a JSON POST and returns the response body.
func (s *Signaturgruppen) postJSON(ctx context.Context, target string, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *Signaturgruppen) do(req *http.Request) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("IdP returned status %d", resp.StatusCode)
	}
	return body, nil
}
