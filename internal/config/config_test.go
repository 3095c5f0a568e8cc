// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package config

import (
	"strings"
	"testing"
	"time"
)

// setRequiredEnv sets the minimum environment for a valid configuration.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SERVICE_PUBLIC_URL", "https://auth.example")
	t.Setenv("SECURITY_TOKEN_SECRET", "token-secret")
	t.Setenv("SECURITY_STATE_SECRET", "state-secret")
	t.Setenv("SECURITY_ENCRYPTION_KEY", "encryption-key")
	t.Setenv("IDP_AUTHORITY_URL", "https://idp.example")
	t.Setenv("IDP_CLIENT_ID", "client-1")
	t.Setenv("IDP_CLIENT_SECRET", "client-secret")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Security.TokenExpiry != 24*time.Hour {
		t.Errorf("token expiry = %v, want 24h", cfg.Security.TokenExpiry)
	}
	if cfg.Security.StateMaxAge != 15*time.Minute {
		t.Errorf("state max age = %v, want 15m", cfg.Security.StateMaxAge)
	}
	if len(cfg.Security.DefaultScopes) != 2 {
		t.Errorf("default scopes = %v", cfg.Security.DefaultScopes)
	}
	if cfg.Cookie.Name != "Authorization" || !cfg.Cookie.Secure {
		t.Errorf("cookie defaults: %+v", cfg.Cookie)
	}
	if cfg.Security.Debug {
		t.Error("debug enabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("SECURITY_TOKEN_EXPIRY", "1h")
	t.Setenv("IDP_SCOPES", "openid, mitid")
	t.Setenv("COOKIE_DOMAIN", "example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Security.TokenExpiry != time.Hour {
		t.Errorf("token expiry = %v, want 1h", cfg.Security.TokenExpiry)
	}
	if len(cfg.IdP.Scopes) != 2 || cfg.IdP.Scopes[1] != "mitid" {
		t.Errorf("idp scopes = %v", cfg.IdP.Scopes)
	}
	if cfg.Cookie.Domain != "example.com" {
		t.Errorf("cookie domain = %q", cfg.Cookie.Domain)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name string
		omit string
	}{
		{"missing public url", "SERVICE_PUBLIC_URL"},
		{"missing token secret", "SECURITY_TOKEN_SECRET"},
		{"missing state secret", "SECURITY_STATE_SECRET"},
		{"missing encryption key", "SECURITY_ENCRYPTION_KEY"},
		{"missing authority url", "IDP_AUTHORITY_URL"},
		{"missing client id", "IDP_CLIENT_ID"},
		{"missing client secret", "IDP_CLIENT_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			t.Setenv(tt.omit, "")

			if _, err := Load(); err == nil {
				t.Errorf("expected validation error without %s", tt.omit)
			}
		})
	}
}

func TestLoad_InvalidURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("IDP_AUTHORITY_URL", "ftp://idp.example")

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "IDP_AUTHORITY_URL") {
		t.Errorf("expected IDP_AUTHORITY_URL error, got %v", err)
	}
}

func TestDerivedURLs(t *testing.T) {
	cfg := defaultConfig()
	cfg.Service.PublicURL = "https://auth.example/"

	if got := cfg.CallbackURL(); got != "https://auth.example/oidc/login/callback" {
		t.Errorf("callback url = %q", got)
	}
	if got := cfg.TermsURL(); got != "https://auth.example/terms" {
		t.Errorf("terms url = %q", got)
	}
	if got := cfg.TermsAcceptURL(); got != "https://auth.example/terms/accept" {
		t.Errorf("terms accept url = %q", got)
	}
}
