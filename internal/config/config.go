// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package config loads and validates the gateway configuration from
// defaults, an optional YAML file and environment variables, in that
// order of precedence (env wins).
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration.
type Config struct {
	Service  ServiceConfig  `koanf:"service"`
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	Security SecurityConfig `koanf:"security"`
	IdP      IdPConfig      `koanf:"idp"`
	Cookie   CookieConfig   `koanf:"cookie"`
	Terms    TermsConfig    `koanf:"terms"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// ServiceConfig describes how the gateway is reachable from outside.
type ServiceConfig struct {
	// PublicURL is the externally visible base URL of this service; the
	// OIDC callback and the terms endpoints are derived from it.
	PublicURL string `koanf:"public_url"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`
}

// DatabaseConfig holds the SQLite settings.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SecurityConfig holds secrets, token lifetimes and HTTP guards.
type SecurityConfig struct {
	// TokenSecret signs internal bearer tokens.
	TokenSecret string `koanf:"token_secret"`

	// StateSecret signs the login flow state.
	StateSecret string `koanf:"state_secret"`

	// EncryptionKey keys the field cipher (ssn, embedded id_token).
	EncryptionKey string `koanf:"encryption_key"`

	// TokenExpiry is the lifetime of minted sessions.
	TokenExpiry time.Duration `koanf:"token_expiry"`

	// StateMaxAge bounds how old a login state may be; 0 disables.
	StateMaxAge time.Duration `koanf:"state_max_age"`

	// DefaultScopes are granted on every internal token.
	DefaultScopes []string `koanf:"default_scopes"`

	// Debug enables the test-token endpoint. Never in production.
	Debug bool `koanf:"debug"`

	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
}

// IdPConfig holds the Identity Provider client settings.
type IdPConfig struct {
	AuthorityURL string        `koanf:"authority_url"`
	ClientID     string        `koanf:"client_id"`
	ClientSecret string        `koanf:"client_secret"`
	Scopes       []string      `koanf:"scopes"`
	ValidateSSN  bool          `koanf:"validate_ssn"`
	Language     string        `koanf:"language"`
	Timeout      time.Duration `koanf:"timeout"`
}

// CookieConfig holds the session cookie settings.
type CookieConfig struct {
	Name   string `koanf:"name"`
	Domain string `koanf:"domain"`
	Path   string `koanf:"path"`
	Secure bool   `koanf:"secure"`
}

// TermsConfig holds the terms document settings.
type TermsConfig struct {
	// Folder is the directory holding versioned Markdown documents.
	Folder string `koanf:"folder"`
}

// LoggingConfig holds the logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Secrets and
// IdP credentials have no defaults; they must come from the environment
// or the config file.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			PublicURL: "",
		},
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8080,
			Timeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path: "/data/authgate.db",
		},
		Security: SecurityConfig{
			TokenExpiry:     24 * time.Hour,
			StateMaxAge:     15 * time.Minute,
			DefaultScopes:   []string{"meteringpoints.read", "measurements.read"},
			Debug:           false,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     []string{},
		},
		IdP: IdPConfig{
			Scopes:      []string{"openid", "mitid", "nemid", "userinfo_token"},
			ValidateSSN: false,
			Language:    "en",
			Timeout:     30 * time.Second,
		},
		Cookie: CookieConfig{
			Name:   "Authorization",
			Path:   "/",
			Secure: true,
		},
		Terms: TermsConfig{
			Folder: "/data/terms",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateService(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateIdP(); err != nil {
		return err
	}
	return c.validateCookie()
}

func (c *Config) validateService() error {
	if c.Service.PublicURL == "" {
		return fmt.Errorf("SERVICE_PUBLIC_URL is required")
	}
	return validateHTTPURL(c.Service.PublicURL, "SERVICE_PUBLIC_URL")
}

func (c *Config) validateSecurity() error {
	if c.Security.TokenSecret == "" {
		return fmt.Errorf("SECURITY_TOKEN_SECRET is required")
	}
	if c.Security.StateSecret == "" {
		return fmt.Errorf("SECURITY_STATE_SECRET is required")
	}
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("SECURITY_ENCRYPTION_KEY is required")
	}
	if c.Security.TokenExpiry <= 0 {
		return fmt.Errorf("SECURITY_TOKEN_EXPIRY must be positive")
	}
	return nil
}

func (c *Config) validateIdP() error {
	if c.IdP.AuthorityURL == "" {
		return fmt.Errorf("IDP_AUTHORITY_URL is required")
	}
	if err := validateHTTPURL(c.IdP.AuthorityURL, "IDP_AUTHORITY_URL"); err != nil {
		return err
	}
	if c.IdP.ClientID == "" {
		return fmt.Errorf("IDP_CLIENT_ID is required")
	}
	if c.IdP.ClientSecret == "" {
		return fmt.Errorf("IDP_CLIENT_SECRET is required")
	}
	return nil
}

func (c *Config) validateCookie() error {
	if c.Cookie.Name == "" {
		return fmt.Errorf("COOKIE_NAME must not be empty")
	}
	return nil
}

// CallbackURL derives the OIDC redirect URI from the public URL.
func (c *Config) CallbackURL() string {
	return strings.TrimRight(c.Service.PublicURL, "/") + "/oidc/login/callback"
}

// TermsURL derives the terms document endpoint from the public URL.
func (c *Config) TermsURL() string {
	return strings.TrimRight(c.Service.PublicURL, "/") + "/terms"
}

// TermsAcceptURL derives the terms accept endpoint from the public URL.
func (c *Config) TermsAcceptURL() string {
	return strings.TrimRight(c.Service.PublicURL, "/") + "/terms/accept"
}

// validateHTTPURL checks that the value is an absolute http(s) URL.
func validateHTTPURL(raw, name string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", name, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https", name)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", name)
	}
	return nil
}
