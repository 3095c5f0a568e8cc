// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package flow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts counts login flow terminations.
	// Labels:
	//   - provider: IdP identifier (e.g., "mitid", "nemid")
	//   - outcome: "success", "terms_prompt", "failure"
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_login_attempts_total",
			Help: "Total number of login flow decisions",
		},
		[]string{"provider", "outcome"},
	)

	// TokenExchangeDuration measures the IdP code exchange latency.
	TokenExchangeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authgate_token_exchange_duration_seconds",
			Help:    "Duration of IdP token exchange operations",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)

	// IdPLogouts counts back-channel logout calls to the IdP.
	// Labels:
	//   - outcome: "success", "failure"
	IdPLogouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authgate_idp_logouts_total",
			Help: "Total number of IdP back-channel logout calls",
		},
		[]string{"outcome"},
	)
)
