// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package state

import (
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec("test-secret", 15*time.Minute)

	tests := []struct {
		name  string
		state AuthState
	}{
		{
			name: "minimal",
			state: AuthState{
				FeURL:     "https://fe.example",
				ReturnURL: "https://app.example/r",
			},
		},
		{
			name: "full",
			state: AuthState{
				FeURL:            "https://fe.example",
				ReturnURL:        "https://app.example/r?keep=1",
				TermsAccepted:    true,
				TermsVersion:     "v02",
				IDToken:          "ZW5jcnlwdGVkLWlkLXRva2Vu",
				TIN:              "39315041",
				IdentityProvider: "mitid",
				ExternalSubject:  "S1",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := codec.Encode(&tt.state)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}

			decoded, err := codec.Decode(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if *decoded != tt.state {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *decoded, tt.state)
			}
		})
	}
}

func TestCodec_Decode_BadSignature(t *testing.T) {
	encoded, err := NewCodec("secret-one", 0).Encode(&AuthState{
		FeURL:     "https://fe.example",
		ReturnURL: "https://app.example/r",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := NewCodec("secret-two", 0).Decode(encoded); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestCodec_Decode_Malformed(t *testing.T) {
	codec := NewCodec("test-secret", 0)

	for _, raw := range []string{"", "garbage", "a.b.c"} {
		if _, err := codec.Decode(raw); !errors.Is(err, ErrDecode) {
			t.Errorf("Decode(%q): expected ErrDecode, got %v", raw, err)
		}
	}
}

func TestCodec_Decode_TamperedPayload(t *testing.T) {
	codec := NewCodec("test-secret", 0)

	encoded, err := codec.Encode(&AuthState{
		FeURL:     "https://fe.example",
		ReturnURL: "https://app.example/r",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	parts := strings.Split(encoded, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	if _, err := codec.Decode(tampered); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode, got %v", err)
	}
}

func TestCodec_Decode_MissingRequiredFields(t *testing.T) {
	codec := NewCodec("test-secret", 0)

	encoded, err := codec.Encode(&AuthState{FeURL: "https://fe.example"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	if _, err := codec.Decode(encoded); !errors.Is(err, ErrDecode) {
		t.Errorf("expected ErrDecode for missing return_url, got %v", err)
	}
}

func TestCodec_Decode_MaxAge(t *testing.T) {
	codec := NewCodec("test-secret", 15*time.Minute)

	issued := time.Now()
	codec.now = func() time.Time { return issued }

	encoded, err := codec.Encode(&AuthState{
		FeURL:     "https://fe.example",
		ReturnURL: "https://app.example/r",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Within the window.
	codec.now = func() time.Time { return issued.Add(14 * time.Minute) }
	if _, err := codec.Decode(encoded); err != nil {
		t.Fatalf("decode within max age: %v", err)
	}

	// Past the window.
	codec.now = func() time.Time { return issued.Add(16 * time.Minute) }
	if _, err := codec.Decode(encoded); !errors.Is(err, ErrExpired) {
		t.Errorf("expected ErrExpired, got %v", err)
	}
}

func TestAppendURL(t *testing.T) {
	tests := []struct {
		name      string
		rawURL    string
		pathExtra string
		extra     url.Values
		want      string
	}{
		{
			name:   "append query to bare url",
			rawURL: "https://app.example/r",
			extra:  url.Values{"success": {"1"}},
			want:   "https://app.example/r?success=1",
		},
		{
			name:   "existing query preserved",
			rawURL: "https://app.example/r?keep=yes",
			extra:  url.Values{"success": {"0"}},
			want:   "https://app.example/r?keep=yes&success=0",
		},
		{
			name:   "extra overrides existing key",
			rawURL: "https://app.example/r?success=1",
			extra:  url.Values{"success": {"0"}},
			want:   "https://app.example/r?success=0",
		},
		{
			name:      "path suffix",
			rawURL:    "https://fe.example",
			pathExtra: "/terms",
			extra:     url.Values{"state": {"abc"}},
			want:      "https://fe.example/terms?state=abc",
		},
		{
			name:      "path suffix with trailing slash",
			rawURL:    "https://fe.example/app/",
			pathExtra: "terms",
			want:      "https://fe.example/app/terms",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AppendURL(tt.rawURL, tt.pathExtra, tt.extra)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFailureURL(t *testing.T) {
	s := &AuthState{
		FeURL:     "https://fe.example",
		ReturnURL: "https://app.example/r?keep=yes",
	}

	got, err := FailureURL(s, "E4", "Terms and conditions were not accepted")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	u, err := url.Parse(got)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}
	query := u.Query()
	if query.Get("success") != "0" {
		t.Errorf("success = %q, want 0", query.Get("success"))
	}
	if query.Get("error_code") != "E4" {
		t.Errorf("error_code = %q, want E4", query.Get("error_code"))
	}
	if query.Get("error") == "" {
		t.Error("error message missing")
	}
	if query.Get("keep") != "yes" {
		t.Error("existing query parameter dropped")
	}
}
