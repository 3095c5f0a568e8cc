// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestNewCipher_EmptySecret(t *testing.T) {
	_, err := NewCipher("", "")
	if !errors.Is(err, ErrKeyMissing) {
		t.Fatalf("expected ErrKeyMissing, got %v", err)
	}
}

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []string{
		"0101701234",
		"39315041",
		strings.Repeat("x", 4096), // id_token sized payload
	}

	for _, plaintext := range tests {
		encrypted, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if encrypted == plaintext {
			t.Error("ciphertext equals plaintext")
		}

		decrypted, err := c.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip mismatch: got %q", decrypted)
		}
	}
}

func TestCipher_EmptyString(t *testing.T) {
	c, err := NewCipher("test-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	encrypted, err := c.Encrypt("")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if encrypted != "" {
		t.Errorf("expected empty ciphertext, got %q", encrypted)
	}

	decrypted, err := c.Decrypt("")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decrypted != "" {
		t.Errorf("expected empty plaintext, got %q", decrypted)
	}
}

func TestCipher_NondeterministicCiphertext(t *testing.T) {
	c, err := NewCipher("test-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first, _ := c.Encrypt("payload")
	second, _ := c.Encrypt("payload")
	if first == second {
		t.Error("two encryptions produced identical ciphertext; nonce not random")
	}
}

func TestCipher_WrongKey(t *testing.T) {
	c1, _ := NewCipher("secret-one", "")
	c2, _ := NewCipher("secret-two", "")

	encrypted, err := c1.Encrypt("payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := c2.Decrypt(encrypted); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestCipher_ContextSeparation(t *testing.T) {
	c1, _ := NewCipher("shared-secret", "ssn")
	c2, _ := NewCipher("shared-secret", "state")

	encrypted, err := c1.Encrypt("payload")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := c2.Decrypt(encrypted); err == nil {
		t.Error("cipher with different context decrypted the payload")
	}
}

func TestCipher_MalformedCiphertext(t *testing.T) {
	c, _ := NewCipher("test-secret", "")

	tests := []struct {
		name  string
		input string
	}{
		{"not base64", "%%%not-base64%%%"},
		{"too short", "YWJj"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := c.Decrypt(tt.input); !errors.Is(err, ErrInvalidCiphertext) {
				t.Errorf("expected ErrInvalidCiphertext, got %v", err)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key == "" {
		t.Fatal("empty key")
	}

	other, _ := GenerateKey()
	if key == other {
		t.Error("two generated keys are identical")
	}
}

func TestFingerprint(t *testing.T) {
	c, err := NewCipher("test-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fp := c.Fingerprint("0101701234")
	if fp == "" {
		t.Fatal("empty fingerprint")
	}
	if fp != c.Fingerprint("0101701234") {
		t.Error("fingerprint is not deterministic")
	}
	if fp == c.Fingerprint("0101701235") {
		t.Error("distinct values share a fingerprint")
	}
	if c.Fingerprint("") != "" {
		t.Error("empty value should produce empty fingerprint")
	}

	other, err := NewCipher("other-secret", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp == other.Fingerprint("0101701234") {
		t.Error("fingerprint does not depend on the secret")
	}
}
