// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

// Package crypto provides AES-GCM encryption for sensitive fields: social
// security numbers at rest and the IdP id_token embedded in the login state.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Cipher errors
var (
	// ErrKeyMissing indicates no encryption key was configured.
	ErrKeyMissing = errors.New("encryption key not configured")

	// ErrDecryptionFailed indicates the decryption operation failed.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrInvalidCiphertext indicates the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
)

// defaultContext is the HKDF info string used when none is given.
const defaultContext = "authgate-field-encryption"

// Cipher provides AES-256-GCM encryption for short string fields.
// It uses HKDF-SHA256 to derive the AES key from the configured secret,
// so secrets of any length are acceptable.
type Cipher struct {
	aead cipher.AEAD

	// macKey keys the deterministic fingerprint, derived separately
	// from the encryption key.
	macKey []byte
}

// NewCipher creates a new field cipher from the given secret.
// The context string separates key material derived from a shared secret
// for different purposes; pass "" for the default.
func NewCipher(secret, context string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrKeyMissing
	}
	if context == "" {
		context = defaultContext
	}

	key, err := deriveKey([]byte(secret), []byte(context), 32)
	if err != nil {
		return nil, fmt.Errorf("derive encryption key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM cipher: %w", err)
	}

	macKey, err := deriveKey([]byte(secret), []byte(context+"-fingerprint"), 32)
	if err != nil {
		return nil, fmt.Errorf("derive fingerprint key: %w", err)
	}

	return &Cipher{aead: aead, macKey: macKey}, nil
}

// deriveKey derives a key using HKDF-SHA256.
func deriveKey(secret, context []byte, keyLen int) ([]byte, error) {
	reader := hkdf.New(sha256.New, secret, nil, context)
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt encrypts the plaintext and returns base64-encoded ciphertext.
// The nonce is prepended to the ciphertext. Empty strings are returned as-is.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)

	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt decrypts base64-encoded ciphertext and returns plaintext.
// Empty strings are returned as-is.
func (c *Cipher) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize+1+c.aead.Overhead() {
		return "", fmt.Errorf("%w: data too short", ErrInvalidCiphertext)
	}

	nonce := data[:nonceSize]
	plaintext, err := c.aead.Open(nil, nonce, data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrDecryptionFailed, err.Error())
	}

	return string(plaintext), nil
}

// Fingerprint returns a deterministic keyed hash of the value, suitable
// for equality lookups on fields whose ciphertext is non-deterministic.
// Empty strings are returned as-is.
func (c *Cipher) Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	mac := hmac.New(sha256.New, c.macKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

// GenerateKey generates a cryptographically secure encryption key.
// Returns the key as a base64-encoded string suitable for configuration.
func GenerateKey() (string, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return "", fmt.Errorf("generate random key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
