// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridhub/authgate/internal/models"
)

// ErrInvalidWindow indicates a token creation with issued >= expires.
var ErrInvalidWindow = errors.New("token issued must precede expires")

// CreateToken signs an internal token for the subject, inserts the session
// row and returns the opaque token handed to the browser. The id_token is
// encrypted before it reaches the database.
func (s *Store) CreateToken(ctx context.Context, q Querier, issued, expires time.Time, subject, idToken string, scope []string) (string, error) {
	if q == nil {
		q = s.db
	}
	if !issued.Before(expires) {
		return "", ErrInvalidWindow
	}

	internal, err := s.encoder.Encode(&models.InternalToken{
		Issued:  issued,
		Expires: expires,
		Actor:   subject,
		Subject: subject,
		Scope:   scope,
	})
	if err != nil {
		return "", fmt.Errorf("encoding internal token: %w", err)
	}

	encryptedIDToken, err := s.cipher.Encrypt(idToken)
	if err != nil {
		return "", fmt.Errorf("encrypting id_token: %w", err)
	}

	opaque := uuid.NewString()

	_, err = q.ExecContext(ctx, `
		INSERT INTO session_token (opaque_token, internal_token, id_token, subject, issued, expires)
		VALUES (?, ?, ?, ?, ?, ?)`,
		opaque, internal, encryptedIDToken, subject, issued.UnixMilli(), expires.UnixMilli(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting session token: %w", err)
	}
	return opaque, nil
}

// GetToken returns the session token behind the opaque handle, nil when it
// does not exist. With onlyValid, rows outside their validity window are
// treated as absent.
func (s *Store) GetToken(ctx context.Context, q Querier, opaque string, onlyValid bool) (*models.SessionToken, error) {
	if q == nil {
		q = s.db
	}

	query := s.Tokens(q).HasOpaqueToken(opaque)
	if onlyValid {
		query.IsValid()
	}
	return query.OneOrNone(ctx)
}

// DeleteToken removes the session token. Reports whether a row existed.
func (s *Store) DeleteToken(ctx context.Context, q Querier, opaque string) (bool, error) {
	if q == nil {
		q = s.db
	}

	res, err := q.ExecContext(ctx, `DELETE FROM session_token WHERE opaque_token = ?`, opaque)
	if err != nil {
		return false, fmt.Errorf("deleting session token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
