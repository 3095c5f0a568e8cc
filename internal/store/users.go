// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridhub/authgate/internal/models"
)

// ErrNoIdentifier indicates a user operation was called without an SSN or
// a TIN to key the user on.
var ErrNoIdentifier = errors.New("neither ssn nor tin provided")

// GetUserByExternalSubject resolves the user behind an identity provider
// link. Returns nil when the link does not exist.
func (s *Store) GetUserByExternalSubject(ctx context.Context, q Querier, idp, externalSubject string) (*models.User, error) {
	if q == nil {
		q = s.db
	}

	link, err := s.ExternalUsers(q).
		HasIdentityProvider(idp).
		HasExternalSubject(externalSubject).
		OneOrNone(ctx)
	if err != nil || link == nil {
		return nil, err
	}

	return s.Users(q).HasSubject(link.Subject).OneOrNone(ctx)
}

// GetOrCreateUser finds the user keyed by SSN (preferred) or TIN, creating
// one with a fresh subject on miss. A concurrent first login can lose the
// insert race on the ssn uniqueness constraint; the loser re-reads the
// winner's row and proceeds.
func (s *Store) GetOrCreateUser(ctx context.Context, q Querier, ssn, tin string) (*models.User, error) {
	if q == nil {
		q = s.db
	}
	if ssn == "" && tin == "" {
		return nil, ErrNoIdentifier
	}

	user, err := s.lookupUser(ctx, q, ssn, tin)
	if err != nil || user != nil {
		return user, err
	}

	user, err = s.insertUser(ctx, q, ssn, tin)
	if isUniqueViolation(err) {
		return s.lookupUser(ctx, q, ssn, tin)
	}
	return user, err
}

func (s *Store) lookupUser(ctx context.Context, q Querier, ssn, tin string) (*models.User, error) {
	query := s.Users(q)
	if ssn != "" {
		query.HasSSN(ssn)
	} else {
		query.HasTIN(tin)
	}
	return query.OneOrNone(ctx)
}

func (s *Store) insertUser(ctx context.Context, q Querier, ssn, tin string) (*models.User, error) {
	user := &models.User{
		Subject:   uuid.NewString(),
		SSN:       ssn,
		TIN:       tin,
		CreatedAt: time.Now().UTC(),
	}

	var encryptedSSN, fingerprint sql.NullString
	if ssn != "" {
		ciphertext, err := s.cipher.Encrypt(ssn)
		if err != nil {
			return nil, fmt.Errorf("encrypting ssn: %w", err)
		}
		encryptedSSN = sql.NullString{String: ciphertext, Valid: true}
		fingerprint = sql.NullString{String: s.cipher.Fingerprint(ssn), Valid: true}
	}

	var nullTIN sql.NullString
	if tin != "" {
		nullTIN = sql.NullString{String: tin, Valid: true}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO user_account (subject, ssn, ssn_fingerprint, tin, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.Subject, encryptedSSN, fingerprint, nullTIN, user.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return user, nil
}

// AttachExternalUser links an identity provider identity to the user.
// Idempotent: attaching an existing (idp, external_subject) pair is a
// no-op, also when a concurrent flow inserted it first.
func (s *Store) AttachExternalUser(ctx context.Context, q Querier, user *models.User, idp, externalSubject string) error {
	if q == nil {
		q = s.db
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO user_external (subject, identity_provider, external_subject, created_at)
		VALUES (?, ?, ?, ?)`,
		user.Subject, idp, externalSubject, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("inserting external user: %w", err)
	}
	return nil
}

// RegisterUserLogin appends a login audit record for the user.
func (s *Store) RegisterUserLogin(ctx context.Context, q Querier, user *models.User) error {
	if q == nil {
		q = s.db
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO login_record (subject, created_at)
		VALUES (?, ?)`,
		user.Subject, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("inserting login record: %w", err)
	}
	return nil
}
