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
	"strings"
	"time"

	"github.com/gridhub/authgate/internal/crypto"
	"github.com/gridhub/authgate/internal/models"
)

// Querier is the subset of database/sql shared by *sql.DB and *sql.Tx.
// Query constructors accept either, so lookups compose into a caller's
// transaction when one is open.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// query accumulates AND-composed predicates for one table.
type query struct {
	q       Querier
	table   string
	columns string
	orderBy string
	where   []string
	args    []any
}

func (b *query) and(cond string, args ...any) {
	b.where = append(b.where, cond)
	b.args = append(b.args, args...)
}

func (b *query) selectSQL() string {
	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(b.columns)
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	b.writeWhere(&sb)
	if b.orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(b.orderBy)
	}
	return sb.String()
}

func (b *query) writeWhere(sb *strings.Builder) {
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
}

// Count returns the number of matching rows.
func (b *query) Count(ctx context.Context) (int64, error) {
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) FROM ")
	sb.WriteString(b.table)
	b.writeWhere(&sb)

	var n int64
	if err := b.q.QueryRowContext(ctx, sb.String(), b.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s rows: %w", b.table, err)
	}
	return n, nil
}

// Exists reports whether at least one row matches.
func (b *query) Exists(ctx context.Context) (bool, error) {
	n, err := b.Count(ctx)
	return n > 0, err
}

// UserQuery filters user rows.
type UserQuery struct {
	query
	cipher *crypto.Cipher
}

// Users starts a user query. Pass nil to query outside any transaction.
func (s *Store) Users(q Querier) *UserQuery {
	if q == nil {
		q = s.db
	}
	return &UserQuery{
		query: query{
			q:       q,
			table:   "user_account",
			columns: "subject, ssn, tin, created_at",
		},
		cipher: s.cipher,
	}
}

// HasSSN filters on the (plaintext) social security number.
func (u *UserQuery) HasSSN(ssn string) *UserQuery {
	u.and("ssn_fingerprint = ?", u.cipher.Fingerprint(ssn))
	return u
}

// HasTIN filters on the tax identification number.
func (u *UserQuery) HasTIN(tin string) *UserQuery {
	u.and("tin = ?", tin)
	return u
}

// HasSubject filters on the user's subject.
func (u *UserQuery) HasSubject(subject string) *UserQuery {
	u.and("subject = ?", subject)
	return u
}

// OneOrNone returns the single matching user, nil when there is none.
func (u *UserQuery) OneOrNone(ctx context.Context) (*models.User, error) {
	row := u.q.QueryRowContext(ctx, u.selectSQL(), u.args...)

	user, err := u.scan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// All returns every matching user.
func (u *UserQuery) All(ctx context.Context) ([]*models.User, error) {
	rows, err := u.q.QueryContext(ctx, u.selectSQL(), u.args...)
	if err != nil {
		return nil, fmt.Errorf("querying users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var users []*models.User
	for rows.Next() {
		user, err := u.scan(rows.Scan)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (u *UserQuery) scan(scan func(...any) error) (*models.User, error) {
	var (
		user      models.User
		ssn       sql.NullString
		tin       sql.NullString
		createdAt int64
	)
	if err := scan(&user.Subject, &ssn, &tin, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning user row: %w", err)
	}

	plain, err := u.cipher.Decrypt(ssn.String)
	if err != nil {
		return nil, fmt.Errorf("decrypting ssn: %w", err)
	}
	user.SSN = plain
	user.TIN = tin.String
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

// ExternalUserQuery filters identity provider link rows.
type ExternalUserQuery struct {
	query
}

// ExternalUsers starts an external user query.
func (s *Store) ExternalUsers(q Querier) *ExternalUserQuery {
	if q == nil {
		q = s.db
	}
	return &ExternalUserQuery{
		query: query{
			q:       q,
			table:   "user_external",
			columns: "id, subject, identity_provider, external_subject, created_at",
		},
	}
}

// HasIdentityProvider filters on the provider name.
func (e *ExternalUserQuery) HasIdentityProvider(idp string) *ExternalUserQuery {
	e.and("identity_provider = ?", idp)
	return e
}

// HasExternalSubject filters on the provider's subject.
func (e *ExternalUserQuery) HasExternalSubject(externalSubject string) *ExternalUserQuery {
	e.and("external_subject = ?", externalSubject)
	return e
}

// HasSubject filters on the owning user's subject.
func (e *ExternalUserQuery) HasSubject(subject string) *ExternalUserQuery {
	e.and("subject = ?", subject)
	return e
}

// OneOrNone returns the single matching link, nil when there is none.
func (e *ExternalUserQuery) OneOrNone(ctx context.Context) (*models.ExternalUser, error) {
	row := e.q.QueryRowContext(ctx, e.selectSQL(), e.args...)

	link, err := scanExternalUser(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

// All returns every matching link.
func (e *ExternalUserQuery) All(ctx context.Context) ([]*models.ExternalUser, error) {
	rows, err := e.q.QueryContext(ctx, e.selectSQL(), e.args...)
	if err != nil {
		return nil, fmt.Errorf("querying external users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var links []*models.ExternalUser
	for rows.Next() {
		link, err := scanExternalUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func scanExternalUser(scan func(...any) error) (*models.ExternalUser, error) {
	var (
		link      models.ExternalUser
		createdAt int64
	)
	err := scan(&link.ID, &link.Subject, &link.IdentityProvider, &link.ExternalSubject, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning external user row: %w", err)
	}
	link.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &link, nil
}

// TokenQuery filters session token rows.
type TokenQuery struct {
	query
	cipher *crypto.Cipher

	// now is replaceable in tests.
	now func() time.Time
}

// Tokens starts a session token query.
func (s *Store) Tokens(q Querier) *TokenQuery {
	if q == nil {
		q = s.db
	}
	return &TokenQuery{
		query: query{
			q:       q,
			table:   "session_token",
			columns: "opaque_token, internal_token, id_token, subject, issued, expires",
		},
		cipher: s.cipher,
		now:    time.Now,
	}
}

// HasOpaqueToken filters on the opaque token.
func (t *TokenQuery) HasOpaqueToken(opaque string) *TokenQuery {
	t.and("opaque_token = ?", opaque)
	return t
}

// HasSubject filters on the owning user's subject.
func (t *TokenQuery) HasSubject(subject string) *TokenQuery {
	t.and("subject = ?", subject)
	return t
}

// IsValid keeps only tokens valid now: issued <= now < expires.
func (t *TokenQuery) IsValid() *TokenQuery {
	now := t.now().UnixMilli()
	t.and("issued <= ? AND expires > ?", now, now)
	return t
}

// OneOrNone returns the single matching token, nil when there is none.
func (t *TokenQuery) OneOrNone(ctx context.Context) (*models.SessionToken, error) {
	row := t.q.QueryRowContext(ctx, t.selectSQL(), t.args...)

	st, err := t.scan(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// All returns every matching token.
func (t *TokenQuery) All(ctx context.Context) ([]*models.SessionToken, error) {
	rows, err := t.q.QueryContext(ctx, t.selectSQL(), t.args...)
	if err != nil {
		return nil, fmt.Errorf("querying session tokens: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tokens []*models.SessionToken
	for rows.Next() {
		st, err := t.scan(rows.Scan)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, st)
	}
	return tokens, rows.Err()
}

func (t *TokenQuery) scan(scan func(...any) error) (*models.SessionToken, error) {
	var (
		st      models.SessionToken
		issued  int64
		expires int64
	)
	err := scan(&st.OpaqueToken, &st.InternalToken, &st.IDToken, &st.Subject, &issued, &expires)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session token row: %w", err)
	}

	idToken, err := t.cipher.Decrypt(st.IDToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting id_token: %w", err)
	}
	st.IDToken = idToken
	st.Issued = time.UnixMilli(issued).UTC()
	st.Expires = time.UnixMilli(expires).UTC()
	return &st, nil
}

// LoginRecordQuery filters login audit rows.
type LoginRecordQuery struct {
	query
}

// LoginRecords starts a login record query, newest first.
func (s *Store) LoginRecords(q Querier) *LoginRecordQuery {
	if q == nil {
		q = s.db
	}
	return &LoginRecordQuery{
		query: query{
			q:       q,
			table:   "login_record",
			columns: "id, subject, created_at",
			orderBy: "created_at DESC, id DESC",
		},
	}
}

// HasSubject filters on the user's subject.
func (l *LoginRecordQuery) HasSubject(subject string) *LoginRecordQuery {
	l.and("subject = ?", subject)
	return l
}

// All returns every matching record.
func (l *LoginRecordQuery) All(ctx context.Context) ([]*models.LoginRecord, error) {
	rows, err := l.q.QueryContext(ctx, l.selectSQL(), l.args...)
	if err != nil {
		return nil, fmt.Errorf("querying login records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*models.LoginRecord
	for rows.Next() {
		var (
			record    models.LoginRecord
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.Subject, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning login record row: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, &record)
	}
	return records, rows.Err()
}
