// Authgate - OpenID Connect Authentication Gateway
// Copyright 2026 Gridhub
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gridhub/authgate

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gridhub/authgate/internal/crypto"
	"github.com/gridhub/authgate/internal/token"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	cipher, err := crypto.NewCipher("test-encryption-secret", "")
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}

	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "test.db"), cipher, token.NewEncoder("test-token-secret"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateUser_BySSN(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.GetOrCreateUser(ctx, nil, "0101701234", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Subject == "" {
		t.Fatal("empty subject")
	}
	if created.SSN != "0101701234" {
		t.Errorf("ssn = %q", created.SSN)
	}

	// Second call with the same SSN finds the same user.
	found, err := s.GetOrCreateUser(ctx, nil, "0101701234", "")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.Subject != created.Subject {
		t.Errorf("subject = %q, want %q", found.Subject, created.Subject)
	}

	n, err := s.Users(nil).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("user count = %d, want 1", n)
	}
}

func TestGetOrCreateUser_ByTIN(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := s.Users(nil).HasTIN("39315041").OneOrNone(ctx)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if found == nil || found.Subject != created.Subject {
		t.Errorf("got %+v, want subject %q", found, created.Subject)
	}
}

func TestGetOrCreateUser_NoIdentifier(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.GetOrCreateUser(context.Background(), nil, "", ""); !errors.Is(err, ErrNoIdentifier) {
		t.Errorf("expected ErrNoIdentifier, got %v", err)
	}
}

func TestGetOrCreateUser_SSNEncryptedAtRest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOrCreateUser(ctx, nil, "0101701234", ""); err != nil {
		t.Fatalf("create: %v", err)
	}

	var stored string
	err := s.DB().QueryRowContext(ctx, `SELECT ssn FROM user_account`).Scan(&stored)
	if err != nil {
		t.Fatalf("raw query: %v", err)
	}
	if stored == "0101701234" {
		t.Error("ssn stored in plaintext")
	}
}

func TestAttachExternalUser_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	for range 2 {
		if err := s.AttachExternalUser(ctx, nil, user, "mitid", "S1"); err != nil {
			t.Fatalf("attach: %v", err)
		}
	}

	n, err := s.ExternalUsers(nil).
		HasIdentityProvider("mitid").
		HasExternalSubject("S1").
		Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("link count = %d, want 1", n)
	}
}

func TestGetUserByExternalSubject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Unknown link resolves to nil.
	user, err := s.GetUserByExternalSubject(ctx, nil, "mitid", "S1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user != nil {
		t.Fatalf("expected nil user, got %+v", user)
	}

	created, err := s.GetOrCreateUser(ctx, nil, "0101701234", "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := s.AttachExternalUser(ctx, nil, created, "mitid", "S1"); err != nil {
		t.Fatalf("attach: %v", err)
	}

	user, err = s.GetUserByExternalSubject(ctx, nil, "mitid", "S1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user == nil || user.Subject != created.Subject {
		t.Errorf("got %+v, want subject %q", user, created.Subject)
	}

	// Same external subject at a different provider is a different link.
	user, err = s.GetUserByExternalSubject(ctx, nil, "nemid", "S1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil for other provider, got %+v", user)
	}
}

func TestCreateToken_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	issued := time.Now().UTC().Truncate(time.Millisecond)
	expires := issued.Add(time.Hour)
	scope := []string{"meteringpoints.read", "measurements.read"}

	opaque, err := s.CreateToken(ctx, nil, issued, expires, user.Subject, "raw-id-token", scope)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	st, err := s.GetToken(ctx, nil, opaque, true)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if st == nil {
		t.Fatal("token not found")
	}
	if st.Subject != user.Subject {
		t.Errorf("subject = %q, want %q", st.Subject, user.Subject)
	}
	if st.IDToken != "raw-id-token" {
		t.Errorf("id_token = %q, want raw-id-token", st.IDToken)
	}
	if !st.Issued.Equal(issued) || !st.Expires.Equal(expires) {
		t.Errorf("window = [%v, %v), want [%v, %v)", st.Issued, st.Expires, issued, expires)
	}

	// The stored internal token verifies and carries the scopes.
	internal, err := token.NewEncoder("test-token-secret").Decode(st.InternalToken)
	if err != nil {
		t.Fatalf("decode internal token: %v", err)
	}
	if internal.Subject != user.Subject || internal.Actor != user.Subject {
		t.Errorf("internal token identity: %+v", internal)
	}
	if len(internal.Scope) != 2 {
		t.Errorf("internal token scope = %v", internal.Scope)
	}
}

func TestCreateToken_InvalidWindow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	now := time.Now()
	if _, err := s.CreateToken(ctx, nil, now, now, user.Subject, "id", nil); !errors.Is(err, ErrInvalidWindow) {
		t.Errorf("expected ErrInvalidWindow, got %v", err)
	}
}

func TestGetToken_OnlyValid(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	// Expired an hour ago.
	opaque, err := s.CreateToken(ctx, nil, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour), user.Subject, "id", nil)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	st, err := s.GetToken(ctx, nil, opaque, true)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if st != nil {
		t.Error("expired token returned as valid")
	}

	// Without the validity filter the row is still there.
	st, err = s.GetToken(ctx, nil, opaque, false)
	if err != nil {
		t.Fatalf("get token: %v", err)
	}
	if st == nil {
		t.Error("expired token row missing")
	}
}

func TestDeleteToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	opaque, err := s.CreateToken(ctx, nil, time.Now(), time.Now().Add(time.Hour), user.Subject, "id", nil)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}

	deleted, err := s.DeleteToken(ctx, nil, opaque)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Error("expected a row to be deleted")
	}

	deleted, err = s.DeleteToken(ctx, nil, opaque)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Error("second delete removed a row")
	}
}

func TestRegisterUserLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.GetOrCreateUser(ctx, nil, "", "39315041")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	for range 3 {
		if err := s.RegisterUserLogin(ctx, nil, user); err != nil {
			t.Fatalf("register login: %v", err)
		}
	}

	records, err := s.LoginRecords(nil).HasSubject(user.Subject).All(ctx)
	if err != nil {
		t.Fatalf("query records: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("record count = %d, want 3", len(records))
	}
}

func TestWithTx_RollbackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sentinel := errors.New("boom")
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.GetOrCreateUser(ctx, tx, "", "39315041"); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}

	n, err := s.Users(nil).Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("user count after rollback = %d, want 0", n)
	}
}

func TestWithTx_ConcurrentFirstLogin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Two logins for the same identity race through the create-and-link
	// transaction. Both must succeed: the loser serializes behind the
	// winner, observes its rows and proceeds.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = s.WithTx(ctx, func(tx *sql.Tx) error {
				user, err := s.GetOrCreateUser(ctx, tx, "", "39315041")
				if err != nil {
					return err
				}
				return s.AttachExternalUser(ctx, tx, user, "mitid", "S1")
			})
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("transaction %d failed: %v", i, err)
		}
	}

	users, err := s.Users(nil).Count(ctx)
	if err != nil {
		t.Fatalf("count users: %v", err)
	}
	links, err := s.ExternalUsers(nil).Count(ctx)
	if err != nil {
		t.Fatalf("count links: %v", err)
	}
	if users != 1 || links != 1 {
		t.Errorf("users = %d, links = %d, want 1 each", users, links)
	}
}

func TestUserQuery_Exists(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Users(nil).HasTIN("39315041").Exists(ctx)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if ok {
		t.Error("exists on empty table")
	}

	if _, err := s.GetOrCreateUser(ctx, nil, "", "39315041"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	ok, err = s.Users(nil).HasTIN("39315041").Exists(ctx)
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if !ok {
		t.Error("expected user to exist")
	}
}
