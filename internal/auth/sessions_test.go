package auth

import (
	"context"
	"errors"
	"testing"
)

func TestLookupSessionExpiredReadsAsAbsent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	var session *Session
	err := env.store.InTx(ctx, func(tx Store) error {
		var err error
		session, err = env.svc.newSession(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}

	got, err := env.svc.LookupSession(ctx, session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.UserID != user.ID {
		t.Fatalf("unexpected user: %s", got.UserID)
	}
	if want := env.clock.Now().Add(SessionTTL); !got.ExpirationDate.Equal(want) {
		t.Fatalf("expiry %v, want %v", got.ExpirationDate, want)
	}

	env.clock.Advance(SessionTTL)
	if _, err := env.svc.LookupSession(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session resolved: %v", err)
	}
	if _, err := env.svc.UserForSession(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session resolved a user: %v", err)
	}
}

func TestLookupSessionNotRenewedByActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	var session *Session
	_ = env.store.InTx(ctx, func(tx Store) error {
		var err error
		session, err = env.svc.newSession(ctx, tx, user.ID)
		return err
	})

	// Lookups right up to the deadline must not push it out.
	for i := 0; i < 5; i++ {
		env.clock.Advance(SessionTTL / 6)
		if _, err := env.svc.LookupSession(ctx, session.ID); err != nil {
			t.Fatalf("lookup %d: %v", i, err)
		}
	}
	env.clock.Advance(SessionTTL / 6)
	if _, err := env.svc.LookupSession(ctx, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("session outlived its absolute expiry: %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	var session *Session
	_ = env.store.InTx(ctx, func(tx Store) error {
		var err error
		session, err = env.svc.newSession(ctx, tx, user.ID)
		return err
	})

	if err := env.svc.Logout(ctx, session.ID); err != nil {
		t.Fatal(err)
	}
	if err := env.svc.Logout(ctx, session.ID); err != nil {
		t.Fatalf("second logout errored: %v", err)
	}
	if err := env.svc.Logout(ctx, ""); err != nil {
		t.Fatalf("empty session id errored: %v", err)
	}
}

func TestRevokeOtherSessions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	var keep *Session
	for i := 0; i < 3; i++ {
		_ = env.store.InTx(ctx, func(tx Store) error {
			var err error
			keep, err = env.svc.newSession(ctx, tx, user.ID)
			return err
		})
	}

	n, err := env.svc.RevokeOtherSessions(ctx, user.ID, keep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("revoked %d sessions, want 2", n)
	}
	count, err := env.svc.SessionCount(ctx, user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count %d, want 1", count)
	}
	if _, err := env.svc.LookupSession(ctx, keep.ID); err != nil {
		t.Fatalf("kept session gone: %v", err)
	}
}
