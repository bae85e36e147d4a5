package auth

import (
	"context"
	"errors"
	"testing"
)

func seedConnection(t *testing.T, env *testEnv, userID, provider, providerID string) *Connection {
	t.Helper()
	conn := &Connection{
		ID:           "conn-" + providerID,
		UserID:       userID,
		ProviderName: provider,
		ProviderID:   providerID,
		CreatedAt:    env.clock.Now(),
	}
	if err := env.store.Connections().Create(context.Background(), conn); err != nil {
		t.Fatal(err)
	}
	return conn
}

func TestCallbackAlreadyLinked(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")
	seedConnection(t, env, user.ID, "github", "gh-1")

	result, err := env.svc.HandleProviderCallback(context.Background(), "github",
		&ExternalProfile{ID: "gh-1"}, user.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != CallbackAlreadyLinked {
		t.Fatalf("kind %q", result.Kind)
	}
}

func TestCallbackLinkedElsewhere(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")
	other := env.seedUser(t, "other@example.com", "other", "pw-123456")
	seedConnection(t, env, other.ID, "github", "gh-1")

	result, err := env.svc.HandleProviderCallback(context.Background(), "github",
		&ExternalProfile{ID: "gh-1"}, user.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != CallbackLinkedElsewhere {
		t.Fatalf("kind %q", result.Kind)
	}
	// The foreign link is untouched.
	conn, err := env.store.Connections().FindByProvider(context.Background(), "github", "gh-1")
	if err != nil || conn.UserID != other.ID {
		t.Fatalf("link changed hands: %+v, %v", conn, err)
	}
}

func TestCallbackLinksNewIdentity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	result, err := env.svc.HandleProviderCallback(ctx, "github",
		&ExternalProfile{ID: "gh-1", Username: "jo-gh"}, user.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != CallbackLinked {
		t.Fatalf("kind %q", result.Kind)
	}
	conn, err := env.store.Connections().FindByProvider(ctx, "github", "gh-1")
	if err != nil {
		t.Fatal(err)
	}
	if conn.UserID != user.ID || conn.DisplayName != "jo-gh" {
		t.Fatalf("unexpected connection: %+v", conn)
	}
}

func TestCallbackLogsInByExistingLink(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")
	seedConnection(t, env, user.ID, "github", "gh-1")

	result, err := env.svc.HandleProviderCallback(context.Background(), "github",
		&ExternalProfile{ID: "gh-1"}, "", "/app")
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != CallbackLoggedIn {
		t.Fatalf("kind %q", result.Kind)
	}
	if result.Login == nil || result.Login.Session.UserID != user.ID {
		t.Fatalf("no session for the linked user: %+v", result.Login)
	}
}

func TestCallbackLogsInByEmailMatchAndLinks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	result, err := env.svc.HandleProviderCallback(ctx, "github",
		&ExternalProfile{ID: "gh-1", Email: "JO@example.com"}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != CallbackLoggedIn {
		t.Fatalf("kind %q", result.Kind)
	}
	// The identity is linked for next time.
	conn, err := env.store.Connections().FindByProvider(ctx, "github", "gh-1")
	if err != nil || conn.UserID != user.ID {
		t.Fatalf("link not created: %v", err)
	}
}

func TestCallbackFallsThroughToOnboarding(t *testing.T) {
	env := newTestEnv(t)
	profile := &ExternalProfile{ID: "gh-9", Email: "stranger@example.com", Username: "stranger"}

	result, err := env.svc.HandleProviderCallback(context.Background(), "github", profile, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Kind != CallbackOnboarding {
		t.Fatalf("kind %q", result.Kind)
	}
	if result.Profile == nil || result.Profile.ID != "gh-9" {
		t.Fatalf("profile not carried: %+v", result.Profile)
	}
	if result.RedirectTo != "/onboarding/github" {
		t.Fatalf("redirect %q", result.RedirectTo)
	}
}

func TestCallbackRequiresProfile(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.HandleProviderCallback(context.Background(), "github", nil, "", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v", err)
	}
}

func TestCallbackLoginRespectsTwoFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")
	seedConnection(t, env, user.ID, "github", "gh-1")
	enrollTwoFactor(t, env, user.ID)

	result, err := env.svc.HandleProviderCallback(ctx, "github", &ExternalProfile{ID: "gh-1"}, "", "")
	if err != nil {
		t.Fatal(err)
	}
	if result.Login == nil || result.Login.Pending == nil {
		t.Fatalf("provider login bypassed two-factor: %+v", result.Login)
	}
}

func TestDeleteConnectionRefusesLockout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Account with no password and a single link: deletion would lock it out.
	outcome, err := env.svc.SignupWithConnection(ctx, SignupParams{
		Email:    "jo@example.com",
		Username: "jo",
	}, "github", "gh-1")
	if err != nil {
		t.Fatal(err)
	}
	userID := outcome.Session.UserID
	conns, err := env.svc.ListConnections(ctx, userID)
	if err != nil || len(conns) != 1 {
		t.Fatalf("connections: %v, %v", conns, err)
	}

	if err := env.svc.DeleteConnection(ctx, userID, conns[0].ID); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("lockout allowed: %v", err)
	}

	// With a second link the first becomes deletable.
	seedConnection(t, env, userID, "gitlab", "gl-1")
	ok, err := env.svc.CanDeleteConnection(ctx, userID)
	if err != nil || !ok {
		t.Fatalf("expected deletable: %v, %v", ok, err)
	}
	if err := env.svc.DeleteConnection(ctx, userID, conns[0].ID); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteConnectionAllowedWithPassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "jo@example.com", "jo", "pw-123456")
	conn := seedConnection(t, env, user.ID, "github", "gh-1")

	if err := env.svc.DeleteConnection(ctx, user.ID, conn.ID); err != nil {
		t.Fatal(err)
	}
}
