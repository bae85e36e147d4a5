package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *CookieCodec {
	t.Helper()
	codec, err := NewCookieCodec(testCookieSecret)
	if err != nil {
		t.Fatal(err)
	}
	return codec
}

func TestCookieAuthRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	at := time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC)

	token, err := codec.EncodeAuth(AuthState{SessionID: "sess-1", VerifiedAt: &at})
	if err != nil {
		t.Fatal(err)
	}
	state, err := codec.DecodeAuth(token)
	if err != nil {
		t.Fatal(err)
	}
	if state.SessionID != "sess-1" {
		t.Fatalf("unexpected session id: %s", state.SessionID)
	}
	if state.VerifiedAt == nil || !state.VerifiedAt.Equal(at) {
		t.Fatalf("verified-at did not survive: %v", state.VerifiedAt)
	}
}

func TestCookiePurposeIsolation(t *testing.T) {
	codec := newTestCodec(t)

	pending, err := codec.EncodePending(PendingVerification{UnverifiedSessionID: "sess-2", Remember: true})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.DecodeAuth(pending); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("pending token decoded as auth: %v", err)
	}

	stash, err := codec.EncodeValue("onboarding-email", "jo@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := codec.DecodeValue("reset-username", stash); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stash decoded under a different purpose: %v", err)
	}
	value, err := codec.DecodeValue("onboarding-email", stash)
	if err != nil || value != "jo@example.com" {
		t.Fatalf("stash round trip failed: %q, %v", value, err)
	}
}

func TestCookieValueRejectsReservedPurposes(t *testing.T) {
	codec := newTestCodec(t)
	for _, purpose := range []string{"", purposeAuth, purposePending} {
		if _, err := codec.EncodeValue(purpose, "x"); err == nil {
			t.Fatalf("purpose %q was accepted", purpose)
		}
	}
}

func TestCookieTamperedTokenFails(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.EncodeAuth(AuthState{SessionID: "sess-3"})
	if err != nil {
		t.Fatal(err)
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	forged := parts[0] + "." + parts[1] + "." + strings.Repeat("x", len(parts[2]))
	if _, err := codec.DecodeAuth(forged); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token decoded: %v", err)
	}

	other, err := NewCookieCodec("another-secret-entirely-here-ok!")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := other.DecodeAuth(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token signed with a different key decoded: %v", err)
	}
}

func TestCookiePendingExpires(t *testing.T) {
	codec := newTestCodec(t)
	token, err := codec.EncodePending(PendingVerification{UnverifiedSessionID: "sess-4"})
	if err != nil {
		t.Fatal(err)
	}

	codec.now = func() time.Time { return time.Now().UTC().Add(pendingTokenTTL + time.Minute) }
	if _, err := codec.DecodePending(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired pending token decoded: %v", err)
	}
}

func TestNewCookieCodecRequiresSecret(t *testing.T) {
	if _, err := NewCookieCodec("   "); err == nil {
		t.Fatal("blank secret was accepted")
	}
}
