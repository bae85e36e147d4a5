package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCreateChallengeReplacesPrevious(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.svc.CreateChallenge(ctx, VerificationOnboarding, "jo@example.com", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := env.svc.CreateChallenge(ctx, VerificationOnboarding, "jo@example.com", 0, "")
	if err != nil {
		t.Fatal(err)
	}

	// Only the latest code verifies; the earlier secret is gone.
	if err := env.svc.ValidateCode(ctx, second.OTP, VerificationOnboarding, "jo@example.com"); err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
	if first.OTP != second.OTP {
		if err := env.svc.ValidateCode(ctx, first.OTP, VerificationOnboarding, "jo@example.com"); !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("stale code: got %v", err)
		}
	}
}

func TestCreateChallengeRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, err := env.svc.CreateChallenge(ctx, "nonsense", "x", 0, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad type: got %v", err)
	}
	if _, err := env.svc.CreateChallenge(ctx, VerificationOnboarding, "", 0, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty target: got %v", err)
	}
}

func TestValidateCodeExpiredRecordIsDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	challenge, err := env.svc.CreateChallenge(ctx, VerificationOnboarding, "jo@example.com", 60, "")
	if err != nil {
		t.Fatal(err)
	}
	env.clock.Advance(2 * time.Minute)

	if err := env.svc.ValidateCode(ctx, challenge.OTP, VerificationOnboarding, "jo@example.com"); !errors.Is(err, ErrExpired) {
		t.Fatalf("got %v, want ErrExpired", err)
	}
	if _, err := env.store.Verifications().FindLatest(ctx, VerificationOnboarding, "jo@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired record survived: %v", err)
	}
	// A retry now reads as no challenge at all.
	if err := env.svc.ValidateCode(ctx, challenge.OTP, VerificationOnboarding, "jo@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestValidateCodeDoesNotConsume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	challenge, err := env.svc.CreateChallenge(ctx, VerificationOnboarding, "jo@example.com", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := env.svc.ValidateCode(ctx, challenge.OTP, VerificationOnboarding, "jo@example.com"); err != nil {
			t.Fatalf("validation %d: %v", i, err)
		}
	}
}

func TestFinishOnboardingVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	challenge, err := env.svc.CreateChallenge(ctx, VerificationOnboarding, "jo@example.com", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	result, err := env.svc.FinishVerification(ctx, &VerifyRequest{
		Type:   VerificationOnboarding,
		Target: "jo@example.com",
		Code:   challenge.OTP,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.OnboardingEmail != "jo@example.com" || result.RedirectTo != "/onboarding" {
		t.Fatalf("unexpected result: %+v", result)
	}
	// Single use.
	if _, err := env.store.Verifications().FindLatest(ctx, VerificationOnboarding, "jo@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record survived: %v", err)
	}
}

func TestFinishResetPasswordVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "jo@example.com", "jo", "pw-123456")

	challenge, err := env.svc.CreateChallenge(ctx, VerificationResetPassword, "jo", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	result, err := env.svc.FinishVerification(ctx, &VerifyRequest{
		Type:   VerificationResetPassword,
		Target: "jo",
		Code:   challenge.OTP,
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.ResetUsername != "jo" || result.RedirectTo != "/reset-password" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestFinishResetPasswordUnknownTargetReadsAsWrongCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	challenge, err := env.svc.CreateChallenge(ctx, VerificationResetPassword, "ghost", 0, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.svc.FinishVerification(ctx, &VerifyRequest{
		Type:   VerificationResetPassword,
		Target: "ghost",
		Code:   challenge.OTP,
	}); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("got %v, want ErrInvalidCredential", err)
	}
}

func TestFinishChangeEmailVerification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "old@example.com", "jo", "pw-123456")

	challenge, err := env.svc.CreateChallenge(ctx, VerificationChangeEmail, user.ID, 600, "")
	if err != nil {
		t.Fatal(err)
	}

	// Without the stashed address the code is useless.
	if _, err := env.svc.FinishVerification(ctx, &VerifyRequest{
		Type:   VerificationChangeEmail,
		Target: user.ID,
		Code:   challenge.OTP,
	}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing stash: got %v", err)
	}

	result, err := env.svc.FinishVerification(ctx, &VerifyRequest{
		Type:     VerificationChangeEmail,
		Target:   user.ID,
		Code:     challenge.OTP,
		NewEmail: "new@example.com",
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.User == nil || result.User.Email != "new@example.com" {
		t.Fatalf("unexpected result: %+v", result)
	}

	// The old address is told about the switch.
	msg := env.notifier.last(t)
	if msg.To != "old@example.com" || msg.Template != "email_change_notice" {
		t.Fatalf("unexpected mail: %+v", msg)
	}
}

func TestFinishVerificationRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.svc.FinishVerification(context.Background(), &VerifyRequest{Type: "magic"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("got %v", err)
	}
	if _, err := env.svc.FinishVerification(context.Background(), nil); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("nil request: got %v", err)
	}
}

func TestSafeRedirect(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"", "/"},
		{"/app", "/app"},
		{"/app?tab=2", "/app?tab=2"},
		{"//evil.example.com", "/"},
		{"https://evil.example.com", "/"},
		{"app", "/"},
		{"/", "/"},
	}
	for _, tc := range cases {
		if got := safeRedirect(tc.in); got != tc.want {
			t.Fatalf("safeRedirect(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestChallengeURLs(t *testing.T) {
	env := newTestEnv(t, WithBaseURL("https://app.crewbase.org"))
	challenge, err := env.svc.CreateChallenge(context.Background(), VerificationOnboarding, "jo@example.com", 0, "/welcome")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(challenge.RedirectTo, "https://app.crewbase.org/verify?") {
		t.Fatalf("redirect %q", challenge.RedirectTo)
	}
	for _, part := range []string{"type=onboarding", "target=jo%40example.com", "redirectTo=%2Fwelcome"} {
		if !strings.Contains(challenge.RedirectTo, part) {
			t.Fatalf("redirect missing %q: %s", part, challenge.RedirectTo)
		}
	}
	if !strings.Contains(challenge.VerifyURL, "code="+challenge.OTP) {
		t.Fatalf("magic link missing the code: %s", challenge.VerifyURL)
	}
}
