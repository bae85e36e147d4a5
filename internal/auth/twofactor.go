package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"crewbase.org/internal/audit"
	"crewbase.org/internal/obs"

	"github.com/google/uuid"
)

// reverifyWindow is how long an explicit code entry keeps counting as
// "recently verified". The window is anchored at the entry itself and is
// never extended by ordinary activity.
const reverifyWindow = 2 * time.Hour

// LoginOutcome is what a credential check produces once the two-factor
// state machine has had its say. Exactly one of Auth or Pending is set:
// Auth for a live login, Pending when a code is still owed.
type LoginOutcome struct {
	Session    *Session
	Remember   bool
	RedirectTo string

	Auth    *AuthState
	Pending *PendingVerification
}

// HandleNewSession routes a freshly created session through the two-factor
// gate. Accounts without two-factor log straight in; enrolled accounts get
// a parked session and a redirect to the code page, and the session id
// travels only inside the signed pending token.
func (s *Service) HandleNewSession(ctx context.Context, session *Session, remember bool, redirectTo string) (*LoginOutcome, error) {
	enabled, err := s.TwoFactorEnabled(ctx, session.UserID)
	if err != nil {
		return nil, err
	}

	outcome := &LoginOutcome{Session: session, Remember: remember}
	if !enabled {
		outcome.Auth = &AuthState{SessionID: session.ID}
		outcome.RedirectTo = safeRedirect(redirectTo)
		obs.AuthLogins.WithLabelValues("direct").Inc()
		return outcome, nil
	}

	outcome.Pending = &PendingVerification{UnverifiedSessionID: session.ID, Remember: remember}
	u := s.TwoFactorVerifyURL(session.UserID, redirectTo)
	outcome.RedirectTo = u.Path + "?" + u.RawQuery
	obs.AuthLogins.WithLabelValues("two_factor_pending").Inc()
	return outcome, nil
}

// TwoFactorEnabled reports whether the user carries the enabled marker.
func (s *Service) TwoFactorEnabled(ctx context.Context, userID string) (bool, error) {
	_, err := s.store.Verifications().FindLatest(ctx, VerificationTwoFactor, userID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecentlyVerified reports whether the auth state proves a code entry
// inside the reverification window.
func (s *Service) RecentlyVerified(state *AuthState) bool {
	if state == nil || state.VerifiedAt == nil {
		return false
	}
	return s.now().Sub(*state.VerifiedAt) < reverifyWindow
}

// RequireRecentVerification gates a sensitive action. Users without
// two-factor, or with a code entry inside the window, pass with an empty
// redirect. Everyone else gets a fresh single-use challenge delivered to
// their address and the URL of the code page to bounce through.
func (s *Service) RequireRecentVerification(ctx context.Context, userID string, state *AuthState, redirectTo string) (string, error) {
	enabled, err := s.TwoFactorEnabled(ctx, userID)
	if err != nil {
		return "", err
	}
	if !enabled || s.RecentlyVerified(state) {
		return "", nil
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	challenge, err := s.CreateChallenge(ctx, VerificationTwoFactorVerify, userID, 0, redirectTo)
	if err != nil {
		return "", err
	}
	s.send(ctx, user.Email, "reverify_code", map[string]string{
		"code":        challenge.OTP,
		"productName": s.productName,
	})
	_ = audit.LogEvent(ctx, "auth.reverification.required", map[string]any{"user_id": userID})
	return challenge.RedirectTo, nil
}

// TwoFactorSetup is what enrollment hands to the client: the shared secret
// and the otpauth URI an authenticator app can scan.
type TwoFactorSetup struct {
	Secret     string
	OTPAuthURI string
}

// StartTwoFactorEnrollment creates (or replaces) the staging record for a
// user and returns the secret to load into an authenticator. The record is
// deliberately not the enabled marker yet; only a correct code flips it.
// While two-factor is already enabled enrollment is refused: a session
// holder must disable first (behind the reverification gate), so a fresh
// staging secret can never stand in for the authoritative one.
func (s *Service) StartTwoFactorEnrollment(ctx context.Context, userID string) (*TwoFactorSetup, error) {
	enabled, err := s.TwoFactorEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enabled {
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled", ErrConflict)
	}

	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := GenerateOTP(TwoFactorOTPConfig(), s.now())
	if err != nil {
		return nil, err
	}
	record := &Verification{
		ID:        uuid.NewString(),
		Type:      VerificationTwoFactorVerify,
		Target:    userID,
		Secret:    key.Secret,
		Algorithm: key.Algorithm,
		Digits:    key.Digits,
		Period:    key.Period,
		Charset:   key.Charset,
		CreatedAt: s.now(),
		// No expiry: the staging record lives until confirmed or replaced.
	}
	if err := s.store.Verifications().Upsert(ctx, record); err != nil {
		return nil, err
	}

	return &TwoFactorSetup{
		Secret:     key.Secret,
		OTPAuthURI: ProvisionURI(record, user.Email, s.productName),
	}, nil
}

// ConfirmTwoFactorEnrollment checks the first code from the authenticator
// and, on success, relabels the staging record into the enabled marker.
// The secret survives the relabel, so login codes verify against the same
// key the user enrolled with.
func (s *Service) ConfirmTwoFactorEnrollment(ctx context.Context, userID, code string) error {
	if err := s.ValidateCode(ctx, code, VerificationTwoFactorVerify, userID); err != nil {
		return err
	}
	if err := s.store.Verifications().Relabel(ctx, VerificationTwoFactorVerify, VerificationTwoFactor, userID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.two_factor.enabled", map[string]any{"user_id": userID})
	return nil
}

// DisableTwoFactor removes the enabled marker and any staging record.
// Transports must run this behind RequireRecentVerification.
func (s *Service) DisableTwoFactor(ctx context.Context, userID string) error {
	if err := s.store.Verifications().Delete(ctx, VerificationTwoFactor, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := s.store.Verifications().Delete(ctx, VerificationTwoFactorVerify, userID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.two_factor.disabled", map[string]any{"user_id": userID})
	return nil
}

// TwoFactorVerifyURL is where a parked login goes to enter its code.
func (s *Service) TwoFactorVerifyURL(userID, redirectTo string) *url.URL {
	return s.verifyURL(VerificationTwoFactor, userID, redirectTo)
}
