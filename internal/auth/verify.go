package auth

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"crewbase.org/internal/audit"
	"crewbase.org/internal/obs"

	"github.com/google/uuid"
)

// Query parameter names shared with the verify page.
const (
	CodeParam       = "code"
	TypeParam       = "type"
	TargetParam     = "target"
	RedirectToParam = "redirectTo"
	InvitationParam = "invitationId"
)

// Challenge is the outcome of issuing a one-time code. RedirectTo points at
// the code-entry page; VerifyURL is the same URL with the code embedded for
// magic-link delivery. The raw code lives only here, never in storage.
type Challenge struct {
	OTP        string
	RedirectTo string
	VerifyURL  string
}

// CreateChallenge generates a fresh secret and code for (typ, target),
// persisting the secret-bearing record. A previous record under the same
// key is replaced, never duplicated. periodSeconds <= 0 selects the default
// ten-minute validity.
func (s *Service) CreateChallenge(ctx context.Context, typ VerificationType, target string, periodSeconds int, redirectTo string) (*Challenge, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: verification type %q", ErrInvalidInput, typ)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: verification target is required", ErrInvalidInput)
	}

	cfg := s.otpConfig
	if periodSeconds > 0 {
		cfg.Period = periodSeconds
	}
	now := s.now()
	key, err := GenerateOTP(cfg, now)
	if err != nil {
		return nil, err
	}

	record := &Verification{
		ID:        uuid.NewString(),
		Type:      typ,
		Target:    target,
		Secret:    key.Secret,
		Algorithm: key.Algorithm,
		Digits:    key.Digits,
		Period:    key.Period,
		Charset:   key.Charset,
		ExpiresAt: now.Add(time.Duration(key.Period) * time.Second),
		CreatedAt: now,
	}
	if err := s.store.Verifications().Upsert(ctx, record); err != nil {
		return nil, err
	}

	redirect := s.verifyURL(typ, target, redirectTo)
	magic := s.verifyURL(typ, target, redirectTo)
	q := magic.Query()
	q.Set(CodeParam, key.OTP)
	magic.RawQuery = q.Encode()

	_ = audit.LogEvent(ctx, "verification.challenge.created", map[string]any{
		"type":   string(typ),
		"target": target,
	})

	return &Challenge{
		OTP:        key.OTP,
		RedirectTo: redirect.String(),
		VerifyURL:  magic.String(),
	}, nil
}

// ValidateCode checks a submitted code against the live record for
// (typ, target). Absent records return ErrNotFound; records past their
// expiry are deleted and return ErrExpired; a wrong code returns
// ErrInvalidCredential. The record is not consumed here — deletion on
// success is the caller's call.
func (s *Service) ValidateCode(ctx context.Context, code string, typ VerificationType, target string) error {
	record, err := s.store.Verifications().FindLatest(ctx, typ, target)
	if err != nil {
		return err
	}

	if !record.ExpiresAt.IsZero() && record.ExpiresAt.Before(s.now()) {
		if err := s.store.Verifications().Delete(ctx, typ, target); err != nil {
			return err
		}
		return ErrExpired
	}

	ok, err := VerifyOTP(code, record, s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredential
	}
	return nil
}

// VerifyRequest carries a code submission plus the cookie-carried state the
// transport extracted for it.
type VerifyRequest struct {
	Type       VerificationType
	Target     string
	Code       string
	RedirectTo string

	// Pending is the parked unverified-session context, set during a
	// two-factor login.
	Pending *PendingVerification
	// SessionUserID is the authenticated user behind the submitting
	// client, empty for anonymous submissions.
	SessionUserID string
	// NewEmail is the address stashed when a change-email challenge was
	// issued; it must come back on the same client.
	NewEmail string
}

// VerifyResult tells the transport what to do after a successful code
// submission.
type VerifyResult struct {
	RedirectTo string

	// Session is the promoted session after two-factor login.
	Session  *Session
	Remember bool
	// VerifiedAt is stamped into the auth cookie when the flow proves
	// two-factor possession.
	VerifiedAt time.Time

	// OnboardingEmail is the address cleared for account creation.
	OnboardingEmail string
	// ResetUsername identifies the account allowed to set a new password.
	ResetUsername string
	// User is the updated user after an email change.
	User *User
}

type verifyHandler func(ctx context.Context, req *VerifyRequest) (*VerifyResult, error)

func (s *Service) verifyHandlers() map[VerificationType]verifyHandler {
	return map[VerificationType]verifyHandler{
		VerificationOnboarding:      s.finishOnboardingVerification,
		VerificationResetPassword:   s.finishResetPasswordVerification,
		VerificationChangeEmail:     s.finishChangeEmailVerification,
		VerificationTwoFactor:       s.finishTwoFactorLogin,
		VerificationTwoFactorVerify: s.finishReverification,
	}
}

// FinishVerification validates the submitted code and dispatches to the
// completion handler for the verification type. Single-use types consume
// their record before the handler runs; the two-factor enablement record
// survives because it is the "2FA on" marker itself.
func (s *Service) FinishVerification(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if req == nil || !req.Type.Valid() {
		return nil, fmt.Errorf("%w: verification type", ErrInvalidInput)
	}
	handler, ok := s.verifyHandlers()[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: verification type %q", ErrInvalidInput, req.Type)
	}

	if err := s.ValidateCode(ctx, req.Code, req.Type, req.Target); err != nil {
		return nil, err
	}

	result, err := handler(ctx, req)
	if err != nil {
		return nil, err
	}
	obs.AuthVerifications.WithLabelValues(string(req.Type)).Inc()
	_ = audit.LogEvent(ctx, "verification.completed", map[string]any{
		"type":   string(req.Type),
		"target": req.Target,
	})
	return result, nil
}

func (s *Service) finishOnboardingVerification(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if err := s.store.Verifications().Delete(ctx, req.Type, req.Target); err != nil {
		return nil, err
	}
	return &VerifyResult{
		OnboardingEmail: req.Target,
		RedirectTo:      "/onboarding",
	}, nil
}

func (s *Service) finishResetPasswordVerification(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if err := s.store.Verifications().Delete(ctx, req.Type, req.Target); err != nil {
		return nil, err
	}
	user, err := s.store.Users().FindByUsernameOrEmail(ctx, req.Target)
	if err != nil {
		// An unknown target reads exactly like a wrong code.
		return nil, ErrInvalidCredential
	}
	return &VerifyResult{
		ResetUsername: user.Username,
		RedirectTo:    "/reset-password",
	}, nil
}

func (s *Service) finishChangeEmailVerification(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if req.NewEmail == "" {
		return nil, fmt.Errorf("%w: the code must be submitted from the device that requested the change", ErrInvalidInput)
	}
	if err := s.store.Verifications().Delete(ctx, req.Type, req.Target); err != nil {
		return nil, err
	}

	previous, err := s.store.Users().FindByID(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users().UpdateEmail(ctx, req.Target, req.NewEmail)
	if err != nil {
		return nil, err
	}

	// Tell the old address after the switch.
	s.send(ctx, previous.Email, "email_change_notice", map[string]string{
		"userId":      user.ID,
		"productName": s.productName,
	})

	redirect := req.RedirectTo
	if redirect == "" {
		redirect = "/app"
	}
	return &VerifyResult{User: user, RedirectTo: redirect}, nil
}

// finishTwoFactorLogin promotes the parked session into a real login. The
// 2fa record is the enabled marker and stays. Promotion requires the code
// to have been checked against the parked session's own user; a code for
// any other target never unlocks somebody else's session.
func (s *Service) finishTwoFactorLogin(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	result := &VerifyResult{
		RedirectTo: safeRedirect(req.RedirectTo),
		VerifiedAt: s.now(),
	}
	if req.Pending == nil {
		return result, nil
	}

	session, err := s.LookupSession(ctx, req.Pending.UnverifiedSessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != req.Target {
		return nil, ErrInvalidCredential
	}
	result.Session = session
	result.Remember = req.Pending.Remember
	return result, nil
}

// finishReverification closes a requireRecentVerification round trip. The
// fresh 2fa-verify challenge is single use and only counts for the user
// who is actually signed in on the submitting client.
func (s *Service) finishReverification(ctx context.Context, req *VerifyRequest) (*VerifyResult, error) {
	if req.SessionUserID == "" || req.SessionUserID != req.Target {
		return nil, ErrInvalidCredential
	}
	if err := s.store.Verifications().Delete(ctx, req.Type, req.Target); err != nil {
		return nil, err
	}
	return &VerifyResult{
		RedirectTo: safeRedirect(req.RedirectTo),
		VerifiedAt: s.now(),
	}, nil
}

func (s *Service) verifyURL(typ VerificationType, target, redirectTo string) *url.URL {
	u, _ := url.Parse(s.baseURL + "/verify")
	q := u.Query()
	q.Set(TypeParam, string(typ))
	q.Set(TargetParam, target)
	if redirectTo != "" {
		q.Set(RedirectToParam, redirectTo)
	}
	u.RawQuery = q.Encode()
	return u
}

// safeRedirect confines redirect targets to local paths so a crafted
// redirectTo cannot send the user off-site.
func safeRedirect(to string) string {
	if to == "" || to[0] != '/' || (len(to) > 1 && to[1] == '/') {
		return "/"
	}
	return to
}

func (s *Service) send(ctx context.Context, to, template string, data map[string]string) {
	if err := s.notifier.Send(ctx, to, template, data); err != nil {
		_ = audit.LogEvent(ctx, "notify.failed", map[string]any{
			"template": template,
			"error":    err.Error(),
		})
	}
}
