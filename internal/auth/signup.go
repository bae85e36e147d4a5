package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crewbase.org/internal/audit"
	"crewbase.org/internal/ids"
	"crewbase.org/internal/obs"

	"github.com/google/uuid"
)

const (
	personalOrgName  = "Personal team"
	orgShortIDLength = 6
)

// dummyHash is a syntactically valid encoded hash of nothing in particular.
// Failed lookups verify against it so a missing account costs the same as a
// wrong password.
const dummyHash = "$argon2id$v=19$m=19923,t=2,p=1$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// SignupParams collects everything the onboarding form submits after the
// email challenge cleared.
type SignupParams struct {
	Email        string
	Username     string
	Name         string
	Password     string
	InvitationID string
	Remember     bool
	RedirectTo   string
}

// Signup creates an account with a password credential. The user, their
// personal organization, the admin membership, the optional invitation
// claim, the credential and the first session all land in one transaction;
// a failure anywhere leaves no trace.
func (s *Service) Signup(ctx context.Context, p SignupParams) (*LoginOutcome, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	hash, err := HashPassword(p.Password)
	if err != nil {
		return nil, err
	}

	var session *Session
	err = s.store.InTx(ctx, func(tx Store) error {
		user, err := s.createUserWithOrg(ctx, tx, p)
		if err != nil {
			return err
		}
		if err := tx.Passwords().Create(ctx, user.ID, hash); err != nil {
			return err
		}
		session, err = s.newSession(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	obs.AuthSignups.WithLabelValues("password").Inc()
	_ = audit.LogEvent(ctx, "auth.signup", map[string]any{"user_id": session.UserID, "kind": "password"})
	return s.HandleNewSession(ctx, session, p.Remember, p.RedirectTo)
}

// SignupWithConnection creates an account bound to an external identity
// instead of a password. Used when a provider callback finds no matching
// user and the onboarding flow completes with that identity attached.
func (s *Service) SignupWithConnection(ctx context.Context, p SignupParams, provider, providerID string) (*LoginOutcome, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if provider == "" || providerID == "" {
		return nil, fmt.Errorf("%w: provider identity is required", ErrInvalidInput)
	}

	var session *Session
	err := s.store.InTx(ctx, func(tx Store) error {
		user, err := s.createUserWithOrg(ctx, tx, p)
		if err != nil {
			return err
		}
		conn := &Connection{
			ID:           uuid.NewString(),
			UserID:       user.ID,
			ProviderName: provider,
			ProviderID:   providerID,
			CreatedAt:    s.now(),
		}
		if err := tx.Connections().Create(ctx, conn); err != nil {
			return err
		}
		session, err = s.newSession(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	obs.AuthSignups.WithLabelValues("connection").Inc()
	_ = audit.LogEvent(ctx, "auth.signup", map[string]any{"user_id": session.UserID, "kind": "connection", "provider": provider})
	return s.HandleNewSession(ctx, session, p.Remember, p.RedirectTo)
}

func (s *Service) createUserWithOrg(ctx context.Context, tx Store, p SignupParams) (*User, error) {
	now := s.now()
	user := &User{
		ID:        ids.New(),
		Email:     strings.ToLower(strings.TrimSpace(p.Email)),
		Username:  strings.ToLower(strings.TrimSpace(p.Username)),
		Name:      strings.TrimSpace(p.Name),
		CreatedAt: now,
	}
	if err := tx.Users().Create(ctx, user); err != nil {
		return nil, err
	}

	org := &Organization{
		ID:             ids.New(),
		ShortID:        ids.Short(orgShortIDLength),
		Name:           personalOrgName,
		PersonalUserID: user.ID,
		CreatedAt:      now,
	}
	if err := tx.Organizations().Create(ctx, org); err != nil {
		return nil, err
	}

	membership := &Membership{
		ID:             ids.New(),
		OrganizationID: org.ID,
		UserID:         user.ID,
		Roles:          []string{RoleAdmin},
		CreatedAt:      now,
	}
	if err := tx.Memberships().Create(ctx, membership); err != nil {
		return nil, err
	}

	if p.InvitationID != "" {
		if _, err := tx.Memberships().Claim(ctx, user.ID, p.InvitationID); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return user, nil
}

func (p SignupParams) validate() error {
	if strings.TrimSpace(p.Email) == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(p.Username) == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	return nil
}

// VerifyUserPassword checks a password against the stored credential for a
// username or email. Unknown accounts, accounts without a password and
// wrong passwords are indistinguishable from the outside: all burn a full
// hash computation and return ErrInvalidCredential.
func (s *Service) VerifyUserPassword(ctx context.Context, usernameOrEmail, password string) (*User, error) {
	user, err := s.store.Users().FindByUsernameOrEmail(ctx, strings.ToLower(strings.TrimSpace(usernameOrEmail)))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword(dummyHash, password)
			obs.AuthLoginFailures.Inc()
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	hash, err := s.store.Passwords().FindHash(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			_ = VerifyPassword(dummyHash, password)
			obs.AuthLoginFailures.Inc()
			return nil, ErrInvalidCredential
		}
		return nil, err
	}

	if err := VerifyPassword(hash, password); err != nil {
		obs.AuthLoginFailures.Inc()
		return nil, err
	}
	return user, nil
}

// Login runs the password check and opens a session, claiming an
// invitation on the way in when one is presented.
func (s *Service) Login(ctx context.Context, usernameOrEmail, password, invitationID string, remember bool, redirectTo string) (*LoginOutcome, error) {
	user, err := s.VerifyUserPassword(ctx, usernameOrEmail, password)
	if err != nil {
		return nil, err
	}

	var session *Session
	err = s.store.InTx(ctx, func(tx Store) error {
		if invitationID != "" {
			if _, err := tx.Memberships().Claim(ctx, user.ID, invitationID); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		session, err = s.newSession(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"user_id": user.ID})
	return s.HandleNewSession(ctx, session, remember, redirectTo)
}

// ResetUserPassword replaces the credential for the account the
// reset-password challenge cleared, and revokes every open session so a
// hijacked one does not outlive the reset.
func (s *Service) ResetUserPassword(ctx context.Context, username, newPassword string) error {
	user, err := s.store.Users().FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return err
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Passwords().SetHash(ctx, user.ID, hash); err != nil {
			return err
		}
		if _, err := tx.Sessions().DeleteAllExcept(ctx, user.ID, ""); err != nil {
			return err
		}
		_ = audit.LogEvent(ctx, "auth.password.reset", map[string]any{"user_id": user.ID})
		return nil
	})
}

// RequestOnboarding starts signup for an address: rejects addresses that
// already have an account, then issues the onboarding challenge and mails
// the code and magic link.
func (s *Service) RequestOnboarding(ctx context.Context, email, redirectTo string) (*Challenge, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := s.store.Users().FindByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("%w: a user already exists with this email", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	challenge, err := s.CreateChallenge(ctx, VerificationOnboarding, email, 0, redirectTo)
	if err != nil {
		return nil, err
	}
	s.send(ctx, email, "onboarding_code", map[string]string{
		"code":        challenge.OTP,
		"verifyUrl":   challenge.VerifyURL,
		"productName": s.productName,
	})
	return challenge, nil
}

// RequestPasswordReset issues a reset challenge for an existing account and
// mails the code to its address. Unknown accounts return ErrNotFound; the
// transport decides how much of that to reveal.
func (s *Service) RequestPasswordReset(ctx context.Context, usernameOrEmail string) (*Challenge, error) {
	user, err := s.store.Users().FindByUsernameOrEmail(ctx, strings.ToLower(strings.TrimSpace(usernameOrEmail)))
	if err != nil {
		return nil, err
	}
	challenge, err := s.CreateChallenge(ctx, VerificationResetPassword, user.Username, 0, "")
	if err != nil {
		return nil, err
	}
	s.send(ctx, user.Email, "reset_password_code", map[string]string{
		"code":        challenge.OTP,
		"verifyUrl":   challenge.VerifyURL,
		"productName": s.productName,
	})
	return challenge, nil
}

// RequestEmailChange issues a change-email challenge for the current user,
// delivering the code to the new address to prove the user controls it.
// The challenge target is the user id; the candidate address rides back in
// a client-side stash, so the code only works from the requesting device.
func (s *Service) RequestEmailChange(ctx context.Context, userID, newEmail string) (*Challenge, error) {
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if newEmail == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	if _, err := s.store.Users().FindByEmail(ctx, newEmail); err == nil {
		return nil, fmt.Errorf("%w: this email is already in use", ErrConflict)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	challenge, err := s.CreateChallenge(ctx, VerificationChangeEmail, userID, int((10 * time.Minute).Seconds()), "")
	if err != nil {
		return nil, err
	}
	s.send(ctx, newEmail, "change_email_code", map[string]string{
		"code":        challenge.OTP,
		"productName": s.productName,
	})
	return challenge, nil
}

// DeleteAccount removes the user and everything hanging off them:
// credentials, sessions, connections, passkeys, memberships and the
// personal organization all go via storage-level cascade.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.store.Users().Delete(ctx, userID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.account.deleted", map[string]any{"user_id": userID})
	return nil
}
