package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crewbase.org/internal/audit"

	"github.com/google/uuid"
)

// ExternalProfile is the normalized identity a provider hands back after a
// successful callback exchange.
type ExternalProfile struct {
	ID       string
	Email    string
	Username string
	Name     string
	ImageURL string
}

// Provider is an external identity source. Implementations wrap one OAuth
// provider; the auth core never sees tokens, only the resolved profile.
type Provider interface {
	Name() string
	AuthorizationURL(state, redirectURI string) string
	HandleCallback(ctx context.Context, code, redirectURI string) (*ExternalProfile, error)
}

// CallbackKind tells the transport which of the callback outcomes applies.
type CallbackKind string

const (
	// The identity was already linked to the calling user.
	CallbackAlreadyLinked CallbackKind = "already-linked"
	// The identity is linked to somebody else; nothing changed.
	CallbackLinkedElsewhere CallbackKind = "linked-elsewhere"
	// The identity was linked to the calling user just now.
	CallbackLinked CallbackKind = "linked"
	// An anonymous caller was logged in via the identity.
	CallbackLoggedIn CallbackKind = "logged-in"
	// Nothing matched; the caller continues to onboarding with the
	// profile prefilled.
	CallbackOnboarding CallbackKind = "onboarding"
)

// CallbackResult is the decision for one provider callback.
type CallbackResult struct {
	Kind       CallbackKind
	RedirectTo string
	Message    string

	// Login is set for CallbackLoggedIn.
	Login *LoginOutcome
	// Profile is set for CallbackOnboarding.
	Profile *ExternalProfile
}

// HandleProviderCallback resolves a provider identity against local state.
// currentUserID is empty for anonymous callers. Precedence, most specific
// first: an existing link to the caller wins, then an existing link to
// anyone (block when logged in, log in when not), then an explicit link
// for a logged-in caller, then an email match, then onboarding.
func (s *Service) HandleProviderCallback(ctx context.Context, provider string, profile *ExternalProfile, currentUserID, redirectTo string) (*CallbackResult, error) {
	if profile == nil || profile.ID == "" {
		return nil, fmt.Errorf("%w: provider profile is required", ErrInvalidInput)
	}

	existing, err := s.store.Connections().FindByProvider(ctx, provider, profile.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	if currentUserID != "" {
		if existing != nil {
			if existing.UserID == currentUserID {
				return &CallbackResult{
					Kind:       CallbackAlreadyLinked,
					RedirectTo: "/settings/connections",
					Message:    fmt.Sprintf("Your %q account is already connected.", provider),
				}, nil
			}
			return &CallbackResult{
				Kind:       CallbackLinkedElsewhere,
				RedirectTo: "/settings/connections",
				Message:    fmt.Sprintf("The %q account you used is already connected to another account.", provider),
			}, nil
		}

		conn := &Connection{
			ID:           uuid.NewString(),
			UserID:       currentUserID,
			ProviderName: provider,
			ProviderID:   profile.ID,
			DisplayName:  profile.Username,
			CreatedAt:    s.now(),
		}
		if err := s.store.Connections().Create(ctx, conn); err != nil {
			return nil, err
		}
		_ = audit.LogEvent(ctx, "auth.connection.linked", map[string]any{"user_id": currentUserID, "provider": provider})
		return &CallbackResult{
			Kind:       CallbackLinked,
			RedirectTo: "/settings/connections",
			Message:    fmt.Sprintf("Your %q account has been connected.", provider),
		}, nil
	}

	if existing != nil {
		return s.loginWithConnection(ctx, existing.UserID, provider, redirectTo)
	}

	if email := strings.ToLower(strings.TrimSpace(profile.Email)); email != "" {
		user, err := s.store.Users().FindByEmail(ctx, email)
		if err == nil {
			conn := &Connection{
				ID:           uuid.NewString(),
				UserID:       user.ID,
				ProviderName: provider,
				ProviderID:   profile.ID,
				DisplayName:  profile.Username,
				CreatedAt:    s.now(),
			}
			if err := s.store.Connections().Create(ctx, conn); err != nil {
				return nil, err
			}
			return s.loginWithConnection(ctx, user.ID, provider, redirectTo)
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	return &CallbackResult{
		Kind:       CallbackOnboarding,
		RedirectTo: "/onboarding/" + provider,
		Profile:    profile,
	}, nil
}

func (s *Service) loginWithConnection(ctx context.Context, userID, provider, redirectTo string) (*CallbackResult, error) {
	var session *Session
	err := s.store.InTx(ctx, func(tx Store) error {
		var err error
		session, err = s.newSession(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"user_id": userID, "provider": provider})

	outcome, err := s.HandleNewSession(ctx, session, true, redirectTo)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{
		Kind:       CallbackLoggedIn,
		RedirectTo: outcome.RedirectTo,
		Login:      outcome,
	}, nil
}

// ListConnections returns the user's provider links.
func (s *Service) ListConnections(ctx context.Context, userID string) ([]Connection, error) {
	return s.store.Connections().ListByUser(ctx, userID)
}

// CanDeleteConnection reports whether removing a link would still leave the
// user a way in: a password, or at least one other link.
func (s *Service) CanDeleteConnection(ctx context.Context, userID string) (bool, error) {
	if _, err := s.store.Passwords().FindHash(ctx, userID); err == nil {
		return true, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	n, err := s.store.Connections().CountByUser(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 1, nil
}

// DeleteConnection removes one of the user's provider links, refusing when
// it is their last credential.
func (s *Service) DeleteConnection(ctx context.Context, userID, connectionID string) error {
	ok, err := s.CanDeleteConnection(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: deleting this connection would lock the account out", ErrInvalidInput)
	}
	if err := s.store.Connections().Delete(ctx, connectionID, userID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.connection.deleted", map[string]any{"user_id": userID})
	return nil
}
