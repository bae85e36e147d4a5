package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionTTL is the absolute lifetime of a session, fixed at creation.
// There is no sliding renewal; "remember me" only controls the cookie, not
// the row.
const SessionTTL = 30 * 24 * time.Hour

func (s *Service) newSession(ctx context.Context, store Store, userID string) (*Session, error) {
	now := s.now()
	session := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		ExpirationDate: now.Add(SessionTTL),
		CreatedAt:      now,
	}
	if err := store.Sessions().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// LookupSession returns the session for id. An expired session is
// indistinguishable from an absent one.
func (s *Service) LookupSession(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	session, err := s.store.Sessions().FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.now().Before(session.ExpirationDate) {
		return nil, ErrNotFound
	}
	return session, nil
}

// UserForSession resolves the session's user, applying the same expiry
// semantics as LookupSession.
func (s *Service) UserForSession(ctx context.Context, sessionID string) (*User, error) {
	session, err := s.LookupSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.store.Users().FindByID(ctx, session.UserID)
}

// Logout deletes the session row. A missing row is not an error; the
// cookie is gone either way.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	err := s.store.Sessions().Delete(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// RevokeOtherSessions implements "sign out of other devices": every session
// for the user except keepID is removed.
func (s *Service) RevokeOtherSessions(ctx context.Context, userID, keepID string) (int64, error) {
	return s.store.Sessions().DeleteAllExcept(ctx, userID, keepID)
}

// SessionCount reports how many sessions currently exist for the user,
// including the caller's own.
func (s *Service) SessionCount(ctx context.Context, userID string) (int64, error) {
	return s.store.Sessions().Count(ctx, userID)
}
