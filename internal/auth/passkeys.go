package auth

import (
	"context"
	"encoding/json"
	"fmt"

	"crewbase.org/internal/audit"
)

// PasskeyCredential is what the verifier extracts from a successful
// attestation response.
type PasskeyCredential struct {
	CredentialID   string
	PublicKey      []byte
	AAGUID         string
	WebAuthnUserID string
	Counter        uint32
	DeviceType     string
	BackedUp       bool
	Transports     string
}

// PasskeyAssertion is what the verifier extracts from a successful login
// assertion.
type PasskeyAssertion struct {
	CredentialID string
	Counter      uint32
}

// PasskeyVerifier performs the WebAuthn ceremonies. The auth core treats
// it as an oracle: it owns challenge generation and signature checking,
// while the core owns persistence and the counter policy.
type PasskeyVerifier interface {
	BeginRegistration(ctx context.Context, user *User) (options json.RawMessage, state string, err error)
	FinishRegistration(ctx context.Context, state string, response json.RawMessage) (*PasskeyCredential, error)
	BeginLogin(ctx context.Context) (options json.RawMessage, state string, err error)
	FinishLogin(ctx context.Context, state string, response json.RawMessage, publicKey []byte) (*PasskeyAssertion, error)
	LookupCredentialID(response json.RawMessage) (string, error)
}

func (s *Service) passkeyVerifier() (PasskeyVerifier, error) {
	if s.passkeys == nil {
		return nil, fmt.Errorf("%w: passkeys are not configured", ErrInvalidInput)
	}
	return s.passkeys, nil
}

// BeginPasskeyRegistration opens a registration ceremony for the user. The
// returned state is opaque and must come back on Finish; transports carry
// it in a signed stash, never in storage.
func (s *Service) BeginPasskeyRegistration(ctx context.Context, userID string) (json.RawMessage, string, error) {
	verifier, err := s.passkeyVerifier()
	if err != nil {
		return nil, "", err
	}
	user, err := s.store.Users().FindByID(ctx, userID)
	if err != nil {
		return nil, "", err
	}
	return verifier.BeginRegistration(ctx, user)
}

// FinishPasskeyRegistration completes the ceremony and stores the
// credential under the user.
func (s *Service) FinishPasskeyRegistration(ctx context.Context, userID, state string, response json.RawMessage) (*Passkey, error) {
	verifier, err := s.passkeyVerifier()
	if err != nil {
		return nil, err
	}
	cred, err := verifier.FinishRegistration(ctx, state, response)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	pk := &Passkey{
		ID:             cred.CredentialID,
		AAGUID:         cred.AAGUID,
		PublicKey:      cred.PublicKey,
		UserID:         userID,
		WebAuthnUserID: cred.WebAuthnUserID,
		Counter:        cred.Counter,
		DeviceType:     cred.DeviceType,
		BackedUp:       cred.BackedUp,
		Transports:     cred.Transports,
		CreatedAt:      s.now(),
	}
	if err := s.store.Passkeys().Create(ctx, pk); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "auth.passkey.registered", map[string]any{"user_id": userID})
	return pk, nil
}

// BeginPasskeyLogin opens a discoverable-credential login ceremony.
func (s *Service) BeginPasskeyLogin(ctx context.Context) (json.RawMessage, string, error) {
	verifier, err := s.passkeyVerifier()
	if err != nil {
		return nil, "", err
	}
	return verifier.BeginLogin(ctx)
}

// FinishPasskeyLogin validates the assertion, applies the signature counter
// policy and opens a session. A counter that fails to move forward reads as
// a cloned credential and the login is refused; the stored counter is only
// overwritten after the assertion clears.
func (s *Service) FinishPasskeyLogin(ctx context.Context, state string, response json.RawMessage, remember bool, redirectTo string) (*LoginOutcome, error) {
	verifier, err := s.passkeyVerifier()
	if err != nil {
		return nil, err
	}

	credentialID, err := verifier.LookupCredentialID(response)
	if err != nil {
		return nil, ErrInvalidCredential
	}
	pk, err := s.store.Passkeys().FindByID(ctx, credentialID)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	assertion, err := verifier.FinishLogin(ctx, state, response, pk.PublicKey)
	if err != nil {
		return nil, ErrInvalidCredential
	}

	// Authenticators without a counter report zero forever; that stays
	// acceptable. Once a counter has moved it must keep moving.
	if (assertion.Counter != 0 || pk.Counter != 0) && assertion.Counter <= pk.Counter {
		_ = audit.LogEvent(ctx, "auth.passkey.counter_regression", map[string]any{
			"user_id":  pk.UserID,
			"stored":   pk.Counter,
			"asserted": assertion.Counter,
		})
		return nil, ErrInvalidCredential
	}

	var session *Session
	err = s.store.InTx(ctx, func(tx Store) error {
		if err := tx.Passkeys().SetCounter(ctx, pk.ID, assertion.Counter); err != nil {
			return err
		}
		var err error
		session, err = s.newSession(ctx, tx, pk.UserID)
		return err
	})
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "auth.login", map[string]any{"user_id": pk.UserID, "method": "passkey"})

	return s.HandleNewSession(ctx, session, remember, redirectTo)
}

// ListPasskeys returns the user's registered credentials.
func (s *Service) ListPasskeys(ctx context.Context, userID string) ([]Passkey, error) {
	return s.store.Passkeys().ListByUser(ctx, userID)
}

// DeletePasskey removes one of the user's credentials. The delete is keyed
// on both ids, so one user cannot delete another's key.
func (s *Service) DeletePasskey(ctx context.Context, userID, passkeyID string) error {
	if err := s.store.Passkeys().Delete(ctx, passkeyID, userID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "auth.passkey.deleted", map[string]any{"user_id": userID})
	return nil
}
