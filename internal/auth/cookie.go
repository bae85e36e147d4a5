package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const cookieIssuer = "crewbase"

// Token purposes. A token minted for one purpose never decodes under
// another.
const (
	purposeAuth    = "auth"
	purposePending = "pending-2fa"
)

// Stash TTLs. Pending covers a two-factor code round trip; value stashes
// cover a single verification flow.
const (
	pendingTokenTTL = 10 * time.Minute
	valueTokenTTL   = 15 * time.Minute
)

// ErrInvalidToken indicates a cookie token failed validation.
var ErrInvalidToken = errors.New("invalid token")

// AuthState is what the signed auth cookie carries: which session the
// client holds and when it last proved two-factor possession.
type AuthState struct {
	SessionID  string
	VerifiedAt *time.Time
}

// PendingVerification parks a session that passed the password check but
// still owes a two-factor code. The session exists in storage; this state
// is the only claim the client has on it.
type PendingVerification struct {
	UnverifiedSessionID string
	Remember            bool
}

type cookieClaims struct {
	Purpose             string           `json:"purpose"`
	SessionID           string           `json:"sid,omitempty"`
	VerifiedAt          *jwt.NumericDate `json:"verifiedAt,omitempty"`
	UnverifiedSessionID string           `json:"usid,omitempty"`
	Remember            bool             `json:"remember,omitempty"`
	Value               string           `json:"value,omitempty"`
	jwt.RegisteredClaims
}

// CookieCodec signs and validates the HS256 tokens stored in cookies.
// It holds no per-request state and is safe for concurrent use.
type CookieCodec struct {
	secret []byte
	now    func() time.Time
}

// NewCookieCodec builds a codec over the given signing secret.
func NewCookieCodec(secret string) (*CookieCodec, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("cookie secret is not configured")
	}
	return &CookieCodec{secret: []byte(secret), now: func() time.Time { return time.Now().UTC() }}, nil
}

// EncodeAuth mints the auth cookie token for a logged-in session. The token
// lives as long as the session can; the cookie's own Max-Age decides
// whether it persists past the browser session.
func (c *CookieCodec) EncodeAuth(state AuthState) (string, error) {
	if strings.TrimSpace(state.SessionID) == "" {
		return "", errors.New("session id is required")
	}
	claims := cookieClaims{
		Purpose:   purposeAuth,
		SessionID: state.SessionID,
	}
	if state.VerifiedAt != nil {
		claims.VerifiedAt = jwt.NewNumericDate(state.VerifiedAt.UTC())
	}
	return c.sign(claims, SessionTTL)
}

// DecodeAuth validates an auth cookie token and returns its state.
func (c *CookieCodec) DecodeAuth(token string) (*AuthState, error) {
	claims, err := c.parse(token, purposeAuth)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, ErrInvalidToken
	}
	state := &AuthState{SessionID: claims.SessionID}
	if claims.VerifiedAt != nil {
		t := claims.VerifiedAt.Time
		state.VerifiedAt = &t
	}
	return state, nil
}

// EncodePending mints the short-lived token that carries a parked
// two-factor login between the password check and the code submission.
func (c *CookieCodec) EncodePending(p PendingVerification) (string, error) {
	if strings.TrimSpace(p.UnverifiedSessionID) == "" {
		return "", errors.New("unverified session id is required")
	}
	return c.sign(cookieClaims{
		Purpose:             purposePending,
		UnverifiedSessionID: p.UnverifiedSessionID,
		Remember:            p.Remember,
	}, pendingTokenTTL)
}

// DecodePending validates a pending token. Expired or malformed tokens
// return ErrInvalidToken; the caller treats that as "no pending login".
func (c *CookieCodec) DecodePending(token string) (*PendingVerification, error) {
	claims, err := c.parse(token, purposePending)
	if err != nil {
		return nil, err
	}
	if claims.UnverifiedSessionID == "" {
		return nil, ErrInvalidToken
	}
	return &PendingVerification{
		UnverifiedSessionID: claims.UnverifiedSessionID,
		Remember:            claims.Remember,
	}, nil
}

// EncodeValue stashes a single string under a caller-chosen purpose, for
// flow state that must survive a redirect but never live server-side:
// the onboarding email, the reset-password username, the pending new
// email address.
func (c *CookieCodec) EncodeValue(purpose, value string) (string, error) {
	purpose = strings.TrimSpace(purpose)
	if purpose == "" || purpose == purposeAuth || purpose == purposePending {
		return "", fmt.Errorf("invalid stash purpose %q", purpose)
	}
	if value == "" {
		return "", errors.New("stash value is required")
	}
	return c.sign(cookieClaims{Purpose: purpose, Value: value}, valueTokenTTL)
}

// DecodeValue returns the value stashed under purpose.
func (c *CookieCodec) DecodeValue(purpose, token string) (string, error) {
	claims, err := c.parse(token, purpose)
	if err != nil {
		return "", err
	}
	if claims.Value == "" {
		return "", ErrInvalidToken
	}
	return claims.Value, nil
}

func (c *CookieCodec) sign(claims cookieClaims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *CookieCodec) parse(token, purpose string) (*cookieClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &cookieClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now), jwt.WithIssuer(cookieIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*cookieClaims)
	if !ok || !parsed.Valid || claims.Purpose != purpose {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
