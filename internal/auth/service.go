package auth

import (
	"errors"
	"net/url"
	"time"

	"crewbase.org/internal/notify"
)

// Service implements the authentication and session lifecycle core: one-time
// code verification, session issuance, the two-factor state machine, the
// credential verifiers and permission resolution. It is constructed once at
// process start and safe for concurrent use.
type Service struct {
	store     Store
	notifier  notify.Notifier
	providers map[string]Provider
	passkeys  PasskeyVerifier
	cookies   *CookieCodec

	baseURL     string
	productName string
	otpConfig   OTPConfig
	now         func() time.Time
}

// Option configures Service behavior.
type Option func(*Service) error

// WithNotifier sets the notification sink for verification and account
// change emails.
func WithNotifier(n notify.Notifier) Option {
	return func(s *Service) error {
		if n == nil {
			return errors.New("auth: notifier is nil")
		}
		s.notifier = n
		return nil
	}
}

// WithProviders installs the external identity providers. The table is
// fixed at construction; there is no runtime registration.
func WithProviders(providers ...Provider) Option {
	return func(s *Service) error {
		for _, p := range providers {
			if p == nil || p.Name() == "" {
				return errors.New("auth: invalid provider")
			}
			s.providers[p.Name()] = p
		}
		return nil
	}
}

// WithPasskeyVerifier sets the WebAuthn attestation/assertion verifier.
func WithPasskeyVerifier(v PasskeyVerifier) Option {
	return func(s *Service) error {
		if v == nil {
			return errors.New("auth: passkey verifier is nil")
		}
		s.passkeys = v
		return nil
	}
}

// WithCookieSecret configures the signing key for cookie-carried state.
func WithCookieSecret(secret string) Option {
	return func(s *Service) error {
		codec, err := NewCookieCodec(secret)
		if err != nil {
			return err
		}
		s.cookies = codec
		return nil
	}
}

// WithBaseURL sets the public origin used when building verify and magic
// link URLs.
func WithBaseURL(base string) Option {
	return func(s *Service) error {
		u, err := url.Parse(base)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("auth: base url must be absolute")
		}
		s.baseURL = u.Scheme + "://" + u.Host
		return nil
	}
}

// WithProductName sets the display name passed to notification templates.
func WithProductName(name string) Option {
	return func(s *Service) error {
		s.productName = name
		return nil
	}
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) error {
		if now == nil {
			return errors.New("auth: clock is nil")
		}
		s.now = now
		return nil
	}
}

// NewService builds the core around a Store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	s := &Service{
		store:       store,
		notifier:    notify.Discard{},
		providers:   make(map[string]Provider),
		baseURL:     "http://localhost:8080",
		productName: "Crewbase",
		otpConfig:   DefaultOTPConfig(),
		now:         time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.cookies == nil {
		return nil, errors.New("auth: cookie secret is required")
	}
	return s, nil
}

// Cookies exposes the signed-state codec to the transport layer.
func (s *Service) Cookies() *CookieCodec { return s.cookies }

// Store exposes the persistence layer for read paths the service does not
// wrap itself.
func (s *Service) Store() Store { return s.store }

// BaseURL returns the configured public origin.
func (s *Service) BaseURL() string { return s.baseURL }

// Now returns the service's current time, honoring a test clock.
func (s *Service) Now() time.Time { return s.now() }

// Provider returns the configured provider by name.
func (s *Service) Provider(name string) (Provider, bool) {
	p, ok := s.providers[name]
	return p, ok
}
