package auth

import "time"

// User is an identity with a unique email and username. Users never carry
// roles directly; roles live on Membership.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Organization is a tenant container. Exactly one organization per user is
// the personal organization (PersonalUserID set), created at signup. It can
// never be deleted and its sole member can never be removed.
type Organization struct {
	ID          string `json:"id"`
	ShortID     string `json:"short_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// PersonalUserID is set when this is the owning user's personal
	// organization, empty otherwise.
	PersonalUserID string    `json:"personal_user_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Membership joins a User to an Organization and carries the ordered role
// names the user holds there. Invited memberships start with an empty UserID
// and a non-empty InvitationID until claimed.
type Membership struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	UserID         string    `json:"user_id,omitempty"`
	InvitedByID    string    `json:"invited_by_id,omitempty"`
	InvitationID   string    `json:"invitation_id,omitempty"`
	InviteEmail    string    `json:"invite_email,omitempty"`
	Roles          []string  `json:"roles"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// HasRole reports whether the membership carries the named role.
func (m Membership) HasRole(name string) bool {
	for _, r := range m.Roles {
		if r == name {
			return true
		}
	}
	return false
}

// Session is an opaque identifier bound to a user with an absolute expiry.
// A session past its ExpirationDate is treated as absent on lookup.
type Session struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	ExpirationDate time.Time `json:"expiration_date"`
	CreatedAt      time.Time `json:"created_at"`
}

// VerificationType enumerates the flows serviced by one-time codes.
type VerificationType string

const (
	VerificationOnboarding    VerificationType = "onboarding"
	VerificationResetPassword VerificationType = "reset-password"
	VerificationChangeEmail   VerificationType = "change-email"
	// VerificationTwoFactor marks two-factor authentication as enabled for
	// its target user and holds the authoritative TOTP secret.
	VerificationTwoFactor VerificationType = "2fa"
	// VerificationTwoFactorVerify holds a candidate TOTP secret during
	// enrollment and backs the re-verification gate. It is relabeled to
	// VerificationTwoFactor once the user proves possession of the secret.
	VerificationTwoFactorVerify VerificationType = "2fa-verify"
)

// Valid reports whether t is one of the closed set of verification types.
func (t VerificationType) Valid() bool {
	switch t {
	case VerificationOnboarding, VerificationResetPassword,
		VerificationChangeEmail, VerificationTwoFactor, VerificationTwoFactorVerify:
		return true
	}
	return false
}

// Verification is a one-time-code record, unique per (type, target).
// The secret stays server-side; the derived code is never persisted.
type Verification struct {
	ID        string           `json:"id"`
	Type      VerificationType `json:"type"`
	Target    string           `json:"target"`
	Secret    string           `json:"-"`
	Algorithm string           `json:"algorithm"`
	Digits    int              `json:"digits"`
	Period    int              `json:"period"`
	Charset   string           `json:"-"`
	ExpiresAt time.Time        `json:"expires_at"`
	CreatedAt time.Time        `json:"created_at"`
}

// Connection links a user to an external identity provider account.
// ProviderID is globally unique.
type Connection struct {
	ID           string    `json:"id"`
	ProviderName string    `json:"provider_name"`
	ProviderID   string    `json:"provider_id"`
	UserID       string    `json:"user_id"`
	DisplayName  string    `json:"display_name,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Passkey is a stored WebAuthn credential. Counter must only ever move
// forward; a non-increasing counter on assertion is a clone signal.
type Passkey struct {
	ID             string    `json:"id"`
	AAGUID         string    `json:"aaguid"`
	PublicKey      []byte    `json:"-"`
	UserID         string    `json:"user_id"`
	WebAuthnUserID string    `json:"webauthn_user_id"`
	Counter        uint32    `json:"counter"`
	DeviceType     string    `json:"device_type,omitempty"`
	BackedUp       bool      `json:"backed_up"`
	Transports     string    `json:"transports,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Role is a named catalog entry ordered for display. The super role is
// hidden from normal listings and grants cross-tenant privileges.
type Role struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Order       int    `json:"order"`
}

// Permission is an (action, entity, access) capability granted to roles
// through the permission_role table.
type Permission struct {
	ID     string `json:"id"`
	Action string `json:"action"`
	Entity string `json:"entity"`
	Access string `json:"access,omitempty"`
}

const (
	// RoleAdmin is the role every organization must retain on at least one
	// bound membership.
	RoleAdmin = "admin"
	// RoleSuper is the hidden superuser role checked independently of any
	// organization.
	RoleSuper = "super"
)
