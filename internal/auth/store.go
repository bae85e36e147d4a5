package auth

import "context"

// Store describes the persistence operations required by the identity core.
// A Store obtained inside InTx shares one transaction across every accessor;
// InTx on such a handle reuses the ambient transaction instead of opening a
// nested one.
type Store interface {
	Users() UserStore
	Passwords() PasswordStore
	Organizations() OrganizationStore
	Memberships() MembershipStore
	Sessions() SessionStore
	Verifications() VerificationStore
	Connections() ConnectionStore
	Passkeys() PasskeyStore
	Roles() RoleStore
	Permissions() PermissionStore

	// InTx runs fn with a transaction-scoped Store. It commits when fn
	// returns nil and rolls back every write otherwise.
	InTx(ctx context.Context, fn func(Store) error) error
}

// UserStore manages user identities.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByUsernameOrEmail(ctx context.Context, value string) (*User, error)
	UpdateEmail(ctx context.Context, id, email string) (*User, error)
	Delete(ctx context.Context, id string) error
}

// PasswordStore manages the one password hash row per user.
type PasswordStore interface {
	Create(ctx context.Context, userID, hash string) error
	FindHash(ctx context.Context, userID string) (string, error)
	SetHash(ctx context.Context, userID, hash string) error
}

// OrganizationStore manages tenant containers.
type OrganizationStore interface {
	Create(ctx context.Context, o *Organization) error
	FindByID(ctx context.Context, id string) (*Organization, error)
	FindByShortID(ctx context.Context, shortID string) (*Organization, error)
	FindPersonalByUserID(ctx context.Context, userID string) (*Organization, error)
	Delete(ctx context.Context, id string) error
}

// MembershipStore manages the user/organization join rows.
type MembershipStore interface {
	Create(ctx context.Context, m *Membership) error
	FindByID(ctx context.Context, id string) (*Membership, error)
	FindByInvitationID(ctx context.Context, invitationID string) (*Membership, error)
	FindByUserAndOrgShortID(ctx context.Context, userID, orgShortID string) (*Membership, error)
	FindWithRole(ctx context.Context, userID, organizationID, role string) (*Membership, error)
	// FindSuper returns any membership holding the super role for the user,
	// regardless of organization.
	FindSuper(ctx context.Context, userID string) (*Membership, error)
	ListByOrganization(ctx context.Context, organizationID string) ([]Membership, error)
	ListByUser(ctx context.Context, userID string) ([]Membership, error)
	SetRoles(ctx context.Context, id string, roles []string) (*Membership, error)
	Delete(ctx context.Context, id string) error
	// Claim binds an invited membership to a user. The update applies only
	// while the row's user id is still unset, so exactly one of two racing
	// claims can succeed; the loser gets ErrNotFound.
	Claim(ctx context.Context, userID, invitationID string) (*Membership, error)
}

// SessionStore manages authenticated sessions.
type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// DeleteAllExcept removes every session for the user other than keepID
	// and reports how many rows went away.
	DeleteAllExcept(ctx context.Context, userID, keepID string) (int64, error)
	Count(ctx context.Context, userID string) (int64, error)
}

// VerificationStore manages one-time-code records keyed by (type, target).
type VerificationStore interface {
	// Upsert inserts the record or, when a row for (type, target) already
	// exists, replaces its secret, algorithm, digits, period, charset and
	// expiry in place. At most one live row per key either way.
	Upsert(ctx context.Context, v *Verification) error
	FindLatest(ctx context.Context, typ VerificationType, target string) (*Verification, error)
	Delete(ctx context.Context, typ VerificationType, target string) error
	// Relabel atomically rewrites the type column of the (from, target) row.
	Relabel(ctx context.Context, from, to VerificationType, target string) error
}

// ConnectionStore manages external identity provider links.
type ConnectionStore interface {
	Create(ctx context.Context, c *Connection) error
	FindByProvider(ctx context.Context, providerName, providerID string) (*Connection, error)
	ListByUser(ctx context.Context, userID string) ([]Connection, error)
	CountByUser(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

// PasskeyStore manages WebAuthn credentials.
type PasskeyStore interface {
	Create(ctx context.Context, p *Passkey) error
	FindByID(ctx context.Context, id string) (*Passkey, error)
	ListByUser(ctx context.Context, userID string) ([]Passkey, error)
	// SetCounter overwrites the stored use counter with the verifier-reported
	// value. Always a direct keyed write, never read-modify-write.
	SetCounter(ctx context.Context, id string, counter uint32) error
	Delete(ctx context.Context, id, userID string) error
}

// RoleStore reads the role catalog.
type RoleStore interface {
	// List returns roles in display order, excluding the hidden super role.
	List(ctx context.Context) ([]Role, error)
}

// PermissionStore reads the permission grants.
type PermissionStore interface {
	// ListByRoles returns the deduplicated permission rows granted to any of
	// the given roles.
	ListByRoles(ctx context.Context, roles []string) ([]Permission, error)
}
