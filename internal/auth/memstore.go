package auth

import (
	"context"
	"sync"
)

// InMemory is a map-backed Store for tests and local tooling. InTx runs
// the function directly against the same maps, so writes are not rolled
// back on error.
type InMemory struct {
	mu            sync.Mutex
	users         map[string]*User
	passwords     map[string]string
	orgs          map[string]*Organization
	memberships   map[string]*Membership
	sessions      map[string]*Session
	verifications map[string]*Verification
	connections   map[string]*Connection
	passkeys      map[string]*Passkey
	roleList      []Role
	grants        map[string][]Permission
}

// NewInMemory creates an empty store. Seed the role catalog and grants
// with SeedRoles and Grant before resolving permissions against it.
func NewInMemory() *InMemory {
	return &InMemory{
		users:         make(map[string]*User),
		passwords:     make(map[string]string),
		orgs:          make(map[string]*Organization),
		memberships:   make(map[string]*Membership),
		sessions:      make(map[string]*Session),
		verifications: make(map[string]*Verification),
		connections:   make(map[string]*Connection),
		passkeys:      make(map[string]*Passkey),
		grants:        make(map[string][]Permission),
	}
}

func verificationKey(typ VerificationType, target string) string {
	return string(typ) + "|" + target
}

func (m *InMemory) Users() UserStore                 { return memUsers{m} }
func (m *InMemory) Passwords() PasswordStore         { return memPasswords{m} }
func (m *InMemory) Organizations() OrganizationStore { return memOrgs{m} }
func (m *InMemory) Memberships() MembershipStore     { return memMemberships{m} }
func (m *InMemory) Sessions() SessionStore           { return memSessions{m} }
func (m *InMemory) Verifications() VerificationStore { return memVerifications{m} }
func (m *InMemory) Connections() ConnectionStore     { return memConnections{m} }
func (m *InMemory) Passkeys() PasskeyStore           { return memPasskeys{m} }
func (m *InMemory) Roles() RoleStore                 { return memRoles{m} }
func (m *InMemory) Permissions() PermissionStore     { return memPermissions{m} }

func (m *InMemory) InTx(ctx context.Context, fn func(Store) error) error {
	return fn(m)
}

// SeedRoles replaces the role catalog.
func (m *InMemory) SeedRoles(roles ...Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roleList = append([]Role(nil), roles...)
}

// Grant appends permission rows to a role.
func (m *InMemory) Grant(role string, perms ...Permission) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.grants[role] = append(m.grants[role], perms...)
}

// --- users ---

type memUsers struct{ s *InMemory }

func (u memUsers) Create(ctx context.Context, user *User) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, other := range u.s.users {
		if other.Email == user.Email || other.Username == user.Username {
			return ErrConflict
		}
	}
	cp := *user
	u.s.users[user.ID] = &cp
	return nil
}

func (u memUsers) FindByID(ctx context.Context, id string) (*User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *user
	return &cp, nil
}

func (u memUsers) find(match func(*User) bool) (*User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	for _, user := range u.s.users {
		if match(user) {
			cp := *user
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (u memUsers) FindByEmail(ctx context.Context, email string) (*User, error) {
	return u.find(func(x *User) bool { return x.Email == email })
}

func (u memUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return u.find(func(x *User) bool { return x.Username == username })
}

func (u memUsers) FindByUsernameOrEmail(ctx context.Context, value string) (*User, error) {
	return u.find(func(x *User) bool { return x.Username == value || x.Email == value })
}

func (u memUsers) UpdateEmail(ctx context.Context, id, email string) (*User, error) {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	user, ok := u.s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	for _, other := range u.s.users {
		if other.ID != id && other.Email == email {
			return nil, ErrConflict
		}
	}
	user.Email = email
	cp := *user
	return &cp, nil
}

func (u memUsers) Delete(ctx context.Context, id string) error {
	u.s.mu.Lock()
	defer u.s.mu.Unlock()
	if _, ok := u.s.users[id]; !ok {
		return ErrNotFound
	}
	delete(u.s.users, id)
	delete(u.s.passwords, id)
	for sid, sess := range u.s.sessions {
		if sess.UserID == id {
			delete(u.s.sessions, sid)
		}
	}
	for cid, conn := range u.s.connections {
		if conn.UserID == id {
			delete(u.s.connections, cid)
		}
	}
	for pid, pk := range u.s.passkeys {
		if pk.UserID == id {
			delete(u.s.passkeys, pid)
		}
	}
	for mid, mem := range u.s.memberships {
		if mem.UserID == id {
			delete(u.s.memberships, mid)
		}
	}
	for oid, org := range u.s.orgs {
		if org.PersonalUserID == id {
			delete(u.s.orgs, oid)
			for mid, mem := range u.s.memberships {
				if mem.OrganizationID == oid {
					delete(u.s.memberships, mid)
				}
			}
		}
	}
	return nil
}

// --- passwords ---

type memPasswords struct{ s *InMemory }

func (p memPasswords) Create(ctx context.Context, userID, hash string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.passwords[userID]; ok {
		return ErrConflict
	}
	p.s.passwords[userID] = hash
	return nil
}

func (p memPasswords) FindHash(ctx context.Context, userID string) (string, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	hash, ok := p.s.passwords[userID]
	if !ok {
		return "", ErrNotFound
	}
	return hash, nil
}

func (p memPasswords) SetHash(ctx context.Context, userID, hash string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	p.s.passwords[userID] = hash
	return nil
}

// --- organizations ---

type memOrgs struct{ s *InMemory }

func (o memOrgs) Create(ctx context.Context, org *Organization) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for _, other := range o.s.orgs {
		if other.ShortID == org.ShortID {
			return ErrConflict
		}
	}
	cp := *org
	o.s.orgs[org.ID] = &cp
	return nil
}

func (o memOrgs) FindByID(ctx context.Context, id string) (*Organization, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	org, ok := o.s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (o memOrgs) FindByShortID(ctx context.Context, shortID string) (*Organization, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for _, org := range o.s.orgs {
		if org.ShortID == shortID {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (o memOrgs) FindPersonalByUserID(ctx context.Context, userID string) (*Organization, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	for _, org := range o.s.orgs {
		if org.PersonalUserID == userID {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (o memOrgs) Delete(ctx context.Context, id string) error {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	org, ok := o.s.orgs[id]
	if !ok || org.PersonalUserID != "" {
		return ErrNotFound
	}
	delete(o.s.orgs, id)
	for mid, mem := range o.s.memberships {
		if mem.OrganizationID == id {
			delete(o.s.memberships, mid)
		}
	}
	return nil
}

// --- memberships ---

type memMemberships struct{ s *InMemory }

func copyMembership(m *Membership) *Membership {
	cp := *m
	cp.Roles = append([]string(nil), m.Roles...)
	return &cp
}

func (mm memMemberships) Create(ctx context.Context, m *Membership) error {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	for _, other := range mm.s.memberships {
		if other.OrganizationID == m.OrganizationID && m.UserID != "" && other.UserID == m.UserID {
			return ErrConflict
		}
	}
	mm.s.memberships[m.ID] = copyMembership(m)
	return nil
}

func (mm memMemberships) find(match func(*Membership) bool) (*Membership, error) {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	for _, m := range mm.s.memberships {
		if match(m) {
			return copyMembership(m), nil
		}
	}
	return nil, ErrNotFound
}

func (mm memMemberships) FindByID(ctx context.Context, id string) (*Membership, error) {
	return mm.find(func(m *Membership) bool { return m.ID == id })
}

func (mm memMemberships) FindByInvitationID(ctx context.Context, invitationID string) (*Membership, error) {
	return mm.find(func(m *Membership) bool { return m.InvitationID == invitationID })
}

func (mm memMemberships) FindByUserAndOrgShortID(ctx context.Context, userID, orgShortID string) (*Membership, error) {
	mm.s.mu.Lock()
	var orgID string
	for _, org := range mm.s.orgs {
		if org.ShortID == orgShortID {
			orgID = org.ID
		}
	}
	mm.s.mu.Unlock()
	if orgID == "" {
		return nil, ErrNotFound
	}
	return mm.find(func(m *Membership) bool { return m.UserID == userID && m.OrganizationID == orgID })
}

func (mm memMemberships) FindWithRole(ctx context.Context, userID, organizationID, role string) (*Membership, error) {
	return mm.find(func(m *Membership) bool {
		return m.UserID == userID && m.OrganizationID == organizationID && m.HasRole(role)
	})
}

func (mm memMemberships) FindSuper(ctx context.Context, userID string) (*Membership, error) {
	return mm.find(func(m *Membership) bool { return m.UserID == userID && m.HasRole(RoleSuper) })
}

func (mm memMemberships) ListByOrganization(ctx context.Context, organizationID string) ([]Membership, error) {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	var out []Membership
	for _, m := range mm.s.memberships {
		if m.OrganizationID == organizationID {
			out = append(out, *copyMembership(m))
		}
	}
	return out, nil
}

func (mm memMemberships) ListByUser(ctx context.Context, userID string) ([]Membership, error) {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	var out []Membership
	for _, m := range mm.s.memberships {
		if m.UserID == userID {
			out = append(out, *copyMembership(m))
		}
	}
	return out, nil
}

func (mm memMemberships) SetRoles(ctx context.Context, id string, roles []string) (*Membership, error) {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	m, ok := mm.s.memberships[id]
	if !ok {
		return nil, ErrNotFound
	}
	m.Roles = append([]string(nil), roles...)
	return copyMembership(m), nil
}

func (mm memMemberships) Delete(ctx context.Context, id string) error {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	if _, ok := mm.s.memberships[id]; !ok {
		return ErrNotFound
	}
	delete(mm.s.memberships, id)
	return nil
}

func (mm memMemberships) Claim(ctx context.Context, userID, invitationID string) (*Membership, error) {
	mm.s.mu.Lock()
	defer mm.s.mu.Unlock()
	for _, m := range mm.s.memberships {
		if m.InvitationID == invitationID && m.UserID == "" {
			m.UserID = userID
			return copyMembership(m), nil
		}
	}
	return nil, ErrNotFound
}

// --- sessions ---

type memSessions struct{ s *InMemory }

func (se memSessions) Create(ctx context.Context, sess *Session) error {
	se.s.mu.Lock()
	defer se.s.mu.Unlock()
	cp := *sess
	se.s.sessions[sess.ID] = &cp
	return nil
}

func (se memSessions) FindByID(ctx context.Context, id string) (*Session, error) {
	se.s.mu.Lock()
	defer se.s.mu.Unlock()
	sess, ok := se.s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (se memSessions) Delete(ctx context.Context, id string) error {
	se.s.mu.Lock()
	defer se.s.mu.Unlock()
	if _, ok := se.s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(se.s.sessions, id)
	return nil
}

func (se memSessions) DeleteAllExcept(ctx context.Context, userID, keepID string) (int64, error) {
	se.s.mu.Lock()
	defer se.s.mu.Unlock()
	var n int64
	for id, sess := range se.s.sessions {
		if sess.UserID == userID && id != keepID {
			delete(se.s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (se memSessions) Count(ctx context.Context, userID string) (int64, error) {
	se.s.mu.Lock()
	defer se.s.mu.Unlock()
	var n int64
	for _, sess := range se.s.sessions {
		if sess.UserID == userID {
			n++
		}
	}
	return n, nil
}

// --- verifications ---

type memVerifications struct{ s *InMemory }

func (v memVerifications) Upsert(ctx context.Context, rec *Verification) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	cp := *rec
	v.s.verifications[verificationKey(rec.Type, rec.Target)] = &cp
	return nil
}

func (v memVerifications) FindLatest(ctx context.Context, typ VerificationType, target string) (*Verification, error) {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	rec, ok := v.s.verifications[verificationKey(typ, target)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (v memVerifications) Delete(ctx context.Context, typ VerificationType, target string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	key := verificationKey(typ, target)
	if _, ok := v.s.verifications[key]; !ok {
		return ErrNotFound
	}
	delete(v.s.verifications, key)
	return nil
}

func (v memVerifications) Relabel(ctx context.Context, from, to VerificationType, target string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	fromKey := verificationKey(from, target)
	rec, ok := v.s.verifications[fromKey]
	if !ok {
		return ErrNotFound
	}
	delete(v.s.verifications, fromKey)
	rec.Type = to
	v.s.verifications[verificationKey(to, target)] = rec
	return nil
}

// --- connections ---

type memConnections struct{ s *InMemory }

func (c memConnections) Create(ctx context.Context, conn *Connection) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, other := range c.s.connections {
		if other.ProviderName == conn.ProviderName && other.ProviderID == conn.ProviderID {
			return ErrConflict
		}
	}
	cp := *conn
	c.s.connections[conn.ID] = &cp
	return nil
}

func (c memConnections) FindByProvider(ctx context.Context, providerName, providerID string) (*Connection, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	for _, conn := range c.s.connections {
		if conn.ProviderName == providerName && conn.ProviderID == providerID {
			cp := *conn
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (c memConnections) ListByUser(ctx context.Context, userID string) ([]Connection, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []Connection
	for _, conn := range c.s.connections {
		if conn.UserID == userID {
			out = append(out, *conn)
		}
	}
	return out, nil
}

func (c memConnections) CountByUser(ctx context.Context, userID string) (int64, error) {
	list, _ := c.ListByUser(ctx, userID)
	return int64(len(list)), nil
}

func (c memConnections) Delete(ctx context.Context, id, userID string) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	conn, ok := c.s.connections[id]
	if !ok || conn.UserID != userID {
		return ErrNotFound
	}
	delete(c.s.connections, id)
	return nil
}

// --- passkeys ---

type memPasskeys struct{ s *InMemory }

func (p memPasskeys) Create(ctx context.Context, pk *Passkey) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	if _, ok := p.s.passkeys[pk.ID]; ok {
		return ErrConflict
	}
	cp := *pk
	p.s.passkeys[pk.ID] = &cp
	return nil
}

func (p memPasskeys) FindByID(ctx context.Context, id string) (*Passkey, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pk, ok := p.s.passkeys[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pk
	return &cp, nil
}

func (p memPasskeys) ListByUser(ctx context.Context, userID string) ([]Passkey, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	var out []Passkey
	for _, pk := range p.s.passkeys {
		if pk.UserID == userID {
			out = append(out, *pk)
		}
	}
	return out, nil
}

func (p memPasskeys) SetCounter(ctx context.Context, id string, counter uint32) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pk, ok := p.s.passkeys[id]
	if !ok {
		return ErrNotFound
	}
	pk.Counter = counter
	return nil
}

func (p memPasskeys) Delete(ctx context.Context, id, userID string) error {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	pk, ok := p.s.passkeys[id]
	if !ok || pk.UserID != userID {
		return ErrNotFound
	}
	delete(p.s.passkeys, id)
	return nil
}

// --- roles and permissions ---

type memRoles struct{ s *InMemory }

func (r memRoles) List(ctx context.Context) ([]Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []Role
	for _, role := range r.s.roleList {
		if role.Name != RoleSuper {
			out = append(out, role)
		}
	}
	return out, nil
}

type memPermissions struct{ s *InMemory }

func (p memPermissions) ListByRoles(ctx context.Context, roles []string) ([]Permission, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	seen := make(map[string]bool)
	var out []Permission
	for _, role := range roles {
		for _, perm := range p.s.grants[role] {
			if !seen[perm.ID] {
				seen[perm.ID] = true
				out = append(out, perm)
			}
		}
	}
	return out, nil
}
