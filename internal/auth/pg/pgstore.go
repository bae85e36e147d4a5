// Package pg implements auth.Store on PostgreSQL via database/sql over the
// pgx driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"crewbase.org/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// querier is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// every accessor below works identically inside and outside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

var _ auth.Store = (*Store)(nil)

// Open connects to Postgres and returns a ready Store.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	s := &Store{db: db}
	s.q = db
	return s, nil
}

// NewWithDB wraps an existing handle. Used by tests running over sqlmock.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// InTx runs fn inside a transaction. A Store already bound to a
// transaction reuses it, so nested InTx calls share one commit point.
func (s *Store) InTx(ctx context.Context, fn func(auth.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	child := &Store{db: s.db, q: tx, tx: tx}
	if err := fn(child); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) Users() auth.UserStore                 { return users{s} }
func (s *Store) Passwords() auth.PasswordStore         { return passwords{s} }
func (s *Store) Organizations() auth.OrganizationStore { return organizations{s} }
func (s *Store) Memberships() auth.MembershipStore     { return memberships{s} }
func (s *Store) Sessions() auth.SessionStore           { return sessions{s} }
func (s *Store) Verifications() auth.VerificationStore { return verifications{s} }
func (s *Store) Connections() auth.ConnectionStore     { return connections{s} }
func (s *Store) Passkeys() auth.PasskeyStore           { return passkeys{s} }
func (s *Store) Roles() auth.RoleStore                 { return roles{s} }
func (s *Store) Permissions() auth.PermissionStore     { return permissions{s} }

// --- users ---

type users struct{ s *Store }

func (u users) Create(ctx context.Context, user *auth.User) error {
	_, err := u.s.q.ExecContext(ctx, `
		insert into users (id, email, username, name, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $5)
	`, user.ID, user.Email, user.Username, user.Name, user.CreatedAt)
	return translateErr(err)
}

const userColumns = `id, email, username, name, created_at, updated_at`

func scanUser(row *sql.Row) (*auth.User, error) {
	var user auth.User
	err := row.Scan(&user.ID, &user.Email, &user.Username, &user.Name, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (u users) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return scanUser(u.s.q.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (u users) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return scanUser(u.s.q.QueryRowContext(ctx, `select `+userColumns+` from users where email = $1`, email))
}

func (u users) FindByUsername(ctx context.Context, username string) (*auth.User, error) {
	return scanUser(u.s.q.QueryRowContext(ctx, `select `+userColumns+` from users where username = $1`, username))
}

func (u users) FindByUsernameOrEmail(ctx context.Context, value string) (*auth.User, error) {
	return scanUser(u.s.q.QueryRowContext(ctx, `
		select `+userColumns+` from users where username = $1 or email = $1
	`, value))
}

func (u users) UpdateEmail(ctx context.Context, id, email string) (*auth.User, error) {
	row := u.s.q.QueryRowContext(ctx, `
		update users set email = $2, updated_at = now()
		where id = $1
		returning `+userColumns+`
	`, id, email)
	user, err := scanUser(row)
	if err != nil {
		return nil, translateErr(err)
	}
	return user, nil
}

func (u users) Delete(ctx context.Context, id string) error {
	res, err := u.s.q.ExecContext(ctx, `delete from users where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- passwords ---

type passwords struct{ s *Store }

func (p passwords) Create(ctx context.Context, userID, hash string) error {
	_, err := p.s.q.ExecContext(ctx, `
		insert into passwords (user_id, hash) values ($1, $2)
	`, userID, hash)
	return translateErr(err)
}

func (p passwords) FindHash(ctx context.Context, userID string) (string, error) {
	var hash string
	err := p.s.q.QueryRowContext(ctx, `select hash from passwords where user_id = $1`, userID).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", auth.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (p passwords) SetHash(ctx context.Context, userID, hash string) error {
	_, err := p.s.q.ExecContext(ctx, `
		insert into passwords (user_id, hash)
		values ($1, $2)
		on conflict (user_id) do update set hash = excluded.hash
	`, userID, hash)
	return err
}

// --- organizations ---

type organizations struct{ s *Store }

const orgColumns = `id, short_id, name, description, personal_user_id, created_at, updated_at`

func scanOrg(row *sql.Row) (*auth.Organization, error) {
	var (
		org      auth.Organization
		personal sql.NullString
	)
	err := row.Scan(&org.ID, &org.ShortID, &org.Name, &org.Description, &personal, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	org.PersonalUserID = personal.String
	return &org, nil
}

func (o organizations) Create(ctx context.Context, org *auth.Organization) error {
	_, err := o.s.q.ExecContext(ctx, `
		insert into organizations (id, short_id, name, description, personal_user_id, created_at, updated_at)
		values ($1, $2, $3, $4, nullif($5, ''), $6, $6)
	`, org.ID, org.ShortID, org.Name, org.Description, org.PersonalUserID, org.CreatedAt)
	return translateErr(err)
}

func (o organizations) FindByID(ctx context.Context, id string) (*auth.Organization, error) {
	return scanOrg(o.s.q.QueryRowContext(ctx, `select `+orgColumns+` from organizations where id = $1`, id))
}

func (o organizations) FindByShortID(ctx context.Context, shortID string) (*auth.Organization, error) {
	return scanOrg(o.s.q.QueryRowContext(ctx, `select `+orgColumns+` from organizations where short_id = $1`, shortID))
}

func (o organizations) FindPersonalByUserID(ctx context.Context, userID string) (*auth.Organization, error) {
	return scanOrg(o.s.q.QueryRowContext(ctx, `select `+orgColumns+` from organizations where personal_user_id = $1`, userID))
}

func (o organizations) Delete(ctx context.Context, id string) error {
	res, err := o.s.q.ExecContext(ctx, `
		delete from organizations where id = $1 and personal_user_id is null
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- memberships ---

type memberships struct{ s *Store }

// Roles travel as a comma-joined string so plain database/sql can scan them
// without an array-aware driver type.
const membershipColumns = `id, organization_id, coalesce(user_id, ''), coalesce(invited_by_id, ''),
	coalesce(invitation_id, ''), coalesce(invite_email, ''), array_to_string(roles, ','), created_at, updated_at`

func scanMembership(row *sql.Row) (*auth.Membership, error) {
	var (
		m        auth.Membership
		rolesCSV string
	)
	err := row.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.InvitedByID,
		&m.InvitationID, &m.InviteEmail, &rolesCSV, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Roles = splitRoles(rolesCSV)
	return &m, nil
}

func (m memberships) Create(ctx context.Context, mem *auth.Membership) error {
	_, err := m.s.q.ExecContext(ctx, `
		insert into memberships (id, organization_id, user_id, invited_by_id, invitation_id, invite_email, roles, created_at, updated_at)
		values ($1, $2, nullif($3, ''), nullif($4, ''), nullif($5, ''), nullif($6, ''), string_to_array($7, ','), $8, $8)
	`, mem.ID, mem.OrganizationID, mem.UserID, mem.InvitedByID, mem.InvitationID, mem.InviteEmail, joinRoles(mem.Roles), mem.CreatedAt)
	return translateErr(err)
}

func (m memberships) FindByID(ctx context.Context, id string) (*auth.Membership, error) {
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		select `+membershipColumns+` from memberships where id = $1
	`, id))
}

func (m memberships) FindByInvitationID(ctx context.Context, invitationID string) (*auth.Membership, error) {
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		select `+membershipColumns+` from memberships where invitation_id = $1
	`, invitationID))
}

func (m memberships) FindByUserAndOrgShortID(ctx context.Context, userID, orgShortID string) (*auth.Membership, error) {
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		select m.id, m.organization_id, coalesce(m.user_id, ''), coalesce(m.invited_by_id, ''),
			coalesce(m.invitation_id, ''), coalesce(m.invite_email, ''), array_to_string(m.roles, ','), m.created_at, m.updated_at
		from memberships m
		join organizations o on o.id = m.organization_id
		where m.user_id = $1 and o.short_id = $2
	`, userID, orgShortID))
}

func (m memberships) FindWithRole(ctx context.Context, userID, organizationID, role string) (*auth.Membership, error) {
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		select `+membershipColumns+` from memberships
		where user_id = $1 and organization_id = $2 and $3 = any(roles)
	`, userID, organizationID, role))
}

func (m memberships) FindSuper(ctx context.Context, userID string) (*auth.Membership, error) {
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		select `+membershipColumns+` from memberships
		where user_id = $1 and $2 = any(roles)
		limit 1
	`, userID, auth.RoleSuper))
}

func (m memberships) listQuery(ctx context.Context, query string, arg any) ([]auth.Membership, error) {
	rows, err := m.s.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Membership
	for rows.Next() {
		var (
			mem      auth.Membership
			rolesCSV string
		)
		if err := rows.Scan(&mem.ID, &mem.OrganizationID, &mem.UserID, &mem.InvitedByID,
			&mem.InvitationID, &mem.InviteEmail, &rolesCSV, &mem.CreatedAt, &mem.UpdatedAt); err != nil {
			return nil, err
		}
		mem.Roles = splitRoles(rolesCSV)
		result = append(result, mem)
	}
	return result, rows.Err()
}

func (m memberships) ListByOrganization(ctx context.Context, organizationID string) ([]auth.Membership, error) {
	return m.listQuery(ctx, `
		select `+membershipColumns+` from memberships
		where organization_id = $1
		order by created_at
	`, organizationID)
}

func (m memberships) ListByUser(ctx context.Context, userID string) ([]auth.Membership, error) {
	return m.listQuery(ctx, `
		select `+membershipColumns+` from memberships
		where user_id = $1
		order by created_at
	`, userID)
}

func (m memberships) SetRoles(ctx context.Context, id string, newRoles []string) (*auth.Membership, error) {
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		update memberships set roles = string_to_array($2, ','), updated_at = now()
		where id = $1
		returning `+membershipColumns+`
	`, id, joinRoles(newRoles)))
}

func (m memberships) Delete(ctx context.Context, id string) error {
	res, err := m.s.q.ExecContext(ctx, `delete from memberships where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (m memberships) Claim(ctx context.Context, userID, invitationID string) (*auth.Membership, error) {
	// The user_id guard makes racing claims settle on exactly one winner.
	return scanMembership(m.s.q.QueryRowContext(ctx, `
		update memberships set user_id = $1, updated_at = now()
		where invitation_id = $2 and user_id is null
		returning `+membershipColumns+`
	`, userID, invitationID))
}

// --- sessions ---

type sessions struct{ s *Store }

func (se sessions) Create(ctx context.Context, session *auth.Session) error {
	_, err := se.s.q.ExecContext(ctx, `
		insert into sessions (id, user_id, expiration_date, created_at)
		values ($1, $2, $3, $4)
	`, session.ID, session.UserID, session.ExpirationDate, session.CreatedAt)
	return translateErr(err)
}

func (se sessions) FindByID(ctx context.Context, id string) (*auth.Session, error) {
	var session auth.Session
	err := se.s.q.QueryRowContext(ctx, `
		select id, user_id, expiration_date, created_at from sessions where id = $1
	`, id).Scan(&session.ID, &session.UserID, &session.ExpirationDate, &session.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (se sessions) Delete(ctx context.Context, id string) error {
	res, err := se.s.q.ExecContext(ctx, `delete from sessions where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (se sessions) DeleteAllExcept(ctx context.Context, userID, keepID string) (int64, error) {
	res, err := se.s.q.ExecContext(ctx, `
		delete from sessions where user_id = $1 and id <> $2
	`, userID, keepID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (se sessions) Count(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := se.s.q.QueryRowContext(ctx, `select count(*) from sessions where user_id = $1`, userID).Scan(&n)
	return n, err
}

// --- verifications ---

type verifications struct{ s *Store }

func (v verifications) Upsert(ctx context.Context, rec *auth.Verification) error {
	_, err := v.s.q.ExecContext(ctx, `
		insert into verifications (id, type, target, secret, algorithm, digits, period, charset, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		on conflict (type, target) do update set
			secret = excluded.secret,
			algorithm = excluded.algorithm,
			digits = excluded.digits,
			period = excluded.period,
			charset = excluded.charset,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`, rec.ID, string(rec.Type), rec.Target, rec.Secret, rec.Algorithm, rec.Digits, rec.Period, rec.Charset,
		nullTime(rec.ExpiresAt), rec.CreatedAt)
	return err
}

func (v verifications) FindLatest(ctx context.Context, typ auth.VerificationType, target string) (*auth.Verification, error) {
	var (
		rec     auth.Verification
		typeRaw string
		expires sql.NullTime
	)
	err := v.s.q.QueryRowContext(ctx, `
		select id, type, target, secret, algorithm, digits, period, charset, expires_at, created_at
		from verifications
		where type = $1 and target = $2
		order by created_at desc
		limit 1
	`, string(typ), target).Scan(&rec.ID, &typeRaw, &rec.Target, &rec.Secret, &rec.Algorithm,
		&rec.Digits, &rec.Period, &rec.Charset, &expires, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.Type = auth.VerificationType(typeRaw)
	if expires.Valid {
		rec.ExpiresAt = expires.Time
	}
	return &rec, nil
}

func (v verifications) Delete(ctx context.Context, typ auth.VerificationType, target string) error {
	res, err := v.s.q.ExecContext(ctx, `
		delete from verifications where type = $1 and target = $2
	`, string(typ), target)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (v verifications) Relabel(ctx context.Context, from, to auth.VerificationType, target string) error {
	res, err := v.s.q.ExecContext(ctx, `
		update verifications set type = $2 where type = $1 and target = $3
	`, string(from), string(to), target)
	if err != nil {
		return translateErr(err)
	}
	return requireAffected(res)
}

// --- connections ---

type connections struct{ s *Store }

func (c connections) Create(ctx context.Context, conn *auth.Connection) error {
	_, err := c.s.q.ExecContext(ctx, `
		insert into connections (id, provider_name, provider_id, user_id, display_name, created_at)
		values ($1, $2, $3, $4, $5, $6)
	`, conn.ID, conn.ProviderName, conn.ProviderID, conn.UserID, conn.DisplayName, conn.CreatedAt)
	return translateErr(err)
}

func (c connections) FindByProvider(ctx context.Context, providerName, providerID string) (*auth.Connection, error) {
	var conn auth.Connection
	err := c.s.q.QueryRowContext(ctx, `
		select id, provider_name, provider_id, user_id, display_name, created_at
		from connections
		where provider_name = $1 and provider_id = $2
	`, providerName, providerID).Scan(&conn.ID, &conn.ProviderName, &conn.ProviderID, &conn.UserID, &conn.DisplayName, &conn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}

func (c connections) ListByUser(ctx context.Context, userID string) ([]auth.Connection, error) {
	rows, err := c.s.q.QueryContext(ctx, `
		select id, provider_name, provider_id, user_id, display_name, created_at
		from connections
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Connection
	for rows.Next() {
		var conn auth.Connection
		if err := rows.Scan(&conn.ID, &conn.ProviderName, &conn.ProviderID, &conn.UserID, &conn.DisplayName, &conn.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, conn)
	}
	return result, rows.Err()
}

func (c connections) CountByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := c.s.q.QueryRowContext(ctx, `select count(*) from connections where user_id = $1`, userID).Scan(&n)
	return n, err
}

func (c connections) Delete(ctx context.Context, id, userID string) error {
	res, err := c.s.q.ExecContext(ctx, `
		delete from connections where id = $1 and user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- passkeys ---

type passkeys struct{ s *Store }

func (p passkeys) Create(ctx context.Context, pk *auth.Passkey) error {
	_, err := p.s.q.ExecContext(ctx, `
		insert into passkeys (id, aaguid, public_key, user_id, webauthn_user_id, counter, device_type, backed_up, transports, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, pk.ID, pk.AAGUID, pk.PublicKey, pk.UserID, pk.WebAuthnUserID, int64(pk.Counter), pk.DeviceType, pk.BackedUp, pk.Transports, pk.CreatedAt)
	return translateErr(err)
}

func (p passkeys) FindByID(ctx context.Context, id string) (*auth.Passkey, error) {
	var (
		pk      auth.Passkey
		counter int64
	)
	err := p.s.q.QueryRowContext(ctx, `
		select id, aaguid, public_key, user_id, webauthn_user_id, counter, device_type, backed_up, transports, created_at
		from passkeys where id = $1
	`, id).Scan(&pk.ID, &pk.AAGUID, &pk.PublicKey, &pk.UserID, &pk.WebAuthnUserID, &counter,
		&pk.DeviceType, &pk.BackedUp, &pk.Transports, &pk.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	pk.Counter = uint32(counter)
	return &pk, nil
}

func (p passkeys) ListByUser(ctx context.Context, userID string) ([]auth.Passkey, error) {
	rows, err := p.s.q.QueryContext(ctx, `
		select id, aaguid, public_key, user_id, webauthn_user_id, counter, device_type, backed_up, transports, created_at
		from passkeys
		where user_id = $1
		order by created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Passkey
	for rows.Next() {
		var (
			pk      auth.Passkey
			counter int64
		)
		if err := rows.Scan(&pk.ID, &pk.AAGUID, &pk.PublicKey, &pk.UserID, &pk.WebAuthnUserID, &counter,
			&pk.DeviceType, &pk.BackedUp, &pk.Transports, &pk.CreatedAt); err != nil {
			return nil, err
		}
		pk.Counter = uint32(counter)
		result = append(result, pk)
	}
	return result, rows.Err()
}

func (p passkeys) SetCounter(ctx context.Context, id string, counter uint32) error {
	res, err := p.s.q.ExecContext(ctx, `
		update passkeys set counter = $2 where id = $1
	`, id, int64(counter))
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (p passkeys) Delete(ctx context.Context, id, userID string) error {
	res, err := p.s.q.ExecContext(ctx, `
		delete from passkeys where id = $1 and user_id = $2
	`, id, userID)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// --- roles and permissions ---

type roles struct{ s *Store }

func (r roles) List(ctx context.Context) ([]auth.Role, error) {
	rows, err := r.s.q.QueryContext(ctx, `
		select name, description, display_order
		from roles
		where name <> $1
		order by display_order
	`, auth.RoleSuper)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.Name, &role.Description, &role.Order); err != nil {
			return nil, err
		}
		result = append(result, role)
	}
	return result, rows.Err()
}

type permissions struct{ s *Store }

func (p permissions) ListByRoles(ctx context.Context, roleNames []string) ([]auth.Permission, error) {
	if len(roleNames) == 0 {
		return nil, nil
	}
	rows, err := p.s.q.QueryContext(ctx, `
		select distinct p.id, p.action, p.entity, coalesce(p.access, '')
		from permissions p
		join permission_roles pr on pr.permission_id = p.id
		where pr.role_name = any(string_to_array($1, ','))
	`, joinRoles(roleNames))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []auth.Permission
	for rows.Next() {
		var perm auth.Permission
		if err := rows.Scan(&perm.ID, &perm.Action, &perm.Entity, &perm.Access); err != nil {
			return nil, err
		}
		result = append(result, perm)
	}
	return result, rows.Err()
}

// --- helpers ---

func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return auth.ErrConflict
		case pgErrForeignKeyViolation:
			return auth.ErrNotFound
		}
	}
	return err
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func joinRoles(names []string) string { return strings.Join(names, ",") }

func splitRoles(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}
