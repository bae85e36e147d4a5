package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"crewbase.org/internal/auth"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	return NewWithDB(db), mock, func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unmet expectations: %v", err)
		}
		db.Close()
	}
}

var membershipRowColumns = []string{
	"id", "organization_id", "user_id", "invited_by_id",
	"invitation_id", "invite_email", "roles", "created_at", "updated_at",
}

func membershipRow(id, orgID, userID, invitationID, roles string) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(membershipRowColumns).
		AddRow(id, orgID, userID, "", invitationID, "", roles, now, now)
}

func TestClaimBindsOnlyUnclaimedRows(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(`update memberships set user_id = \$1.*where invitation_id = \$2 and user_id is null`).
		WithArgs("user-1", "inv-1").
		WillReturnRows(membershipRow("m-1", "org-1", "user-1", "inv-1", "viewer"))

	m, err := store.Memberships().Claim(context.Background(), "user-1", "inv-1")
	if err != nil {
		t.Fatal(err)
	}
	if m.UserID != "user-1" || len(m.Roles) != 1 || m.Roles[0] != "viewer" {
		t.Fatalf("unexpected membership: %+v", m)
	}
}

func TestClaimLoserGetsNotFound(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(`update memberships set user_id = \$1`).
		WithArgs("user-2", "inv-1").
		WillReturnRows(sqlmock.NewRows(membershipRowColumns))

	if _, err := store.Memberships().Claim(context.Background(), "user-2", "inv-1"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestMembershipRolesTravelAsArray(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Now()
	mock.ExpectExec(`insert into memberships`).
		WithArgs("m-1", "org-1", "user-1", "", "", "", "admin,editor", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Memberships().Create(context.Background(), &auth.Membership{
		ID:             "m-1",
		OrganizationID: "org-1",
		UserID:         "user-1",
		Roles:          []string{"admin", "editor"},
		CreatedAt:      now,
	})
	if err != nil {
		t.Fatal(err)
	}

	mock.ExpectQuery(`select .* from memberships where id = \$1`).
		WithArgs("m-1").
		WillReturnRows(membershipRow("m-1", "org-1", "user-1", "", "admin,editor"))

	m, err := store.Memberships().FindByID(context.Background(), "m-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Roles) != 2 || m.Roles[0] != "admin" || m.Roles[1] != "editor" {
		t.Fatalf("roles %v", m.Roles)
	}
}

func TestUniqueViolationReadsAsConflict(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`insert into users`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_email_key"})

	err := store.Users().Create(context.Background(), &auth.User{ID: "u-1", Email: "jo@example.com", Username: "jo"})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
}

func TestForeignKeyViolationReadsAsNotFound(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`insert into sessions`).
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "sessions_user_id_fkey"})

	err := store.Sessions().Create(context.Background(), &auth.Session{ID: "s-1", UserID: "ghost"})
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestVerificationUpsertKeyedByTypeAndTarget(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Now()
	mock.ExpectExec(`insert into verifications .*on conflict \(type, target\) do update`).
		WithArgs("v-1", "onboarding", "jo@example.com", "SECRET", "SHA-256", 6, 600, "0123456789",
			sqlmock.AnyArg(), now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Verifications().Upsert(context.Background(), &auth.Verification{
		ID:        "v-1",
		Type:      auth.VerificationOnboarding,
		Target:    "jo@example.com",
		Secret:    "SECRET",
		Algorithm: "SHA-256",
		Digits:    6,
		Period:    600,
		Charset:   "0123456789",
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestVerificationNullExpiry(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Now()
	// A marker record has no expiry; the column must go in as NULL.
	mock.ExpectExec(`insert into verifications`).
		WithArgs("v-2", "2fa", "user-1", "SECRET", "SHA-1", 6, 30, "0123456789",
			sql.NullTime{}, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Verifications().Upsert(context.Background(), &auth.Verification{
		ID:        "v-2",
		Type:      auth.VerificationTwoFactor,
		Target:    "user-1",
		Secret:    "SECRET",
		Algorithm: "SHA-1",
		Digits:    6,
		Period:    30,
		Charset:   "0123456789",
		CreatedAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestVerificationRelabel(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`update verifications set type = \$2 where type = \$1 and target = \$3`).
		WithArgs("2fa-verify", "2fa", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Verifications().Relabel(context.Background(),
		auth.VerificationTwoFactorVerify, auth.VerificationTwoFactor, "user-1"); err != nil {
		t.Fatal(err)
	}

	mock.ExpectExec(`update verifications set type`).
		WithArgs("2fa-verify", "2fa", "user-2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Verifications().Relabel(context.Background(),
		auth.VerificationTwoFactorVerify, auth.VerificationTwoFactor, "user-2"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteAllExceptReportsCount(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectExec(`delete from sessions where user_id = \$1 and id <> \$2`).
		WithArgs("user-1", "keep").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := store.Sessions().DeleteAllExcept(context.Background(), "user-1", "keep")
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("got %d, want 3", n)
	}
}

func TestListByRolesJoinsGrantTable(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectQuery(`select distinct p.id, p.action, p.entity, coalesce\(p.access, ''\).*join permission_roles`).
		WithArgs("admin,editor").
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "entity", "access"}).
			AddRow("p-1", "read", "member", "").
			AddRow("p-2", "update", "member", "own"))

	perms, err := store.Permissions().ListByRoles(context.Background(), []string{"admin", "editor"})
	if err != nil {
		t.Fatal(err)
	}
	if len(perms) != 2 {
		t.Fatalf("got %d permissions", len(perms))
	}
	if perms[1].Access != "own" {
		t.Fatalf("access %q", perms[1].Access)
	}
}

func TestListByRolesEmptyInputSkipsQuery(t *testing.T) {
	store, _, done := newMock(t)
	defer done()

	perms, err := store.Permissions().ListByRoles(context.Background(), nil)
	if err != nil || perms != nil {
		t.Fatalf("got %v, %v", perms, err)
	}
}

func TestInTxCommitsOnSuccess(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`insert into sessions`).
		WithArgs("s-1", "user-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InTx(context.Background(), func(tx auth.Store) error {
		return tx.Sessions().Create(context.Background(), &auth.Session{
			ID: "s-1", UserID: "user-1", ExpirationDate: now.Add(time.Hour), CreatedAt: now,
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	boom := errors.New("boom")
	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.InTx(context.Background(), func(tx auth.Store) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestInTxIsReentrant(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec(`delete from sessions where id = \$1`).
		WithArgs("s-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	// The inner InTx must reuse the outer transaction, not open a second one.
	err := store.InTx(context.Background(), func(tx auth.Store) error {
		return tx.InTx(context.Background(), func(inner auth.Store) error {
			return inner.Sessions().Delete(context.Background(), "s-1")
		})
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestDeleteOrganizationSparesPersonal(t *testing.T) {
	store, mock, done := newMock(t)
	defer done()

	// The personal guard lives in the SQL; a personal org matches no rows.
	mock.ExpectExec(`delete from organizations where id = \$1 and personal_user_id is null`).
		WithArgs("org-personal").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Organizations().Delete(context.Background(), "org-personal"); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
