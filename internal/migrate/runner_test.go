package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func sampleTime(t *testing.T) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, "2026-08-01T12:00:00Z")
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func expectLedgers(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestApplySkipsRecordedFiles(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	writeFile(t, dir, "001_users.up.sql", "create table users (id text);")
	writeFile(t, dir, "002_sessions.up.sql", "-- sessions; the ledger table\ncreate table sessions (id text);\ncreate index sessions_idx on sessions (id);")

	expectLedgers(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table sessions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create index sessions_idx").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("insert into schema_migrations").WithArgs("002_sessions.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runner := New(db, dir, "")
	n, err := runner.Apply(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one applied file, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRollbackRunsCompanionDownFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	writeFile(t, dir, "001_users.up.sql", "create table users (id text);")
	writeFile(t, dir, "001_users.down.sql", "drop table users;")

	expectLedgers(mock)
	mock.ExpectQuery("select name, applied_at from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("001_users.up.sql", sampleTime(t)))
	mock.ExpectBegin()
	mock.ExpectExec("drop table users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("delete from schema_migrations").WithArgs("001_users.up.sql").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runner := New(db, dir, "")
	name, err := runner.Rollback(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if name != "001_users.up.sql" {
		t.Fatalf("unexpected rollback target %q", name)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestRollbackRefusesWithoutDownFile(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dir := t.TempDir()
	writeFile(t, dir, "001_users.up.sql", "create table users (id text);")

	expectLedgers(mock)
	mock.ExpectQuery("select name, applied_at from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "applied_at"}).AddRow("001_users.up.sql", sampleTime(t)))

	runner := New(db, dir, "")
	if _, err := runner.Rollback(context.Background()); err == nil {
		t.Fatal("expected an error for the missing down file")
	}
}

func TestSplitSQL(t *testing.T) {
	stmts := splitSQL("insert into t values ('a;b');\n-- trailing; comment\nselect 1")
	if len(stmts) != 2 {
		t.Fatalf("expected two statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "insert into t values ('a;b')" {
		t.Fatalf("literal semicolon split the statement: %q", stmts[0])
	}
}
