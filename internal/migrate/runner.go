package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// Runner walks a directory of versioned schema files and a directory of
// one-shot seed files, recording what ran in ledger tables so reruns are
// no-ops. Schema files come in <version>.up.sql / <version>.down.sql pairs
// and apply in lexical order; name them with a sortable prefix.
type Runner struct {
	db         *sql.DB
	schemaDir  string
	seedDir    string
	ledger     string
	seedLedger string
}

// Option adjusts a Runner.
type Option func(*Runner)

// WithLedgerTables overrides the bookkeeping table names. Empty strings
// leave the defaults in place.
func WithLedgerTables(schema, seeds string) Option {
	return func(r *Runner) {
		if schema != "" {
			r.ledger = schema
		}
		if seeds != "" {
			r.seedLedger = seeds
		}
	}
}

// New builds a Runner over the given schema and seed directories. Either
// directory may be missing; the corresponding command then does nothing.
func New(db *sql.DB, schemaDir, seedDir string, opts ...Option) *Runner {
	r := &Runner{
		db:         db,
		schemaDir:  schemaDir,
		seedDir:    seedDir,
		ledger:     "schema_migrations",
		seedLedger: "schema_seeds",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record is one ledger entry.
type Record struct {
	Name      string
	AppliedAt time.Time
}

// Apply runs every pending up-file in order and reports how many ran.
// Each file executes inside its own transaction together with its ledger
// row, so a failing file leaves the ledger in step with the schema.
func (r *Runner) Apply(ctx context.Context) (int, error) {
	if err := r.ensureLedgers(ctx); err != nil {
		return 0, err
	}
	names, err := listDir(r.schemaDir, upSuffix)
	if err != nil {
		return 0, err
	}
	done, err := r.recorded(ctx, r.ledger)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.runFile(ctx, r.ledger, filepath.Join(r.schemaDir, name), name); err != nil {
			return applied, fmt.Errorf("apply %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}

// Rollback undoes the most recently applied schema file using its
// companion down-file and returns its name.
func (r *Runner) Rollback(ctx context.Context) (string, error) {
	if err := r.ensureLedgers(ctx); err != nil {
		return "", err
	}
	records, err := r.Applied(ctx)
	if err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", errors.New("nothing to roll back")
	}
	last := records[len(records)-1].Name
	down := strings.TrimSuffix(last, upSuffix) + downSuffix
	downPath := filepath.Join(r.schemaDir, down)
	if _, err := os.Stat(downPath); err != nil {
		return "", fmt.Errorf("no companion down file for %s", last)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()
	if err := execFile(ctx, tx, downPath); err != nil {
		return "", fmt.Errorf("roll back %s: %w", last, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`delete from %s where name = $1`, r.ledger), last); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return last, nil
}

// Seed runs every seed file that has not run before and reports how many
// ran. Seeds share the schema files' per-file transaction discipline.
func (r *Runner) Seed(ctx context.Context) (int, error) {
	if err := r.ensureLedgers(ctx); err != nil {
		return 0, err
	}
	names, err := listDir(r.seedDir, ".sql")
	if err != nil {
		return 0, err
	}
	done, err := r.recorded(ctx, r.seedLedger)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, name := range names {
		if done[name] {
			continue
		}
		if err := r.runFile(ctx, r.seedLedger, filepath.Join(r.seedDir, name), name); err != nil {
			return applied, fmt.Errorf("seed %s: %w", name, err)
		}
		applied++
	}
	return applied, nil
}

// Applied returns the schema ledger in the order entries were recorded.
func (r *Runner) Applied(ctx context.Context) ([]Record, error) {
	if err := r.ensureLedgers(ctx); err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s order by applied_at, name`, r.ledger))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.AppliedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Runner) ensureLedgers(ctx context.Context) error {
	for _, table := range []string{r.ledger, r.seedLedger} {
		ddl := fmt.Sprintf(`create table if not exists %s (
			name text primary key,
			applied_at timestamptz not null default now()
		)`, table)
		if _, err := r.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) recorded(ctx context.Context, table string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`select name from %s`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	done := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		done[name] = true
	}
	return done, rows.Err()
}

// runFile executes one SQL file and its ledger row in a single transaction.
func (r *Runner) runFile(ctx context.Context, table, path, name string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := execFile(ctx, tx, path); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`insert into %s (name) values ($1)`, table), name); err != nil {
		return err
	}
	return tx.Commit()
}

func execFile(ctx context.Context, tx *sql.Tx, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for _, stmt := range splitSQL(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// listDir returns the matching file names in a directory, sorted. A
// missing directory reads as empty.
func listDir(dir, suffix string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// splitSQL cuts a script into statements on semicolons, ignoring ones
// inside single-quoted literals and line comments. Dollar quoting is not
// handled; keep function bodies to one file per statement.
func splitSQL(script string) []string {
	var stmts []string
	start := 0
	inLiteral := false
	inComment := false
	for i := 0; i < len(script); i++ {
		c := script[i]
		switch {
		case inComment:
			if c == '\n' {
				inComment = false
			}
		case inLiteral:
			if c == '\'' {
				inLiteral = false
			}
		case c == '\'':
			inLiteral = true
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			inComment = true
		case c == ';':
			if stmt := strings.TrimSpace(script[start:i]); stmt != "" {
				stmts = append(stmts, stmt)
			}
			start = i + 1
		}
	}
	if stmt := strings.TrimSpace(script[start:]); stmt != "" {
		stmts = append(stmts, stmt)
	}
	return stmts
}
