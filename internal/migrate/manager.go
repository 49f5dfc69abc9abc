package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"
)

// lockID is the pg_advisory_lock key shared by every learnhub runner.
const lockID int64 = 0x4c48_6d69

const (
	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// ErrNothingToRollback is returned by Down when no migration is recorded.
var ErrNothingToRollback = errors.New("migrate: no applied migrations")

// Entry describes one migration known to the source or the ledger table.
type Entry struct {
	Name      string
	AppliedAt time.Time
	// Orphan marks a recorded migration whose file is gone from the source.
	Orphan bool
}

// Applied reports whether the migration has a ledger row.
func (e Entry) Applied() bool { return !e.AppliedAt.IsZero() }

// Manager runs versioned schema scripts and one-shot seed scripts against
// PostgreSQL. Every script and its ledger row commit in one transaction,
// and runs are serialized across processes with an advisory lock.
type Manager struct {
	db         *sql.DB
	migrations fs.FS
	seeds      fs.FS
	schemaTbl  string
	seedTbl    string
	now        func() time.Time
}

// Option tunes a Manager.
type Option func(*Manager)

// WithMigrationsTable sets the ledger table for schema scripts.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.schemaTbl = name
		}
	}
}

// WithSeedsTable sets the ledger table for seed scripts.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedTbl = name
		}
	}
}

// NewManager returns a Manager over db. A nil source is treated as empty.
func NewManager(db *sql.DB, migrations, seeds fs.FS, opts ...Option) *Manager {
	m := &Manager{
		db:         db,
		migrations: migrations,
		seeds:      seeds,
		schemaTbl:  "schema_migrations",
		seedTbl:    "schema_seeds",
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up applies every pending schema script in name order.
func (m *Manager) Up(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		return m.applyPending(ctx, conn, m.migrations, m.schemaTbl, upSuffix)
	})
}

// Seed applies every seed script not yet recorded.
func (m *Manager) Seed(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		return m.applyPending(ctx, conn, m.seeds, m.seedTbl, ".sql")
	})
}

// Down reverts the most recently applied schema script.
func (m *Manager) Down(ctx context.Context) error {
	return m.locked(ctx, func(conn *sql.Conn) error {
		ledger, err := readLedger(ctx, conn, m.schemaTbl)
		if err != nil {
			return err
		}
		if len(ledger) == 0 {
			return ErrNothingToRollback
		}
		last := ledger[len(ledger)-1]
		undo := strings.TrimSuffix(last.Name, upSuffix) + downSuffix
		script, err := lookup(m.migrations, undo)
		if err != nil {
			return fmt.Errorf("migrate: %s has no %s: %w", last.Name, undo, err)
		}
		forget := fmt.Sprintf(`delete from %s where name = $1`, m.schemaTbl)
		err = runScript(ctx, conn, m.migrations, script, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, forget, last.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate: revert %s: %w", last.Name, err)
		}
		return nil
	})
}

// Status merges the schema scripts in the source with the ledger rows.
// Entries come back in name order; orphans follow the known scripts.
func (m *Manager) Status(ctx context.Context) ([]Entry, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := m.bootstrap(ctx, conn); err != nil {
		return nil, err
	}
	ledger, err := readLedger(ctx, conn, m.schemaTbl)
	if err != nil {
		return nil, err
	}
	scripts, err := list(m.migrations, upSuffix)
	if err != nil {
		return nil, err
	}
	appliedAt := make(map[string]time.Time, len(ledger))
	for _, row := range ledger {
		appliedAt[row.Name] = row.AppliedAt
	}
	out := make([]Entry, 0, len(scripts)+len(ledger))
	for _, s := range scripts {
		out = append(out, Entry{Name: s.name, AppliedAt: appliedAt[s.name]})
		delete(appliedAt, s.name)
	}
	for _, row := range ledger {
		if _, gone := appliedAt[row.Name]; gone {
			out = append(out, Entry{Name: row.Name, AppliedAt: row.AppliedAt, Orphan: true})
		}
	}
	return out, nil
}

func (m *Manager) locked(ctx context.Context, fn func(*sql.Conn) error) (err error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	if _, err := conn.ExecContext(ctx, `select pg_advisory_lock($1)`, lockID); err != nil {
		return fmt.Errorf("migrate: acquire lock: %w", err)
	}
	defer func() {
		// context may already be done; release with a fresh one
		_, uerr := conn.ExecContext(context.WithoutCancel(ctx), `select pg_advisory_unlock($1)`, lockID)
		if err == nil && uerr != nil {
			err = fmt.Errorf("migrate: release lock: %w", uerr)
		}
	}()
	if err := m.bootstrap(ctx, conn); err != nil {
		return err
	}
	return fn(conn)
}

func (m *Manager) bootstrap(ctx context.Context, conn *sql.Conn) error {
	for _, tbl := range []string{m.schemaTbl, m.seedTbl} {
		ddl := fmt.Sprintf(`create table if not exists %s (name text primary key, applied_at timestamptz not null)`, tbl)
		if _, err := conn.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("migrate: create %s: %w", tbl, err)
		}
	}
	return nil
}

func (m *Manager) applyPending(ctx context.Context, conn *sql.Conn, src fs.FS, tbl, suffix string) error {
	ledger, err := readLedger(ctx, conn, tbl)
	if err != nil {
		return err
	}
	done := make(map[string]struct{}, len(ledger))
	for _, row := range ledger {
		done[row.Name] = struct{}{}
	}
	scripts, err := list(src, suffix)
	if err != nil {
		return err
	}
	record := fmt.Sprintf(`insert into %s (name, applied_at) values ($1, $2)`, tbl)
	for _, s := range scripts {
		if _, ok := done[s.name]; ok {
			continue
		}
		err := runScript(ctx, conn, src, s, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, record, s.name, m.now())
			return err
		})
		if err != nil {
			return fmt.Errorf("migrate: apply %s: %w", s.name, err)
		}
	}
	return nil
}

func readLedger(ctx context.Context, conn *sql.Conn, tbl string) ([]Entry, error) {
	rows, err := conn.QueryContext(ctx, fmt.Sprintf(`select name, applied_at from %s order by applied_at, name`, tbl))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Name, &e.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func runScript(ctx context.Context, conn *sql.Conn, src fs.FS, s script, after func(*sql.Tx) error) error {
	body, err := fs.ReadFile(src, s.path)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(body)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	if err := after(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type script struct {
	name string
	path string
}

// list returns the files under src ending in suffix, sorted by base name.
func list(src fs.FS, suffix string) ([]script, error) {
	if src == nil {
		return nil, nil
	}
	var out []script
	err := fs.WalkDir(src, ".", func(p string, d fs.DirEntry, err error) error {
		switch {
		case err != nil:
			return err
		case d.IsDir(), !strings.HasSuffix(d.Name(), suffix):
			return nil
		}
		out = append(out, script{name: d.Name(), path: p})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b script) int { return strings.Compare(a.name, b.name) })
	return out, nil
}

func lookup(src fs.FS, name string) (script, error) {
	found, err := list(src, name)
	if err != nil {
		return script{}, err
	}
	for _, s := range found {
		if s.name == name {
			return s, nil
		}
	}
	return script{}, fs.ErrNotExist
}

// splitStatements cuts a script on semicolons outside single-quoted
// literals and drops "--" line comments. Blank statements are skipped.
func splitStatements(body string) []string {
	var (
		out     []string
		buf     strings.Builder
		quoted  bool
		comment bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(buf.String()); stmt != "" {
			out = append(out, stmt)
		}
		buf.Reset()
	}
	runes := []rune(body)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case comment:
			if r == '\n' {
				comment = false
				buf.WriteRune(r)
			}
		case !quoted && r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			comment = true
			i++
		case r == '\'':
			quoted = !quoted
			buf.WriteRune(r)
		case r == ';' && !quoted:
			flush()
		default:
			buf.WriteRune(r)
		}
	}
	flush()
	return out
}
