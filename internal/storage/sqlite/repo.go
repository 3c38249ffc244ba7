package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"nbaload/internal/schema"
	"nbaload/internal/storage"
)

// Repo implements storage.Repository for SQLite.
//
// Key design points vs Postgres:
//   - SQLite has no COPY protocol. The bulk path is chunked multi-row
//     INSERT statements inside a single transaction, which keeps the
//     all-or-nothing contract.
//   - The fallback path is INSERT OR IGNORE, which skips any row violating
//     a primary key or unique constraint.
//   - There are no namespaces; the configured namespace is ignored.
//   - Timestamps are bound as RFC3339Nano strings for reliable round-trip
//     behavior and easy debugging.
type Repo struct {
	db      *sql.DB
	dialect schema.SQLite
}

var _ storage.Repository = (*Repo)(nil)

func init() {
	storage.Register("sqlite", New)
}

func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	// One writer connection. Concurrent writers on this driver surface as
	// SQLITE_BUSY, and it keeps ":memory:" databases on a single handle.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db}, nil
}

func (r *Repo) Close() { _ = r.db.Close() }

func (r *Repo) Dialect() schema.Dialect { return r.dialect }

// ApplyDDL executes statements in order, stopping at the first failure.
func (r *Repo) ApplyDDL(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: apply ddl: %w", err)
		}
	}
	return nil
}

// maxRowsPerStatement bounds rows per INSERT so the statement stays under
// SQLite's default host parameter limit (999 in older builds).
func maxRowsPerStatement(columns int) int {
	n := 900 / maxInt(1, columns)
	if n < 1 {
		return 1
	}
	return n
}

// BulkCopy inserts all rows inside one transaction, chunking the VALUES
// lists under the parameter limit. Any failure rolls the whole transaction
// back, leaving the table untouched.
func (r *Repo) BulkCopy(ctx context.Context, table string, columns []string, rows [][]any) storage.BulkResult {
	if len(rows) == 0 {
		return storage.BulkOK(0)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.BulkFailed(fmt.Errorf("sqlite: begin bulk tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	var total int64
	step := maxRowsPerStatement(len(columns))
	for start := 0; start < len(rows); start += step {
		end := start + step
		if end > len(rows) {
			end = len(rows)
		}
		q, args := buildBulkInsertSQL(table, columns, rows[start:end])
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return storage.BulkFailed(fmt.Errorf("sqlite: bulk insert into %s: %w", table, err))
		}
		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return storage.BulkFailed(fmt.Errorf("sqlite: commit bulk tx: %w", err))
	}
	return storage.BulkOK(total)
}

// InsertIgnore inserts one row with OR IGNORE semantics. keyColumns is
// unused: OR IGNORE defers to the table's own constraints.
func (r *Repo) InsertIgnore(ctx context.Context, table string, columns []string, row []any, keyColumns []string) (bool, error) {
	_ = keyColumns
	q, args := buildInsertIgnoreSQL(table, columns, row)
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// buildBulkInsertSQL constructs one multi-row INSERT and its args.
func buildBulkInsertSQL(table string, columns []string, rows [][]any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES ")

	args := make([]any, 0, len(rows)*len(columns))
	for i, row := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for j := range columns {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("?")
			args = append(args, normalizeArg(row[j]))
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), args
}

// buildInsertIgnoreSQL constructs the single-row fallback insert.
func buildInsertIgnoreSQL(table string, columns []string, row []any) (string, []any) {
	var b strings.Builder
	b.WriteString("INSERT OR IGNORE INTO ")
	b.WriteString(sqlIdent(table))
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sqlIdent(c))
	}
	b.WriteString(") VALUES (")

	args := make([]any, 0, len(columns))
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("?")
		args = append(args, normalizeArg(row[i]))
	}
	b.WriteString(");")
	return b.String(), args
}

// normalizeArg converts values the driver handles poorly. time.Time becomes
// an RFC3339Nano string so dates survive the TEXT affinity round trip.
func normalizeArg(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return v
}

func sqlIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
