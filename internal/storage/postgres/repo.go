package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nbaload/internal/schema"
	"nbaload/internal/storage"
)

// Repo implements storage.Repository for Postgres.
//
// The bulk path rides the COPY protocol via pgx CopyFrom: one streaming
// transfer, atomic as a whole. The fallback path is a per-row INSERT with a
// targetless ON CONFLICT DO NOTHING, so any primary key or unique constraint
// on the table makes reruns idempotent.
type Repo struct {
	pool      *pgxpool.Pool
	namespace string
	dialect   schema.Postgres
}

var _ storage.Repository = (*Repo)(nil)

// New opens a pooled connection and validates connectivity. An error here
// is fatal to the run; nothing has been written yet.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, namespace: cfg.Namespace}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) Dialect() schema.Dialect { return r.dialect }

// ApplyDDL executes statements in order, stopping at the first failure.
func (r *Repo) ApplyDDL(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := r.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: apply ddl: %w", err)
		}
	}
	return nil
}

// BulkCopy streams all rows into the table in one COPY operation. COPY is
// atomic: any failure rolls the whole transfer back server-side, so a failed
// result leaves the table untouched.
func (r *Repo) BulkCopy(ctx context.Context, table string, columns []string, rows [][]any) storage.BulkResult {
	if len(rows) == 0 {
		return storage.BulkOK(0)
	}

	ident := pgx.Identifier{table}
	if r.namespace != "" {
		ident = pgx.Identifier{r.namespace, table}
	}
	n, err := r.pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return storage.BulkFailed(fmt.Errorf("postgres: copy into %s: %w", table, err))
	}
	return storage.BulkOK(n)
}

// InsertIgnore inserts one row, relying on ON CONFLICT DO NOTHING to skip
// duplicates. keyColumns is unused: the targetless form defers to whatever
// primary key or unique constraint the table carries.
func (r *Repo) InsertIgnore(ctx context.Context, table string, columns []string, row []any, keyColumns []string) (bool, error) {
	_ = keyColumns
	sql := buildInsertIgnoreSQL(r.dialect.QualifyTable(r.namespace, table), columns)
	tag, err := r.pool.Exec(ctx, sql, row...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// buildInsertIgnoreSQL constructs the fallback insert for one row.
//
// Why this exists:
//   - It is pure and deterministic, so placeholder numbering and the
//     ON CONFLICT clause can be unit tested without a database.
func buildInsertIgnoreSQL(qualified string, columns []string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualified)
	b.WriteString(" (")

	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(pgIdent(c))
	}
	b.WriteString(") VALUES (")

	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("$%d", i+1))
	}
	b.WriteString(") ON CONFLICT DO NOTHING;")
	return b.String()
}

// pgIdent double-quotes an identifier, escaping embedded quotes.
func pgIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
