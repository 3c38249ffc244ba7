package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	mssql "github.com/microsoft/go-mssqldb"

	"nbaload/internal/schema"
	"nbaload/internal/storage"
)

// Repo implements storage.Repository for Microsoft SQL Server.
//
// The bulk path uses the driver's native bulk copy (TDS BulkLoadBCP) inside
// one transaction, so a failed transfer rolls back as a unit. The fallback
// path has no ON CONFLICT equivalent; it guards each INSERT with a
// NOT EXISTS subquery over the supplied key columns.
type Repo struct {
	db        *sql.DB
	namespace string
	dialect   schema.MSSQL
}

var _ storage.Repository = (*Repo)(nil)

func init() {
	storage.Register("mssql", New)
}

// New opens a connection pool using the "sqlserver" driver and validates
// connectivity via PingContext.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, err
	}

	// Conservative defaults for bursty bulk loads.
	db.SetMaxOpenConns(64)
	db.SetMaxIdleConns(64)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, namespace: cfg.Namespace}, nil
}

// Close releases database resources held by this repository.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) Dialect() schema.Dialect { return r.dialect }

// ApplyDDL executes statements in order, stopping at the first failure.
func (r *Repo) ApplyDDL(ctx context.Context, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("mssql: apply ddl: %w", err)
		}
	}
	return nil
}

// BulkCopy streams all rows through the driver's bulk copy statement inside
// one transaction. The trailing no-argument Exec flushes the batch and
// reports the copied row count.
func (r *Repo) BulkCopy(ctx context.Context, table string, columns []string, rows [][]any) storage.BulkResult {
	if len(rows) == 0 {
		return storage.BulkOK(0)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.BulkFailed(fmt.Errorf("mssql: begin bulk tx: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.copyTarget(table), mssql.BulkOptions{}, columns...))
	if err != nil {
		return storage.BulkFailed(fmt.Errorf("mssql: prepare bulk copy for %s: %w", table, err))
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return storage.BulkFailed(fmt.Errorf("mssql: bulk copy row into %s: %w", table, err))
		}
	}
	res, err := stmt.ExecContext(ctx)
	if err != nil {
		return storage.BulkFailed(fmt.Errorf("mssql: flush bulk copy into %s: %w", table, err))
	}
	n, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return storage.BulkFailed(fmt.Errorf("mssql: commit bulk tx: %w", err))
	}
	return storage.BulkOK(n)
}

// InsertIgnore inserts one row unless a row with the same key column values
// already exists. Without key columns the insert is unguarded.
func (r *Repo) InsertIgnore(ctx context.Context, table string, columns []string, row []any, keyColumns []string) (bool, error) {
	q, err := buildInsertIgnoreSQL(r.dialect.QualifyTable(r.namespace, table), columns, keyColumns)
	if err != nil {
		return false, err
	}
	args := make([]any, len(row))
	for i, v := range row {
		args[i] = sql.Named(fmt.Sprintf("p%d", i+1), v)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// copyTarget renders the table reference handed to the bulk copy statement.
// The driver parses a plain dotted name itself; no quoting here.
func (r *Repo) copyTarget(table string) string {
	if r.namespace == "" {
		return table
	}
	return r.namespace + "." + table
}

// buildInsertIgnoreSQL constructs the guarded fallback insert.
//
// SQL Server has no ON CONFLICT clause, so idempotence is expressed as
// INSERT ... SELECT ... WHERE NOT EXISTS over the key columns. Each key
// column must also appear in the insert column list so its placeholder can
// be reused in the guard.
func buildInsertIgnoreSQL(qualified string, columns []string, keyColumns []string) (string, error) {
	pos := make(map[string]int, len(columns))
	for i, c := range columns {
		pos[c] = i + 1
	}
	for _, k := range keyColumns {
		if _, ok := pos[k]; !ok {
			return "", fmt.Errorf("mssql: key column %q not present in columns", k)
		}
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(qualified)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(mssqlIdent(c))
	}
	b.WriteString(") SELECT ")
	for i := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("@p%d", i+1))
	}

	if len(keyColumns) > 0 {
		b.WriteString(" WHERE NOT EXISTS (SELECT 1 FROM ")
		b.WriteString(qualified)
		b.WriteString(" WHERE ")
		for i, k := range keyColumns {
			if i > 0 {
				b.WriteString(" AND ")
			}
			b.WriteString(mssqlIdent(k))
			b.WriteString(fmt.Sprintf(" = @p%d", pos[k]))
		}
		b.WriteString(")")
	}
	b.WriteString(";")
	return b.String(), nil
}

// mssqlIdent bracket-quotes an identifier, escaping closing brackets.
func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
