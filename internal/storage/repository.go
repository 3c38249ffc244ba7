// Package storage defines the backend-agnostic repository seam for the load
// engine and a registry of backend factories. Backends register themselves
// from init functions; callers select one by kind.
package storage

import (
	"context"
	"fmt"
	"sync"

	"nbaload/internal/schema"
)

// Config is the minimal configuration needed to open a repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is
//     backend-specific.
//   - Namespace is the schema/namespace loaded tables live in. Backends
//     without namespaces (SQLite) ignore it.
type Config struct {
	Kind      string
	DSN       string
	Namespace string
}

// BulkResult is the outcome of one bulk transfer attempt. The two stages of
// a table load hang off this value: a failed bulk attempt carries the reason
// and the caller engages the per-row fallback; a successful one carries the
// row count and the load is done.
type BulkResult struct {
	RowsLoaded int64
	Err        error
}

// BulkOK reports a completed bulk transfer of n rows.
func BulkOK(n int64) BulkResult { return BulkResult{RowsLoaded: n} }

// BulkFailed reports an aborted bulk transfer. The backend has already
// rolled the transaction back; nothing was committed.
func BulkFailed(err error) BulkResult { return BulkResult{Err: err} }

// Failed reports whether the bulk attempt aborted.
func (r BulkResult) Failed() bool { return r.Err != nil }

// Repository is the storage surface the load engine needs. Each backend
// implements these semantics in its own idiomatic way (Postgres COPY and
// ON CONFLICT, SQLite OR IGNORE, SQL Server bulk copy and NOT EXISTS).
//
// Table names are bare sanitized names; backends qualify them with the
// configured namespace themselves.
type Repository interface {
	// ApplyDDL executes the statements in order, stopping at the first
	// failure. Callers hand in per-table batches so one rejected table
	// does not block the rest.
	ApplyDDL(ctx context.Context, stmts []string) error

	// BulkCopy streams all rows into the table as one atomic transfer.
	// A failed result means the whole transfer rolled back.
	BulkCopy(ctx context.Context, table string, columns []string, rows [][]any) BulkResult

	// InsertIgnore inserts one row, skipping silently when it collides
	// with an existing primary key or unique constraint. Each call commits
	// on its own. keyColumns names the conflict columns for backends that
	// need them spelled out; backends with constraint-driven skip behavior
	// ignore it. Returns whether the row was actually inserted.
	InsertIgnore(ctx context.Context, table string, columns []string, row []any, keyColumns []string) (bool, error)

	// Dialect returns the DDL dialect matching this backend.
	Dialect() schema.Dialect

	// Close releases backend resources. Treat as "call once".
	Close()
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind (e.g. "postgres").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The kind string becomes the lookup key used by New.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. This is intentional to fail fast and
//     avoid ambiguous backend selection.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New opens a repository using the registered backend factory.
//
// Factories validate connectivity before returning, so an error here means
// the store is unreachable or misconfigured; nothing has been written.
//
// Errors:
//   - If cfg.Kind is empty or not registered.
//   - Whatever the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}
