// Package loader drives the load phase: DDL for every analyzed table first,
// then per-table loads through a bounded worker pool, bulk path with per-row
// fallback, and a Report at the end.
//
// Scheduling model:
//   - DDL application is a one-time barrier; no table loads before it ends.
//   - Tables load concurrently, except that a table referencing another via a
//     detected relationship waits for the referenced table to finish, so the
//     advisory links point at populated tables.
//   - There is no cross-table transaction. A failed table never rolls back a
//     committed one.
package loader

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"nbaload/internal/config"
	"nbaload/internal/metrics"
	"nbaload/internal/schema"
	"nbaload/internal/source"
	"nbaload/internal/storage"
)

// Logger is the minimal logging interface used by the engine.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

const defaultWorkers = 3

// Plan carries everything analysis produced for the load phase.
type Plan struct {
	Datasets      []source.Dataset
	Schemas       map[string]*schema.TableSchema
	Relationships []schema.Relationship
	Warnings      []string
}

// Engine loads analyzed tables into one storage backend.
type Engine struct {
	Repo   storage.Repository
	Config *config.Config
	Logger Logger
}

// Run executes the whole load phase and always produces a Report, even when
// every table ends in error. The error return is reserved for engine
// misconfiguration; per-table failures live in the outcomes.
//
// Cancellation aborts between tables and between fallback rows. A bulk
// transfer interrupted mid-flight rolls back; the table reports canceled,
// never a partial commit.
func (e *Engine) Run(ctx context.Context, plan Plan) (*Report, error) {
	if e.Repo == nil {
		return nil, fmt.Errorf("loader: Repo is required")
	}
	if e.Config == nil {
		return nil, fmt.Errorf("loader: Config is required")
	}
	logf := e.logger()

	datasets := make(map[string]source.Dataset, len(plan.Datasets))
	for _, ds := range plan.Datasets {
		datasets[ds.TableName] = ds
	}

	// Only tables that survived both discovery and analysis load.
	var order []string
	for _, name := range e.Config.TableOrder() {
		if _, ok := plan.Schemas[name]; !ok {
			continue
		}
		if _, ok := datasets[name]; !ok {
			continue
		}
		order = append(order, name)
	}

	ddlErrs := e.applyDDL(ctx, plan, order, logf)
	outcomes := e.loadAll(ctx, plan, order, datasets, ddlErrs, logf)
	e.applyForeignKeys(ctx, plan, logf)

	return &Report{
		GeneratedAt: time.Now().UTC(),
		StorageKind: e.Config.Storage.Kind,
		Namespace:   e.Config.Storage.Namespace,
		Tables:      outcomes,
		Warnings:    plan.Warnings,
	}, nil
}

// applyDDL runs namespace plus per-table statement batches before any load
// starts. A rejected batch is reported against its table and the load is
// still attempted; the table usually exists from an earlier run.
func (e *Engine) applyDDL(ctx context.Context, plan Plan, order []string, logf func(string, ...any)) map[string]error {
	gen := e.generator()
	start := time.Now()
	errs := make(map[string]error)

	if stmt := gen.NamespaceStatement(); stmt != "" {
		if err := e.Repo.ApplyDDL(ctx, []string{stmt}); err != nil {
			logf("stage=ddl namespace error=%v", err)
		}
	}
	for _, name := range order {
		if err := e.Repo.ApplyDDL(ctx, gen.TableStatements(plan.Schemas[name])); err != nil {
			errs[name] = err
			logf("stage=ddl table=%s error=%v", name, err)
		}
	}

	logf("stage=ddl tables=%d failed=%d duration=%s", len(order), len(errs), durMS(start))
	return errs
}

// loadAll fans the scheduled tables over a bounded worker pool. Dependency
// waits ride on per-table done channels; the schedule places referenced
// tables first so a blocked worker always waits on a table that is already
// running or finished.
func (e *Engine) loadAll(
	ctx context.Context,
	plan Plan,
	order []string,
	datasets map[string]source.Dataset,
	ddlErrs map[string]error,
	logf func(string, ...any),
) []Outcome {
	if len(order) == 0 {
		return nil
	}

	workers := e.Config.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if workers > len(order) {
		workers = len(order)
	}

	deps := dependencyWaits(order, plan.Relationships)
	schedule := scheduleOrder(order, deps, logf)

	done := make(map[string]chan struct{}, len(order))
	for _, name := range order {
		done[name] = make(chan struct{})
	}

	jobs := make(chan string)
	results := make(chan Outcome, len(order))

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for name := range jobs {
				for _, dep := range deps[name] {
					select {
					case <-done[dep]:
					case <-ctx.Done():
					}
				}
				tbl, _ := e.Config.TableByName(name)
				out := e.loadTable(ctx, name, datasets[name], plan.Schemas[name], tbl, ddlErrs[name], logf)
				close(done[name])
				results <- out
			}
		}()
	}

	for _, name := range schedule {
		jobs <- name
	}
	close(jobs)
	wg.Wait()
	close(results)

	byName := make(map[string]Outcome, len(order))
	for out := range results {
		byName[out.Table] = out
	}
	outcomes := make([]Outcome, 0, len(order))
	for _, name := range order {
		outcomes = append(outcomes, byName[name])
	}
	return outcomes
}

// loadTable materializes one table's rows and pushes them through the bulk
// path, falling back to individually-committed inserts when the bulk
// transfer fails. The fallback never re-attempts the bulk path.
func (e *Engine) loadTable(
	ctx context.Context,
	name string,
	ds source.Dataset,
	ts *schema.TableSchema,
	tbl config.Table,
	ddlErr error,
	logf func(string, ...any),
) (out Outcome) {
	start := time.Now()
	out = Outcome{Table: name, Columns: len(ts.Columns)}
	if ddlErr != nil {
		out.recordError(ErrorRecord{Msg: fmt.Sprintf("ddl: %v", ddlErr)})
	}

	defer func() {
		out.Duration = time.Since(start)
		if out.Status == "" {
			out.Status = deriveStatus(&out)
		}
		e.emitMetrics(&out)
		logf("stage=load table=%s attempted=%d loaded=%d skipped=%d fallback=%v status=%s duration=%s",
			out.Table, out.RowsAttempted, out.RowsLoaded, out.RowsSkipped, out.UsedFallback, out.Status, durMS(start))
	}()

	if ctx.Err() != nil {
		out.Status = StatusCanceled
		out.recordError(ErrorRecord{Msg: "canceled before load"})
		return out
	}

	mat, err := materializeRows(ctx, ds, tbl, ts)
	out.RowsFiltered = mat.Filtered
	for _, rec := range mat.Errors {
		out.recordError(rec)
	}
	if err != nil {
		out.Status = StatusCanceled
		out.recordError(ErrorRecord{Msg: fmt.Sprintf("canceled: %v", err)})
		return out
	}

	out.RowsAttempted = int64(len(mat.Rows))
	if len(mat.Rows) == 0 {
		logf("stage=load table=%s no rows to load", name)
		return out
	}

	res := e.Repo.BulkCopy(ctx, name, mat.Columns, mat.Rows)
	if !res.Failed() {
		out.RowsLoaded = res.RowsLoaded
		return out
	}
	if ctx.Err() != nil {
		// The bulk transaction rolled back; nothing committed.
		out.Status = StatusCanceled
		out.recordError(ErrorRecord{Msg: fmt.Sprintf("canceled: %v", res.Err)})
		return out
	}

	logf("stage=load table=%s bulk failed, using row fallback: %v", name, res.Err)
	metrics.IncCounter("load_fallback_total", 1, metrics.Labels{"table": name})
	out.UsedFallback = true

	var keyCols []string
	if ts.PrimaryKey != "" {
		keyCols = []string{ts.PrimaryKey}
	}
	for i, row := range mat.Rows {
		if ctx.Err() != nil {
			out.Status = StatusCanceled
			out.recordError(ErrorRecord{Line: i + 1, Msg: "canceled during fallback"})
			return out
		}
		inserted, err := e.Repo.InsertIgnore(ctx, name, mat.Columns, row, keyCols)
		if err != nil {
			out.recordError(ErrorRecord{Line: i + 1, Msg: err.Error()})
			continue
		}
		if inserted {
			out.RowsLoaded++
		} else {
			out.RowsSkipped++
		}
	}
	return out
}

// applyForeignKeys adds the opt-in constraints for detected relationships
// after every load has finished, so existing rows are validated rather than
// blocked. Failures are logged, never fatal.
func (e *Engine) applyForeignKeys(ctx context.Context, plan Plan, logf func(string, ...any)) {
	if !e.Config.ApplyForeignKeys || len(plan.Relationships) == 0 {
		return
	}
	stmts := e.generator().ForeignKeys(plan.Relationships)
	if len(stmts) == 0 {
		return
	}
	if err := e.Repo.ApplyDDL(ctx, stmts); err != nil {
		logf("stage=fks error=%v", err)
		return
	}
	logf("stage=fks ok constraints=%d", len(stmts))
}

func (e *Engine) generator() *schema.Generator {
	return schema.NewGenerator(e.Repo.Dialect(), e.Config.Storage.Namespace)
}

func (e *Engine) emitMetrics(out *Outcome) {
	labels := metrics.Labels{"table": out.Table, "status": out.Status}
	metrics.ObserveHistogram("load_duration_seconds", out.Duration.Seconds(), labels)
	metrics.IncCounter("load_rows_total", float64(out.RowsLoaded), metrics.Labels{"table": out.Table, "outcome": "loaded"})
	metrics.IncCounter("load_rows_total", float64(out.RowsSkipped), metrics.Labels{"table": out.Table, "outcome": "skipped"})
	metrics.IncCounter("load_tables_total", 1, metrics.Labels{"status": out.Status})
}

func (e *Engine) logger() func(format string, v ...any) {
	if e.Logger == nil {
		l := log.New(discardWriter{}, "", 0)
		return l.Printf
	}
	return e.Logger.Printf
}

// dependencyWaits maps each referencing table to the referenced tables whose
// loads must finish first. Relationships touching unscheduled tables produce
// no waits.
func dependencyWaits(order []string, rels []schema.Relationship) map[string][]string {
	scheduled := make(map[string]bool, len(order))
	for _, name := range order {
		scheduled[name] = true
	}
	out := make(map[string][]string)
	for _, rel := range rels {
		if rel.FromTable == rel.ToTable {
			continue
		}
		if !scheduled[rel.FromTable] || !scheduled[rel.ToTable] {
			continue
		}
		if !containsString(out[rel.FromTable], rel.ToTable) {
			out[rel.FromTable] = append(out[rel.FromTable], rel.ToTable)
		}
	}
	return out
}

// scheduleOrder sorts tables so every wait target precedes its waiters,
// keeping the configured order among peers. A dependency cycle cannot be
// honored; its members keep configured order and their waits are dropped to
// keep the pool from deadlocking.
func scheduleOrder(order []string, deps map[string][]string, logf func(string, ...any)) []string {
	placed := make(map[string]bool, len(order))
	out := make([]string, 0, len(order))
	remaining := append([]string(nil), order...)

	for len(remaining) > 0 {
		var next []string
		progressed := false
		for _, name := range remaining {
			ready := true
			for _, dep := range deps[name] {
				if !placed[dep] {
					ready = false
					break
				}
			}
			if !ready {
				next = append(next, name)
				continue
			}
			out = append(out, name)
			placed[name] = true
			progressed = true
		}
		if !progressed {
			logf("stage=schedule relationship cycle across %v, loading in configured order", next)
			for _, name := range next {
				delete(deps, name)
			}
			out = append(out, next...)
			break
		}
		remaining = next
	}
	return out
}

func containsString(ss []string, want string) bool {
	for _, s := range ss {
		if s == want {
			return true
		}
	}
	return false
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

type discardWriter struct{}

func (discardWriter) Write(p []byte) (n int, err error) { return len(p), nil }
