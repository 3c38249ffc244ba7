package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// Table outcome statuses.
const (
	StatusOK       = "ok"
	StatusPartial  = "partial"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

// maxRecordedErrors caps the error records kept per table; ErrorsTotal keeps
// counting past the cap so a table with ten thousand bad rows does not drag
// ten thousand records through the report.
const maxRecordedErrors = 20

// ErrorRecord is one recoverable problem hit while loading a table. File and
// Line locate the problem when it came from a source file; fallback insert
// errors carry the ordinal of the coerced row instead.
type ErrorRecord struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
	Msg  string `json:"msg"`
}

func (e ErrorRecord) String() string {
	var b strings.Builder
	if e.File != "" {
		fmt.Fprintf(&b, "file=%s ", e.File)
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "line=%d ", e.Line)
	}
	b.WriteString(e.Msg)
	return b.String()
}

// Outcome is the per-table load result.
//
// RowsAttempted counts coerced rows offered to the store; RowsFiltered counts
// rows the configured filters dropped before that. RowsSkipped only grows on
// the fallback path, where a row colliding with an existing key is skipped
// rather than failed. Once returned by the engine an Outcome is immutable.
type Outcome struct {
	Table         string        `json:"table"`
	Columns       int           `json:"columns"`
	RowsAttempted int64         `json:"rows_attempted"`
	RowsLoaded    int64         `json:"rows_loaded"`
	RowsSkipped   int64         `json:"rows_skipped"`
	RowsFiltered  int64         `json:"rows_filtered,omitempty"`
	UsedFallback  bool          `json:"used_fallback"`
	Errors        []ErrorRecord `json:"errors,omitempty"`
	ErrorsTotal   int           `json:"errors_total,omitempty"`
	Status        string        `json:"status"`
	Duration      time.Duration `json:"duration"`
}

func (o *Outcome) recordError(rec ErrorRecord) {
	o.ErrorsTotal++
	if len(o.Errors) < maxRecordedErrors {
		o.Errors = append(o.Errors, rec)
	}
}

// deriveStatus classifies an outcome that was not canceled: clean tables are
// ok, tables where some rows landed despite errors are partial, tables where
// errors left nothing behind are error.
func deriveStatus(o *Outcome) string {
	switch {
	case o.ErrorsTotal == 0:
		return StatusOK
	case o.RowsLoaded > 0 || o.RowsSkipped > 0:
		return StatusPartial
	default:
		return StatusError
	}
}

// Report is the end-of-run summary: one Outcome per loaded table in the
// configured order, plus the warnings analysis collected.
type Report struct {
	GeneratedAt time.Time `json:"generated_at"`
	StorageKind string    `json:"storage_kind"`
	Namespace   string    `json:"namespace,omitempty"`
	Tables      []Outcome `json:"tables"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Text renders the report as log-friendly lines.
func (r *Report) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "load report storage=%s namespace=%s tables=%d\n", r.StorageKind, r.Namespace, len(r.Tables))
	for _, o := range r.Tables {
		fmt.Fprintf(&b,
			"  table=%s columns=%d attempted=%d loaded=%d skipped=%d filtered=%d fallback=%v status=%s duration=%s\n",
			o.Table, o.Columns, o.RowsAttempted, o.RowsLoaded, o.RowsSkipped, o.RowsFiltered,
			o.UsedFallback, o.Status, o.Duration.Truncate(time.Millisecond),
		)
		for _, e := range o.Errors {
			fmt.Fprintf(&b, "    error: %s\n", e)
		}
		if extra := o.ErrorsTotal - len(o.Errors); extra > 0 {
			fmt.Fprintf(&b, "    ... and %d more errors\n", extra)
		}
	}
	if len(r.Warnings) > 0 {
		b.WriteString("warnings:\n")
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "  - %s\n", w)
		}
	}
	return b.String()
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(path string) error {
	raw, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("report: marshal: %w", err)
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}
