package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"nbaload/internal/config"
	pcsv "nbaload/internal/parser/csv"
	pjson "nbaload/internal/parser/json"
	"nbaload/internal/schema"
	"nbaload/internal/source"
)

// sampleValueLimit bounds the diagnostic sample kept per column.
const sampleValueLimit = 5

// shardKeyWidth is the declared width of an injected shard key column.
// Shard values are short stems such as team abbreviations.
const shardKeyWidth = 10

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Printf(format string, v ...any)
}

// Warning records a non-fatal analysis problem: a skipped shard, a hint
// that references no real column, malformed rows inside a file.
type Warning struct {
	Table string
	File  string
	Msg   string
}

func (w Warning) String() string {
	if w.File == "" {
		return fmt.Sprintf("table=%s: %s", w.Table, w.Msg)
	}
	return fmt.Sprintf("table=%s file=%s: %s", w.Table, w.File, w.Msg)
}

// Analyzer derives one TableSchema per dataset. Type inference runs on a
// bounded sample from the first readable file; the row count estimate comes
// from a full pass over every file.
type Analyzer struct {
	sampleRows int
	tables     map[string]config.Table
	log        Logger
}

func NewAnalyzer(cfg *config.Config, log Logger) *Analyzer {
	tables := make(map[string]config.Table, len(cfg.Tables))
	for _, t := range cfg.Tables {
		tables[t.Name] = t
	}
	return &Analyzer{sampleRows: cfg.SampleRows, tables: tables, log: log}
}

// Analyze builds schemas for every dataset that yields at least one usable
// file. Datasets whose files are all unreadable are omitted from the result
// with warnings; the error return is reserved for cancellation.
func (a *Analyzer) Analyze(ctx context.Context, datasets []source.Dataset) (map[string]*schema.TableSchema, []Warning, error) {
	schemas := make(map[string]*schema.TableSchema, len(datasets))
	var warnings []Warning
	for _, ds := range datasets {
		if err := ctx.Err(); err != nil {
			return nil, warnings, err
		}
		ts, w := a.analyzeDataset(ctx, ds)
		warnings = append(warnings, w...)
		if ts != nil {
			schemas[ts.Name] = ts
		}
	}
	return schemas, warnings, nil
}

// columnAgg accumulates one column's sampled values during analysis.
type columnAgg struct {
	name     string
	original string
	values   []string
	samples  []string
}

func (a *Analyzer) analyzeDataset(ctx context.Context, ds source.Dataset) (*schema.TableSchema, []Warning) {
	t, ok := a.tables[ds.TableName]
	if !ok {
		return nil, []Warning{{Table: ds.TableName, Msg: "dataset has no table configuration"}}
	}

	var (
		warnings []Warning
		cols     []*columnAgg
		rowCount int64
		sampled  bool
	)
	for _, f := range ds.Files {
		if ctx.Err() != nil {
			return nil, warnings
		}
		header, rows, count, bad, err := a.readFile(ctx, ds, t, f, !sampled)
		if err != nil {
			warnings = append(warnings, Warning{Table: t.Name, File: f.Path, Msg: err.Error()})
			continue
		}
		if bad > 0 {
			warnings = append(warnings, Warning{Table: t.Name, File: f.Path, Msg: fmt.Sprintf("skipped %d malformed rows", bad)})
		}
		rowCount += count
		if !sampled && len(header) > 0 {
			var w []Warning
			cols, w = buildColumns(t.Name, header, rows)
			warnings = append(warnings, w...)
			sampled = true
		}
	}
	if !sampled || len(cols) == 0 {
		warnings = append(warnings, Warning{Table: t.Name, Msg: "no readable input, table omitted"})
		return nil, warnings
	}

	if ds.ShardKey != nil {
		// Skip the injection when a real column already sanitizes to the
		// shard key name; the loader overwrites its values either way.
		if _, exists := aggIndex(cols, Sanitize(ds.ShardKey.Column)); !exists {
			cols = append(cols, shardKeyColumn(ds))
		}
	}

	structured := make(map[string]bool, len(t.StructuredColumns))
	for _, c := range t.StructuredColumns {
		structured[Sanitize(c)] = true
	}

	ts := &schema.TableSchema{Name: t.Name, RowCountEstimate: rowCount}
	for _, c := range cols {
		col := schema.ColumnSchema{Name: c.name, Original: c.original, Samples: c.samples}
		if ds.ShardKey != nil && c.name == Sanitize(ds.ShardKey.Column) {
			col.Type = schema.TypeShortText
			col.MaxLen = shardKeyWidth
		} else {
			col.Type, col.MaxLen, col.Nullable = Infer(c.name, c.values, structured[c.name])
		}
		if forced, ok := t.ForceTypes[c.name]; ok {
			typ, ok := semanticTypeFor(forced)
			if !ok {
				warnings = append(warnings, Warning{Table: t.Name, Msg: fmt.Sprintf("unknown forced type %q for column %s", forced, c.name)})
			} else {
				col.Type = typ
				if typ == schema.TypeShortText && col.MaxLen == 0 {
					col.MaxLen = 255
				}
			}
		}
		ts.Columns = append(ts.Columns, col)
	}

	if t.PrimaryKey != "" {
		pk := Sanitize(t.PrimaryKey)
		if i, ok := columnIndex(ts.Columns, pk); ok {
			ts.PrimaryKey = pk
			ts.Columns[i].Nullable = false
		} else {
			warnings = append(warnings, Warning{Table: t.Name, Msg: fmt.Sprintf("primary key hint %q matches no column", t.PrimaryKey)})
		}
	}
	ts.IndexColumns = append([]string(nil), t.IndexColumns...)

	a.logf("stage=analyze table=%s columns=%d rows=%d", ts.Name, len(ts.Columns), rowCount)
	return ts, warnings
}

// readFile reads one input file, returning its header, up to sampleRows
// retained rows when collect is set, the data row count and the number of
// malformed rows skipped.
func (a *Analyzer) readFile(ctx context.Context, ds source.Dataset, t config.Table, f source.ShardFile, collect bool) (header []string, rows [][]any, count int64, bad int, err error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, nil, 0, 0, err
	}
	defer src.Close()

	keep := func(rec []any) {
		count++
		if collect && len(rows) < a.sampleRows {
			rows = append(rows, rec)
		}
	}
	if ds.Format == "json" {
		header, err = pjson.StreamRows(ctx, src, func(_ int, rec []any) error {
			keep(rec)
			return nil
		})
	} else {
		header, err = pcsv.StreamRows(ctx, src, t.Options, func(_ int, rec []any) error {
			keep(rec)
			return nil
		}, func(_ int, _ error) {
			bad++
		})
	}
	if err != nil {
		return nil, nil, 0, 0, err
	}
	return header, rows, count, bad, nil
}

// buildColumns sanitizes the header and distributes sampled row values by
// column. Empty headers and duplicate sanitized names drop the column; the
// first occurrence wins a duplicate.
func buildColumns(table string, header []string, rows [][]any) ([]*columnAgg, []Warning) {
	var warnings []Warning
	cols := make([]*columnAgg, 0, len(header))
	index := make(map[string]int, len(header))
	for i, raw := range header {
		name := Sanitize(raw)
		if name == "" {
			warnings = append(warnings, Warning{Table: table, Msg: fmt.Sprintf("dropping unnamed column %d", i+1)})
			continue
		}
		if _, dup := index[name]; dup {
			warnings = append(warnings, Warning{Table: table, Msg: fmt.Sprintf("duplicate column %q after sanitization, keeping the first", name)})
			continue
		}
		c := &columnAgg{name: name, original: raw, values: make([]string, 0, len(rows))}
		index[name] = len(cols)
		cols = append(cols, c)

		for _, rec := range rows {
			v := ""
			if i < len(rec) {
				v = cellText(rec[i])
			}
			c.values = append(c.values, v)
			if v != "" && len(c.samples) < sampleValueLimit {
				c.samples = append(c.samples, v)
			}
		}
	}
	return cols, warnings
}

func shardKeyColumn(ds source.Dataset) *columnAgg {
	c := &columnAgg{name: Sanitize(ds.ShardKey.Column), original: ds.ShardKey.Column}
	for _, f := range ds.Files {
		if f.Value == "" {
			continue
		}
		c.values = append(c.values, f.Value)
		if len(c.samples) < sampleValueLimit {
			c.samples = append(c.samples, f.Value)
		}
	}
	return c
}

// cellText renders a parsed cell for inference. nil is the missing marker.
func cellText(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

func semanticTypeFor(s string) (schema.SemanticType, bool) {
	switch s {
	case "integer":
		return schema.TypeInteger, true
	case "float":
		return schema.TypeFloat, true
	case "boolean":
		return schema.TypeBoolean, true
	case "date":
		return schema.TypeDate, true
	case "timestamp":
		return schema.TypeTimestamp, true
	case "short_text":
		return schema.TypeShortText, true
	case "long_text":
		return schema.TypeLongText, true
	case "json":
		return schema.TypeJSON, true
	}
	return "", false
}

func columnIndex(cols []schema.ColumnSchema, name string) (int, bool) {
	for i, c := range cols {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

func aggIndex(cols []*columnAgg, name string) (int, bool) {
	for i, c := range cols {
		if c.name == name {
			return i, true
		}
	}
	return -1, false
}

func (a *Analyzer) logf(format string, v ...any) {
	if a.log != nil {
		a.log.Printf(format, v...)
	}
}
