package loader

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"nbaload/internal/config"
	pcsv "nbaload/internal/parser/csv"
	pjson "nbaload/internal/parser/json"
	"nbaload/internal/schema"
	"nbaload/internal/source"
)

// materialized is one table's fully coerced row set, ready for the bulk path.
// Columns follows schema order; every row is aligned to it.
type materialized struct {
	Columns  []string
	Rows     [][]any
	Errors   []ErrorRecord
	Filtered int64
}

// materializeRows reads every shard of a dataset and produces coerced rows.
//
// Per file: raw columns are re-keyed to sanitized names through the retained
// original-to-safe mapping on the schema, columns absent from the schema are
// dropped, the shard key column is overwritten with the shard value, and
// per-shard column rewrites are applied. Configured row filters then run on
// the raw cell text, and the survivors are coerced per column type.
//
// A file that cannot be opened or parsed is recorded and skipped; the error
// return is reserved for context cancellation.
func materializeRows(ctx context.Context, ds source.Dataset, tbl config.Table, ts *schema.TableSchema) (materialized, error) {
	mat := materialized{Columns: ts.ColumnNames()}

	originalPos := originalToPos(ts)
	filters := compileFilters(tbl.Filters, ts)
	fills := compileFills(tbl.Fills, ts)
	shardPos := shardColumnPos(ds, ts)

	for _, f := range ds.Files {
		recs, bad, err := readShard(ctx, ds, tbl, f, originalPos, len(ts.Columns))
		if err != nil {
			if ctx.Err() != nil {
				return mat, ctx.Err()
			}
			mat.Errors = append(mat.Errors, ErrorRecord{File: f.Path, Msg: err.Error()})
			continue
		}
		if bad > 0 {
			mat.Errors = append(mat.Errors, ErrorRecord{File: f.Path, Msg: fmt.Sprintf("skipped %d malformed rows", bad)})
		}

		rewrites := compileRewrites(tbl.ShardColumnValues, ts, f.Value)

		for _, row := range recs {
			if shardPos >= 0 {
				row[shardPos] = f.Value
			}
			for _, rw := range rewrites {
				row[rw.pos] = rw.value
			}
			if dropRow(row, filters) {
				mat.Filtered++
				continue
			}
			for j := range row {
				row[j] = coerceValue(row[j], ts.Columns[j])
			}
			for pos, fv := range fills {
				if row[pos] == nil {
					row[pos] = fv
				}
			}
			mat.Rows = append(mat.Rows, row)
		}
	}

	return mat, nil
}

// readShard parses one file into schema-aligned raw rows. Cells of columns
// the schema does not know are dropped; duplicate raw headers keep the first
// occurrence, matching analysis.
func readShard(ctx context.Context, ds source.Dataset, tbl config.Table, f source.ShardFile, originalPos map[string]int, width int) (rows [][]any, bad int, err error) {
	src, err := os.Open(f.Path)
	if err != nil {
		return nil, 0, err
	}
	defer src.Close()

	var recs [][]any
	collect := func(line int, rec []any) error {
		recs = append(recs, rec)
		return nil
	}
	onErr := func(line int, err error) { bad++ }

	var header []string
	if ds.Format == "json" {
		header, err = pjson.StreamRows(ctx, src, collect)
	} else {
		header, err = pcsv.StreamRows(ctx, src, tbl.Options, collect, onErr)
	}
	if err != nil {
		return nil, bad, err
	}

	targetIdx := make([]int, len(header))
	claimed := make(map[int]bool, len(header))
	for i, raw := range header {
		pos, ok := originalPos[raw]
		if !ok || claimed[pos] {
			targetIdx[i] = -1
			continue
		}
		claimed[pos] = true
		targetIdx[i] = pos
	}

	rows = make([][]any, 0, len(recs))
	for _, rec := range recs {
		row := make([]any, width)
		for i, v := range rec {
			if j := targetIdx[i]; j >= 0 {
				row[j] = v
			}
		}
		rows = append(rows, row)
	}
	return rows, bad, nil
}

// originalToPos maps raw source headers to schema column positions. Columns
// injected during analysis (the shard key) resolve by their raw name too.
func originalToPos(ts *schema.TableSchema) map[string]int {
	out := make(map[string]int, len(ts.Columns))
	for pos, c := range ts.Columns {
		key := c.Original
		if key == "" {
			key = c.Name
		}
		if _, dup := out[key]; !dup {
			out[key] = pos
		}
	}
	return out
}

func shardColumnPos(ds source.Dataset, ts *schema.TableSchema) int {
	if ds.ShardKey == nil {
		return -1
	}
	pos := -1
	for i, c := range ts.Columns {
		if c.Original == ds.ShardKey.Column || c.Name == ds.ShardKey.Column {
			pos = i
		}
	}
	return pos
}

type compiledFilter struct {
	pos       int
	dropEmpty bool
	drop      map[string]struct{}
}

// compileFilters resolves filter columns to schema positions. A filter naming
// an absent column never fires.
func compileFilters(filters []config.RowFilter, ts *schema.TableSchema) []compiledFilter {
	out := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		pos := columnPos(ts, f.Column)
		if pos < 0 {
			continue
		}
		cf := compiledFilter{pos: pos, dropEmpty: f.DropEmpty}
		if len(f.DropValues) > 0 {
			cf.drop = make(map[string]struct{}, len(f.DropValues))
			for _, v := range f.DropValues {
				cf.drop[v] = struct{}{}
			}
		}
		out = append(out, cf)
	}
	return out
}

func dropRow(row []any, filters []compiledFilter) bool {
	for _, f := range filters {
		text := rawText(row[f.pos])
		if f.dropEmpty && text == "" {
			return true
		}
		if _, hit := f.drop[text]; hit {
			return true
		}
	}
	return false
}

// compileFills coerces configured fill values through the column's own type
// so a JSON-sourced float64 zero lands as the integer zero the column needs.
func compileFills(fills map[string]any, ts *schema.TableSchema) map[int]any {
	if len(fills) == 0 {
		return nil
	}
	out := make(map[int]any, len(fills))
	for name, raw := range fills {
		pos := columnPos(ts, name)
		if pos < 0 {
			continue
		}
		if v := coerceValue(raw, ts.Columns[pos]); v != nil {
			out[pos] = v
		}
	}
	return out
}

type compiledRewrite struct {
	pos   int
	value string
}

func compileRewrites(rewrites map[string]map[string]string, ts *schema.TableSchema, shardValue string) []compiledRewrite {
	if len(rewrites) == 0 || shardValue == "" {
		return nil
	}
	out := make([]compiledRewrite, 0, len(rewrites))
	for name, byShard := range rewrites {
		pos := columnPos(ts, name)
		if pos < 0 {
			continue
		}
		v, ok := byShard[shardValue]
		if !ok {
			continue
		}
		out = append(out, compiledRewrite{pos: pos, value: v})
	}
	return out
}

func columnPos(ts *schema.TableSchema, name string) int {
	for i, c := range ts.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Accepted textual layouts, most common first. Exports mix ISO dates with a
// few scraped US forms.
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"01/02/2006",
	"02.01.2006",
	"Jan 2, 2006",
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// coerceValue converts a raw cell to the column's load representation.
// Unparseable values become nil rather than errors; the store's NULL is the
// sink for every malformed cell.
func coerceValue(v any, col schema.ColumnSchema) any {
	if v == nil {
		return nil
	}

	if col.Type == schema.TypeJSON {
		switch t := v.(type) {
		case string:
			if t == "" {
				return nil
			}
			return t
		default:
			b, err := json.Marshal(v)
			if err != nil {
				return nil
			}
			return string(b)
		}
	}

	text := rawText(v)
	if text == "" {
		return nil
	}

	switch col.Type {
	case schema.TypeInteger:
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return n
		}
		// Whole values exported as float literals ("2024.0") still count.
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return int64(f)
		}
		return nil

	case schema.TypeFloat:
		if f, err := strconv.ParseFloat(text, 64); err == nil {
			return f
		}
		return nil

	case schema.TypeBoolean:
		return parseBoolLoose(text)

	case schema.TypeDate:
		return parseAnyLayout(text, dateLayouts)

	case schema.TypeTimestamp:
		return parseAnyLayout(text, timestampLayouts)

	default:
		return text
	}
}

func parseAnyLayout(text string, layouts []string) any {
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, text, time.UTC); err == nil {
			return t
		}
	}
	return nil
}

func parseBoolLoose(text string) any {
	switch strings.ToLower(text) {
	case "true", "t", "yes", "y", "1":
		return true
	case "false", "f", "no", "n", "0":
		return false
	default:
		return nil
	}
}

// rawText renders a raw cell the way analysis saw it, for filters and
// scalar coercion.
func rawText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
