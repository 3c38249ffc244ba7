package loader

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"nbaload/internal/config"
	"nbaload/internal/schema"
	"nbaload/internal/source"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func col(name, original string, typ schema.SemanticType) schema.ColumnSchema {
	return schema.ColumnSchema{Name: name, Original: original, Type: typ, Nullable: true}
}

// TestMaterializeRows_RenamesAndDropsColumns verifies the original-to-safe
// re-keying and that columns absent from the schema vanish.
func TestMaterializeRows_RenamesAndDropsColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "games.csv")
	writeFile(t, path, "Game ID,Team Name,Junk\ng1,Boston,x\ng2,Dallas,y\n")

	ts := &schema.TableSchema{
		Name: "games",
		Columns: []schema.ColumnSchema{
			col("game_id", "Game ID", schema.TypeShortText),
			col("team_name", "Team Name", schema.TypeShortText),
		},
	}
	ds := source.Dataset{
		TableName: "games",
		Kind:      source.KindSingleFile,
		Format:    "csv",
		Files:     []source.ShardFile{{Path: path}},
	}

	mat, err := materializeRows(context.Background(), ds, config.Table{Name: "games"}, ts)
	if err != nil {
		t.Fatalf("materializeRows: %v", err)
	}
	if !reflect.DeepEqual(mat.Columns, []string{"game_id", "team_name"}) {
		t.Fatalf("Columns=%v", mat.Columns)
	}
	want := [][]any{{"g1", "Boston"}, {"g2", "Dallas"}}
	if !reflect.DeepEqual(mat.Rows, want) {
		t.Fatalf("Rows=%v, want %v", mat.Rows, want)
	}
	if len(mat.Errors) != 0 || mat.Filtered != 0 {
		t.Fatalf("Errors=%v Filtered=%d, want none", mat.Errors, mat.Filtered)
	}
}

// TestMaterializeRows_ShardValueRewriteAndFilters walks the team-stats path:
// the shard key column takes the per-file value, the configured rewrite maps
// known abbreviations to franchise names, and the filters drop what is left.
func TestMaterializeRows_ShardValueRewriteAndFilters(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bos.csv"), "team_name,wins\nUnknown,50\n")
	writeFile(t, filepath.Join(dir, "xyz.csv"), "team_name,wins\nUnknown,40\n,30\n")

	ts := &schema.TableSchema{
		Name: "team_stats",
		Columns: []schema.ColumnSchema{
			col("team_name", "team_name", schema.TypeShortText),
			{Name: "wins", Original: "wins", Type: schema.TypeInteger, Nullable: true},
			{Name: "team_abbrev", Original: "team_abbrev", Type: schema.TypeShortText, MaxLen: 10},
		},
	}
	ds := source.Dataset{
		TableName: "team_stats",
		Kind:      source.KindShardedByKey,
		Format:    "csv",
		Files: []source.ShardFile{
			{Path: filepath.Join(dir, "bos.csv"), Value: "bos"},
			{Path: filepath.Join(dir, "xyz.csv"), Value: "xyz"},
		},
		ShardKey: &source.ShardKeySpec{Column: "team_abbrev"},
	}
	tbl := config.Table{
		Name: "team_stats",
		Filters: []config.RowFilter{
			{Column: "team_name", DropEmpty: true, DropValues: []string{"Unknown"}},
		},
		ShardColumnValues: map[string]map[string]string{
			"team_name": {"bos": "Boston Celtics"},
		},
	}

	mat, err := materializeRows(context.Background(), ds, tbl, ts)
	if err != nil {
		t.Fatalf("materializeRows: %v", err)
	}

	// bos row survives with the rewritten name; both xyz rows drop (one
	// "Unknown", one empty).
	want := [][]any{{"Boston Celtics", int64(50), "bos"}}
	if !reflect.DeepEqual(mat.Rows, want) {
		t.Fatalf("Rows=%v, want %v", mat.Rows, want)
	}
	if mat.Filtered != 2 {
		t.Fatalf("Filtered=%d, want 2", mat.Filtered)
	}
}

// TestMaterializeRows_UnreadableShardRecordedAndSkipped verifies a broken
// shard contributes an error record, not a failure.
func TestMaterializeRows_UnreadableShardRecordedAndSkipped(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.csv")
	writeFile(t, good, "a\n1\n")

	ts := &schema.TableSchema{
		Name:    "t",
		Columns: []schema.ColumnSchema{{Name: "a", Original: "a", Type: schema.TypeInteger, Nullable: true}},
	}
	ds := source.Dataset{
		TableName: "t",
		Kind:      source.KindShardedByKey,
		Format:    "csv",
		Files: []source.ShardFile{
			{Path: filepath.Join(dir, "missing.csv"), Value: "missing"},
			{Path: good, Value: "good"},
		},
	}

	mat, err := materializeRows(context.Background(), ds, config.Table{Name: "t"}, ts)
	if err != nil {
		t.Fatalf("materializeRows: %v", err)
	}
	if len(mat.Rows) != 1 || mat.Rows[0][0] != int64(1) {
		t.Fatalf("Rows=%v, want the good shard's row", mat.Rows)
	}
	if len(mat.Errors) != 1 || mat.Errors[0].File == "" {
		t.Fatalf("Errors=%v, want one record for the missing shard", mat.Errors)
	}
}

// TestMaterializeRows_FillsApplyToCoercedNulls verifies fills replace nil
// after coercion, typed for the column.
func TestMaterializeRows_FillsApplyToCoercedNulls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "standings.csv")
	writeFile(t, path, "team,wins,gb\nCeltics,,x\n")

	ts := &schema.TableSchema{
		Name: "standings",
		Columns: []schema.ColumnSchema{
			col("team", "team", schema.TypeShortText),
			{Name: "wins", Original: "wins", Type: schema.TypeInteger, Nullable: true},
			{Name: "gb", Original: "gb", Type: schema.TypeFloat, Nullable: true},
		},
	}
	ds := source.Dataset{
		TableName: "standings",
		Kind:      source.KindSingleFile,
		Format:    "csv",
		Files:     []source.ShardFile{{Path: path}},
	}
	tbl := config.Table{Name: "standings", Fills: map[string]any{"wins": 0}}

	mat, err := materializeRows(context.Background(), ds, tbl, ts)
	if err != nil {
		t.Fatalf("materializeRows: %v", err)
	}
	want := [][]any{{"Celtics", int64(0), nil}}
	if !reflect.DeepEqual(mat.Rows, want) {
		t.Fatalf("Rows=%v, want %v (filled wins, null gb)", mat.Rows, want)
	}
}

// TestMaterializeRows_JSONArrayWithStructuredColumn verifies nested values
// serialize to JSON text and scalars coerce normally.
func TestMaterializeRows_JSONArrayWithStructuredColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "odds.json")
	writeFile(t, path, `[
  {"game_id": "g1", "total": 221.5, "bookmakers": [{"key": "bk", "price": 1.9}]},
  {"game_id": "g2", "total": 230, "bookmakers": []}
]`)

	ts := &schema.TableSchema{
		Name: "odds",
		Columns: []schema.ColumnSchema{
			col("game_id", "game_id", schema.TypeShortText),
			{Name: "total", Original: "total", Type: schema.TypeFloat, Nullable: true},
			{Name: "bookmakers", Original: "bookmakers", Type: schema.TypeJSON, Nullable: true},
		},
	}
	ds := source.Dataset{
		TableName: "odds",
		Kind:      source.KindJSONArray,
		Format:    "json",
		Files:     []source.ShardFile{{Path: path}},
	}

	mat, err := materializeRows(context.Background(), ds, config.Table{Name: "odds"}, ts)
	if err != nil {
		t.Fatalf("materializeRows: %v", err)
	}
	if len(mat.Rows) != 2 {
		t.Fatalf("rows=%d, want 2", len(mat.Rows))
	}
	if mat.Rows[0][1] != 221.5 {
		t.Fatalf("total=%v, want 221.5", mat.Rows[0][1])
	}
	blob, ok := mat.Rows[0][2].(string)
	if !ok || blob != `[{"key":"bk","price":1.9}]` {
		t.Fatalf("bookmakers=%v, want serialized JSON text", mat.Rows[0][2])
	}
	if mat.Rows[1][2] != "[]" {
		t.Fatalf("empty bookmakers=%v, want \"[]\"", mat.Rows[1][2])
	}
}

// TestCoerceValue covers the per-type parse-or-null rules.
func TestCoerceValue(t *testing.T) {
	date := func(y int, m time.Month, d int) time.Time {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	tests := []struct {
		name string
		in   any
		typ  schema.SemanticType
		want any
	}{
		{name: "int", in: "42", typ: schema.TypeInteger, want: int64(42)},
		{name: "int_from_float_literal", in: "2024.0", typ: schema.TypeInteger, want: int64(2024)},
		{name: "int_garbage", in: "x", typ: schema.TypeInteger, want: nil},
		{name: "int_nil", in: nil, typ: schema.TypeInteger, want: nil},
		{name: "float", in: "13.5", typ: schema.TypeFloat, want: 13.5},
		{name: "float_negative", in: "-0.5", typ: schema.TypeFloat, want: -0.5},
		{name: "float_garbage", in: "abc", typ: schema.TypeFloat, want: nil},
		{name: "bool_true", in: "True", typ: schema.TypeBoolean, want: true},
		{name: "bool_zero", in: "0", typ: schema.TypeBoolean, want: false},
		{name: "bool_garbage", in: "maybe", typ: schema.TypeBoolean, want: nil},
		{name: "date_iso", in: "2024-03-15", typ: schema.TypeDate, want: date(2024, time.March, 15)},
		{name: "date_us", in: "03/15/2024", typ: schema.TypeDate, want: date(2024, time.March, 15)},
		{name: "date_garbage", in: "someday", typ: schema.TypeDate, want: nil},
		{name: "timestamp_rfc3339", in: "2024-03-15T18:30:00Z", typ: schema.TypeTimestamp, want: time.Date(2024, time.March, 15, 18, 30, 0, 0, time.UTC)},
		{name: "text_trimmed", in: "  hello  ", typ: schema.TypeShortText, want: "hello"},
		{name: "text_empty", in: "", typ: schema.TypeShortText, want: nil},
		{name: "json_tree", in: map[string]any{"k": "v"}, typ: schema.TypeJSON, want: `{"k":"v"}`},
		{name: "json_passthrough", in: `{"already":"text"}`, typ: schema.TypeJSON, want: `{"already":"text"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := coerceValue(tc.in, schema.ColumnSchema{Name: "c", Type: tc.typ})
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("coerceValue(%v, %s)=%v, want %v", tc.in, tc.typ, got, tc.want)
			}
		})
	}
}
