package analyze

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nbaload/internal/config"
	"nbaload/internal/schema"
	"nbaload/internal/source"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func analyzerFor(tables ...config.Table) *Analyzer {
	return NewAnalyzer(&config.Config{SampleRows: 100, Tables: tables}, nil)
}

func TestAnalyze_SingleCSVSchema(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "games.csv",
		"game_id,fecha,Team Name,home_score,net_rating,home_win\n"+
			"g1,2024-01-15,Boston Celtics,112,3.5,True\n"+
			"g2,2024-01-16,Los Angeles Lakers,99,-1.25,False\n")

	table := config.Table{
		Name:         "games",
		PrimaryKey:   "game_id",
		IndexColumns: []string{"fecha", "team_name"},
	}
	ds := source.Dataset{
		TableName: "games",
		Kind:      source.KindSingleFile,
		Format:    "csv",
		Files:     []source.ShardFile{{Path: path}},
	}

	schemas, warnings, err := analyzerFor(table).Analyze(context.Background(), []source.Dataset{ds})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	ts, ok := schemas["games"]
	if !ok {
		t.Fatalf("games schema missing")
	}

	wantTypes := map[string]schema.SemanticType{
		"game_id":    schema.TypeShortText,
		"fecha":      schema.TypeDate,
		"team_name":  schema.TypeShortText,
		"home_score": schema.TypeInteger,
		"net_rating": schema.TypeFloat,
		"home_win":   schema.TypeBoolean,
	}
	if len(ts.Columns) != len(wantTypes) {
		t.Fatalf("got %d columns, want %d: %v", len(ts.Columns), len(wantTypes), ts.ColumnNames())
	}
	for name, want := range wantTypes {
		col, ok := ts.Column(name)
		if !ok {
			t.Fatalf("column %s missing", name)
		}
		if col.Type != want {
			t.Errorf("column %s: type %s, want %s", name, col.Type, want)
		}
	}

	if ts.PrimaryKey != "game_id" {
		t.Fatalf("PrimaryKey = %q, want game_id", ts.PrimaryKey)
	}
	pk, _ := ts.Column("game_id")
	if pk.Nullable {
		t.Fatalf("primary key column must not be nullable")
	}
	if col, _ := ts.Column("team_name"); col.Original != "Team Name" {
		t.Fatalf("original name not retained: %q", col.Original)
	}
	if ts.RowCountEstimate != 2 {
		t.Fatalf("RowCountEstimate = %d, want 2", ts.RowCountEstimate)
	}
}

func TestAnalyze_ShardedInjectsShardKey(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	bos := writeFile(t, dir, "bos.csv", "Team Name,W\nBoston Celtics,64\n")
	lal := writeFile(t, dir, "lal.csv", "Team Name,W\nLos Angeles Lakers,47\nUnknown,0\n")

	table := config.Table{Name: "team_stats"}
	ds := source.Dataset{
		TableName: "team_stats",
		Kind:      source.KindShardedByKey,
		Format:    "csv",
		Files: []source.ShardFile{
			{Path: bos, Value: "bos"},
			{Path: lal, Value: "lal"},
		},
		ShardKey: &source.ShardKeySpec{Column: "team_abbrev"},
	}

	schemas, _, err := analyzerFor(table).Analyze(context.Background(), []source.Dataset{ds})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	ts := schemas["team_stats"]
	if ts == nil {
		t.Fatalf("team_stats schema missing")
	}

	// Shard key lands after the file columns, sized for short stems.
	last := ts.Columns[len(ts.Columns)-1]
	if last.Name != "team_abbrev" {
		t.Fatalf("last column = %s, want team_abbrev", last.Name)
	}
	if last.Type != schema.TypeShortText || last.MaxLen != 10 || last.Nullable {
		t.Fatalf("shard key column = %+v, want short_text(10) not null", last)
	}
	if ts.RowCountEstimate != 3 {
		t.Fatalf("RowCountEstimate = %d, want 3 across shards", ts.RowCountEstimate)
	}
}

func TestAnalyze_CorruptShardSkippedWithWarning(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	good := writeFile(t, dir, "2024-25.csv", "Team,W\nCeltics,64\n")

	table := config.Table{Name: "standings"}
	ds := source.Dataset{
		TableName: "standings",
		Kind:      source.KindShardedByKey,
		Format:    "csv",
		Files: []source.ShardFile{
			{Path: filepath.Join(dir, "missing.csv")},
			{Path: good},
		},
	}

	schemas, warnings, err := analyzerFor(table).Analyze(context.Background(), []source.Dataset{ds})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if schemas["standings"] == nil {
		t.Fatalf("schema should be built from the surviving shard")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].String(), "missing.csv") {
		t.Fatalf("want one warning about missing.csv, got %v", warnings)
	}
}

func TestAnalyze_AllShardsCorruptOmitsTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	table := config.Table{Name: "standings"}
	ds := source.Dataset{
		TableName: "standings",
		Kind:      source.KindShardedByKey,
		Format:    "csv",
		Files:     []source.ShardFile{{Path: filepath.Join(dir, "gone.csv")}},
	}

	schemas, warnings, err := analyzerFor(table).Analyze(context.Background(), []source.Dataset{ds})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if _, ok := schemas["standings"]; ok {
		t.Fatalf("table with no readable shards must be omitted")
	}
	found := false
	for _, w := range warnings {
		if strings.Contains(w.Msg, "omitted") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an omission warning, got %v", warnings)
	}
}

func TestAnalyze_ForcedTypesAndStructuredColumns(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	csvPath := writeFile(t, dir, "2024-25.csv", "Team,GB\nCeltics,0\nKnicks,4\n")
	jsonPath := writeFile(t, dir, "odds.json",
		`[{"game_id":"g1","bookmakers":[{"key":"bet365","price":1.9}]}]`)

	standings := config.Table{Name: "standings", ForceTypes: map[string]string{"gb": "float"}}
	odds := config.Table{Name: "odds", StructuredColumns: []string{"bookmakers"}}
	datasets := []source.Dataset{
		{TableName: "standings", Kind: source.KindShardedByKey, Format: "csv",
			Files: []source.ShardFile{{Path: csvPath}}},
		{TableName: "odds", Kind: source.KindJSONArray, Format: "json",
			Files: []source.ShardFile{{Path: jsonPath}}},
	}

	schemas, _, err := analyzerFor(standings, odds).Analyze(context.Background(), datasets)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if col, _ := schemas["standings"].Column("gb"); col.Type != schema.TypeFloat {
		t.Fatalf("gb forced type = %s, want float", col.Type)
	}
	if col, _ := schemas["odds"].Column("bookmakers"); col.Type != schema.TypeJSON {
		t.Fatalf("bookmakers type = %s, want json", col.Type)
	}
}

func TestAnalyze_SampleIsBoundedButCountIsFull(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	// Rows past the sample window hold garbage; inference must not see it.
	path := writeFile(t, dir, "data.csv", "n\n1\n2\nx\ny\nz\n")

	table := config.Table{Name: "numbers"}
	a := NewAnalyzer(&config.Config{SampleRows: 2, Tables: []config.Table{table}}, nil)
	ds := source.Dataset{
		TableName: "numbers",
		Kind:      source.KindSingleFile,
		Format:    "csv",
		Files:     []source.ShardFile{{Path: path}},
	}

	schemas, _, err := a.Analyze(context.Background(), []source.Dataset{ds})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	ts := schemas["numbers"]
	if col, _ := ts.Column("n"); col.Type != schema.TypeInteger {
		t.Fatalf("type from bounded sample = %s, want integer", col.Type)
	}
	if ts.RowCountEstimate != 5 {
		t.Fatalf("RowCountEstimate = %d, want 5", ts.RowCountEstimate)
	}
}

func TestAnalyze_PrimaryKeyHintMissingColumn(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "games.csv", "a\n1\n")

	table := config.Table{Name: "games", PrimaryKey: "game_id"}
	ds := source.Dataset{
		TableName: "games",
		Kind:      source.KindSingleFile,
		Format:    "csv",
		Files:     []source.ShardFile{{Path: path}},
	}

	schemas, warnings, err := analyzerFor(table).Analyze(context.Background(), []source.Dataset{ds})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if schemas["games"].PrimaryKey != "" {
		t.Fatalf("primary key should stay unset for a missing hint")
	}
	if len(warnings) != 1 || !strings.Contains(warnings[0].Msg, "primary key") {
		t.Fatalf("want a primary key warning, got %v", warnings)
	}
}
