package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nbaload/internal/config"
)

type captureLog struct {
	lines []string
}

func (c *captureLog) Printf(format string, v ...any) {
	c.lines = append(c.lines, fmt.Sprintf(format, v...))
}

func (c *captureLog) joined() string { return strings.Join(c.lines, "\n") }

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDiscover_SingleFile(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "processed", "games.csv"), "a,b\n1,2\n")

	tables := []config.Table{{
		Name:   "games",
		Source: config.Source{Kind: config.SourceFile, Path: "processed/games.csv", Format: "csv"},
	}}
	got := Discover(root, tables, nil)
	if len(got) != 1 {
		t.Fatalf("Discover returned %d datasets, want 1", len(got))
	}
	ds := got[0]
	if ds.Kind != KindSingleFile || ds.Format != "csv" || len(ds.Files) != 1 {
		t.Fatalf("unexpected dataset: %+v", ds)
	}
	if ds.ShardKey != nil {
		t.Fatalf("single file dataset should have no shard key")
	}
}

func TestDiscover_MissingInputSkipsRole(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	tables := []config.Table{{
		Name:   "games",
		Source: config.Source{Kind: config.SourceFile, Path: "processed/games.csv", Format: "csv"},
	}}
	log := &captureLog{}
	got := Discover(root, tables, log)
	if len(got) != 0 {
		t.Fatalf("Discover returned %d datasets, want 0", len(got))
	}
	if len(log.lines) == 0 || !strings.Contains(log.lines[0], "skipped") {
		t.Fatalf("expected a skip log line, got %q", log.joined())
	}
}

func TestDiscover_ShardDirDerivesShardValues(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "raw", "team_stats", "BOS.csv"), "h\n1\n")
	writeFile(t, filepath.Join(root, "raw", "team_stats", "lal.csv"), "h\n1\n")
	writeFile(t, filepath.Join(root, "raw", "team_stats", "notes.txt"), "ignore")

	tables := []config.Table{{
		Name: "team_stats",
		Source: config.Source{
			Kind:     config.SourceShardDir,
			Path:     "raw/team_stats",
			Pattern:  "*.csv",
			Format:   "csv",
			ShardKey: "team_abbrev",
		},
	}}
	got := Discover(root, tables, nil)
	if len(got) != 1 {
		t.Fatalf("Discover returned %d datasets, want 1", len(got))
	}
	ds := got[0]
	if ds.Kind != KindShardedByKey {
		t.Fatalf("Kind = %q, want %q", ds.Kind, KindShardedByKey)
	}
	if ds.ShardKey == nil || ds.ShardKey.Column != "team_abbrev" {
		t.Fatalf("ShardKey = %+v, want column team_abbrev", ds.ShardKey)
	}
	if len(ds.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(ds.Files), ds.Files)
	}
	// Sorted by file name, shard values lowercased from the stem.
	if ds.Files[0].Value != "bos" || ds.Files[1].Value != "lal" {
		t.Fatalf("shard values = %q, %q; want bos, lal", ds.Files[0].Value, ds.Files[1].Value)
	}
}

func TestDiscover_SeasonRangeStemExcludesOddFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "raw", "standings")
	for _, name := range []string{"2023-24.csv", "2024-25.csv", "summary.csv", "2024.csv", "east-west.csv"} {
		writeFile(t, filepath.Join(dir, name), "h\n1\n")
	}

	tables := []config.Table{{
		Name: "standings",
		Source: config.Source{
			Kind:     config.SourceShardDir,
			Path:     "raw/standings",
			Pattern:  "*.csv",
			Format:   "csv",
			StemRule: config.StemSeasonRange,
		},
	}}
	log := &captureLog{}
	got := Discover(root, tables, log)
	if len(got) != 1 {
		t.Fatalf("Discover returned %d datasets, want 1", len(got))
	}
	ds := got[0]
	if len(ds.Files) != 2 {
		t.Fatalf("got %d files, want 2: %+v", len(ds.Files), ds.Files)
	}
	if filepath.Base(ds.Files[0].Path) != "2023-24.csv" || filepath.Base(ds.Files[1].Path) != "2024-25.csv" {
		t.Fatalf("unexpected files: %+v", ds.Files)
	}
	if ds.ShardKey != nil {
		t.Fatalf("standings has no shard key, got %+v", ds.ShardKey)
	}
}

func TestDiscover_LatestPicksNewestModTime(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "raw", "odds")
	older := filepath.Join(dir, "odds_2025-01-01.json")
	newer := filepath.Join(dir, "odds_2025-02-01.json")
	writeFile(t, older, "[]")
	writeFile(t, newer, "[]")
	base := time.Now()
	if err := os.Chtimes(older, base.Add(-2*time.Hour), base.Add(-2*time.Hour)); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if err := os.Chtimes(newer, base, base); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	tables := []config.Table{{
		Name: "odds",
		Source: config.Source{
			Kind:    config.SourceLatest,
			Path:    "raw/odds",
			Pattern: "*.json",
			Format:  "json",
		},
	}}
	got := Discover(root, tables, nil)
	if len(got) != 1 {
		t.Fatalf("Discover returned %d datasets, want 1", len(got))
	}
	ds := got[0]
	if ds.Kind != KindJSONArray {
		t.Fatalf("Kind = %q, want %q", ds.Kind, KindJSONArray)
	}
	if len(ds.Files) != 1 || ds.Files[0].Path != newer {
		t.Fatalf("picked %+v, want %s", ds.Files, newer)
	}
}

func TestDiscover_PreservesConfiguredOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.csv"), "h\n1\n")
	writeFile(t, filepath.Join(root, "b.csv"), "h\n1\n")

	tables := []config.Table{
		{Name: "second", Source: config.Source{Kind: config.SourceFile, Path: "b.csv", Format: "csv"}},
		{Name: "first", Source: config.Source{Kind: config.SourceFile, Path: "a.csv", Format: "csv"}},
	}
	got := Discover(root, tables, nil)
	if len(got) != 2 {
		t.Fatalf("Discover returned %d datasets, want 2", len(got))
	}
	if got[0].TableName != "second" || got[1].TableName != "first" {
		t.Fatalf("order not preserved: %s, %s", got[0].TableName, got[1].TableName)
	}
}

func TestIsSeasonRangeStem(t *testing.T) {
	t.Parallel()

	cases := []struct {
		stem string
		want bool
	}{
		{"2023-24", true},
		{"1999-00", true},
		{"2024", false},
		{"east-west", false},
		{"2023-24-extra", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isSeasonRangeStem(tc.stem); got != tc.want {
			t.Errorf("isSeasonRangeStem(%q) = %v, want %v", tc.stem, got, tc.want)
		}
	}
}
