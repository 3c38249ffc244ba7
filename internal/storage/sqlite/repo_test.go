package sqlite

import (
	"strings"
	"testing"
	"time"
)

func TestBuildBulkInsertSQL_PlaceholdersAndArgsMatch(t *testing.T) {
	rows := [][]any{
		{int64(1), "a"},
		{int64(2), "b"},
	}
	q, args := buildBulkInsertSQL("games", []string{"id", "name"}, rows)

	want := `INSERT INTO "games" ("id", "name") VALUES (?, ?), (?, ?);`
	if q != want {
		t.Fatalf("sql:\n got  %s\n want %s", q, want)
	}
	if len(args) != 4 {
		t.Fatalf("got %d args, want 4", len(args))
	}
	if args[0] != int64(1) || args[3] != "b" {
		t.Fatalf("args out of order: %v", args)
	}
}

func TestBuildInsertIgnoreSQL_OrIgnoreForm(t *testing.T) {
	q, args := buildInsertIgnoreSQL("games", []string{"id"}, []any{int64(7)})

	if !strings.HasPrefix(q, "INSERT OR IGNORE INTO ") {
		t.Fatalf("missing OR IGNORE: %s", q)
	}
	if len(args) != 1 || args[0] != int64(7) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestNormalizeArg_TimeBecomesRFC3339(t *testing.T) {
	ts := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	got := normalizeArg(ts)
	s, ok := got.(string)
	if !ok {
		t.Fatalf("normalizeArg(time) = %T, want string", got)
	}
	if !strings.HasPrefix(s, "2024-01-15T00:00:00") {
		t.Fatalf("unexpected time encoding: %s", s)
	}

	if v := normalizeArg(int64(3)); v != int64(3) {
		t.Fatalf("non-time values must pass through, got %v", v)
	}
}

func TestMaxRowsPerStatement_StaysUnderParameterLimit(t *testing.T) {
	cases := []struct {
		columns int
		want    int
	}{
		{1, 900},
		{9, 100},
		{30, 30},
		{1000, 1},
	}
	for _, tc := range cases {
		got := maxRowsPerStatement(tc.columns)
		if got != tc.want {
			t.Errorf("maxRowsPerStatement(%d) = %d, want %d", tc.columns, got, tc.want)
		}
		if got*tc.columns > 999 && got != 1 {
			t.Errorf("maxRowsPerStatement(%d) = %d exceeds the parameter limit", tc.columns, got)
		}
	}
}
