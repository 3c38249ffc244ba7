// Package config defines the JSON configuration surface for a load run:
// where the input tree lives, which table roles to discover, per-table
// hints (primary key, indexes, forced types, filters, fills), relationship
// rules, the storage target and runtime knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Source kinds.
const (
	SourceFile     = "file"      // one fixed file
	SourceShardDir = "shard_dir" // every matching file in a directory
	SourceLatest   = "latest"    // most recent matching file by mtime
)

// Stem rules for shard directories.
const (
	// StemSeasonRange keeps only files whose stem splits on "-" into two
	// integer parts, e.g. "2024-25.csv". Everything else is logged and
	// excluded.
	StemSeasonRange = "season_range"
)

// Config is the root configuration for a load run.
type Config struct {
	InputRoot        string             `json:"input_root"`
	Storage          Storage            `json:"storage"`
	Tables           []Table            `json:"tables"`
	Relationships    []RelationshipRule `json:"relationships"`
	ApplyForeignKeys bool               `json:"apply_foreign_keys"`
	Workers          int                `json:"workers"`
	SampleRows       int                `json:"sample_rows"`
	ReportPath       string             `json:"report_path,omitempty"`
	Metrics          Metrics            `json:"metrics"`
}

// Storage names the target store.
type Storage struct {
	Kind      string `json:"kind"`
	DSN       string `json:"dsn"`
	Namespace string `json:"namespace"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend      string `json:"backend"` // "none" or "datadog"
	Tags         string `json:"tags,omitempty"`
	FlushSeconds int    `json:"flush_seconds,omitempty"`
}

// Table configures one table role: where its files come from and the hints
// the analyzer and loader apply on top of inference.
type Table struct {
	Name   string `json:"name"`
	Source Source `json:"source"`

	// PrimaryKey and IndexColumns are hints, not discoveries. Index hints
	// naming a column absent after sanitization are silently skipped.
	PrimaryKey   string   `json:"primary_key,omitempty"`
	IndexColumns []string `json:"index_columns,omitempty"`

	// ForceTypes overrides the inferred semantic type per sanitized column
	// name ("integer", "float", "boolean", "date", "timestamp",
	// "short_text", "long_text", "json").
	ForceTypes map[string]string `json:"force_types,omitempty"`

	// StructuredColumns marks raw column names whose per-row content is a
	// serialized list or mapping; they always infer as JSON.
	StructuredColumns []string `json:"structured_columns,omitempty"`

	// Filters drop rows before coercion.
	Filters []RowFilter `json:"filters,omitempty"`

	// Fills replaces a nil coerced value with a default, per sanitized
	// column name.
	Fills map[string]any `json:"fills,omitempty"`

	// ShardColumnValues rewrites a column to a fixed per-shard value:
	// column name to (shard value to cell value). Applied to every row of a
	// shard whose shard value has a mapping.
	ShardColumnValues map[string]map[string]string `json:"shard_column_values,omitempty"`

	// Options carries parser knobs (delimiter, charset, header_map, ...).
	Options Options `json:"options,omitempty"`
}

// Source locates a table's input files.
type Source struct {
	Kind     string `json:"kind"`
	Path     string `json:"path"`
	Pattern  string `json:"pattern,omitempty"`
	Format   string `json:"format,omitempty"` // "csv" or "json"; default by extension
	ShardKey string `json:"shard_key,omitempty"`
	StemRule string `json:"stem_rule,omitempty"`
}

// RowFilter drops rows whose column value is missing or matches a rejected
// token. Column is a sanitized name; matching happens on the raw cell text
// before coercion.
type RowFilter struct {
	Column     string   `json:"column"`
	DropEmpty  bool     `json:"drop_empty"`
	DropValues []string `json:"drop_values,omitempty"`
}

// RelationshipRule names a conventionally linked table pair. FromTable is
// the referencing side. The rule fires only when both tables exist and both
// carry a column sanitizing to LinkColumn.
type RelationshipRule struct {
	FromTable  string `json:"from_table"`
	ToTable    string `json:"to_table"`
	LinkColumn string `json:"link_column"`
}

// teamNames maps the franchise abbreviations used in team stat file names to
// full team names. Shard values are lowercased file stems.
var teamNames = map[string]string{
	"atl":  "Atlanta Hawks",
	"bkn":  "Brooklyn Nets",
	"bos":  "Boston Celtics",
	"cha":  "Charlotte Hornets",
	"chi":  "Chicago Bulls",
	"cle":  "Cleveland Cavaliers",
	"dal":  "Dallas Mavericks",
	"den":  "Denver Nuggets",
	"det":  "Detroit Pistons",
	"gs":   "Golden State Warriors",
	"hou":  "Houston Rockets",
	"ind":  "Indiana Pacers",
	"lac":  "LA Clippers",
	"lal":  "Los Angeles Lakers",
	"mem":  "Memphis Grizzlies",
	"mia":  "Miami Heat",
	"mil":  "Milwaukee Bucks",
	"min":  "Minnesota Timberwolves",
	"no":   "New Orleans Pelicans",
	"ny":   "New York Knicks",
	"okc":  "Oklahoma City Thunder",
	"orl":  "Orlando Magic",
	"phi":  "Philadelphia 76ers",
	"phx":  "Phoenix Suns",
	"por":  "Portland Trail Blazers",
	"sa":   "San Antonio Spurs",
	"sac":  "Sacramento Kings",
	"tor":  "Toronto Raptors",
	"utah": "Utah Jazz",
	"wsh":  "Washington Wizards",
}

// TeamNames returns a copy of the built-in abbreviation-to-franchise map.
func TeamNames() map[string]string {
	out := make(map[string]string, len(teamNames))
	for k, v := range teamNames {
		out[k] = v
	}
	return out
}

// Default returns the configuration for the conventional NBA dataset layout.
// Tables are listed in dependency order: referenced tables first.
func Default() *Config {
	return &Config{
		InputRoot: "data",
		Storage: Storage{
			Kind:      "postgres",
			Namespace: "espn",
		},
		Workers:    3,
		SampleRows: 100,
		Metrics:    Metrics{Backend: "none"},
		Tables: []Table{
			{
				Name: "team_stats",
				Source: Source{
					Kind:     SourceShardDir,
					Path:     "raw/team_stats",
					Pattern:  "*.csv",
					ShardKey: "team_abbrev",
				},
				IndexColumns: []string{"team_name", "team_abbrev", "season"},
				Filters: []RowFilter{
					{Column: "team_name", DropEmpty: true, DropValues: []string{"Unknown"}},
				},
				ShardColumnValues: map[string]map[string]string{
					"team_name": teamNames,
				},
			},
			{
				Name: "games",
				Source: Source{
					Kind: SourceFile,
					Path: "processed/nba_full_dataset.csv",
				},
				PrimaryKey:   "game_id",
				IndexColumns: []string{"fecha", "home_team", "away_team"},
			},
			{
				Name: "standings",
				Source: Source{
					Kind:     SourceShardDir,
					Path:     "raw/standings",
					Pattern:  "*.csv",
					StemRule: StemSeasonRange,
				},
				IndexColumns: []string{"team_name", "season", "conference"},
				ForceTypes:   map[string]string{"gb": "float"},
				Filters: []RowFilter{
					{Column: "team", DropEmpty: true, DropValues: []string{"Team", "W", "Unknown"}},
				},
				Fills: map[string]any{"wins": 0, "losses": 0, "season": 0},
			},
			{
				Name: "injuries",
				Source: Source{
					Kind:    SourceLatest,
					Path:    "raw/injuries",
					Pattern: "*.csv",
				},
				// Raw-cased on purpose: these hints predate sanitization and
				// never match a sanitized column, so no index is created.
				IndexColumns: []string{"Team", "Player"},
			},
			{
				Name: "odds",
				Source: Source{
					Kind:    SourceLatest,
					Path:    "raw/odds",
					Pattern: "*.json",
				},
				PrimaryKey:        "game_id",
				IndexColumns:      []string{"home_team", "away_team", "commence_time"},
				StructuredColumns: []string{"bookmakers"},
			},
		},
		Relationships: []RelationshipRule{
			{FromTable: "standings", ToTable: "team_stats", LinkColumn: "team_name"},
			{FromTable: "injuries", ToTable: "team_stats", LinkColumn: "team_name"},
		},
	}
}

// Load reads a JSON config file. Absent sections fall back to defaults: a
// file without "tables" gets the conventional table set, a file without
// "relationships" gets the conventional rules, and zero-valued runtime knobs
// are filled by Normalize.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	def := Default()
	if cfg.InputRoot == "" {
		cfg.InputRoot = def.InputRoot
	}
	if cfg.Tables == nil {
		cfg.Tables = def.Tables
	}
	if cfg.Relationships == nil {
		cfg.Relationships = def.Relationships
	}
	if cfg.Storage.Kind == "" {
		cfg.Storage.Kind = def.Storage.Kind
	}
	if cfg.Storage.Namespace == "" {
		cfg.Storage.Namespace = def.Storage.Namespace
	}
	cfg.Normalize()
	return &cfg, nil
}

// Normalize lowercases and aliases the storage kind and fills zero-valued
// runtime knobs with their defaults.
func (c *Config) Normalize() {
	c.Storage.Kind = NormalizeStorageKind(c.Storage.Kind)
	if c.Workers <= 0 {
		c.Workers = 3
	}
	if c.SampleRows <= 0 {
		c.SampleRows = 100
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "none"
	}
	if c.Metrics.FlushSeconds <= 0 {
		c.Metrics.FlushSeconds = 15
	}
	for i := range c.Tables {
		t := &c.Tables[i]
		if t.Source.Pattern == "" && t.Source.Kind != SourceFile {
			t.Source.Pattern = "*.csv"
		}
		if t.Source.Format == "" {
			t.Source.Format = formatForSource(t.Source)
		}
	}
}

// formatForSource derives the parse format from the pattern or path
// extension.
func formatForSource(s Source) string {
	name := s.Pattern
	if s.Kind == SourceFile {
		name = s.Path
	}
	if strings.HasSuffix(strings.ToLower(name), ".json") {
		return "json"
	}
	return "csv"
}

// Validate reports the first structural problem in the configuration.
// Connectivity is not checked here; that happens when the repository opens.
func (c *Config) Validate() error {
	if c.InputRoot == "" {
		return fmt.Errorf("config: input_root is required")
	}
	switch c.Storage.Kind {
	case "postgres", "sqlite", "mssql":
	default:
		return fmt.Errorf("config: unsupported storage.kind=%s", c.Storage.Kind)
	}
	if len(c.Tables) == 0 {
		return fmt.Errorf("config: at least one table is required")
	}
	seen := make(map[string]struct{}, len(c.Tables))
	for _, t := range c.Tables {
		if t.Name == "" {
			return fmt.Errorf("config: table with empty name")
		}
		if _, dup := seen[t.Name]; dup {
			return fmt.Errorf("config: duplicate table %s", t.Name)
		}
		seen[t.Name] = struct{}{}
		switch t.Source.Kind {
		case SourceFile, SourceShardDir, SourceLatest:
		default:
			return fmt.Errorf("config: table %s: unsupported source.kind=%s", t.Name, t.Source.Kind)
		}
		if t.Source.Path == "" {
			return fmt.Errorf("config: table %s: source.path is required", t.Name)
		}
		if t.Source.StemRule != "" && t.Source.StemRule != StemSeasonRange {
			return fmt.Errorf("config: table %s: unknown stem_rule=%s", t.Name, t.Source.StemRule)
		}
		if t.Source.ShardKey != "" && t.Source.Kind != SourceShardDir {
			return fmt.Errorf("config: table %s: shard_key requires source.kind=%s", t.Name, SourceShardDir)
		}
	}
	for _, r := range c.Relationships {
		if r.FromTable == "" || r.ToTable == "" || r.LinkColumn == "" {
			return fmt.Errorf("config: relationship rule needs from_table, to_table and link_column")
		}
		if _, ok := seen[r.FromTable]; !ok {
			return fmt.Errorf("config: relationship rule references unknown table %s", r.FromTable)
		}
		if _, ok := seen[r.ToTable]; !ok {
			return fmt.Errorf("config: relationship rule references unknown table %s", r.ToTable)
		}
	}
	return nil
}

// TableOrder returns the configured table names in declaration order. This
// is both the DDL order and the scheduling preference order.
func (c *Config) TableOrder() []string {
	out := make([]string, len(c.Tables))
	for i, t := range c.Tables {
		out[i] = t.Name
	}
	return out
}

// TableByName returns the configuration for one table.
func (c *Config) TableByName(name string) (Table, bool) {
	for _, t := range c.Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// NormalizeStorageKind lowercases a storage kind and folds the common
// aliases onto the registered names.
func NormalizeStorageKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	case "mssql", "sqlserver", "sql-server":
		return "mssql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return strings.ToLower(strings.TrimSpace(kind))
	}
}
