// Package schema holds the storage-independent table model shared by the
// analyzer, the DDL generator and the storage backends. The types live here
// (and not in the analyzer package) to avoid a circular dependency between
// analysis and storage.
package schema

// SemanticType classifies a column independently of any storage backend.
// Dialects map each member to a concrete storage type.
type SemanticType string

const (
	TypeInteger   SemanticType = "integer"
	TypeFloat     SemanticType = "float"
	TypeBoolean   SemanticType = "boolean"
	TypeDate      SemanticType = "date"
	TypeTimestamp SemanticType = "timestamp"
	TypeShortText SemanticType = "short_text"
	TypeLongText  SemanticType = "long_text"
	TypeJSON      SemanticType = "json"
)

// ColumnSchema describes one inferred column.
//
// Name is the sanitized identifier used in DDL and inserts. Original is the
// raw source header the column was derived from; the loader uses it to re-key
// raw rows before coercion. MaxLen is only meaningful for TypeShortText.
// Samples keeps a few raw values for diagnostics and reports; nothing loads
// from it.
type ColumnSchema struct {
	Name     string       `json:"name"`
	Original string       `json:"original,omitempty"`
	Type     SemanticType `json:"type"`
	MaxLen   int          `json:"max_len,omitempty"`
	Nullable bool         `json:"nullable"`
	Samples  []string     `json:"samples,omitempty"`
}

// TableSchema is the inferred schema for one table. Columns preserves source
// column order; DDL and inserts both follow it. PrimaryKey and IndexColumns
// carry sanitized names and come from configuration hints, never from value
// analysis.
type TableSchema struct {
	Name             string         `json:"name"`
	Columns          []ColumnSchema `json:"columns"`
	PrimaryKey       string         `json:"primary_key,omitempty"`
	IndexColumns     []string       `json:"index_columns,omitempty"`
	RowCountEstimate int64          `json:"row_count_estimate"`
}

// Column returns the column with the given sanitized name.
func (t *TableSchema) Column(name string) (ColumnSchema, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSchema{}, false
}

// HasColumn reports whether a column with the given sanitized name exists.
func (t *TableSchema) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ColumnNames returns the sanitized column names in schema order.
func (t *TableSchema) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Relationship is an advisory foreign-key edge between two inferred tables.
// FromTable is the referencing side, ToTable the referenced side. The loader
// uses these edges for ordering; constraint DDL is generated only when the
// caller opts in.
type Relationship struct {
	FromTable  string `json:"from_table"`
	FromColumn string `json:"from_column"`
	ToTable    string `json:"to_table"`
	ToColumn   string `json:"to_column"`
	Constraint string `json:"constraint_name"`
}
