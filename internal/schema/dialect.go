package schema

import (
	"fmt"
	"strings"
)

// Dialect renders model elements as backend-specific SQL text. Each storage
// backend exposes the dialect it speaks and the DDL generator is
// parameterized by one. Insert and conflict handling stay inside the
// backends; their shapes differ structurally across engines.
type Dialect interface {
	// Kind is the storage kind the dialect belongs to ("postgres", "sqlite",
	// "mssql").
	Kind() string

	// QuoteIdent quotes a single identifier.
	QuoteIdent(ident string) string

	// QualifyTable renders a table reference, applying the namespace when the
	// dialect has one. Namespace may be empty.
	QualifyTable(namespace, table string) string

	// CreateNamespace renders the create-namespace-if-absent statement, or ""
	// when the dialect has no namespace concept.
	CreateNamespace(namespace string) string

	// ColumnType maps a column to its storage type.
	ColumnType(col ColumnSchema) string

	// CreateTable renders the idempotent CREATE TABLE statement.
	CreateTable(namespace string, t *TableSchema) string

	// CreateIndex renders the idempotent single-column index statement.
	CreateIndex(namespace, table, column string) string

	// AddForeignKey renders the constraint statement for one relationship, or
	// "" when the dialect cannot add constraints after table creation.
	AddForeignKey(namespace string, rel Relationship) string
}

// shortTextLen returns the declared length for a short text column. Columns
// inferred without a bucket fall back to the narrow one.
func shortTextLen(col ColumnSchema) int {
	if col.MaxLen > 0 {
		return col.MaxLen
	}
	return 255
}

// indexName builds the conventional idx_<table>_<column> identifier.
func indexName(table, column string) string {
	return "idx_" + table + "_" + column
}

// columnDefs renders the column definition list plus the table-level PRIMARY
// KEY clause. Shared across dialects; only the type mapping differs. The
// primary key column is always rendered NOT NULL regardless of its inferred
// nullability.
func columnDefs(d Dialect, t *TableSchema) []string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		var b strings.Builder
		b.WriteString(d.QuoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(d.ColumnType(c))
		if !c.Nullable || c.Name == t.PrimaryKey {
			b.WriteString(" NOT NULL")
		}
		defs = append(defs, b.String())
	}
	if t.PrimaryKey != "" {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", d.QuoteIdent(t.PrimaryKey)))
	}
	return defs
}

// ---- postgres ----

// Postgres renders DDL for PostgreSQL.
type Postgres struct{}

var _ Dialect = Postgres{}

func (Postgres) Kind() string { return "postgres" }

func (Postgres) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d Postgres) QualifyTable(namespace, table string) string {
	if namespace == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(namespace) + "." + d.QuoteIdent(table)
}

func (d Postgres) CreateNamespace(namespace string) string {
	if namespace == "" {
		return ""
	}
	return fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s;`, d.QuoteIdent(namespace))
}

func (Postgres) ColumnType(col ColumnSchema) string {
	switch col.Type {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "DOUBLE PRECISION"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "TIMESTAMP"
	case TypeShortText:
		return fmt.Sprintf("VARCHAR(%d)", shortTextLen(col))
	case TypeJSON:
		return "JSONB"
	default:
		return "TEXT"
	}
}

func (d Postgres) CreateTable(namespace string, t *TableSchema) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		d.QualifyTable(namespace, t.Name), strings.Join(columnDefs(d, t), ", "))
}

func (d Postgres) CreateIndex(namespace, table, column string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s);`,
		d.QuoteIdent(indexName(table, column)),
		d.QualifyTable(namespace, table),
		d.QuoteIdent(column))
}

func (d Postgres) AddForeignKey(namespace string, rel Relationship) string {
	return fmt.Sprintf(`ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);`,
		d.QualifyTable(namespace, rel.FromTable),
		d.QuoteIdent(rel.Constraint),
		d.QuoteIdent(rel.FromColumn),
		d.QualifyTable(namespace, rel.ToTable),
		d.QuoteIdent(rel.ToColumn))
}

// ---- sqlite ----

// SQLite renders DDL for SQLite. SQLite has no schema namespace; the
// namespace argument is ignored everywhere.
type SQLite struct{}

var _ Dialect = SQLite{}

func (SQLite) Kind() string { return "sqlite" }

func (SQLite) QuoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (d SQLite) QualifyTable(_, table string) string {
	return d.QuoteIdent(table)
}

func (SQLite) CreateNamespace(string) string { return "" }

func (SQLite) ColumnType(col ColumnSchema) string {
	switch col.Type {
	case TypeInteger, TypeBoolean:
		return "INTEGER"
	case TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

func (d SQLite) CreateTable(_ string, t *TableSchema) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`,
		d.QuoteIdent(t.Name), strings.Join(columnDefs(d, t), ", "))
}

func (d SQLite) CreateIndex(_, table, column string) string {
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s);`,
		d.QuoteIdent(indexName(table, column)),
		d.QuoteIdent(table),
		d.QuoteIdent(column))
}

// AddForeignKey returns "". SQLite cannot add constraints to an existing
// table; load ordering still honors the relationship.
func (SQLite) AddForeignKey(string, Relationship) string { return "" }

// ---- mssql ----

// MSSQL renders DDL for SQL Server. SQL Server has no IF NOT EXISTS clause on
// CREATE TABLE or CREATE INDEX, so every statement carries its own existence
// guard.
type MSSQL struct{}

var _ Dialect = MSSQL{}

func (MSSQL) Kind() string { return "mssql" }

func (MSSQL) QuoteIdent(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (d MSSQL) QualifyTable(namespace, table string) string {
	if namespace == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(namespace) + "." + d.QuoteIdent(table)
}

func (d MSSQL) CreateNamespace(namespace string) string {
	if namespace == "" {
		return ""
	}
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC(N'CREATE SCHEMA %s');",
		nEscape(namespace), nEscape(d.QuoteIdent(namespace)))
}

func (MSSQL) ColumnType(col ColumnSchema) string {
	switch col.Type {
	case TypeInteger:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeBoolean:
		return "BIT"
	case TypeDate:
		return "DATE"
	case TypeTimestamp:
		return "DATETIME2"
	case TypeShortText:
		return fmt.Sprintf("NVARCHAR(%d)", shortTextLen(col))
	default:
		return "NVARCHAR(MAX)"
	}
}

func (d MSSQL) CreateTable(namespace string, t *TableSchema) string {
	name := t.Name
	if namespace != "" {
		name = namespace + "." + name
	}
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		nEscape(name),
		d.QualifyTable(namespace, t.Name),
		strings.Join(columnDefs(d, t), ", "))
}

func (d MSSQL) CreateIndex(namespace, table, column string) string {
	object := table
	if namespace != "" {
		object = namespace + "." + table
	}
	return fmt.Sprintf(
		"IF NOT EXISTS (SELECT 1 FROM sys.indexes WHERE name = N'%s' AND object_id = OBJECT_ID(N'%s')) CREATE INDEX %s ON %s (%s);",
		nEscape(indexName(table, column)),
		nEscape(object),
		d.QuoteIdent(indexName(table, column)),
		d.QualifyTable(namespace, table),
		d.QuoteIdent(column))
}

func (d MSSQL) AddForeignKey(namespace string, rel Relationship) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'F') IS NULL ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		nEscape(rel.Constraint),
		d.QualifyTable(namespace, rel.FromTable),
		d.QuoteIdent(rel.Constraint),
		d.QuoteIdent(rel.FromColumn),
		d.QualifyTable(namespace, rel.ToTable),
		d.QuoteIdent(rel.ToColumn))
}

// nEscape escapes a value for embedding in an N'...' literal.
func nEscape(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// DialectFor returns the dialect for a normalized storage kind.
func DialectFor(kind string) (Dialect, bool) {
	switch kind {
	case "postgres":
		return Postgres{}, true
	case "sqlite":
		return SQLite{}, true
	case "mssql":
		return MSSQL{}, true
	default:
		return nil, false
	}
}
