package schema

// Generator renders the idempotent DDL sequence for a set of inferred tables.
//
// Statement order matters: the namespace statement comes first, then per
// table (in the caller-supplied order) the CREATE TABLE followed by its
// indexes. The generator never reorders tables; callers list referenced-only
// tables before the tables that reference them.
type Generator struct {
	Dialect   Dialect
	Namespace string
}

// NewGenerator returns a Generator rendering through the given dialect into
// the given namespace. Namespace may be empty.
func NewGenerator(d Dialect, namespace string) *Generator {
	return &Generator{Dialect: d, Namespace: namespace}
}

// Generate returns the full DDL sequence for the given tables: namespace,
// then every CREATE TABLE in caller order, then every index in the same
// order. Names in order without a schema are skipped, as are index hints
// naming a column absent from the final schema.
func (g *Generator) Generate(schemas map[string]*TableSchema, order []string) []string {
	out := make([]string, 0, len(order)*3+1)
	if stmt := g.NamespaceStatement(); stmt != "" {
		out = append(out, stmt)
	}
	for _, name := range order {
		t, ok := schemas[name]
		if !ok || t == nil {
			continue
		}
		out = append(out, g.Dialect.CreateTable(g.Namespace, t))
	}
	for _, name := range order {
		t, ok := schemas[name]
		if !ok || t == nil {
			continue
		}
		out = append(out, g.indexStatements(t)...)
	}
	return out
}

// NamespaceStatement returns the create-namespace statement, or "" when the
// dialect has no namespace concept.
func (g *Generator) NamespaceStatement() string {
	return g.Dialect.CreateNamespace(g.Namespace)
}

// TableStatements returns the CREATE TABLE plus index statements for one
// table. Callers apply these as a per-table batch so a failure skips only
// that table.
func (g *Generator) TableStatements(t *TableSchema) []string {
	out := make([]string, 0, 1+len(t.IndexColumns))
	out = append(out, g.Dialect.CreateTable(g.Namespace, t))
	out = append(out, g.indexStatements(t)...)
	return out
}

func (g *Generator) indexStatements(t *TableSchema) []string {
	out := make([]string, 0, len(t.IndexColumns))
	for _, col := range t.IndexColumns {
		if !t.HasColumn(col) {
			continue
		}
		out = append(out, g.Dialect.CreateIndex(g.Namespace, t.Name, col))
	}
	return out
}

// ForeignKeys returns the opt-in constraint statements for the detected
// relationships. Dialects that cannot add constraints contribute nothing.
func (g *Generator) ForeignKeys(rels []Relationship) []string {
	out := make([]string, 0, len(rels))
	for _, rel := range rels {
		if stmt := g.Dialect.AddForeignKey(g.Namespace, rel); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}
