package analyze

import (
	"fmt"

	"nbaload/internal/config"
	"nbaload/internal/schema"
)

// Detect walks the configured table-role pairs and emits one advisory
// relationship per rule whose two tables both exist and both carry the
// sanitized link column. Rules touching absent tables or columns stay
// latent; they are not errors. The closed rule set keeps this from turning
// into general same-name matching across unrelated tables.
func Detect(schemas map[string]*schema.TableSchema, rules []config.RelationshipRule) []schema.Relationship {
	var rels []schema.Relationship
	for _, r := range rules {
		from, ok := schemas[r.FromTable]
		if !ok {
			continue
		}
		to, ok := schemas[r.ToTable]
		if !ok {
			continue
		}
		link := Sanitize(r.LinkColumn)
		if !from.HasColumn(link) || !to.HasColumn(link) {
			continue
		}
		rels = append(rels, schema.Relationship{
			FromTable:  r.FromTable,
			FromColumn: link,
			ToTable:    r.ToTable,
			ToColumn:   link,
			Constraint: fmt.Sprintf("fk_%s_%s", r.FromTable, r.ToTable),
		})
	}
	return rels
}
