// Package analyze turns raw CSV/JSON inputs into schema.TableSchema values:
// header sanitization, per-column type inference, whole-table analysis and
// convention-driven relationship detection.
package analyze

import "strings"

// columnOverrides maps raw stat headers that would sanitize badly to stable
// identifiers. Exact match, checked before any rewrite rule.
var columnOverrides = map[string]string{
	"3P%":  "three_point_percent",
	"3P":   "three_pointers",
	"3PA":  "three_point_attempts",
	"2P%":  "two_point_percent",
	"FG%":  "field_goal_percent",
	"FGA":  "field_goal_attempts",
	"FT%":  "free_throw_percent",
	"FTA":  "free_throw_attempts",
	"Win%": "win_percent",
}

// reservedWords are identifiers that clash with SQL keywords on at least one
// supported backend. A sanitized name landing on one gets a "_stat" suffix.
var reservedWords = map[string]struct{}{
	"to":     {},
	"from":   {},
	"select": {},
	"where":  {},
	"order":  {},
	"group":  {},
	"by":     {},
	"as":     {},
	"table":  {},
	"user":   {},
}

// Sanitize converts a raw source header into a storage identifier: override
// table first, then "%" becomes "_percent", spaces and hyphens become "_",
// a leading digit gains a "stat_" prefix, the result is lowercased and
// reserved words get a "_stat" suffix.
//
// Sanitize is deterministic and idempotent; re-sanitizing an already
// sanitized name returns it unchanged. Empty input stays empty and is
// skipped by the analyzer.
func Sanitize(raw string) string {
	name := strings.TrimSpace(raw)
	if name == "" {
		return ""
	}
	if v, ok := columnOverrides[name]; ok {
		return v
	}

	name = strings.ReplaceAll(name, "%", "_percent")
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	if name[0] >= '0' && name[0] <= '9' {
		name = "stat_" + name
	}
	name = strings.ToLower(name)
	if _, ok := reservedWords[name]; ok {
		name += "_stat"
	}
	return name
}
