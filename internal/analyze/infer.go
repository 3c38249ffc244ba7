package analyze

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"nbaload/internal/schema"
)

// Inference thresholds. The exact cutoffs are load-bearing for schema
// stability across runs; tune them only together with the stored schemas.
const (
	// NumericShareThreshold is the fraction of non-missing values that must
	// parse as numbers for a mostly-numeric text column to become numeric.
	NumericShareThreshold = 0.8

	// ShortTextNarrowLimit and ShortTextWideLimit split text columns into
	// width buckets by the longest observed value.
	ShortTextNarrowLimit = 50
	ShortTextWideLimit   = 500

	// Declared widths for the two short text buckets.
	narrowTextWidth = 255
	wideTextWidth   = 1000
)

// dateAliases are column names that force a date type no matter what the
// values look like. Matched case-insensitively against the sanitized name.
var dateAliases = map[string]bool{
	"fecha":     true,
	"date":      true,
	"game_date": true,
}

// Infer decides the semantic type of one column from its sampled values.
// The empty string marks a missing value; missing values set nullable but
// never influence the type choice. For short text types maxLen carries the
// declared column width, otherwise it is zero. Columns the caller marks
// structured are always a JSON blob.
func Infer(name string, values []string, structured bool) (typ schema.SemanticType, maxLen int, nullable bool) {
	if structured {
		return schema.TypeJSON, 0, anyMissing(values)
	}

	present := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			nullable = true
			continue
		}
		present = append(present, v)
	}

	if dateAliases[strings.ToLower(name)] {
		return schema.TypeDate, 0, nullable
	}
	if len(present) == 0 {
		return schema.TypeShortText, narrowTextWidth, nullable
	}

	allInt := true
	allFloat := true
	allBool := true
	sawTrue := false
	sawFalse := false
	numeric := 0
	fractional := false
	longest := 0
	for _, v := range present {
		if _, err := strconv.ParseInt(v, 10, 64); err != nil {
			allInt = false
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			allFloat = false
		} else {
			numeric++
			if math.Trunc(f) != f {
				fractional = true
			}
		}
		switch strings.ToLower(v) {
		case "true":
			sawTrue = true
		case "false":
			sawFalse = true
		default:
			allBool = false
		}
		if n := utf8.RuneCountInString(v); n > longest {
			longest = n
		}
	}

	switch {
	case allInt:
		return schema.TypeInteger, 0, nullable
	case allFloat:
		return schema.TypeFloat, 0, nullable
	case allBool && sawTrue && sawFalse:
		// The value set must be exactly {true, false}; a column that only
		// ever says "true" stays text.
		return schema.TypeBoolean, 0, nullable
	case float64(numeric)/float64(len(present)) >= NumericShareThreshold:
		// Mostly numeric: the stragglers become nulls at load time.
		if fractional {
			return schema.TypeFloat, 0, nullable
		}
		return schema.TypeInteger, 0, nullable
	case longest < ShortTextNarrowLimit:
		return schema.TypeShortText, narrowTextWidth, nullable
	case longest < ShortTextWideLimit:
		return schema.TypeShortText, wideTextWidth, nullable
	default:
		return schema.TypeLongText, 0, nullable
	}
}

func anyMissing(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}
