package tabular

import (
	"math"
	"strconv"
	"strings"

	"github.com/sheetsmith/sheetsmith-engine/pkg/jsonutil"
)

// Kind is the coercion target derived from a live column type.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindFloat
	KindBoolean
)

// KindForDataType maps an information_schema data_type onto a coercion kind.
// Types with no numeric or boolean reading stay text and are cast by Postgres.
func KindForDataType(dataType string) Kind {
	switch strings.ToLower(strings.TrimSpace(dataType)) {
	case "smallint", "integer", "bigint":
		return KindInteger
	case "numeric", "decimal", "real", "double precision", "money":
		return KindFloat
	case "boolean":
		return KindBoolean
	default:
		return KindText
	}
}

// Coerce converts one cell. Blank cells become nil (NULL). Values that do not
// parse as the target kind are passed through as strings so the database
// reports the mismatch.
func Coerce(raw string, kind Kind) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	switch kind {
	case KindInteger:
		if n, err := strconv.ParseInt(cleanNumber(s), 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(cleanNumber(s), 64); err == nil && f == math.Trunc(f) {
			return int64(f)
		}
	case KindFloat:
		if f, err := strconv.ParseFloat(cleanNumber(s), 64); err == nil {
			return f
		}
	case KindBoolean:
		if b, ok := parseBool(s); ok {
			return b
		}
	default:
		return raw
	}
	return s
}

// CoerceValue converts a decoded JSON value, as returned by structured
// extraction, for a column of the given kind.
func CoerceValue(v any, kind Kind) any {
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		return Coerce(val, kind)
	case float64:
		switch kind {
		case KindInteger:
			if val == math.Trunc(val) {
				return int64(val)
			}
			return val
		case KindFloat:
			return val
		}
	case bool:
		if kind == KindBoolean {
			return val
		}
	}
	return Coerce(jsonutil.FlexibleString(v), kind)
}

// cleanNumber strips currency symbols and thousands separators.
func cleanNumber(s string) string {
	s = strings.TrimPrefix(s, "$")
	s = strings.TrimPrefix(s, "€")
	s = strings.TrimPrefix(s, "£")
	return strings.ReplaceAll(s, ",", "")
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}
