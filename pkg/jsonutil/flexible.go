// Package jsonutil normalizes loosely typed JSON produced by language models.
package jsonutil

import (
	"encoding/json"
	"strconv"
)

// FlexibleString renders a decoded JSON value as text. Models routinely answer
// with numbers or booleans where a string was asked for, and whole numbers
// decoded as float64 must not come back as "4.2e+01". Returns "" for nil.
func FlexibleString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'g', -1, 64)
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// FlexibleStringValue is FlexibleString for a raw message. Objects and arrays
// are returned verbatim.
func FlexibleStringValue(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	switch v.(type) {
	case map[string]any, []any:
		return string(raw)
	}
	return FlexibleString(v)
}
