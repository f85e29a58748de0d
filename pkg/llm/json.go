package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// thinkTagPattern matches a leading <think>...</think> block.
	thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)
	// fencePattern matches a markdown code fence around the reply.
	fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*\\n?(.*?)```")
)

// StripFormatting removes reasoning tags and a surrounding markdown fence.
func StripFormatting(response string) string {
	cleaned := thinkTagPattern.ReplaceAllString(response, "")
	if m := fencePattern.FindStringSubmatch(cleaned); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(cleaned)
}

// ExtractJSON returns the first balanced JSON object or array in response.
func ExtractJSON(response string) (string, error) {
	cleaned := StripFormatting(response)
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	candidates := [][2]byte{{'{', '}'}, {'[', ']'}}
	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		candidates[0], candidates[1] = candidates[1], candidates[0]
	}
	for _, pair := range candidates {
		if s, ok := balancedSpan(cleaned, pair[0], pair[1]); ok && json.Valid([]byte(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("no valid JSON found in response")
}

// balancedSpan returns the first open...close span, skipping brackets inside
// JSON strings.
func balancedSpan(s string, open, closing byte) (string, bool) {
	start := strings.IndexByte(s, open)
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closing:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// ParseJSONResponse extracts JSON from a response and unmarshals it into T.
func ParseJSONResponse[T any](response string) (T, error) {
	var result T

	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("unmarshal JSON: %w", err)
	}
	return result, nil
}

// ParseRecords parses a reply that is either one JSON object or an array of
// objects. A single object becomes a one-element list. Array entries that are
// not objects are an error.
func ParseRecords(response string) ([]map[string]any, error) {
	jsonStr, err := ExtractJSON(response)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(jsonStr, "{") {
		var obj map[string]any
		if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		if inner, ok := wrappedRecords(obj); ok {
			return inner, nil
		}
		return []map[string]any{obj}, nil
	}

	var records []map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &records); err != nil {
		return nil, fmt.Errorf("unmarshal JSON records: %w", err)
	}
	return records, nil
}

// wrappedRecords unwraps {"records": [...]} style replies that JSON mode
// forces on providers which cannot return a top-level array.
func wrappedRecords(obj map[string]any) ([]map[string]any, bool) {
	if len(obj) != 1 {
		return nil, false
	}
	for _, v := range obj {
		list, ok := v.([]any)
		if !ok {
			return nil, false
		}
		out := make([]map[string]any, 0, len(list))
		for _, item := range list {
			m, ok := item.(map[string]any)
			if !ok {
				return nil, false
			}
			out = append(out, m)
		}
		return out, true
	}
	return nil, false
}
