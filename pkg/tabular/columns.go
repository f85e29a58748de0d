package tabular

import "strings"

// ColumnMatch pairs a header position with the live column it fills.
type ColumnMatch struct {
	Index  int
	Column string
}

// MatchColumns returns the intersection of header and live column names in
// header order. Matching ignores case and treats spaces and dashes as
// underscores. Each live column is used at most once.
func MatchColumns(header, live []string) []ColumnMatch {
	byKey := make(map[string]string, len(live))
	for _, c := range live {
		byKey[NormalizeName(c)] = c
	}

	used := make(map[string]bool, len(live))
	var matches []ColumnMatch
	for i, h := range header {
		col, ok := byKey[NormalizeName(h)]
		if !ok || used[col] {
			continue
		}
		used[col] = true
		matches = append(matches, ColumnMatch{Index: i, Column: col})
	}
	return matches
}

// NormalizeName folds an identifier for tolerant comparison.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.Trim(name, `"`)
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}
