package llm

import (
	"testing"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain object", `{"name": "test", "value": 123}`, `{"name": "test", "value": 123}`},
		{"plain array", `[{"a": 1}, {"a": 2}]`, `[{"a": 1}, {"a": 2}]`},
		{"markdown fence", "```json\n{\"type\": \"bar\"}\n```", `{"type": "bar"}`},
		{"bare fence", "```\n[1, 2]\n```", `[1, 2]`},
		{"leading prose", `Here is the config: {"type": "line"} hope it helps`, `{"type": "line"}`},
		{"think tags", "<think>pick a pie</think>\n{\"type\": \"pie\"}", `{"type": "pie"}`},
		{"brackets inside strings", `note {"label": "a } b { c"} end`, `{"label": "a } b { c"}`},
		{"array before object", `rows: [{"x": 1}] and {"y": 2}`, `[{"x": 1}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractJSON(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, input := range []string{"", "no json here", "{unbalanced"} {
		if _, err := ExtractJSON(input); err == nil {
			t.Errorf("expected error for %q", input)
		}
	}
}

func TestParseJSONResponse(t *testing.T) {
	type reply struct {
		Type string `json:"type"`
	}
	got, err := ParseJSONResponse[reply]("```json\n{\"type\": \"bar\"}\n```")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Type != "bar" {
		t.Errorf("expected bar, got %q", got.Type)
	}
}

func TestParseRecords(t *testing.T) {
	tests := []struct {
		name  string
		input string
		count int
		first string
	}{
		{"single object", `{"invoice": "A-1", "total": 12.5}`, 1, "A-1"},
		{"array", `[{"invoice": "A-1"}, {"invoice": "A-2"}]`, 2, "A-1"},
		{"wrapped array", `{"records": [{"invoice": "B-7"}]}`, 1, "B-7"},
		{"fenced array", "```json\n[{\"invoice\": \"C-3\"}]\n```", 1, "C-3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := ParseRecords(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != tt.count {
				t.Fatalf("expected %d records, got %d", tt.count, len(records))
			}
			if records[0]["invoice"] != tt.first {
				t.Errorf("expected first invoice %q, got %v", tt.first, records[0]["invoice"])
			}
		})
	}
}

func TestParseRecords_RejectsScalars(t *testing.T) {
	if _, err := ParseRecords(`[1, 2, 3]`); err == nil {
		t.Error("expected error for an array of scalars")
	}
}
