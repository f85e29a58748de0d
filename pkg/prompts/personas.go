// Package prompts holds the system personas and the prompt builders for every
// model call the engine makes.
package prompts

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persona selects the model's behavioral mode. The set is closed; every value
// must have a text in personas.yaml.
type Persona int

const (
	PersonaDefault Persona = iota
	PersonaSQLCode
	PersonaSQLDesc
	PersonaTableCategorization
	PersonaNivoCharts
	PersonaJPGDataExtraction
)

var personaKeys = map[Persona]string{
	PersonaDefault:             "default",
	PersonaSQLCode:             "sql_code",
	PersonaSQLDesc:             "sql_desc",
	PersonaTableCategorization: "table_categorization",
	PersonaNivoCharts:          "nivo_charts",
	PersonaJPGDataExtraction:   "jpg_data_extraction",
}

// AllPersonas lists every persona in declaration order.
func AllPersonas() []Persona {
	return []Persona{
		PersonaDefault,
		PersonaSQLCode,
		PersonaSQLDesc,
		PersonaTableCategorization,
		PersonaNivoCharts,
		PersonaJPGDataExtraction,
	}
}

// Key is the persisted llm_type tag of the persona.
func (p Persona) Key() string {
	if k, ok := personaKeys[p]; ok {
		return k
	}
	return fmt.Sprintf("persona(%d)", int(p))
}

func (p Persona) String() string { return p.Key() }

// ParsePersona resolves a persisted key. Unknown keys are an error, never a
// silent fallback.
func ParsePersona(key string) (Persona, error) {
	for p, k := range personaKeys {
		if k == key {
			return p, nil
		}
	}
	return PersonaDefault, fmt.Errorf("unknown persona %q", key)
}

//go:embed personas.yaml
var personasYAML []byte

// Registry maps each persona to its system message.
type Registry struct {
	texts map[Persona]string
}

// LoadRegistry parses the embedded persona file and checks it covers the
// persona set exactly.
func LoadRegistry() (*Registry, error) {
	return parseRegistry(personasYAML)
}

func parseRegistry(data []byte) (*Registry, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse personas: %w", err)
	}

	texts := make(map[Persona]string, len(raw))
	for key, text := range raw {
		p, err := ParsePersona(key)
		if err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return nil, fmt.Errorf("persona %q has empty text", key)
		}
		texts[p] = text
	}
	for _, p := range AllPersonas() {
		if _, ok := texts[p]; !ok {
			return nil, fmt.Errorf("persona %q missing from personas.yaml", p.Key())
		}
	}
	return &Registry{texts: texts}, nil
}

// MustLoadRegistry is LoadRegistry for program start-up.
func MustLoadRegistry() *Registry {
	r, err := LoadRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// SystemMessage returns the system text for p.
func (r *Registry) SystemMessage(p Persona) string {
	return r.texts[p]
}
