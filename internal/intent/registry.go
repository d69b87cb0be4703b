package intent

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/medrights/internal/data"
)

// EmbeddedSource names the intent file compiled into the binary
const EmbeddedSource = "embedded:intents.yaml"

// ConfigError reports an unreadable or inconsistent intent file. It is fatal
// at startup; the classifier never sees a half-valid registry.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("intent config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Definition is one named matching rule
type Definition struct {
	Name             string   `yaml:"-"`
	Description      string   `yaml:"description"`
	Category         string   `yaml:"category"`
	Keywords         []string `yaml:"keywords"`
	Verbs            []string `yaml:"verbs"`
	NegativePatterns []string `yaml:"negative_patterns"`
}

type registryFile struct {
	Metadata struct {
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"metadata"`
	Intents   map[string]Definition `yaml:"intents"`
	Priority  []string              `yaml:"priority"`
	Overrides []OverrideRule        `yaml:"overrides"`
}

// Registry is the closed set of known intents together with their legal
// precedence: a total priority order and a list of hard override groups.
type Registry struct {
	version   string
	intents   map[string]Definition
	names     []string
	priority  []string
	rank      map[string]int
	overrides []OverrideRule
}

// Load reads and validates an intent file from disk
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Path: path, Err: err}
	}
	return Parse(path, raw)
}

// LoadEmbedded parses the intent file compiled into the binary
func LoadEmbedded() (*Registry, error) {
	return Parse(EmbeddedSource, data.Intents)
}

// Parse decodes an intent file, normalizes every term with Normalize and
// checks that the priority list and override rules only name known intents.
func Parse(source string, raw []byte) (*Registry, error) {
	var f registryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, &ConfigError{Path: source, Err: fmt.Errorf("decode: %w", err)}
	}

	r := &Registry{
		version:   f.Metadata.Version,
		intents:   make(map[string]Definition, len(f.Intents)),
		priority:  f.Priority,
		rank:      make(map[string]int, len(f.Priority)),
		overrides: f.Overrides,
	}

	var errs []error
	if len(f.Intents) == 0 {
		errs = append(errs, errors.New("no intents defined"))
	}

	for name, def := range f.Intents {
		def.Name = name
		def.Keywords = normalizeTerms(def.Keywords)
		def.Verbs = normalizeTerms(def.Verbs)
		def.NegativePatterns = normalizeTerms(def.NegativePatterns)

		if def.Category == "" {
			errs = append(errs, fmt.Errorf("intent %s: category is required", name))
		}
		if len(def.Keywords)+len(def.Verbs)+len(def.NegativePatterns) == 0 {
			errs = append(errs, fmt.Errorf("intent %s: no keywords, verbs or patterns", name))
		}

		r.intents[name] = def
		r.names = append(r.names, name)
	}
	sort.Strings(r.names)

	for i, name := range f.Priority {
		if _, ok := r.intents[name]; !ok {
			errs = append(errs, fmt.Errorf("priority[%d]: unknown intent %q", i, name))
			continue
		}
		if _, dup := r.rank[name]; dup {
			errs = append(errs, fmt.Errorf("priority[%d]: %s listed twice", i, name))
			continue
		}
		r.rank[name] = i
	}

	ruleNames := make(map[string]bool, len(f.Overrides))
	for i, rule := range f.Overrides {
		if rule.Name == "" {
			errs = append(errs, fmt.Errorf("overrides[%d]: name is required", i))
		} else if ruleNames[rule.Name] {
			errs = append(errs, fmt.Errorf("overrides[%d]: duplicate rule %s", i, rule.Name))
		}
		ruleNames[rule.Name] = true

		if len(rule.Intents) == 0 {
			errs = append(errs, fmt.Errorf("override %s: no intents", rule.Name))
		}
		for _, name := range rule.Intents {
			if _, ok := r.intents[name]; !ok {
				errs = append(errs, fmt.Errorf("override %s: unknown intent %q", rule.Name, name))
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, &ConfigError{Path: source, Err: err}
	}
	return r, nil
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if n := Normalize(t); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Version returns the intent file version
func (r *Registry) Version() string {
	return r.version
}

// Names returns every known intent, sorted
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Lookup returns the definition for name
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.intents[name]
	return def, ok
}

// Has reports whether name is a known intent
func (r *Registry) Has(name string) bool {
	_, ok := r.intents[name]
	return ok
}

// Describe returns the human-readable description of an intent, or "" if
// the intent is unknown
func (r *Registry) Describe(name string) string {
	return r.intents[name].Description
}

// IntentsByCategory returns the intents tagged with category, sorted
func (r *Registry) IntentsByCategory(category string) []string {
	var out []string
	for _, name := range r.names {
		if r.intents[name].Category == category {
			out = append(out, name)
		}
	}
	return out
}

// Priority returns the declared precedence order
func (r *Registry) Priority() []string {
	return append([]string(nil), r.priority...)
}

// Rank returns the position of name in the priority list. Unlisted intents
// rank after every listed one.
func (r *Registry) Rank(name string) int {
	if i, ok := r.rank[name]; ok {
		return i
	}
	return len(r.priority)
}

// Overrides returns the hard override rules, strongest first
func (r *Registry) Overrides() []OverrideRule {
	return append([]OverrideRule(nil), r.overrides...)
}
