package templates

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/medrights/internal/data"
)

// EmbeddedSource names the template file compiled into the binary
const EmbeddedSource = "embedded:templates.yaml"

// LoadError reports a missing, malformed or invalid template file
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load templates %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Style wraps rendered component text
type Style string

const (
	StyleNone   Style = ""
	StyleH1     Style = "h1"
	StyleH2     Style = "h2"
	StyleH3     Style = "h3"
	StyleBold   Style = "bold"
	StyleItalic Style = "italic"
)

// Valid reports whether the style is known
func (s Style) Valid() bool {
	switch s {
	case StyleNone, StyleH1, StyleH2, StyleH3, StyleBold, StyleItalic:
		return true
	default:
		return false
	}
}

// Apply wraps text in the style's markdown markers
func (s Style) Apply(text string) string {
	switch s {
	case StyleH1:
		return "# " + text
	case StyleH2:
		return "## " + text
	case StyleH3:
		return "### " + text
	case StyleBold:
		return "**" + text + "**"
	case StyleItalic:
		return "*" + text + "*"
	default:
		return text
	}
}

// Component is one conditional piece of a template
type Component struct {
	Type      string    `yaml:"type"`
	Text      string    `yaml:"text"`
	Condition Condition `yaml:"-"`
	Style     Style     `yaml:"style"`

	RawCondition string `yaml:"condition"`
}

// Template is a named, ordered list of components
type Template struct {
	ID          string      `yaml:"-"`
	Description string      `yaml:"description"`
	Components  []Component `yaml:"components"`
}

type libraryFile struct {
	Metadata struct {
		Version     string `yaml:"version"`
		Description string `yaml:"description"`
	} `yaml:"metadata"`
	Templates map[string]Template `yaml:"templates"`
}

// Library is the immutable set of templates keyed by id
type Library struct {
	version   string
	templates map[string]Template
}

// Load reads and validates a template file from disk
func Load(path string) (*Library, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(path, raw)
}

// LoadEmbedded parses the template file compiled into the binary
func LoadEmbedded() (*Library, error) {
	return Parse(EmbeddedSource, data.Templates)
}

// Parse decodes a template file and parses every component condition
func Parse(source string, raw []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, &LoadError{Path: source, Err: fmt.Errorf("decode: %w", err)}
	}

	var errs []error
	if len(f.Templates) == 0 {
		errs = append(errs, errors.New("no templates defined"))
	}

	lib := &Library{
		version:   f.Metadata.Version,
		templates: make(map[string]Template, len(f.Templates)),
	}

	for id, tmpl := range f.Templates {
		tmpl.ID = id
		if len(tmpl.Components) == 0 {
			errs = append(errs, fmt.Errorf("template %s: no components", id))
		}
		for i := range tmpl.Components {
			comp := &tmpl.Components[i]
			if !comp.Style.Valid() {
				errs = append(errs, fmt.Errorf("template %s component %d: unknown style %q", id, i, comp.Style))
			}
			comp.Condition = ParseCondition(comp.RawCondition)
			if !comp.Condition.Valid() {
				errs = append(errs, fmt.Errorf("template %s component %d: unknown condition %q", id, i, comp.RawCondition))
			}
		}
		lib.templates[id] = tmpl
	}

	if err := errors.Join(errs...); err != nil {
		return nil, &LoadError{Path: source, Err: err}
	}
	return lib, nil
}

// Version returns the template file version
func (l *Library) Version() string {
	return l.version
}

// Get returns the template with the given id
func (l *Library) Get(id string) (Template, bool) {
	t, ok := l.templates[id]
	return t, ok
}

// Has reports whether a template id is defined
func (l *Library) Has(id string) bool {
	_, ok := l.templates[id]
	return ok
}

// IDs returns every template id, sorted
func (l *Library) IDs() []string {
	ids := make([]string, 0, len(l.templates))
	for id := range l.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Require returns an error naming every id that is not defined
func (l *Library) Require(ids ...string) error {
	var missing []error
	for _, id := range ids {
		if !l.Has(id) {
			missing = append(missing, fmt.Errorf("template %s is not defined", id))
		}
	}
	return errors.Join(missing...)
}
