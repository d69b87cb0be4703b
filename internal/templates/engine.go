package templates

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/ppiankov/medrights/internal/model"
)

// Context holds the values a template is rendered against
type Context map[string]any

// Keys returns the populated context keys, sorted
func (c Context) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

const (
	bulletedSuffix   = "_bulleted"
	noneSpecified    = "None specified"
	componentJoin    = "\n\n"
	clauseSeparator  = "\n---\n"
	noClausesMessage = "No relevant clauses found."
)

// tag lists rendered as readable, comma-joined labels
var tagKeys = map[string]bool{
	"rights":      true,
	"obligations": true,
	"exceptions":  true,
}

var placeholderRe = regexp.MustCompile(`\{(\w+)\}`)

// Engine renders templates from a Library. Output depends only on the
// template id and the context, so repeated renders are byte-identical.
type Engine struct {
	library *Library
}

// NewEngine creates an engine over lib
func NewEngine(lib *Library) *Engine {
	return &Engine{library: lib}
}

// Library returns the template library
func (e *Engine) Library() *Library {
	return e.library
}

// Render renders the template with id against ctx. An unknown id renders a
// short diagnostic instead of failing.
func (e *Engine) Render(id string, ctx Context) string {
	tmpl, ok := e.library.Get(id)
	if !ok {
		return fmt.Sprintf("Template '%s' not found.", id)
	}

	parts := make([]string, 0, len(tmpl.Components))
	for _, comp := range tmpl.Components {
		if !comp.Condition.Eval(ctx) {
			continue
		}

		text := Substitute(comp.Text, ctx)
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, comp.Style.Apply(text))
	}

	return strings.Join(parts, componentJoin)
}

// Placeholders returns the distinct variable names a template references,
// sorted. Unknown ids have none.
func (e *Engine) Placeholders(id string) []string {
	tmpl, ok := e.library.Get(id)
	if !ok {
		return nil
	}

	set := make(map[string]bool)
	for _, comp := range tmpl.Components {
		for _, m := range placeholderRe.FindAllStringSubmatch(comp.Text, -1) {
			set[m[1]] = true
		}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Substitute replaces every {name} in text with the formatted context value.
// Missing keys become empty strings. Substituted values are not re-scanned.
func Substitute(text string, ctx Context) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := m[1 : len(m)-1]
		return formatValue(name, ctx[name])
	})
}

func formatValue(name string, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		switch {
		case strings.HasSuffix(name, bulletedSuffix):
			return FormatBulleted(t)
		case tagKeys[name]:
			return FormatTags(t)
		default:
			return strings.Join(t, ", ")
		}
	case map[string]string:
		return FormatTimeframes(t)
	default:
		return fmt.Sprint(t)
	}
}

// FormatBulleted renders items one per line with a bullet, or
// "None specified" when there are none.
func FormatBulleted(items []string) string {
	if len(items) == 0 {
		return noneSpecified
	}
	lines := make([]string, len(items))
	for i, item := range items {
		lines[i] = "• " + item
	}
	return strings.Join(lines, "\n")
}

// FormatTimeframes renders a timeframe map as "Key: value; Key2: value2"
// with keys in sorted order.
func FormatTimeframes(timeframes map[string]string) string {
	if len(timeframes) == 0 {
		return ""
	}

	keys := make([]string, 0, len(timeframes))
	for k := range timeframes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	notes := make([]string, 0, len(keys))
	for _, k := range keys {
		notes = append(notes, Readable(k)+": "+timeframes[k])
	}
	return strings.Join(notes, "; ")
}

// FormatTags renders snake_case tags as a comma-joined readable list
func FormatTags(tags []string) string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = Readable(t)
	}
	return strings.Join(out, ", ")
}

// Readable turns a snake_case tag into title-cased words
func Readable(tag string) string {
	// Casers keep state, so one is built per call
	return cases.Title(language.English).String(strings.ReplaceAll(tag, "_", " "))
}

// RenderClauseSummary renders the list view of one clause
func (e *Engine) RenderClauseSummary(c model.Clause) string {
	return Substitute("**{title}** ({citation})\n{paraphrase}\n", Context{
		"title":      c.Title,
		"citation":   c.CitationFormat,
		"paraphrase": c.Paraphrase,
	})
}

// RenderClauseList renders clause summaries separated by a rule
func (e *Engine) RenderClauseList(clauses []model.Clause) string {
	if len(clauses) == 0 {
		return noClausesMessage
	}
	summaries := make([]string, len(clauses))
	for i, c := range clauses {
		summaries[i] = e.RenderClauseSummary(c)
	}
	return strings.Join(summaries, clauseSeparator)
}
