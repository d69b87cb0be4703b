package knowledge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/ppiankov/medrights/internal/data"
	"github.com/ppiankov/medrights/internal/model"
)

// EmbeddedSource names the knowledge file compiled into the binary
const EmbeddedSource = "embedded:knowledge_base.json"

// ErrNotFound is returned when a clause id is not in the knowledge base
var ErrNotFound = errors.New("clause not found")

// LoadError reports a missing, malformed or invalid knowledge file
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load knowledge base %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

type knowledgeFile struct {
	Metadata      model.KnowledgeMetadata                `json:"metadata"`
	Documents     map[model.DocumentCode]model.Document `json:"documents"`
	Clauses       []model.Clause                         `json:"clauses"`
	Relationships []model.Relationship                   `json:"relationships,omitempty"`
}

// Base is an immutable, indexed clause collection. All methods are safe for
// concurrent use because nothing is written after Parse returns.
type Base struct {
	source        string
	meta          model.KnowledgeMetadata
	documents     map[model.DocumentCode]model.Document
	clauses       []model.Clause
	relationships []model.Relationship

	byID     map[string]int
	byIntent map[string][]int
	byRight  map[string][]int
}

// Load reads and validates a knowledge file from disk
func Load(path string) (*Base, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return Parse(path, raw)
}

// LoadEmbedded parses the knowledge file compiled into the binary
func LoadEmbedded() (*Base, error) {
	return Parse(EmbeddedSource, data.KnowledgeBase)
}

// Parse decodes and validates knowledge data. Unknown fields are rejected so
// schema drift fails at startup instead of silently dropping data.
func Parse(source string, raw []byte) (*Base, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var f knowledgeFile
	if err := dec.Decode(&f); err != nil {
		return nil, &LoadError{Path: source, Err: fmt.Errorf("decode: %w", err)}
	}

	if err := validate(&f); err != nil {
		return nil, &LoadError{Path: source, Err: err}
	}

	b := &Base{
		source:        source,
		meta:          f.Metadata,
		documents:     f.Documents,
		clauses:       f.Clauses,
		relationships: f.Relationships,
		byID:          make(map[string]int, len(f.Clauses)),
		byIntent:      make(map[string][]int),
		byRight:       make(map[string][]int),
	}

	for i, c := range b.clauses {
		b.byID[c.ID] = i
		for _, intent := range c.IntentMatch {
			b.byIntent[intent] = append(b.byIntent[intent], i)
		}
		for _, right := range c.Rights {
			b.byRight[right] = append(b.byRight[right], i)
		}
	}

	return b, nil
}

func validate(f *knowledgeFile) error {
	var errs []error

	if f.Metadata.Version == "" {
		errs = append(errs, errors.New("metadata.version is required"))
	}
	if len(f.Clauses) == 0 {
		errs = append(errs, errors.New("no clauses"))
	}
	if f.Metadata.TotalClauses != len(f.Clauses) {
		errs = append(errs, fmt.Errorf("metadata.total_clauses is %d but file has %d clauses",
			f.Metadata.TotalClauses, len(f.Clauses)))
	}

	for code := range f.Documents {
		if !code.Valid() {
			errs = append(errs, fmt.Errorf("unknown document %q", code))
		}
	}

	seen := make(map[string]bool, len(f.Clauses))
	for i, c := range f.Clauses {
		at := fmt.Sprintf("clause %d (%s)", i, c.ID)

		if c.ID == "" {
			errs = append(errs, fmt.Errorf("%s: id is required", at))
			continue
		}
		if seen[c.ID] {
			errs = append(errs, fmt.Errorf("%s: duplicate id", at))
		}
		seen[c.ID] = true

		if !c.Document.Valid() {
			errs = append(errs, fmt.Errorf("%s: unknown document %q", at, c.Document))
		} else {
			if _, ok := f.Documents[c.Document]; !ok {
				errs = append(errs, fmt.Errorf("%s: document %s missing from documents", at, c.Document))
			}
			if !strings.HasPrefix(c.ID, string(c.Document)+"-") {
				errs = append(errs, fmt.Errorf("%s: id must start with %s-", at, c.Document))
			}
		}

		if c.Section == "" {
			errs = append(errs, fmt.Errorf("%s: section is required", at))
		}
		if c.Title == "" {
			errs = append(errs, fmt.Errorf("%s: title is required", at))
		}
		if c.Category == "" {
			errs = append(errs, fmt.Errorf("%s: category is required", at))
		}
		if c.CitationFormat == "" {
			errs = append(errs, fmt.Errorf("%s: citation_format is required", at))
		}
	}

	return errors.Join(errs...)
}

// Source returns the path or embedded name the base was loaded from
func (b *Base) Source() string {
	return b.source
}

// GetByID returns the clause with the given id, or ErrNotFound
func (b *Base) GetByID(id string) (model.Clause, error) {
	i, ok := b.byID[id]
	if !ok {
		return model.Clause{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b.clauses[i], nil
}

// GetByIntent returns clauses declaring the intent, in file order
func (b *Base) GetByIntent(intent string) []model.Clause {
	return b.pick(b.byIntent[intent])
}

// GetByRight returns clauses carrying the right tag, in file order
func (b *Base) GetByRight(right string) []model.Clause {
	return b.pick(b.byRight[right])
}

// GetByCategory returns clauses in the category, in file order
func (b *Base) GetByCategory(category string) []model.Clause {
	var out []model.Clause
	for _, c := range b.clauses {
		if c.Category == category {
			out = append(out, c)
		}
	}
	return out
}

// SearchByKeyword does a case-insensitive substring search over keywords,
// then title, exact text and paraphrase. Each clause appears at most once.
// A blank term matches nothing.
func (b *Base) SearchByKeyword(term string) []model.Clause {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}

	var out []model.Clause
	for _, c := range b.clauses {
		if matchesKeyword(c, term) || matchesText(c, term) {
			out = append(out, c)
		}
	}
	return out
}

func matchesKeyword(c model.Clause, term string) bool {
	for _, kw := range c.Keywords {
		if strings.Contains(strings.ToLower(kw), term) {
			return true
		}
	}
	return false
}

func matchesText(c model.Clause, term string) bool {
	return strings.Contains(strings.ToLower(c.Title), term) ||
		strings.Contains(strings.ToLower(c.ExactText), term) ||
		strings.Contains(strings.ToLower(c.Paraphrase), term)
}

// AllClauses returns every clause in file order
func (b *Base) AllClauses() []model.Clause {
	return slices.Clone(b.clauses)
}

// Metadata returns the runtime header of the knowledge base
func (b *Base) Metadata() model.Metadata {
	return model.Metadata{
		SystemName:       b.meta.SystemName,
		Version:          b.meta.Version,
		TotalClauseCount: len(b.clauses),
	}
}

// Documents returns the source documents keyed by code
func (b *Base) Documents() map[model.DocumentCode]model.Document {
	out := make(map[model.DocumentCode]model.Document, len(b.documents))
	for k, v := range b.documents {
		out[k] = v
	}
	return out
}

// Relationships returns the right-to-obligation links declared in the file
func (b *Base) Relationships() []model.Relationship {
	return slices.Clone(b.relationships)
}

// Categories returns the distinct clause categories, sorted
func (b *Base) Categories() []string {
	set := make(map[string]bool)
	for _, c := range b.clauses {
		set[c.Category] = true
	}
	out := make([]string, 0, len(set))
	for cat := range set {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// RightsForActor lists every right held in clauses naming the actor
func (b *Base) RightsForActor(actor string) []model.ActorEntry {
	return b.actorEntries(actor, func(c model.Clause) []string { return c.Rights })
}

// ObligationsForActor lists every obligation in clauses naming the actor
func (b *Base) ObligationsForActor(actor string) []model.ActorEntry {
	return b.actorEntries(actor, func(c model.Clause) []string { return c.Obligations })
}

func (b *Base) actorEntries(actor string, tags func(model.Clause) []string) []model.ActorEntry {
	var out []model.ActorEntry
	for _, c := range b.clauses {
		if !slices.Contains(c.Actors, actor) {
			continue
		}
		for _, tag := range tags(c) {
			out = append(out, model.ActorEntry{
				Tag:      tag,
				ClauseID: c.ID,
				Title:    c.Title,
				Document: c.Document,
				Section:  c.Section,
			})
		}
	}
	return out
}

// Intents returns every intent name referenced by a clause, sorted
func (b *Base) Intents() []string {
	out := make([]string, 0, len(b.byIntent))
	for intent := range b.byIntent {
		out = append(out, intent)
	}
	sort.Strings(out)
	return out
}

// Stats summarises the knowledge base for front ends
func (b *Base) Stats() model.Stats {
	counts := make(map[string]int)
	for _, c := range b.clauses {
		counts[c.Category]++
	}

	docs := make([]string, 0, len(b.documents))
	for code := range b.documents {
		docs = append(docs, string(code))
	}
	sort.Strings(docs)

	return model.Stats{
		SystemName:     b.meta.SystemName,
		Version:        b.meta.Version,
		TotalClauses:   len(b.clauses),
		Documents:      docs,
		CategoryCounts: counts,
	}
}

func (b *Base) pick(idx []int) []model.Clause {
	if len(idx) == 0 {
		return nil
	}
	out := make([]model.Clause, 0, len(idx))
	for _, i := range idx {
		out = append(out, b.clauses[i])
	}
	return out
}
