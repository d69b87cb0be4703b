package intent

import (
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/medrights/internal/model"
)

// Normalize lowercases s, turns every rune that is not a letter, digit,
// underscore or space into a space and collapses runs of whitespace.
func Normalize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '_', unicode.IsSpace(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Score is the raw rule breakdown for one intent
type Score struct {
	Intent     string   `json:"intent"`
	Raw        float64  `json:"raw"`
	Confidence float64  `json:"confidence"`
	Keywords   []string `json:"keywords,omitempty"`
	Verbs      []string `json:"verbs,omitempty"`
	Patterns   []string `json:"patterns,omitempty"`
}

// Classifier ranks intents for a query with substring rules and the
// registry's legal precedence. It holds no mutable state.
type Classifier struct {
	registry *Registry
	scoring  model.ScoringConfig
}

// NewClassifier creates a classifier. Zero weights fall back to the defaults.
func NewClassifier(registry *Registry, scoring model.ScoringConfig) *Classifier {
	def := model.DefaultScoring()
	if scoring.KeywordWeight == 0 && scoring.PatternWeight == 0 && scoring.VerbWeight == 0 {
		scoring.KeywordWeight = def.KeywordWeight
		scoring.PatternWeight = def.PatternWeight
		scoring.VerbWeight = def.VerbWeight
	}
	if scoring.Normalizer <= 0 {
		scoring.Normalizer = def.Normalizer
	}
	if scoring.MaxIntents <= 0 {
		scoring.MaxIntents = def.MaxIntents
	}
	if scoring.RetrievalDepth <= 0 {
		scoring.RetrievalDepth = def.RetrievalDepth
	}

	return &Classifier{
		registry: registry,
		scoring:  scoring,
	}
}

// Registry returns the intent registry the classifier ranks against
func (c *Classifier) Registry() *Registry {
	return c.registry
}

// Scoring returns the effective weights
func (c *Classifier) Scoring() model.ScoringConfig {
	return c.scoring
}

// Scores returns the rule breakdown for every intent with a positive raw
// score, in intent-name order.
func (c *Classifier) Scores(query string) []Score {
	q := Normalize(query)
	if q == "" {
		return nil
	}

	var out []Score
	for _, name := range c.registry.names {
		def := c.registry.intents[name]
		s := Score{Intent: name}

		for _, kw := range def.Keywords {
			if strings.Contains(q, kw) {
				s.Raw += c.scoring.KeywordWeight
				s.Keywords = append(s.Keywords, kw)
			}
		}
		for _, p := range def.NegativePatterns {
			if strings.Contains(q, p) {
				s.Raw += c.scoring.PatternWeight
				s.Patterns = append(s.Patterns, p)
			}
		}
		for _, v := range def.Verbs {
			if strings.Contains(q, v) {
				s.Raw += c.scoring.VerbWeight
				s.Verbs = append(s.Verbs, v)
			}
		}

		if s.Raw <= 0 {
			continue
		}
		s.Confidence = min(s.Raw/c.scoring.Normalizer, 1.0)
		out = append(out, s)
	}
	return out
}

// Classify returns at most MaxIntents intents ordered by priority rank, then
// by descending confidence, then by name, with override rules applied last.
// A blank query or a query with no rule hits yields an empty list.
func (c *Classifier) Classify(query string) []model.MatchedIntent {
	scores := c.Scores(query)
	if len(scores) == 0 {
		return []model.MatchedIntent{}
	}

	candidates := make([]model.MatchedIntent, 0, len(scores))
	for _, s := range scores {
		candidates = append(candidates, model.MatchedIntent{Intent: s.Intent, Confidence: s.Confidence})
	}

	// scores arrive in name order, so the stable sort breaks ties by name
	sort.SliceStable(candidates, func(i, j int) bool {
		ri, rj := c.registry.Rank(candidates[i].Intent), c.registry.Rank(candidates[j].Intent)
		if ri != rj {
			return ri < rj
		}
		return candidates[i].Confidence > candidates[j].Confidence
	})

	candidates = applyOverrides(c.registry.overrides, candidates)

	if len(candidates) > c.scoring.MaxIntents {
		candidates = candidates[:c.scoring.MaxIntents]
	}
	return candidates
}
