package intent

import (
	"slices"

	"github.com/ppiankov/medrights/internal/model"
)

// OverrideRule is a statutory precedence group. When any member is among the
// candidates, all members move ahead of the non-members; relative order on
// both sides is kept.
type OverrideRule struct {
	Name    string   `yaml:"name"`
	Intents []string `yaml:"intents"`
}

// Matches reports whether name belongs to the group
func (o OverrideRule) Matches(name string) bool {
	return slices.Contains(o.Intents, name)
}

// Applies reports whether any candidate belongs to the group
func (o OverrideRule) Applies(candidates []model.MatchedIntent) bool {
	for _, c := range candidates {
		if o.Matches(c.Intent) {
			return true
		}
	}
	return false
}

// Apply returns the candidates with group members moved to the front
func (o OverrideRule) Apply(candidates []model.MatchedIntent) []model.MatchedIntent {
	out := make([]model.MatchedIntent, 0, len(candidates))
	for _, c := range candidates {
		if o.Matches(c.Intent) {
			out = append(out, c)
		}
	}
	for _, c := range candidates {
		if !o.Matches(c.Intent) {
			out = append(out, c)
		}
	}
	return out
}

// applyOverrides runs the rules weakest first, so a stronger group always
// ends up ahead of a weaker one.
func applyOverrides(rules []OverrideRule, candidates []model.MatchedIntent) []model.MatchedIntent {
	for i := len(rules) - 1; i >= 0; i-- {
		if rules[i].Applies(candidates) {
			candidates = rules[i].Apply(candidates)
		}
	}
	return candidates
}
