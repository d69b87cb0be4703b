package model

import "encoding/json"

// MatchedIntent is one ranked classifier result
type MatchedIntent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"` // min(raw / normalizer, 1.0)
}

// ProofTrace links an answer back to the intents and clauses that produced it.
// It is created per query and never persisted by the pipeline.
type ProofTrace struct {
	Query          string          // Cleaned query text
	MatchedIntents []MatchedIntent // Ranked, truncated classifier output
	MatchedClauses []Clause        // De-duplicated, in retrieval order
	TemplateUsed   string          // Template id rendered for the body
	VariablesUsed  []string        // Sorted context keys populated for the template
}

// TraceClause is the serialized view of a matched clause
type TraceClause struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Citation string `json:"citation"`
}

type traceJSON struct {
	Query          string          `json:"query"`
	MatchedIntents []MatchedIntent `json:"matched_intents"`
	MatchedClauses []TraceClause   `json:"matched_clauses"`
	TemplateUsed   string          `json:"template_used"`
	VariablesCount int             `json:"variables_count"`
}

// Clauses returns the serialized clause references
func (t ProofTrace) Clauses() []TraceClause {
	out := make([]TraceClause, 0, len(t.MatchedClauses))
	for _, c := range t.MatchedClauses {
		out = append(out, TraceClause{ID: c.ID, Title: c.Title, Citation: c.CitationFormat})
	}
	return out
}

// MarshalJSON encodes the trace in its wire shape. Empty collections are
// emitted as [] rather than null.
func (t ProofTrace) MarshalJSON() ([]byte, error) {
	intents := t.MatchedIntents
	if intents == nil {
		intents = []MatchedIntent{}
	}
	return json.Marshal(traceJSON{
		Query:          t.Query,
		MatchedIntents: intents,
		MatchedClauses: t.Clauses(),
		TemplateUsed:   t.TemplateUsed,
		VariablesCount: len(t.VariablesUsed),
	})
}

// TopIntent returns the first ranked intent, or "" when nothing matched
func (t ProofTrace) TopIntent() (string, float64) {
	if len(t.MatchedIntents) == 0 {
		return "", 0
	}
	return t.MatchedIntents[0].Intent, t.MatchedIntents[0].Confidence
}

// ClauseIDs returns the matched clause ids in retrieval order
func (t ProofTrace) ClauseIDs() []string {
	ids := make([]string, 0, len(t.MatchedClauses))
	for _, c := range t.MatchedClauses {
		ids = append(ids, c.ID)
	}
	return ids
}
