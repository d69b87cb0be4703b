package model

import "time"

// QueryRecord is one answered query as handed to the query log. It is
// written after the answer is produced and never read back by the advisor.
type QueryRecord struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Query      string    `json:"query"`                // Cleaned query text
	Response   string    `json:"response"`             // Rendered answer
	TopIntent  string    `json:"top_intent,omitempty"` // Empty on no match
	Confidence float64   `json:"confidence"`
	Template   string    `json:"template"`
	ClauseIDs  []string  `json:"clause_ids"`
	Client     string    `json:"client,omitempty"`
	Session    string    `json:"session,omitempty"`
	Cached     bool      `json:"cached"`
	DurationMS float64   `json:"duration_ms"`
	Version    string    `json:"data_version"`
}
