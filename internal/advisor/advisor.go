// Package advisor is the caller-facing entry point. It owns the current data
// snapshot and adds the answer cache and the query log around the pipeline;
// the CLI, the console and the HTTP server all go through it.
package advisor

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/medrights/internal/cache"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/pipeline"
	"github.com/ppiankov/medrights/internal/templates"
)

const (
	maxSearchResults  = 20
	summaryLength     = 200
	statusOperational = "operational"
)

// Recorder receives a record for every answered query. Record must not block.
type Recorder interface {
	Record(rec model.QueryRecord)
}

// Request is one query from a front end
type Request struct {
	Query     string
	ShowProof bool
	Client    string // Caller address or name, for the query log
	Session   string
}

// Response is the answer to a Request
type Response struct {
	ID      string           `json:"id"`
	Answer  string           `json:"response"`
	Trace   model.ProofTrace `json:"proof_trace"`
	Cached  bool             `json:"cached"`
	Version string           `json:"data_version"`
}

// SearchResult is the capped result of a knowledge search
type SearchResult struct {
	Query   string                `json:"query"`
	Results []model.ClauseSummary `json:"results"`
	Total   int                   `json:"total"` // Matches before the cap
}

// Stats describes the loaded data for status pages
type Stats struct {
	SystemName    string         `json:"system_name"`
	Version       string         `json:"version"`
	DataVersion   string         `json:"data_version"`
	TotalClauses  int            `json:"total_clauses"`
	Documents     []string       `json:"documents"`
	Categories    map[string]int `json:"categories"` // Readable category name to clause count
	Intents       int            `json:"intents"`
	Templates     int            `json:"templates"`
	Relationships int            `json:"relationships"`
	Status        string         `json:"system_status"`
	LoadedAt      time.Time      `json:"loaded_at"`
}

// Option configures an Advisor
type Option func(*Advisor)

// WithCache enables the answer cache
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Advisor) {
		a.cache = c
		a.cacheTTL = ttl
	}
}

// WithRecorder hands every answered query to r
func WithRecorder(r Recorder) Option {
	return func(a *Advisor) { a.recorder = r }
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Advisor) { a.logger = l }
}

// Advisor answers queries against the current snapshot. It is safe for
// concurrent use; Swap replaces the snapshot without blocking readers.
type Advisor struct {
	snap     atomic.Pointer[Snapshot]
	cache    cache.Cache
	cacheTTL time.Duration
	recorder Recorder
	logger   *zap.Logger
}

// New creates an advisor serving snap
func New(snap *Snapshot, opts ...Option) *Advisor {
	a := &Advisor{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(a)
	}
	a.snap.Store(snap)
	return a
}

// Snapshot returns the snapshot currently being served
func (a *Advisor) Snapshot() *Snapshot {
	return a.snap.Load()
}

// Swap installs snap and returns the previous one. Cached answers are
// dropped; in-flight queries finish on the snapshot they started with.
func (a *Advisor) Swap(snap *Snapshot) *Snapshot {
	prev := a.snap.Swap(snap)
	if a.cache != nil {
		if err := a.cache.Clear(); err != nil {
			a.logger.Warn("clear answer cache", zap.Error(err))
		}
	}
	a.logger.Info("data snapshot swapped",
		zap.String("from", prev.Version),
		zap.String("to", snap.Version),
		zap.Int("clauses", snap.Knowledge.Metadata().TotalClauseCount),
	)
	return prev
}

// ProcessQuery answers req. The only error is the context's: every query,
// blank or unmatched ones included, gets an answer.
func (a *Advisor) ProcessQuery(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	start := time.Now()
	snap := a.Snapshot()
	cleaned := pipeline.Clean(req.Query)

	answer, cached := a.lookup(snap, cleaned, req.ShowProof)
	if !cached {
		answer = snap.Pipeline.Process(cleaned, req.ShowProof)
		a.store(snap, cleaned, req.ShowProof, answer)
	}

	resp := Response{
		ID:      uuid.NewString(),
		Answer:  answer.Text,
		Trace:   answer.Trace,
		Cached:  cached,
		Version: snap.Version,
	}
	elapsed := time.Since(start)

	top, confidence := answer.Trace.TopIntent()
	a.logger.Debug("query answered",
		zap.String("id", resp.ID),
		zap.String("intent", top),
		zap.Float64("confidence", confidence),
		zap.Strings("clauses", answer.Trace.ClauseIDs()),
		zap.String("template", answer.Trace.TemplateUsed),
		zap.Bool("cached", cached),
		zap.Duration("elapsed", elapsed),
	)

	if a.recorder != nil {
		a.recorder.Record(model.QueryRecord{
			ID:         resp.ID,
			Timestamp:  start.UTC(),
			Query:      answer.Trace.Query,
			Response:   answer.Text,
			TopIntent:  top,
			Confidence: confidence,
			Template:   answer.Trace.TemplateUsed,
			ClauseIDs:  answer.Trace.ClauseIDs(),
			Client:     req.Client,
			Session:    req.Session,
			Cached:     cached,
			DurationMS: float64(elapsed.Microseconds()) / 1000,
			Version:    snap.Version,
		})
	}

	return resp, nil
}

// cachedAnswer is the stored form of an answer. Clauses are kept by id and
// resolved against the snapshot on the way out.
type cachedAnswer struct {
	Text      string                `json:"text"`
	Template  string                `json:"template"`
	Intents   []model.MatchedIntent `json:"intents"`
	ClauseIDs []string              `json:"clause_ids"`
	Variables []string              `json:"variables"`
}

func (a *Advisor) lookup(snap *Snapshot, query string, showProof bool) (pipeline.Answer, bool) {
	if a.cache == nil {
		return pipeline.Answer{}, false
	}

	raw, ok := a.cache.Get(cache.Key(snap.Fingerprint, showProof, query))
	if !ok {
		return pipeline.Answer{}, false
	}

	var entry cachedAnswer
	if err := json.Unmarshal(raw, &entry); err != nil {
		a.logger.Warn("discarding unreadable cache entry", zap.Error(err))
		return pipeline.Answer{}, false
	}

	clauses := make([]model.Clause, 0, len(entry.ClauseIDs))
	for _, id := range entry.ClauseIDs {
		c, err := snap.Knowledge.GetByID(id)
		if err != nil {
			return pipeline.Answer{}, false
		}
		clauses = append(clauses, c)
	}

	return pipeline.Answer{
		Text: entry.Text,
		Trace: model.ProofTrace{
			Query:          query,
			MatchedIntents: entry.Intents,
			MatchedClauses: clauses,
			TemplateUsed:   entry.Template,
			VariablesUsed:  entry.Variables,
		},
	}, true
}

func (a *Advisor) store(snap *Snapshot, query string, showProof bool, answer pipeline.Answer) {
	if a.cache == nil {
		return
	}

	raw, err := json.Marshal(cachedAnswer{
		Text:      answer.Text,
		Template:  answer.Trace.TemplateUsed,
		Intents:   answer.Trace.MatchedIntents,
		ClauseIDs: answer.Trace.ClauseIDs(),
		Variables: answer.Trace.VariablesUsed,
	})
	if err != nil {
		a.logger.Warn("encode cache entry", zap.Error(err))
		return
	}

	if err := a.cache.Set(cache.Key(snap.Fingerprint, showProof, query), raw, a.cacheTTL); err != nil {
		a.logger.Warn("store cache entry", zap.Error(err))
	}
}

// ExplainClause renders the detailed view of one clause
func (a *Advisor) ExplainClause(id string) string {
	return a.Snapshot().Pipeline.ExplainClause(id)
}

// Clause returns one clause by id
func (a *Advisor) Clause(id string) (model.Clause, error) {
	return a.Snapshot().Knowledge.GetByID(id)
}

// SearchKnowledge returns up to twenty summaries of clauses matching term
func (a *Advisor) SearchKnowledge(term string) SearchResult {
	matches := a.Snapshot().Knowledge.SearchByKeyword(term)

	results := make([]model.ClauseSummary, 0, min(len(matches), maxSearchResults))
	for i, c := range matches {
		if i == maxSearchResults {
			break
		}
		results = append(results, Summarize(c))
	}

	return SearchResult{Query: term, Results: results, Total: len(matches)}
}

// Summarize builds the search-result view of a clause. The paraphrase is cut
// to two hundred characters.
func Summarize(c model.Clause) model.ClauseSummary {
	return model.ClauseSummary{
		ID:       c.ID,
		Title:    c.Title,
		Document: c.Document,
		Section:  c.Section,
		Category: templates.Readable(c.Category),
		Summary:  truncate(c.Paraphrase, summaryLength),
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// GetStats describes the current snapshot
func (a *Advisor) GetStats() Stats {
	snap := a.Snapshot()
	base := snap.Knowledge.Stats()

	categories := make(map[string]int, len(base.CategoryCounts))
	for name, n := range base.CategoryCounts {
		categories[templates.Readable(name)] += n
	}

	return Stats{
		SystemName:    base.SystemName,
		Version:       base.Version,
		DataVersion:   snap.Version,
		TotalClauses:  base.TotalClauses,
		Documents:     base.Documents,
		Categories:    categories,
		Intents:       len(snap.Intents.Names()),
		Templates:     len(snap.Templates.IDs()),
		Relationships: len(snap.Knowledge.Relationships()),
		Status:        statusOperational,
		LoadedAt:      snap.LoadedAt,
	}
}

// Categories returns the clause categories with their clauses, in category
// name order
func (a *Advisor) Categories() []Category {
	kb := a.Snapshot().Knowledge

	names := kb.Categories()
	out := make([]Category, 0, len(names))
	for _, name := range names {
		out = append(out, Category{
			Name:    name,
			Title:   templates.Readable(name),
			Clauses: kb.GetByCategory(name),
		})
	}
	return out
}

// Category groups the clauses of one category
type Category struct {
	Name    string         `json:"name"`
	Title   string         `json:"title"`
	Clauses []model.Clause `json:"clauses"`
}
