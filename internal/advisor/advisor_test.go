package advisor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/medrights/internal/cache"
	"github.com/ppiankov/medrights/internal/data"
	"github.com/ppiankov/medrights/internal/knowledge"
	"github.com/ppiankov/medrights/internal/model"
	"github.com/ppiankov/medrights/internal/pipeline"
)

type captureRecorder struct {
	mu      sync.Mutex
	records []model.QueryRecord
}

func (r *captureRecorder) Record(rec model.QueryRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func embeddedSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	snap, err := LoadSnapshot(model.DataConfig{}, model.DefaultScoring())
	require.NoError(t, err)
	return snap
}

func TestLoadSnapshot_Embedded(t *testing.T) {
	snap := embeddedSnapshot(t)

	assert.Equal(t, "3.1.0/3.1.0/3.1.0", snap.Version)
	assert.Equal(t, knowledge.EmbeddedSource, snap.Knowledge.Source())
	assert.False(t, snap.LoadedAt.IsZero())
	assert.NotNil(t, snap.Pipeline)
}

func TestLoadSnapshot_UnregisteredClauseIntent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "intents.yaml")
	content := "metadata:\n  version: \"0.1\"\nintents:\n  emergency_care:\n    category: quality_safety\n    keywords: [emergency]\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	_, err := LoadSnapshot(model.DataConfig{IntentsPath: path}, model.DefaultScoring())
	require.Error(t, err)

	var loadErr *knowledge.LoadError
	require.True(t, errors.As(err, &loadErr))
	assert.Contains(t, err.Error(), `clause intent "access_medical_records" is not a registered intent`)
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	_, err := LoadSnapshot(model.DataConfig{TemplatesPath: filepath.Join(t.TempDir(), "absent.yaml")}, model.DefaultScoring())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProcessQuery(t *testing.T) {
	rec := &captureRecorder{}
	a := New(embeddedSnapshot(t), WithRecorder(rec))

	resp, err := a.ProcessQuery(context.Background(), Request{
		Query:   "  doctor refused to give my   medical reports",
		Client:  "127.0.0.1",
		Session: "s-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.ID)
	assert.False(t, resp.Cached)
	assert.Equal(t, "3.1.0/3.1.0/3.1.0", resp.Version)
	assert.Equal(t, "doctor refused to give my medical reports", resp.Trace.Query)
	assert.Contains(t, resp.Answer, "Your Right to Medical Records")

	require.Len(t, rec.records, 1)
	got := rec.records[0]
	assert.Equal(t, resp.ID, got.ID)
	assert.Equal(t, "access_medical_records", got.TopIntent)
	assert.Equal(t, pipeline.TemplateRecords, got.Template)
	assert.Equal(t, resp.Trace.ClauseIDs(), got.ClauseIDs)
	assert.Equal(t, "127.0.0.1", got.Client)
	assert.Equal(t, "s-1", got.Session)
	assert.Equal(t, resp.Answer, got.Response)
}

func TestProcessQuery_EmptyQuery(t *testing.T) {
	a := New(embeddedSnapshot(t))

	resp, err := a.ProcessQuery(context.Background(), Request{Query: "   "})
	require.NoError(t, err)
	assert.Equal(t, pipeline.TemplateNoMatch, resp.Trace.TemplateUsed)
	assert.Empty(t, resp.Trace.MatchedClauses)
}

func TestProcessQuery_CancelledContext(t *testing.T) {
	a := New(embeddedSnapshot(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.ProcessQuery(ctx, Request{Query: "emergency"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessQuery_Cache(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	a := New(embeddedSnapshot(t), WithCache(c, time.Minute))
	ctx := context.Background()
	query := "hospital asked for advance payment in emergency"

	first, err := a.ProcessQuery(ctx, Request{Query: query, ShowProof: true})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := a.ProcessQuery(ctx, Request{Query: "hospital  asked for advance payment in emergency ", ShowProof: true})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)

	firstTrace, err := json.Marshal(first.Trace)
	require.NoError(t, err)
	secondTrace, err := json.Marshal(second.Trace)
	require.NoError(t, err)
	assert.JSONEq(t, string(firstTrace), string(secondTrace))
	assert.Equal(t, first.Trace.MatchedClauses, second.Trace.MatchedClauses)

	hidden, err := a.ProcessQuery(ctx, Request{Query: query, ShowProof: false})
	require.NoError(t, err)
	assert.False(t, hidden.Cached, "proof display is part of the key")
	assert.NotContains(t, hidden.Answer, "**Proof Trace**")
}

func TestProcessQuery_CorruptCacheEntry(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	snap := embeddedSnapshot(t)
	a := New(snap, WithCache(c, time.Minute))

	query := "mercy killing of my father"
	require.NoError(t, c.Set(cache.Key(snap.Fingerprint, false, query), []byte("not json"), 0))

	resp, err := a.ProcessQuery(context.Background(), Request{Query: query})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, []string{"IMC-6.7"}, resp.Trace.ClauseIDs())
}

func TestLoadSnapshot_Fingerprint(t *testing.T) {
	base := embeddedSnapshot(t)
	again := embeddedSnapshot(t)
	assert.Len(t, base.Fingerprint, 64)
	assert.Equal(t, base.Fingerprint, again.Fingerprint)

	// Zero weights fall back to the defaults, so the effective policy matches
	defaulted, err := LoadSnapshot(model.DataConfig{}, model.ScoringConfig{})
	require.NoError(t, err)
	assert.Equal(t, base.Fingerprint, defaulted.Fingerprint)

	scoring := model.DefaultScoring()
	scoring.Normalizer = 60
	rescored, err := LoadSnapshot(model.DataConfig{}, scoring)
	require.NoError(t, err)
	assert.Equal(t, base.Version, rescored.Version)
	assert.NotEqual(t, base.Fingerprint, rescored.Fingerprint)

	// Same header version, different bytes
	path := filepath.Join(t.TempDir(), "knowledge_base.json")
	require.NoError(t, os.WriteFile(path, append(append([]byte{}, data.KnowledgeBase...), '\n'), 0644))
	edited, err := LoadSnapshot(model.DataConfig{KnowledgePath: path}, model.DefaultScoring())
	require.NoError(t, err)
	assert.Equal(t, base.Version, edited.Version)
	assert.NotEqual(t, base.Fingerprint, edited.Fingerprint)
}

func TestProcessQuery_DiskCacheAcrossPolicies(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	query := "doctor refused to give my medical reports"

	before := New(embeddedSnapshot(t), WithCache(cache.NewLayeredCache(0, dir, 0), 0))
	first, err := before.ProcessQuery(ctx, Request{Query: query})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.NotEmpty(t, first.Trace.MatchedIntents)
	assert.InDelta(t, 0.8333, first.Trace.MatchedIntents[0].Confidence, 0.001)

	// A later process with another scoring policy over the same disk cache
	scoring := model.DefaultScoring()
	scoring.Normalizer = 60
	scoring.MaxIntents = 1
	snap, err := LoadSnapshot(model.DataConfig{}, scoring)
	require.NoError(t, err)

	after := New(snap, WithCache(cache.NewLayeredCache(0, dir, 0), 0))
	resp, err := after.ProcessQuery(ctx, Request{Query: query})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	require.Len(t, resp.Trace.MatchedIntents, 1)
	assert.Equal(t, "access_medical_records", resp.Trace.MatchedIntents[0].Intent)
	assert.InDelta(t, 0.0833, resp.Trace.MatchedIntents[0].Confidence, 0.001)

	// The original policy still hits its own entry on disk
	restarted := New(embeddedSnapshot(t), WithCache(cache.NewLayeredCache(0, dir, 0), 0))
	cached, err := restarted.ProcessQuery(ctx, Request{Query: query})
	require.NoError(t, err)
	assert.True(t, cached.Cached)
	assert.Equal(t, first.Answer, cached.Answer)
}

func TestSwap_ClearsCache(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	a := New(embeddedSnapshot(t), WithCache(c, time.Minute))
	ctx := context.Background()

	_, err := a.ProcessQuery(ctx, Request{Query: "surgery done without my permission"})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	next := embeddedSnapshot(t)
	prev := a.Swap(next)
	assert.NotSame(t, prev, next)
	assert.Same(t, next, a.Snapshot())
	assert.Equal(t, 0, c.Len())

	resp, err := a.ProcessQuery(ctx, Request{Query: "surgery done without my permission"})
	require.NoError(t, err)
	assert.False(t, resp.Cached)
}

func TestProcessQuery_Concurrent(t *testing.T) {
	a := New(embeddedSnapshot(t), WithCache(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute))

	queries := []string{
		"doctor refused to give my medical reports",
		"hospital asked for advance payment in emergency",
		"doctor shared my information with others",
		"what is the weather today",
	}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(q string) {
			defer wg.Done()
			_, err := a.ProcessQuery(context.Background(), Request{Query: q})
			assert.NoError(t, err)
		}(queries[i%len(queries)])
	}
	wg.Wait()
}

func TestExplainClause(t *testing.T) {
	a := New(embeddedSnapshot(t))

	assert.Contains(t, a.ExplainClause("NHRC-3"), "NHRC Charter of Patients' Rights, Right 3")
	assert.Equal(t, "Clause 'IMC-9.9' not found.", a.ExplainClause("IMC-9.9"))

	_, err := a.Clause("IMC-9.9")
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestSearchKnowledge(t *testing.T) {
	a := New(embeddedSnapshot(t))

	result := a.SearchKnowledge("privacy")
	require.NotEmpty(t, result.Results)
	assert.Equal(t, "privacy", result.Query)
	assert.Equal(t, len(result.Results), result.Total)
	for _, s := range result.Results {
		assert.NotEmpty(t, s.ID)
		assert.NotContains(t, s.Category, "_")
	}

	empty := a.SearchKnowledge("  ")
	assert.NotNil(t, empty.Results)
	assert.Empty(t, empty.Results)
	assert.Zero(t, empty.Total)
}

func TestSummarize(t *testing.T) {
	long := strings.Repeat("é", 250)
	s := Summarize(model.Clause{ID: "X-1", Category: "fees_financial", Paraphrase: long})
	assert.Equal(t, "Fees Financial", s.Category)
	assert.Equal(t, strings.Repeat("é", 200)+"...", s.Summary)

	short := Summarize(model.Clause{Paraphrase: "Short."})
	assert.Equal(t, "Short.", short.Summary)
}

func TestGetStats(t *testing.T) {
	a := New(embeddedSnapshot(t))

	stats := a.GetStats()
	assert.Equal(t, "MedRights", stats.SystemName)
	assert.Equal(t, 40, stats.TotalClauses)
	assert.Equal(t, []string{"IMC", "NHRC"}, stats.Documents)
	assert.Equal(t, 4, stats.Categories["Access Information"])
	assert.Equal(t, 33, stats.Intents)
	assert.Equal(t, 9, stats.Templates)
	assert.Equal(t, 6, stats.Relationships)
	assert.Equal(t, "operational", stats.Status)

	total := 0
	for _, n := range stats.Categories {
		total += n
	}
	assert.Equal(t, stats.TotalClauses, total)
}

func TestCategories(t *testing.T) {
	a := New(embeddedSnapshot(t))

	cats := a.Categories()
	require.NotEmpty(t, cats)
	assert.Equal(t, "access_information", cats[0].Name)
	assert.Equal(t, "Access Information", cats[0].Title)
	assert.Len(t, cats[0].Clauses, 4)
}
