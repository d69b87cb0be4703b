package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/medrights/internal/advisor"
)

// Asker answers a single query
type Asker interface {
	ProcessQuery(ctx context.Context, req advisor.Request) (advisor.Response, error)
}

// QueryJob answers one query of a batch
type QueryJob struct {
	Query     string
	ShowProof bool
	Client    string
	Asker     Asker
	Limiter   *Limiter // Optional pacing, keyed by Client
}

// Execute waits for the limiter, if any, then answers the query
func (j *QueryJob) Execute(ctx context.Context) Result {
	if j.Limiter != nil {
		if err := j.Limiter.Wait(ctx, j.Client); err != nil {
			return &QueryResult{Query: j.Query, Error: fmt.Errorf("rate limit: %w", err)}
		}
	}

	resp, err := j.Asker.ProcessQuery(ctx, advisor.Request{
		Query:     j.Query,
		ShowProof: j.ShowProof,
		Client:    j.Client,
	})
	if err != nil {
		return &QueryResult{Query: j.Query, Error: err}
	}
	return &QueryResult{Query: j.Query, Response: &resp}
}

// BatchClient is the client name batch queries are logged and paced under
const BatchClient = "batch"

// QueryResult is the outcome of one batch query
type QueryResult struct {
	Query    string
	Response *advisor.Response
	Error    error
}

// GetError returns the error from the query result
func (r *QueryResult) GetError() error {
	return r.Error
}

// BatchProcessor answers many queries concurrently
type BatchProcessor struct {
	asker       Asker
	concurrency int
	showProof   bool
	limiter     *Limiter
}

// NewBatchProcessor creates a batch processor
func NewBatchProcessor(asker Asker, concurrency int, showProof bool) *BatchProcessor {
	return &BatchProcessor{
		asker:       asker,
		concurrency: concurrency,
		showProof:   showProof,
	}
}

// SetLimiter paces the batch: every query waits on l under the batch client
// key before it is answered. A nil limiter disables pacing.
func (b *BatchProcessor) SetLimiter(l *Limiter) {
	b.limiter = l
}

// ProcessQueries answers queries and returns results in input order. Queries
// not started before ctx is cancelled have no result.
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string) []*QueryResult {
	if len(queries) == 0 {
		return []*QueryResult{}
	}

	jobs := make([]Job, len(queries))
	for i, q := range queries {
		jobs[i] = &QueryJob{
			Query:     q,
			ShowProof: b.showProof,
			Client:    BatchClient,
			Asker:     b.asker,
			Limiter:   b.limiter,
		}
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*QueryResult, len(results))
	for i, result := range results {
		out[i] = result.(*QueryResult)
	}
	return out
}

// ProcessFile reads queries from a file and answers them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QueryResult, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries), nil
}

// ReadQueriesFromFile reads one query per line, skipping blank lines and
// lines starting with #. Repeated queries are kept once, in first-seen order.
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.Join(strings.Fields(scanner.Text()), " ")

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}
