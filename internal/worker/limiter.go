package worker

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const defaultTrackedClients = 4096

// Limiter rate limits per client. Client state is held in a fixed-size LRU,
// so a flood of distinct clients evicts the least recently seen ones instead
// of growing without bound; an evicted client starts again with a full burst.
type Limiter struct {
	limiters     *lru.Cache[string, *rate.Limiter]
	defaultRate  rate.Limit
	defaultBurst int
}

// NewLimiter creates a limiter allowing requestsPerSecond per client with
// the given burst, tracking at most trackedClients clients
func NewLimiter(requestsPerSecond float64, burst, trackedClients int) *Limiter {
	if burst <= 0 {
		burst = 5
	}
	if trackedClients <= 0 {
		trackedClients = defaultTrackedClients
	}

	// lru.New only fails for a non-positive size
	cache, _ := lru.New[string, *rate.Limiter](trackedClients)

	return &Limiter{
		limiters:     cache,
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// Wait blocks until client may proceed or ctx is done
func (l *Limiter) Wait(ctx context.Context, client string) error {
	return l.getLimiter(client).Wait(ctx)
}

// Allow reports whether client may proceed now, consuming a token if so
func (l *Limiter) Allow(client string) bool {
	return l.getLimiter(client).Allow()
}

// getLimiter returns the limiter for a client, creating it on first use
func (l *Limiter) getLimiter(client string) *rate.Limiter {
	if limiter, ok := l.limiters.Get(client); ok {
		return limiter
	}

	limiter := rate.NewLimiter(l.defaultRate, l.defaultBurst)
	// A concurrent caller may have added one first; keep theirs
	if prev, ok, _ := l.limiters.PeekOrAdd(client, limiter); ok {
		return prev
	}
	return limiter
}

// Tracked returns the number of clients currently holding limiter state
func (l *Limiter) Tracked() int {
	return l.limiters.Len()
}
