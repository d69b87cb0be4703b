package worker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
)

// Job is a unit of work executed by the pool
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is the outcome of a job
type Result interface {
	GetError() error
}

type queued struct {
	seq int
	job Job
}

type finished struct {
	seq    int
	result Result
}

// Pool runs jobs on a fixed number of workers. Results are collected while
// jobs run, so any number of jobs may be submitted before Wait, and Wait
// returns them in submission order.
type Pool struct {
	workers    int
	jobQueue   chan queued
	results    chan finished
	collected  []finished
	collectWG  sync.WaitGroup
	wg         sync.WaitGroup
	next       atomic.Int64
	closeMu    sync.RWMutex // held for reading across a send, for writing to close jobQueue
	closed     bool
	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
}

// NewPool creates a pool with the given number of workers (at least one)
func NewPool(workers int) *Pool {
	return NewPoolContext(context.Background(), workers)
}

// NewPoolContext creates a pool whose jobs see ctx; cancelling ctx stops the
// pool like Shutdown
func NewPoolContext(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(ctx)

	return &Pool{
		workers:    workers,
		jobQueue:   make(chan queued, workers*2),
		results:    make(chan finished, workers*2),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

// Start launches the workers and the result collector
func (p *Pool) Start() {
	p.collectWG.Add(1)
	go p.collect()

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case q, ok := <-p.jobQueue:
			if !ok {
				return
			}
			// A cancelled pool drops queued work rather than starting it
			if p.ctx.Err() != nil {
				return
			}
			p.results <- finished{seq: q.seq, result: q.job.Execute(p.ctx)}
		}
	}
}

func (p *Pool) collect() {
	defer p.collectWG.Done()
	for f := range p.results {
		p.collected = append(p.collected, f)
	}
}

// Submit queues a job. It returns false when the pool has been shut down
// or Wait has been called.
func (p *Pool) Submit(job Job) bool {
	p.closeMu.RLock()
	defer p.closeMu.RUnlock()

	if p.closed || p.ctx.Err() != nil {
		return false
	}

	seq := int(p.next.Add(1) - 1)

	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- queued{seq: seq, job: job}:
		return true
	}
}

// Wait stops accepting jobs, waits for the queued ones and returns their
// results in submission order. Jobs dropped by a shutdown have no result.
func (p *Pool) Wait() []Result {
	p.closeMu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.closeMu.Unlock()

	p.wg.Wait()
	p.closeResults()
	p.collectWG.Wait()

	sort.Slice(p.collected, func(i, j int) bool {
		return p.collected[i].seq < p.collected[j].seq
	})

	results := make([]Result, len(p.collected))
	for i, f := range p.collected {
		results[i] = f.result
	}
	return results
}

// Shutdown cancels running and queued jobs and waits for the workers to exit
func (p *Pool) Shutdown() {
	p.cancelFunc()
	p.wg.Wait()
	p.closeResults()
	p.collectWG.Wait()
}

func (p *Pool) closeResults() {
	p.closeOnce.Do(func() {
		close(p.results)
	})
}

// Run executes jobs on a fresh pool and returns their results in order
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	pool := NewPoolContext(ctx, workers)
	pool.Start()
	defer pool.cancelFunc()

	for _, job := range jobs {
		if !pool.Submit(job) {
			break
		}
	}
	return pool.Wait()
}
