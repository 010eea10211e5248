package inference

import (
	"context"
	"sync"

	"github.com/prismon/audio-janitor/pkg/queue"
)

// Prefetcher computes suggestions for upcoming items in the background with
// bounded concurrency, so the next answer is ready while the current item is
// being reviewed.
type Prefetcher struct {
	suggester *Suggester
	pool      *queue.WorkerPool

	mu      sync.Mutex
	pending map[string]*prefetchJob
	closed  bool
}

type prefetchJob struct {
	path      string
	suggester *Suggester
	result    Suggestion
	done      chan struct{}
}

func (j *prefetchJob) ID() string {
	return j.path
}

func (j *prefetchJob) Execute(ctx context.Context) error {
	defer close(j.done)
	j.result = j.suggester.Suggest(ctx, j.path)
	return nil
}

// NewPrefetcher starts concurrency workers. Close must be called when done.
func NewPrefetcher(ctx context.Context, suggester *Suggester, concurrency int) *Prefetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	pool := queue.NewWorkerPool(ctx, "prefetch", concurrency, concurrency*8, nil)
	pool.Start()
	return &Prefetcher{
		suggester: suggester,
		pool:      pool,
		pending:   make(map[string]*prefetchJob),
	}
}

// Prefetch schedules paths that are not already scheduled
func (p *Prefetcher) Prefetch(ctx context.Context, paths ...string) {
	for _, path := range paths {
		p.mu.Lock()
		if p.closed || p.pending[path] != nil {
			p.mu.Unlock()
			continue
		}
		job := &prefetchJob{path: path, suggester: p.suggester, done: make(chan struct{})}
		p.pending[path] = job
		p.mu.Unlock()

		if err := p.pool.Submit(ctx, job); err != nil {
			p.mu.Lock()
			delete(p.pending, path)
			p.mu.Unlock()
			return
		}
	}
}

// Get returns the suggestion for path, waiting for a scheduled prefetch or
// computing it now when none was scheduled
func (p *Prefetcher) Get(ctx context.Context, path string) Suggestion {
	p.mu.Lock()
	job := p.pending[path]
	delete(p.pending, path)
	p.mu.Unlock()

	if job != nil {
		select {
		case <-job.done:
			return job.result
		case <-ctx.Done():
		}
	}
	return p.suggester.Suggest(ctx, path)
}

// Close stops the workers; scheduled but unstarted prefetches are dropped
func (p *Prefetcher) Close() {
	p.mu.Lock()
	p.closed = true
	p.pending = make(map[string]*prefetchJob)
	p.mu.Unlock()
	p.pool.Cancel()
}
