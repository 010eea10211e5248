package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("queue")
}

// ErrPoolClosed is returned by Submit once the pool stopped accepting jobs
var ErrPoolClosed = errors.New("worker pool is closed")

// Job represents a unit of work to be processed
type Job interface {
	Execute(ctx context.Context) error
	ID() string
}

// JobResult contains the result of a job execution
type JobResult struct {
	Job   Job
	Error error
}

// ResultHandler receives every result. Handlers run on a single goroutine,
// one at a time, in completion order.
type ResultHandler func(JobResult)

// WorkerPool manages a fixed number of workers fed by a bounded queue
type WorkerPool struct {
	name        string
	workerCount int
	jobs        chan Job
	results     chan JobResult
	onResult    ResultHandler
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	resultsWg   sync.WaitGroup

	// Stats
	jobsProcessed atomic.Int64
	jobsFailed    atomic.Int64
	jobsQueued    atomic.Int64

	// Control
	mu          sync.RWMutex
	started     bool
	closed      bool
	resultsOnce sync.Once
}

// NewWorkerPool creates a pool whose jobs run under a context derived from
// parent. onResult may be nil.
func NewWorkerPool(parent context.Context, name string, workerCount int, queueSize int, onResult ResultHandler) *WorkerPool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(parent)

	return &WorkerPool{
		name:        name,
		workerCount: workerCount,
		jobs:        make(chan Job, queueSize),
		results:     make(chan JobResult, queueSize),
		onResult:    onResult,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start begins processing jobs with the worker pool
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	if wp.started {
		wp.mu.Unlock()
		return
	}
	wp.started = true
	wp.mu.Unlock()

	log.WithFields(logrus.Fields{
		"pool":        wp.name,
		"workerCount": wp.workerCount,
	}).Debug("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}

	wp.resultsWg.Add(1)
	go wp.collectResults()
}

// worker processes jobs from the queue until it is closed or cancelled
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	workerLog := log.WithFields(logrus.Fields{"pool": wp.name, "workerID": id})

	for {
		select {
		case job, ok := <-wp.jobs:
			if !ok || wp.ctx.Err() != nil {
				return
			}

			if logger.IsLevelEnabled(logrus.TraceLevel) {
				workerLog.WithField("jobID", job.ID()).Trace("Processing job")
			}

			err := job.Execute(wp.ctx)

			select {
			case wp.results <- JobResult{Job: job, Error: err}:
			case <-wp.ctx.Done():
				return
			}

		case <-wp.ctx.Done():
			return
		}
	}
}

// collectResults updates stats and hands results to the handler
func (wp *WorkerPool) collectResults() {
	defer wp.resultsWg.Done()
	for result := range wp.results {
		wp.jobsProcessed.Add(1)

		if result.Error != nil {
			wp.jobsFailed.Add(1)
			if logger.IsLevelEnabled(logrus.DebugLevel) {
				log.WithFields(logrus.Fields{
					"pool":  wp.name,
					"jobID": result.Job.ID(),
					"error": result.Error,
				}).Debug("Job failed")
			}
		}

		if wp.onResult != nil {
			wp.onResult(result)
		}
	}
}

// Submit queues a job, blocking while the queue is full. It returns early
// when ctx is done or the pool is closed or cancelled.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.jobs <- job:
		wp.jobsQueued.Add(1)
		if logger.IsLevelEnabled(logrus.TraceLevel) {
			log.WithField("jobID", job.ID()).Trace("Job queued")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wp.ctx.Done():
		return ErrPoolClosed
	}
}

// Wait stops accepting jobs, lets queued jobs finish and waits until every
// result was handled. Safe to call more than once.
func (wp *WorkerPool) Wait() {
	wp.mu.Lock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobs)
	}
	started := wp.started
	wp.mu.Unlock()

	if !started {
		return
	}

	wp.wg.Wait()
	wp.resultsOnce.Do(func() { close(wp.results) })
	wp.resultsWg.Wait()
}

// Cancel stops the workers without draining the queue. Jobs already
// running see a cancelled context.
func (wp *WorkerPool) Cancel() {
	log.WithField("pool", wp.name).Debug("Cancelling worker pool")
	wp.cancel()
	wp.Wait()
}

// Stats returns current statistics
func (wp *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		WorkerCount:   wp.workerCount,
		JobsQueued:    wp.jobsQueued.Load(),
		JobsProcessed: wp.jobsProcessed.Load(),
		JobsFailed:    wp.jobsFailed.Load(),
	}
}

// WorkerPoolStats contains statistics about the worker pool
type WorkerPoolStats struct {
	WorkerCount   int
	JobsQueued    int64
	JobsProcessed int64
	JobsFailed    int64
}
