package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var wqLog *logrus.Entry

func init() {
	wqLog = logger.WithName("write-queue")
}

// WriteQueue serializes writes through a single goroutine. The worker pool
// reports extraction results concurrently, and SQLite answers concurrent
// writers with "database is locked".
type WriteQueue struct {
	db      *sql.DB
	queue   chan writeRequest
	done    chan struct{}
	wg      sync.WaitGroup
	started bool
	mu      sync.RWMutex
}

type writeRequest struct {
	ctx       context.Context
	operation func(db *sql.DB) error
	result    chan error
}

// WriteQueueConfig configures the write queue
type WriteQueueConfig struct {
	// QueueSize is the buffer size for pending write requests (default: 100)
	QueueSize int
}

// NewWriteQueue creates a write queue for db. Start must be called before Submit.
func NewWriteQueue(db *sql.DB, config *WriteQueueConfig) *WriteQueue {
	size := 100
	if config != nil && config.QueueSize > 0 {
		size = config.QueueSize
	}
	return &WriteQueue{
		db:    db,
		queue: make(chan writeRequest, size),
		done:  make(chan struct{}),
	}
}

// Start begins processing write requests
func (wq *WriteQueue) Start() {
	wq.mu.Lock()
	defer wq.mu.Unlock()
	if wq.started {
		return
	}
	wq.started = true
	wq.wg.Add(1)
	go wq.worker()
}

// Stop waits for queued writes to finish and shuts the worker down
func (wq *WriteQueue) Stop() {
	wq.mu.Lock()
	if !wq.started {
		wq.mu.Unlock()
		return
	}
	wq.started = false
	wq.mu.Unlock()

	close(wq.done)
	wq.wg.Wait()
}

// Submit queues a write and waits for its result
func (wq *WriteQueue) Submit(ctx context.Context, operation func(db *sql.DB) error) error {
	req := writeRequest{ctx: ctx, operation: operation, result: make(chan error, 1)}

	// Stop takes the write lock, so nothing is enqueued after the final drain
	wq.mu.RLock()
	if !wq.started {
		wq.mu.RUnlock()
		return fmt.Errorf("write queue not started")
	}
	select {
	case wq.queue <- req:
		wq.mu.RUnlock()
	case <-ctx.Done():
		wq.mu.RUnlock()
		return ctx.Err()
	}

	// The worker drains the queue before exiting, so the result always arrives
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitTx runs operation inside a transaction, committed on success
func (wq *WriteQueue) SubmitTx(ctx context.Context, operation func(tx *sql.Tx) error) error {
	return wq.Submit(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if err := operation(tx); err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				wqLog.WithError(rbErr).Error("Failed to rollback transaction after error")
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
}

func (wq *WriteQueue) worker() {
	defer wq.wg.Done()
	for {
		select {
		case req := <-wq.queue:
			wq.process(req)
		case <-wq.done:
			for {
				select {
				case req := <-wq.queue:
					wq.process(req)
				default:
					return
				}
			}
		}
	}
}

func (wq *WriteQueue) process(req writeRequest) {
	if err := req.ctx.Err(); err != nil {
		req.result <- err
		return
	}
	req.result <- req.operation(wq.db)
}
