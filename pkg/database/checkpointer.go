package database

import (
	"context"
	"sync"

	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var cpLog *logrus.Entry

func init() {
	cpLog = logger.WithName("checkpointer")
}

// Checkpointer accumulates progress in memory and persists it every `every`
// updates, so an interrupted pass loses at most one interval.
type Checkpointer struct {
	db    *StateDB
	every int

	mu      sync.Mutex
	current Checkpoint
	pending int
	dirty   bool
}

// NewCheckpointer creates a checkpointer for the named cursor. every < 1 means 1.
func NewCheckpointer(db *StateDB, name, runID string, every int) *Checkpointer {
	if every < 1 {
		every = 1
	}
	return &Checkpointer{
		db:      db,
		every:   every,
		current: Checkpoint{Name: name, RunID: runID},
	}
}

// Resume seeds the in-memory cursor from the persisted checkpoint, if any
func (c *Checkpointer) Resume() (*Checkpoint, error) {
	cp, err := c.db.GetCheckpoint(c.current.Name)
	if err != nil || cp == nil {
		return nil, err
	}
	c.mu.Lock()
	c.current.Processed = cp.Processed
	c.current.Total = cp.Total
	c.current.Cursor = cp.Cursor
	c.mu.Unlock()
	return cp, nil
}

// SetTotal records the size of the pass
func (c *Checkpointer) SetTotal(total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Total = total
	c.dirty = true
}

// Advance records one processed item and flushes on the interval boundary
func (c *Checkpointer) Advance(ctx context.Context, cursor string) error {
	c.mu.Lock()
	c.current.Processed++
	c.current.Cursor = cursor
	c.dirty = true
	c.pending++
	shouldFlush := c.pending >= c.every
	c.mu.Unlock()

	if shouldFlush {
		return c.Flush(ctx)
	}
	return nil
}

// Flush persists the current cursor. Safe to call with nothing to flush.
func (c *Checkpointer) Flush(ctx context.Context) error {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return nil
	}
	snapshot := c.current
	c.dirty = false
	c.pending = 0
	c.mu.Unlock()

	if err := c.db.SaveCheckpoint(ctx, snapshot); err != nil {
		c.mu.Lock()
		c.dirty = true
		c.mu.Unlock()
		cpLog.WithError(err).WithField("name", snapshot.Name).Error("Failed to save checkpoint")
		return err
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		cpLog.WithFields(logrus.Fields{
			"name":      snapshot.Name,
			"processed": snapshot.Processed,
			"cursor":    snapshot.Cursor,
		}).Debug("Saved checkpoint")
	}
	return nil
}

// Current returns the in-memory cursor
func (c *Checkpointer) Current() Checkpoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}
