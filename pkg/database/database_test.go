package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesTables(t *testing.T) {
	db := newTestDB(t)

	var count int
	err := db.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table'").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestOpenFileReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.MarkExecuted(ctx, "key-1", "group-1", "run-1"))
	require.NoError(t, db.Close())

	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	keys, err := db.ExecutedKeys()
	require.NoError(t, err)
	assert.True(t, keys["key-1"])
}

func TestRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	id, err := db.CreateRun(ctx, RunScan)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	run, err := db.GetRun(id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, RunScan, run.Kind)
	assert.Equal(t, StatusRunning, run.Status)
	assert.Nil(t, run.CompletedAt)

	require.NoError(t, db.FinishRun(ctx, id, StatusFailed, errors.New("boom"), &RunMetadata{Processed: 3, Failed: 1}))

	run, err = db.GetRun(id)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, run.Status)
	require.NotNil(t, run.CompletedAt)
	require.NotNil(t, run.Error)
	assert.Equal(t, "boom", *run.Error)
	assert.Equal(t, &RunMetadata{Processed: 3, Failed: 1}, run.Metadata)

	missing, err := db.GetRun("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = db.CreateRun(ctx, "bogus")
	assert.Error(t, err)
}

func TestListRuns(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	scan1, err := db.CreateRun(ctx, RunScan)
	require.NoError(t, err)
	_, err = db.CreateRun(ctx, RunExecute)
	require.NoError(t, err)
	scan2, err := db.CreateRun(ctx, RunScan)
	require.NoError(t, err)

	runs, err := db.ListRuns(RunScan, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, scan2, runs[0].ID)
	assert.Equal(t, scan1, runs[1].ID)

	all, err := db.ListRuns("", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCheckpoints(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	cp, err := db.GetCheckpoint("scan")
	require.NoError(t, err)
	assert.Nil(t, cp)

	require.NoError(t, db.SaveCheckpoint(ctx, Checkpoint{Name: "scan", RunID: "r1", Processed: 5, Total: 10, Cursor: "/a"}))
	require.NoError(t, db.SaveCheckpoint(ctx, Checkpoint{Name: "scan", RunID: "r1", Processed: 7, Total: 10, Cursor: "/b"}))
	require.NoError(t, db.SaveCheckpoint(ctx, Checkpoint{Name: "review", Processed: 1}))

	cp, err = db.GetCheckpoint("scan")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 7, cp.Processed)
	assert.Equal(t, "/b", cp.Cursor)
	assert.Equal(t, "r1", cp.RunID)

	list, err := db.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "review", list[0].Name)

	require.NoError(t, db.ClearCheckpoint(ctx, "scan"))
	cp, err = db.GetCheckpoint("scan")
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestCheckpointerCadence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	c := NewCheckpointer(db, "scan", "run-1", 3)
	c.SetTotal(10)

	require.NoError(t, c.Advance(ctx, "/1"))
	require.NoError(t, c.Advance(ctx, "/2"))
	cp, err := db.GetCheckpoint("scan")
	require.NoError(t, err)
	assert.Nil(t, cp, "nothing persisted before the interval")

	require.NoError(t, c.Advance(ctx, "/3"))
	cp, err = db.GetCheckpoint("scan")
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 3, cp.Processed)
	assert.Equal(t, "/3", cp.Cursor)
	assert.Equal(t, 10, cp.Total)

	require.NoError(t, c.Advance(ctx, "/4"))
	require.NoError(t, c.Flush(ctx))
	cp, err = db.GetCheckpoint("scan")
	require.NoError(t, err)
	assert.Equal(t, 4, cp.Processed)

	// Flushing again with nothing new is a no-op
	require.NoError(t, c.Flush(ctx))
}

func TestCheckpointerResume(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveCheckpoint(ctx, Checkpoint{Name: "review", Processed: 4, Cursor: "group-4"}))

	c := NewCheckpointer(db, "review", "run-2", 1)
	cp, err := c.Resume()
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 4, c.Current().Processed)

	require.NoError(t, c.Advance(ctx, "group-5"))
	saved, err := db.GetCheckpoint("review")
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Processed)
	assert.Equal(t, "run-2", saved.RunID)

	fresh := NewCheckpointer(db, "other", "run-3", 0)
	cp, err = fresh.Resume()
	require.NoError(t, err)
	assert.Nil(t, cp)
}

func TestScanFailures(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordFailure(ctx, "r1", "/b.mp3", errors.New("permission denied")))
	require.NoError(t, db.RecordFailure(ctx, "r1", "/a.mp3", errors.New("truncated")))
	require.NoError(t, db.RecordFailure(ctx, "r2", "/b.mp3", errors.New("still denied")))

	failures, err := db.ListFailures(0)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "/a.mp3", failures[0].Path)
	assert.Equal(t, "/b.mp3", failures[1].Path)
	assert.Equal(t, 2, failures[1].Attempts)
	assert.Equal(t, "still denied", failures[1].Error)
	assert.Equal(t, "r2", failures[1].RunID)

	require.NoError(t, db.ClearFailure(ctx, "/a.mp3"))
	n, err := db.FailureCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestExecutionAudit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.RecordAction(ctx, ExecutionRecord{
		RunID: "r1", GroupID: "group-1", GroupKey: "k1", Action: ActionDelete, Path: "/x.mp3", Method: "trash",
	}))
	require.NoError(t, db.RecordAction(ctx, ExecutionRecord{
		RunID: "r1", GroupID: "group-1", GroupKey: "k1", Action: ActionCopy, Path: "/y.flac", DryRun: true, Error: "disk full",
	}))
	require.NoError(t, db.RecordAction(ctx, ExecutionRecord{RunID: "r2", GroupID: "g", GroupKey: "k", Action: ActionSkip, Path: "/z"}))

	actions, err := db.ListActions("r1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionDelete, actions[0].Action)
	assert.Equal(t, "trash", actions[0].Method)
	assert.False(t, actions[0].DryRun)
	assert.True(t, actions[1].DryRun)
	assert.Equal(t, "disk full", actions[1].Error)
	assert.Empty(t, actions[1].Method)

	require.NoError(t, db.MarkExecuted(ctx, "k1", "group-1", "r1"))
	require.NoError(t, db.MarkExecuted(ctx, "k1", "group-1", "r2"))
	keys, err := db.ExecutedKeys()
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"k1": true}, keys)

	assert.Error(t, db.RecordAction(ctx, ExecutionRecord{RunID: "r", GroupID: "g", GroupKey: "k", Action: "explode", Path: "/p"}))
}

func TestWriteQueueConcurrentSubmits(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- db.RecordFailure(ctx, "r", fmt.Sprintf("/f%02d.mp3", i), errors.New("x"))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	n, err := db.FailureCount()
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestWriteQueueSubmitTxRollback(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	err := db.WriteQueue().SubmitTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO executed_groups (group_key, group_id, run_id, executed_at) VALUES ('k', 'g', 'r', 0)`); err != nil {
			return err
		}
		return errors.New("abort")
	})
	assert.EqualError(t, err, "abort")

	keys, err := db.ExecutedKeys()
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestWriteQueueNotStarted(t *testing.T) {
	wq := NewWriteQueue(nil, nil)
	err := wq.Submit(context.Background(), func(db *sql.DB) error { return nil })
	assert.Error(t, err)

	wq.Stop()
}
