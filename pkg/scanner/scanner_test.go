package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/crawler"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExtractor returns a record per path unless the path is marked broken
type fakeExtractor struct {
	mu     sync.Mutex
	broken map[string]bool
	calls  []string
	hook   func(ctx context.Context, path string) error
}

func (f *fakeExtractor) Extract(ctx context.Context, path string) (*models.AudioRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, path)
	broken := f.broken[path]
	f.mu.Unlock()

	if f.hook != nil {
		if err := f.hook(ctx, path); err != nil {
			return nil, err
		}
	}
	if broken {
		return nil, errors.New("corrupt header")
	}
	title := filepath.Base(path)
	return &models.AudioRecord{Path: path, Filename: filepath.Base(path), Format: "mp3", Title: &title}, nil
}

type fixture struct {
	root     string
	metaPath string
	db       *database.StateDB
	lister   *crawler.Lister
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		p := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte("x"), 0644))
	}

	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	lister, err := crawler.NewLister(nil, []string{"mp3"}, nil)
	require.NoError(t, err)

	return &fixture{
		root:     root,
		metaPath: filepath.Join(t.TempDir(), "metadata.jsonl"),
		db:       db,
		lister:   lister,
	}
}

func (f *fixture) run(t *testing.T, ctx context.Context, ex Extractor, opts Options) (*Stats, *store.MetadataStore, error) {
	t.Helper()
	st, _, err := store.LoadMetadata(f.metaPath)
	require.NoError(t, err)
	appender, err := store.OpenAppender(f.metaPath)
	require.NoError(t, err)
	defer appender.Close()

	stats, runErr := New(f.lister, ex, st, appender, f.db, opts).Run(ctx, []string{f.root})
	return stats, st, runErr
}

func TestScanExtractsAndRecordsFailures(t *testing.T) {
	f := newFixture(t, "a/one.mp3", "a/two.mp3", "b/three.mp3", "b/cover.jpg")
	broken := filepath.Join(f.root, "b/three.mp3")
	ex := &fakeExtractor{broken: map[string]bool{broken: true}}

	stats, st, err := f.run(t, context.Background(), ex, Options{Workers: 2, CheckpointEvery: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Listed)
	assert.Equal(t, 0, stats.Known)
	assert.Equal(t, 2, stats.Extracted)
	assert.Equal(t, 1, stats.Failed)
	assert.False(t, stats.Cancelled)
	assert.Equal(t, 2, st.Len())

	reloaded, loadStats, err := store.LoadMetadata(f.metaPath)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.Len())
	assert.Equal(t, 0, loadStats.Corrupt)

	failures, err := f.db.ListFailures(0)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, broken, failures[0].Path)
	assert.Equal(t, "corrupt header", failures[0].Error)

	cp, err := f.db.GetCheckpoint(CheckpointName)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, 3, cp.Processed)
	assert.Equal(t, 3, cp.Total)
	assert.Equal(t, stats.RunID, cp.RunID)

	run, err := f.db.GetRun(stats.RunID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCompleted, run.Status)
	assert.Equal(t, 2, run.Metadata.Succeeded)
}

func TestScanResumesAndClearsFailures(t *testing.T) {
	f := newFixture(t, "one.mp3", "two.mp3")
	broken := filepath.Join(f.root, "two.mp3")

	_, _, err := f.run(t, context.Background(), &fakeExtractor{broken: map[string]bool{broken: true}}, Options{})
	require.NoError(t, err)

	ex := &fakeExtractor{}
	stats, st, err := f.run(t, context.Background(), ex, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Known)
	assert.Equal(t, 1, stats.Extracted)
	assert.Equal(t, []string{broken}, ex.calls)
	assert.Equal(t, 2, st.Len())

	n, err := f.db.FailureCount()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestScanRescan(t *testing.T) {
	f := newFixture(t, "one.mp3")

	_, _, err := f.run(t, context.Background(), &fakeExtractor{}, Options{})
	require.NoError(t, err)

	stats, st, err := f.run(t, context.Background(), &fakeExtractor{}, Options{Rescan: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Extracted)
	assert.Equal(t, 1, st.Len())
}

func TestScanCancellation(t *testing.T) {
	names := make([]string, 20)
	for i := range names {
		names[i] = filepath.Join("album", string(rune('a'+i))+".mp3")
	}
	f := newFixture(t, names...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	ex := &fakeExtractor{hook: func(jobCtx context.Context, path string) error {
		if filepath.Base(path) == "a.mp3" {
			return nil
		}
		once.Do(cancel)
		<-jobCtx.Done()
		return jobCtx.Err()
	}}

	stats, _, err := f.run(t, ctx, ex, Options{Workers: 1, QueueSize: 1, CheckpointEvery: 100})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, stats)
	assert.True(t, stats.Cancelled)
	assert.Less(t, stats.Extracted, 20)
	assert.Equal(t, 0, stats.Failed)

	reloaded, loadStats, err := store.LoadMetadata(f.metaPath)
	require.NoError(t, err)
	assert.Equal(t, stats.Extracted, reloaded.Len())
	assert.Equal(t, 0, loadStats.Corrupt)

	cp, err := f.db.GetCheckpoint(CheckpointName)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, stats.Extracted, cp.Processed)

	run, err := f.db.GetRun(stats.RunID)
	require.NoError(t, err)
	assert.Equal(t, database.StatusCancelled, run.Status)
}

func TestScanNoUsableRoot(t *testing.T) {
	f := newFixture(t)
	st := store.NewMetadataStore()
	appender, err := store.OpenAppender(f.metaPath)
	require.NoError(t, err)
	defer appender.Close()

	_, err = New(f.lister, &fakeExtractor{}, st, appender, f.db, Options{}).
		Run(context.Background(), []string{filepath.Join(f.root, "missing")})
	assert.ErrorIs(t, err, crawler.ErrListerUnavailable)
}
