package scanner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/crawler"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/queue"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("scanner")
}

// CheckpointName is the cursor used by scan runs
const CheckpointName = "scan"

// Lister returns the candidate files under the library roots
type Lister interface {
	List(ctx context.Context, roots []string) ([]string, *crawler.ListStats, error)
}

// Extractor turns one file into a record
type Extractor interface {
	Extract(ctx context.Context, path string) (*models.AudioRecord, error)
}

// Options tunes a scan
type Options struct {
	Workers         int
	QueueSize       int
	CheckpointEvery int
	// Rescan extracts every listed file, not only those missing from the store
	Rescan bool
}

// Stats summarises a scan run
type Stats struct {
	RunID     string
	Listed    int
	Known     int
	Extracted int
	Failed    int
	Cancelled bool
	Duration  time.Duration
}

// Scanner extracts metadata for new files and appends it to the store
type Scanner struct {
	lister    Lister
	extractor Extractor
	store     *store.MetadataStore
	appender  *store.Appender
	db        *database.StateDB
	opts      Options
}

// New creates a scanner. Records are put in st and appended through appender.
func New(lister Lister, extractor Extractor, st *store.MetadataStore, appender *store.Appender, db *database.StateDB, opts Options) *Scanner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.QueueSize < 1 {
		opts.QueueSize = opts.Workers * 4
	}
	if opts.CheckpointEvery < 1 {
		opts.CheckpointEvery = 100
	}
	return &Scanner{
		lister:    lister,
		extractor: extractor,
		store:     st,
		appender:  appender,
		db:        db,
		opts:      opts,
	}
}

// extractJob runs the extractor for one path
type extractJob struct {
	path      string
	extractor Extractor
	record    *models.AudioRecord
}

func (j *extractJob) ID() string {
	return j.path
}

func (j *extractJob) Execute(ctx context.Context) error {
	rec, err := j.extractor.Extract(ctx, j.path)
	if err != nil {
		return err
	}
	j.record = rec
	return nil
}

// Run lists the roots and extracts every file not yet in the store. Each
// record is appended as one line when its extraction finishes, and the
// cursor is checkpointed every CheckpointEvery records and on exit. On
// cancellation the work done so far is kept and ctx.Err() is returned.
func (s *Scanner) Run(ctx context.Context, roots []string) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	files, _, err := s.lister.List(ctx, roots)
	if err != nil {
		return nil, fmt.Errorf("failed to list library: %w", err)
	}
	stats.Listed = len(files)

	var pending []string
	for _, path := range files {
		if !s.opts.Rescan && s.store.Has(path) {
			stats.Known++
			continue
		}
		pending = append(pending, path)
	}

	// Bookkeeping writes must land even when ctx is cancelled
	bg := context.WithoutCancel(ctx)

	runID, err := s.db.CreateRun(bg, database.RunScan)
	if err != nil {
		return nil, err
	}
	stats.RunID = runID

	previousFailures, err := s.failedPaths()
	if err != nil {
		log.WithError(err).Warn("Failed to load previous scan failures")
	}

	checkpointer := database.NewCheckpointer(s.db, CheckpointName, runID, s.opts.CheckpointEvery)
	checkpointer.SetTotal(len(pending))

	log.WithFields(logrus.Fields{
		"runID":   runID,
		"listed":  stats.Listed,
		"known":   stats.Known,
		"pending": len(pending),
		"workers": s.opts.Workers,
	}).Info("Starting metadata scan")

	lastProgressLog := time.Now()
	handle := func(result queue.JobResult) {
		job := result.Job.(*extractJob)

		if result.Error != nil {
			if errors.Is(result.Error, context.Canceled) {
				return
			}
			stats.Failed++
			log.WithFields(logrus.Fields{
				"path":  job.path,
				"error": result.Error,
			}).Warn("Extraction failed")
			if err := s.db.RecordFailure(bg, runID, job.path, result.Error); err != nil {
				log.WithError(err).WithField("path", job.path).Error("Failed to record scan failure")
			}
		} else {
			if err := s.appender.Append(job.record); err != nil {
				stats.Failed++
				log.WithError(err).WithField("path", job.path).Error("Failed to persist record")
				return
			}
			s.store.Put(job.record)
			stats.Extracted++
			if previousFailures[job.path] {
				if err := s.db.ClearFailure(bg, job.path); err != nil {
					log.WithError(err).WithField("path", job.path).Warn("Failed to clear scan failure")
				}
			}
		}

		if err := checkpointer.Advance(bg, job.path); err != nil {
			log.WithError(err).Warn("Checkpoint failed")
		}

		if now := time.Now(); now.Sub(lastProgressLog) > 5*time.Second {
			log.WithFields(logrus.Fields{
				"extracted": stats.Extracted,
				"failed":    stats.Failed,
				"total":     len(pending),
			}).Info("Scan progress")
			lastProgressLog = now
		}
	}

	pool := queue.NewWorkerPool(ctx, "extract", s.opts.Workers, s.opts.QueueSize, handle)
	pool.Start()

	for _, path := range pending {
		if err := pool.Submit(ctx, &extractJob{path: path, extractor: s.extractor}); err != nil {
			break
		}
	}

	if ctx.Err() != nil {
		pool.Cancel()
		stats.Cancelled = true
	} else {
		pool.Wait()
	}

	if err := s.appender.Sync(); err != nil {
		log.WithError(err).Error("Failed to sync metadata file")
	}
	if err := checkpointer.Flush(bg); err != nil {
		log.WithError(err).Error("Failed to save final checkpoint")
	}

	stats.Duration = time.Since(startTime)
	status := database.StatusCompleted
	if stats.Cancelled {
		status = database.StatusCancelled
	}
	metadata := &database.RunMetadata{
		Processed: stats.Extracted + stats.Failed,
		Succeeded: stats.Extracted,
		Failed:    stats.Failed,
		Skipped:   stats.Known,
	}
	if err := s.db.FinishRun(bg, runID, status, ctx.Err(), metadata); err != nil {
		log.WithError(err).Error("Failed to finish scan run")
	}

	log.WithFields(logrus.Fields{
		"runID":     runID,
		"extracted": stats.Extracted,
		"failed":    stats.Failed,
		"cancelled": stats.Cancelled,
		"duration":  stats.Duration,
	}).Info("Metadata scan finished")

	if stats.Cancelled {
		return stats, ctx.Err()
	}
	return stats, nil
}

func (s *Scanner) failedPaths() (map[string]bool, error) {
	failures, err := s.db.ListFailures(0)
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(failures))
	for _, f := range failures {
		out[f.Path] = true
	}
	return out, nil
}
