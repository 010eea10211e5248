// Package executor applies decisions to the filesystem: kept files are copied
// into the destination library when asked, deleted files go to the trash, and
// every action lands in the audit log. An executed decision is terminal.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/conflicts"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/sirupsen/logrus"
)

// ErrUnresolvedConflicts is returned when a decision set keeps and deletes the same file
var ErrUnresolvedConflicts = errors.New("decisions contain unresolved conflicts")

// Options controls one execution
type Options struct {
	DryRun bool
	// DestinationDir receives kept files of decisions with CopyToDestination
	DestinationDir string
}

// Summary counts what an execution did
type Summary struct {
	RunID           string
	DryRun          bool
	Decisions       int
	Executed        int
	AlreadyExecuted int
	NotDuplicates   int
	Failed          int
	Deleted         int
	Trashed         int
	Missing         int
	Copied          int
	// Held counts decisions waiting for a metadata merge; they stay pending
	Held     int
	Duration time.Duration
	Errors          []string
}

// Executor applies decisions
type Executor struct {
	db      *database.StateDB
	deleter Deleter
	copier  *Copier
	logger  *logrus.Entry
}

// NewExecutor creates an executor
func NewExecutor(db *database.StateDB, deleter Deleter, copier *Copier, logger *logrus.Entry) *Executor {
	return &Executor{
		db:      db,
		deleter: deleter,
		copier:  copier,
		logger:  logger.WithField("component", "executor"),
	}
}

// Execute applies every decision not executed before. It refuses to touch
// anything while conflicts remain. Per-decision failures are counted and the
// decision stays pending so a later run can retry it.
func (e *Executor) Execute(ctx context.Context, decisions []models.Decision, opts Options) (*Summary, error) {
	if found := conflicts.Detect(decisions); len(found) > 0 {
		return nil, fmt.Errorf("%w: %d files are both kept and deleted (run 'audio-janitor conflicts --fix')", ErrUnresolvedConflicts, len(found))
	}

	executed, err := e.db.ExecutedKeys()
	if err != nil {
		return nil, fmt.Errorf("failed to load executed decisions: %w", err)
	}

	bg := context.WithoutCancel(ctx)
	runID, err := e.db.CreateRun(bg, database.RunExecute)
	if err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	start := time.Now()
	summary := &Summary{RunID: runID, DryRun: opts.DryRun, Decisions: len(decisions)}

	e.logger.WithFields(logrus.Fields{
		"run":       runID,
		"decisions": len(decisions),
		"dryRun":    opts.DryRun,
	}).Info("Starting execution")

	var runErr error
	for _, d := range decisions {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		key := d.GroupKey
		if key == "" {
			key = models.GroupKey(d.Members())
		}
		if executed[key] {
			summary.AlreadyExecuted++
			continue
		}

		if d.AwaitingMerge() {
			summary.Held++
			e.hold(bg, runID, key, d, opts)
			continue
		}

		if err := e.apply(ctx, runID, key, d, opts, summary); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, fmt.Sprintf("%s: %v", d.GroupID, err))
			e.logger.WithError(err).WithField("group", d.GroupID).Warn("Decision failed")
			continue
		}
		summary.Executed++

		if !opts.DryRun {
			if err := e.db.MarkExecuted(bg, key, d.GroupID, runID); err != nil {
				e.logger.WithError(err).WithField("group", d.GroupID).Error("Failed to mark decision executed")
			}
			executed[key] = true
		}
	}
	summary.Duration = time.Since(start)

	status := database.StatusCompleted
	switch {
	case errors.Is(runErr, context.Canceled):
		status = database.StatusCancelled
	case runErr != nil:
		status = database.StatusFailed
	}
	meta := &database.RunMetadata{
		Processed: summary.Executed + summary.Failed,
		Succeeded: summary.Executed,
		Failed:    summary.Failed,
		Skipped:   summary.AlreadyExecuted + summary.Held,
	}
	if err := e.db.FinishRun(bg, runID, status, runErr, meta); err != nil {
		e.logger.Errorf("Failed to update execution: %v", err)
	}

	e.logger.WithFields(logrus.Fields{
		"run":      runID,
		"executed": summary.Executed,
		"failed":   summary.Failed,
		"deleted":  summary.Deleted,
		"copied":   summary.Copied,
		"held":     summary.Held,
		"duration": summary.Duration.Milliseconds(),
	}).Info("Execution completed")

	return summary, runErr
}

// errAwaitingMerge is the audit reason for a held decision
var errAwaitingMerge = errors.New("tags differ between kept and deleted files; merge them with 'audio-janitor review'")

// hold audits a decision that is skipped until its tags are merged
func (e *Executor) hold(ctx context.Context, runID, key string, d models.Decision, opts Options) {
	for _, p := range d.Delete {
		rec := database.ExecutionRecord{
			RunID:    runID,
			GroupID:  d.GroupID,
			GroupKey: key,
			Action:   database.ActionSkip,
			Path:     p,
			DryRun:   opts.DryRun,
			Error:    errAwaitingMerge.Error(),
		}
		if err := e.db.RecordAction(ctx, rec); err != nil {
			e.logger.Warnf("Failed to record hold of %s: %v", p, err)
		}
	}
	e.logger.WithField("group", d.GroupID).Info("Holding decision until its metadata is merged")
}

// apply carries out one decision. Nothing is deleted unless at least one kept
// file exists and every requested copy succeeded.
func (e *Executor) apply(ctx context.Context, runID, key string, d models.Decision, opts Options, summary *Summary) error {
	bg := context.WithoutCancel(ctx)
	audit := func(action, path, method string, err error) {
		rec := database.ExecutionRecord{
			RunID:    runID,
			GroupID:  d.GroupID,
			GroupKey: key,
			Action:   action,
			Path:     path,
			Method:   method,
			DryRun:   opts.DryRun,
		}
		if err != nil {
			rec.Error = err.Error()
		}
		if recErr := e.db.RecordAction(bg, rec); recErr != nil {
			e.logger.Warnf("Failed to record %s of %s: %v", action, path, recErr)
		}
	}

	if d.NotDuplicates {
		summary.NotDuplicates++
		audit(database.ActionSkip, "", "", nil)
		return nil
	}

	keptExists := false
	for _, p := range d.Keep {
		if _, err := os.Stat(p); err == nil {
			keptExists = true
			break
		}
	}
	if !keptExists {
		return fmt.Errorf("no kept file exists, refusing to delete")
	}

	if d.CopyToDestination && opts.DestinationDir != "" {
		for _, p := range d.Keep {
			dst := DestinationPath(opts.DestinationDir, p)
			if opts.DryRun {
				audit(database.ActionCopy, dst, MethodDryRun, nil)
				continue
			}
			written, err := e.copier.Copy(p, dst)
			if err != nil {
				audit(database.ActionCopy, dst, "", err)
				return err
			}
			audit(database.ActionCopy, written, "", nil)
			summary.Copied++
		}
	}

	var failed int
	for _, p := range d.Delete {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			summary.Missing++
			audit(database.ActionSkip, p, "", errors.New("file already gone"))
			continue
		}
		if opts.DryRun {
			audit(database.ActionDelete, p, MethodDryRun, nil)
			summary.Deleted++
			continue
		}

		res := e.deleter.Delete(ctx, p)
		audit(database.ActionDelete, p, res.Method, res.Err)
		if res.Err != nil {
			failed++
			continue
		}
		summary.Deleted++
		if res.Method != MethodPermanent {
			summary.Trashed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(d.Delete))
	}
	return nil
}
