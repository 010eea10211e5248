// Package review drives manual decisions for duplicate groups and the
// interactive metadata repair flow. Rendering and input are delegated to a
// Prompter so the flow itself stays testable.
package review

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/pathutil"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("review")
}

// ErrQuit is returned when the reviewer stops before the end
var ErrQuit = errors.New("review stopped by user")

// CheckpointName is the cursor name used by review sessions
const CheckpointName = "review"

// Item is one group awaiting a decision. Records align with Group.Files and
// hold nil for files without metadata.
type Item struct {
	Group   models.DuplicateGroup
	Records []*models.AudioRecord
	Reason  string
}

// NewItem builds an item, resolving each member through lookup
func NewItem(group models.DuplicateGroup, reason string, lookup func(string) *models.AudioRecord) Item {
	records := make([]*models.AudioRecord, len(group.Files))
	if lookup != nil {
		for i, p := range group.Files {
			records[i] = lookup(p)
		}
	}
	return Item{Group: group, Records: records, Reason: reason}
}

// Summary counts what a session did
type Summary struct {
	RunID         string
	Total         int
	Resumed       int
	Decided       int
	NotDuplicates int
	Skipped       int
	Remaining     int
}

// Options tune decisions recorded by a session
type Options struct {
	// DestinationDir marks kept files outside it for copying
	DestinationDir string
}

// Session records manual decisions one at a time. Every answer is saved as
// a whole decision document before the cursor moves on.
type Session struct {
	prompter      Prompter
	db            *database.StateDB
	decisionsPath string
	decisions     []models.Decision
	opts          Options
	now           func() time.Time
}

// NewSession creates a session that extends existing and writes the result
// to decisionsPath
func NewSession(prompter Prompter, db *database.StateDB, decisionsPath string, existing []models.Decision, opts Options) *Session {
	return &Session{
		prompter:      prompter,
		db:            db,
		decisionsPath: decisionsPath,
		decisions:     append([]models.Decision(nil), existing...),
		opts:          opts,
		now:           time.Now,
	}
}

// Decisions returns the current decision set
func (s *Session) Decisions() []models.Decision {
	return append([]models.Decision(nil), s.decisions...)
}

// Run walks items from the saved cursor. It returns ErrQuit when the reviewer
// quits and ctx.Err() when cancelled; in both cases progress is saved.
func (s *Session) Run(ctx context.Context, items []Item) (*Summary, error) {
	bg := context.WithoutCancel(ctx)

	runID, err := s.db.CreateRun(bg, database.RunReview)
	if err != nil {
		return nil, fmt.Errorf("failed to create review run: %w", err)
	}
	summary := &Summary{RunID: runID, Total: len(items)}

	cp := database.NewCheckpointer(s.db, CheckpointName, runID, 1)
	start := 0
	if saved, err := cp.Resume(); err != nil {
		log.WithError(err).Warn("Failed to read review checkpoint, starting from the beginning")
	} else if saved != nil {
		start = resumeIndex(items, saved.Cursor)
		summary.Resumed = start
	}
	cp.SetTotal(len(items))

	runErr := s.walk(ctx, items[start:], start, cp, summary)

	if err := cp.Flush(bg); err != nil {
		log.WithError(err).Warn("Failed to save review cursor")
	}
	if runErr == nil {
		if err := s.db.ClearCheckpoint(bg, CheckpointName); err != nil {
			log.WithError(err).Warn("Failed to clear review cursor")
		}
	}

	status := database.StatusCompleted
	switch {
	case errors.Is(runErr, ErrQuit), errors.Is(runErr, context.Canceled):
		status = database.StatusCancelled
	case runErr != nil:
		status = database.StatusFailed
	}
	meta := &database.RunMetadata{
		Processed: summary.Decided + summary.NotDuplicates + summary.Skipped,
		Succeeded: summary.Decided + summary.NotDuplicates,
		Skipped:   summary.Skipped,
	}
	if err := s.db.FinishRun(bg, runID, status, runErr, meta); err != nil {
		log.WithError(err).Warn("Failed to finish review run")
	}

	log.WithFields(logrus.Fields{
		"decided":       summary.Decided,
		"notDuplicates": summary.NotDuplicates,
		"skipped":       summary.Skipped,
		"remaining":     summary.Remaining,
	}).Info("Review session ended")

	return summary, runErr
}

func (s *Session) walk(ctx context.Context, items []Item, offset int, cp *database.Checkpointer, summary *Summary) error {
	bg := context.WithoutCancel(ctx)

	for i, item := range items {
		summary.Remaining = len(items) - i
		if err := ctx.Err(); err != nil {
			return err
		}

		choice, err := s.prompter.Choose(ctx, item, offset+i+1, summary.Total)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("prompt failed for %s: %w", item.Group.ID, err)
		}

		switch choice.Action {
		case ActionQuit:
			return ErrQuit
		case ActionSkip:
			summary.Skipped++
		case ActionKeep, ActionNotDuplicates:
			decision, err := s.decide(item.Group, choice)
			if err != nil {
				return err
			}
			s.decisions = append(s.decisions, decision)
			if err := store.SaveDecisions(s.decisionsPath, s.decisions, s.now()); err != nil {
				s.decisions = s.decisions[:len(s.decisions)-1]
				return err
			}
			if decision.NotDuplicates {
				summary.NotDuplicates++
			} else {
				summary.Decided++
			}
			log.WithFields(logrus.Fields{
				"group": item.Group.ID,
				"keep":  decision.Keep,
			}).Debug("Recorded manual decision")
		default:
			return fmt.Errorf("unknown review action %q", choice.Action)
		}

		if err := cp.Advance(bg, cursorFor(item.Group)); err != nil {
			log.WithError(err).Warn("Failed to advance review cursor")
		}
	}
	summary.Remaining = 0
	return nil
}

// decide turns a choice into a full decision for the group
func (s *Session) decide(group models.DuplicateGroup, choice Choice) (models.Decision, error) {
	d := models.Decision{
		GroupID:      group.ID,
		GroupKey:     cursorFor(group),
		Delete:       []string{},
		DecisionType: models.DecisionManual,
		RuleApplied:  models.RuleManual,
	}

	if choice.Action == ActionNotDuplicates {
		d.Keep = append([]string(nil), group.Files...)
		d.NotDuplicates = true
		d.Reason = "marked as not duplicates"
		return d, nil
	}

	if choice.Keep < 0 || choice.Keep >= len(group.Files) {
		return d, fmt.Errorf("keep index %d out of range for %s", choice.Keep, group.ID)
	}
	keeper := group.Files[choice.Keep]
	d.Keep = []string{keeper}
	for _, p := range group.Files {
		if p != keeper {
			d.Delete = append(d.Delete, p)
		}
	}
	d.Reason = "chosen in manual review"
	d.MetadataSource = &models.MetadataSource{Path: keeper}
	d.CopyToDestination = s.opts.DestinationDir != "" && !pathutil.IsUnder(keeper, s.opts.DestinationDir)
	return d, nil
}

// cursorFor is the stable identity of a group across regenerations
func cursorFor(g models.DuplicateGroup) string {
	if g.Key != "" {
		return g.Key
	}
	return models.GroupKey(g.Files)
}

// resumeIndex returns the position after the item named by cursor, or 0
// when the cursor no longer matches any item
func resumeIndex(items []Item, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, item := range items {
		if cursorFor(item.Group) == cursor {
			return i + 1
		}
	}
	return 0
}
