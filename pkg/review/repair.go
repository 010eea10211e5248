package review

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/inference"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
)

// DefaultLookahead is how many upcoming records are inferred in the background
const DefaultLookahead = 2

// RepairSummary counts what a repair pass did
type RepairSummary struct {
	RunID     string
	Total     int
	Repaired  int
	Skipped   int
	NoAnswer  int
	Fallbacks int
	Failed    int
}

// Repair fills in missing tags from inference suggestions. Accepted changes
// replace the record in the store and are appended to the metadata file, so
// the next load sees the repaired record.
type Repair struct {
	prefetcher *inference.Prefetcher
	prompter   RepairPrompter
	store      *store.MetadataStore
	appender   *store.Appender
	db         *database.StateDB
	lookahead  int
}

// NewRepair creates a repair flow. db may be nil to skip run bookkeeping.
func NewRepair(prefetcher *inference.Prefetcher, prompter RepairPrompter, st *store.MetadataStore, appender *store.Appender, db *database.StateDB, lookahead int) *Repair {
	if lookahead < 0 {
		lookahead = 0
	}
	return &Repair{
		prefetcher: prefetcher,
		prompter:   prompter,
		store:      st,
		appender:   appender,
		db:         db,
		lookahead:  lookahead,
	}
}

// NeedsRepair reports whether a record lacks its title or artist
func NeedsRepair(rec *models.AudioRecord) bool {
	return strings.TrimSpace(rec.TagValue("title")) == "" || strings.TrimSpace(rec.TagValue("artist")) == ""
}

// Candidates returns the records that need repair, in the given order
func Candidates(records []*models.AudioRecord) []*models.AudioRecord {
	var out []*models.AudioRecord
	for _, rec := range records {
		if NeedsRepair(rec) {
			out = append(out, rec)
		}
	}
	return out
}

// Apply returns a copy of rec with empty tag fields filled from s. Fields
// that already carry a value are left alone.
func Apply(rec *models.AudioRecord, s inference.Suggestion) (*models.AudioRecord, bool) {
	out := *rec
	changed := false
	fill := func(dst **string, value string) {
		value = strings.TrimSpace(value)
		if value == "" || (*dst != nil && strings.TrimSpace(**dst) != "") {
			return
		}
		v := value
		*dst = &v
		changed = true
	}
	fill(&out.Artist, s.Artist)
	fill(&out.Title, s.Title)
	fill(&out.Album, s.Album)
	fill(&out.Genre, s.Genre)
	if s.Year > 0 && (out.Year == nil || *out.Year <= 0) {
		y := s.Year
		out.Year = &y
		changed = true
	}
	return &out, changed
}

// Run offers a suggestion for each record in turn while the next few are
// inferred in the background. It returns ErrQuit when the user quits and
// ctx.Err() when cancelled; changes accepted so far are kept.
func (r *Repair) Run(ctx context.Context, records []*models.AudioRecord) (*RepairSummary, error) {
	bg := context.WithoutCancel(ctx)
	summary := &RepairSummary{Total: len(records)}

	if r.db != nil {
		runID, err := r.db.CreateRun(bg, database.RunRepair)
		if err != nil {
			return nil, fmt.Errorf("failed to create repair run: %w", err)
		}
		summary.RunID = runID
	}

	runErr := r.walk(ctx, records, summary)

	if err := r.appender.Sync(); err != nil {
		log.WithError(err).Error("Failed to sync repaired metadata")
		if runErr == nil {
			runErr = err
		}
	}

	if r.db != nil {
		status := database.StatusCompleted
		switch {
		case errors.Is(runErr, ErrQuit), errors.Is(runErr, context.Canceled):
			status = database.StatusCancelled
		case runErr != nil:
			status = database.StatusFailed
		}
		meta := &database.RunMetadata{
			Processed: summary.Repaired + summary.Skipped + summary.NoAnswer + summary.Failed,
			Succeeded: summary.Repaired,
			Failed:    summary.Failed,
			Skipped:   summary.Skipped + summary.NoAnswer,
		}
		if err := r.db.FinishRun(bg, summary.RunID, status, runErr, meta); err != nil {
			log.WithError(err).Warn("Failed to finish repair run")
		}
	}

	log.WithFields(logrus.Fields{
		"repaired":  summary.Repaired,
		"skipped":   summary.Skipped,
		"noAnswer":  summary.NoAnswer,
		"fallbacks": summary.Fallbacks,
	}).Info("Metadata repair ended")

	return summary, runErr
}

func (r *Repair) walk(ctx context.Context, records []*models.AudioRecord, summary *RepairSummary) error {
	r.prefetch(ctx, records, 0)

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.prefetch(ctx, records, i+1)

		suggestion := r.prefetcher.Get(ctx, rec.Path)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if suggestion.Source == inference.SourceFilename {
			summary.Fallbacks++
		}

		candidate, changed := Apply(rec, suggestion)
		if !changed {
			summary.NoAnswer++
			continue
		}

		action, err := r.prompter.Confirm(ctx, rec, suggestion)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("prompt failed for %s: %w", rec.Path, err)
		}

		switch action {
		case RepairQuit:
			return ErrQuit
		case RepairSkip:
			summary.Skipped++
			continue
		case RepairAccept:
		default:
			return fmt.Errorf("unknown repair action %q", action)
		}

		if err := r.store.Replace(candidate); err != nil {
			summary.Failed++
			log.WithError(err).WithField("path", rec.Path).Warn("Failed to replace record")
			continue
		}
		if err := r.appender.Append(candidate); err != nil {
			return err
		}
		summary.Repaired++
	}
	return nil
}

// prefetch schedules the lookahead window starting at from
func (r *Repair) prefetch(ctx context.Context, records []*models.AudioRecord, from int) {
	end := from + r.lookahead
	if from == 0 {
		end++
	}
	if end > len(records) {
		end = len(records)
	}
	for i := from; i < end; i++ {
		r.prefetcher.Prefetch(ctx, records[i].Path)
	}
}
