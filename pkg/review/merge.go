package review

import (
	"context"
	"fmt"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/normalize"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
)

// FieldOption is one distinct value of a tag field and the first file holding it
type FieldOption struct {
	Path  string
	Value string
}

// MergePrompter picks which file supplies a tag field whose values differ.
// ActionKeep answers carry the index into options.
type MergePrompter interface {
	ChooseField(ctx context.Context, d models.Decision, field string, options []FieldOption) (Choice, error)
}

// MergeSummary counts what a merge pass did
type MergeSummary struct {
	Total   int
	Merged  int
	Skipped int
}

// Merge resolves decisions flagged for metadata review. For every tag field
// it records which member supplies the value, writes the merged tags onto
// the keeper's record and clears the flag, saving the decision set after
// each decision.
type Merge struct {
	prompter      MergePrompter
	store         *store.MetadataStore
	appender      *store.Appender
	decisionsPath string
	now           func() time.Time
}

// NewMerge creates a merge pass
func NewMerge(prompter MergePrompter, st *store.MetadataStore, appender *store.Appender, decisionsPath string) *Merge {
	return &Merge{
		prompter:      prompter,
		store:         st,
		appender:      appender,
		decisionsPath: decisionsPath,
		now:           time.Now,
	}
}

// PendingMerges counts decisions that still wait for a metadata merge
func PendingMerges(decisions []models.Decision) int {
	n := 0
	for i := range decisions {
		if decisions[i].AwaitingMerge() {
			n++
		}
	}
	return n
}

// Run walks the flagged decisions in order and returns the updated set. It
// returns ErrQuit when the reviewer quits; merges made before that are saved.
func (m *Merge) Run(ctx context.Context, decisions []models.Decision) ([]models.Decision, *MergeSummary, error) {
	out := append([]models.Decision(nil), decisions...)
	summary := &MergeSummary{Total: PendingMerges(out)}

	for i := range out {
		if !out[i].AwaitingMerge() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return out, summary, err
		}

		merged, rec, err := m.mergeOne(ctx, out[i])
		if err != nil {
			return out, summary, err
		}
		if merged == nil {
			summary.Skipped++
			continue
		}

		if rec != nil {
			if err := m.persist(rec); err != nil {
				return out, summary, err
			}
		}

		previous := out[i]
		out[i] = *merged
		if err := store.SaveDecisions(m.decisionsPath, out, m.now()); err != nil {
			out[i] = previous
			return out, summary, err
		}
		summary.Merged++

		log.WithFields(logrus.Fields{
			"group":  merged.GroupID,
			"fields": merged.MetadataSource.Fields,
		}).Debug("Merged metadata")
	}

	log.WithFields(logrus.Fields{
		"merged":  summary.Merged,
		"skipped": summary.Skipped,
	}).Info("Metadata merge finished")

	return out, summary, nil
}

// mergeOne asks for every differing field. It returns a nil decision when the
// reviewer skips, and a nil record when the keeper's tags are unchanged.
func (m *Merge) mergeOne(ctx context.Context, d models.Decision) (*models.Decision, *models.AudioRecord, error) {
	if len(d.Keep) == 0 {
		return nil, nil, nil
	}
	keeper, ok := m.store.Get(d.Keep[0])
	if !ok {
		log.WithField("group", d.GroupID).Warn("Kept file has no metadata, leaving decision for review")
		return nil, nil, nil
	}

	members := make([]*models.AudioRecord, 0, len(d.Keep)+len(d.Delete))
	for _, p := range d.Members() {
		if rec, ok := m.store.Get(p); ok {
			members = append(members, rec)
		}
	}

	updated := *keeper
	changed := false
	fields := make(map[string]string)

	for _, field := range models.TagFields {
		options := fieldOptions(members, field)
		if len(options) == 0 {
			continue
		}
		pick := 0
		if len(options) > 1 {
			choice, err := m.prompter.ChooseField(ctx, d, field, options)
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, ctx.Err()
				}
				return nil, nil, fmt.Errorf("prompt failed for %s: %w", d.GroupID, err)
			}
			switch choice.Action {
			case ActionQuit:
				return nil, nil, ErrQuit
			case ActionSkip:
				return nil, nil, nil
			case ActionKeep:
				if choice.Keep < 0 || choice.Keep >= len(options) {
					return nil, nil, fmt.Errorf("source index %d out of range for %s", choice.Keep, field)
				}
				pick = choice.Keep
			default:
				return nil, nil, fmt.Errorf("unknown merge action %q", choice.Action)
			}
		}

		source := options[pick].Path
		fields[field] = source
		if source != keeper.Path {
			src, _ := m.store.Get(source)
			updated.CopyTag(field, src)
			changed = true
		}
	}

	merged := d
	merged.NeedsMetadataReview = false
	merged.MetadataSource = &models.MetadataSource{Fields: fields}
	if !changed {
		return &merged, nil, nil
	}
	return &merged, &updated, nil
}

func (m *Merge) persist(rec *models.AudioRecord) error {
	if err := m.store.Replace(rec); err != nil {
		return err
	}
	if m.appender == nil {
		return nil
	}
	if err := m.appender.Append(rec); err != nil {
		return err
	}
	return m.appender.Sync()
}

// fieldOptions lists the distinct non-empty values of field across members,
// in member order and compared after normalization
func fieldOptions(members []*models.AudioRecord, field string) []FieldOption {
	var options []FieldOption
	seen := make(map[string]bool)
	for _, rec := range members {
		value := rec.TagValue(field)
		key := normalize.Text(value)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, FieldOption{Path: rec.Path, Value: value})
	}
	return options
}
