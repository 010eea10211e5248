package review

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fieldPrompter answers per tag field and records the fields it was asked about
type fieldPrompter struct {
	answers map[string]Choice
	asked   []string
}

func (p *fieldPrompter) ChooseField(ctx context.Context, d models.Decision, field string, options []FieldOption) (Choice, error) {
	p.asked = append(p.asked, field)
	if c, ok := p.answers[field]; ok {
		return c, nil
	}
	return Choice{Action: ActionKeep, Keep: 0}, nil
}

func tieDecision(id, keep string, del ...string) models.Decision {
	return models.Decision{
		GroupID:             id,
		GroupKey:            models.GroupKey(append([]string{keep}, del...)),
		Keep:                []string{keep},
		Delete:              del,
		DecisionType:        models.DecisionAuto,
		RuleApplied:         models.RuleTie,
		NeedsMetadataReview: true,
	}
}

func TestMergeRecordsFieldSources(t *testing.T) {
	ctx := context.Background()
	kept := &models.AudioRecord{Path: "/m/a/Song.mp3", Title: strPtr("Song"), Artist: strPtr("Queen")}
	other := &models.AudioRecord{Path: "/m/b/Song.mp3", Title: strPtr("Song (Remastered)"), Artist: strPtr("queen"), Album: strPtr("Jazz"), Year: intPtr(1978)}
	st, appender, metaPath := repairFixture(t, kept, other)
	decisionsPath := filepath.Join(t.TempDir(), "decisions.json")

	plain := models.Decision{GroupID: "group-2", Keep: []string{"/m/x.mp3"}, Delete: []string{"/m/y.mp3"}, MetadataSource: &models.MetadataSource{Path: "/m/x.mp3"}}
	decisions := []models.Decision{plain, tieDecision("group-1", kept.Path, other.Path)}

	prompter := &fieldPrompter{answers: map[string]Choice{"title": {Action: ActionKeep, Keep: 1}}}
	out, summary, err := NewMerge(prompter, st, appender, decisionsPath).Run(ctx, decisions)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.Merged)
	assert.Equal(t, []string{"title"}, prompter.asked, "only differing fields are asked about")

	require.Len(t, out, 2)
	assert.Equal(t, plain, out[0])
	merged := out[1]
	assert.False(t, merged.NeedsMetadataReview)
	assert.False(t, merged.AwaitingMerge())
	require.NotNil(t, merged.MetadataSource)
	assert.Equal(t, map[string]string{
		"title":  other.Path,
		"artist": kept.Path,
		"album":  other.Path,
		"year":   other.Path,
	}, merged.MetadataSource.Fields)

	rec, ok := st.Get(kept.Path)
	require.True(t, ok)
	assert.Equal(t, "Song (Remastered)", *rec.Title)
	assert.Equal(t, "Queen", *rec.Artist)
	assert.Equal(t, "Jazz", *rec.Album)
	assert.Equal(t, 1978, *rec.Year)
	assert.Equal(t, "Song", *kept.Title, "the original record is not mutated")

	doc, skipped, err := store.LoadDecisions(decisionsPath)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	require.Len(t, doc.Decisions, 2)
	assert.Equal(t, other.Path, doc.Decisions[1].MetadataSource.Fields["title"])
	assert.Equal(t, 0, PendingMerges(doc.Decisions))

	reloaded, _, err := store.LoadMetadata(metaPath)
	require.NoError(t, err)
	got, ok := reloaded.Get(kept.Path)
	require.True(t, ok)
	assert.Equal(t, "Jazz", *got.Album)
}

func TestMergeSkipAndQuit(t *testing.T) {
	kept := &models.AudioRecord{Path: "/m/a/Song.mp3", Title: strPtr("Song")}
	other := &models.AudioRecord{Path: "/m/b/Song.mp3", Title: strPtr("Other Song")}

	tests := []struct {
		name    string
		action  string
		wantErr error
	}{
		{"skip leaves the flag", ActionSkip, nil},
		{"quit stops", ActionQuit, ErrQuit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, appender, _ := repairFixture(t, kept, other)
			decisionsPath := filepath.Join(t.TempDir(), "decisions.json")
			decisions := []models.Decision{tieDecision("group-1", kept.Path, other.Path)}

			prompter := &fieldPrompter{answers: map[string]Choice{"title": {Action: tt.action}}}
			out, summary, err := NewMerge(prompter, st, appender, decisionsPath).Run(context.Background(), decisions)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				assert.Equal(t, 1, summary.Skipped)
			}
			assert.Equal(t, 0, summary.Merged)
			assert.True(t, out[0].AwaitingMerge())

			rec, _ := st.Get(kept.Path)
			assert.Equal(t, "Song", *rec.Title)
			assert.NoFileExists(t, decisionsPath)
		})
	}
}

func TestMergeWithoutKeeperMetadata(t *testing.T) {
	st, appender, _ := repairFixture(t)
	decisions := []models.Decision{tieDecision("group-1", "/m/a.mp3", "/m/b.mp3")}

	out, summary, err := NewMerge(&fieldPrompter{}, st, appender, filepath.Join(t.TempDir(), "d.json")).Run(context.Background(), decisions)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, out[0].AwaitingMerge())
}

func TestLinePrompterChooseField(t *testing.T) {
	options := []FieldOption{{Path: "/m/a.mp3", Value: "Song"}, {Path: "/m/b.mp3", Value: "Song (Live)"}}
	d := tieDecision("group-7", "/m/a.mp3", "/m/b.mp3")

	tests := []struct {
		name  string
		input string
		want  Choice
	}{
		{"second value", "2\n", Choice{Action: ActionKeep, Keep: 1}},
		{"retry after bad answer", "5\n1\n", Choice{Action: ActionKeep, Keep: 0}},
		{"skip", "\n", Choice{Action: ActionSkip}},
		{"quit", "Q\n", Choice{Action: ActionQuit}},
		{"end of input", "", Choice{Action: ActionQuit}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			p := NewLinePrompter(strings.NewReader(tt.input), &out)
			got, err := p.ChooseField(context.Background(), d, "title", options)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "group-7  title differs")
			assert.Contains(t, out.String(), `"Song (Live)"  /m/b.mp3`)
		})
	}
}
