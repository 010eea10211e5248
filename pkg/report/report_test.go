package report

import (
	"strings"
	"testing"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/conflicts"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/executor"
	"github.com/prismon/audio-janitor/pkg/rules"
	"github.com/prismon/audio-janitor/pkg/scanner"
	"github.com/stretchr/testify/assert"
)

func TestRenderTablePadsShortRows(t *testing.T) {
	out := renderTable("", []string{"A", "B"}, [][]string{{"only"}}, nil)
	assert.Contains(t, out, "only")
	assert.Contains(t, out, "A")
	assert.Empty(t, renderTable("", nil, nil, nil))
}

func TestGroups(t *testing.T) {
	keep := "/m/a/Song.flac"
	groups := []models.DuplicateGroup{
		{ID: "group-1", Confidence: 90, Files: []string{keep, "/m/b/Song.mp3"}, MatchReasons: []string{"duration", "filename"}, SuggestedKeep: &keep},
		{ID: "group-2", Confidence: 50, Files: []string{"/x", "/y"}},
	}
	bitrate := 320
	lookup := func(p string) *models.AudioRecord {
		if p == "/m/b/Song.mp3" {
			return &models.AudioRecord{Path: p, Format: "mp3", Bitrate: &bitrate}
		}
		return nil
	}

	var b strings.Builder
	Groups(&b, groups, lookup, 1)
	out := b.String()
	assert.Contains(t, out, "Duplicate groups (2)")
	assert.Contains(t, out, "group-1")
	assert.Contains(t, out, "320")
	assert.Contains(t, out, "duration, filename")
	assert.NotContains(t, out, "group-2")
	assert.Contains(t, out, "1 more groups")
}

func TestDecisionsAndConflicts(t *testing.T) {
	var b strings.Builder
	Decisions(&b, []models.Decision{{GroupID: "group-1", DecisionType: "auto", RuleApplied: "lossless", Keep: []string{"/k"}, Delete: []string{"/d"}, CopyToDestination: true}})
	Conflicts(&b, []conflicts.Conflict{{Path: "/b.mp3", KeptIn: []string{"group-2"}, DeletedIn: []string{"group-1"}}})
	Resolution(&b, conflicts.Report{Before: []conflicts.Conflict{{Path: "/b.mp3"}}, Synthesized: []string{"resolved-1"}})
	ManualQueue(&b, []rules.ManualItem{{Group: models.DuplicateGroup{ID: "group-3", Files: []string{"/a", "/b"}}, Reason: rules.ManualLowConfidence}})

	out := b.String()
	assert.Contains(t, out, "lossless")
	assert.Contains(t, out, "copy")
	assert.Contains(t, out, "/b.mp3")
	assert.Contains(t, out, "resolved-1")
	assert.Contains(t, out, rules.ManualLowConfidence)
}

func TestSummaries(t *testing.T) {
	var b strings.Builder
	Scan(&b, &scanner.Stats{Listed: 10, Known: 4, Extracted: 5, Failed: 1, Cancelled: true, Duration: time.Second})
	Execution(&b, &executor.Summary{DryRun: true, Decisions: 2, Executed: 2, Held: 1, Errors: []string{"group-9: boom"}})
	StatusTable(&b, Status{
		Home:        "/home/u/.audio-janitor",
		Records:     12,
		Merges:      4,
		Checkpoints: []database.Checkpoint{{Name: "scan", Processed: 3, Total: 9, Cursor: "/m/c.mp3"}},
		Runs:        []*database.Run{{Kind: database.RunScan, Status: database.StatusCompleted, Metadata: &database.RunMetadata{Processed: 7}}},
	})

	out := b.String()
	assert.Contains(t, out, "cancelled")
	assert.Contains(t, out, "Execution (dry run)")
	assert.Contains(t, out, "group-9: boom")
	assert.Contains(t, out, "Held for metadata merge")
	assert.Contains(t, out, "Awaiting metadata merge")
	assert.Contains(t, out, "3/9")
	assert.Contains(t, out, "never")
	assert.Contains(t, out, "completed")
}
