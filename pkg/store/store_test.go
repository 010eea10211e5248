package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func record(path, title string) *models.AudioRecord {
	return &models.AudioRecord{
		Path:      path,
		Filename:  filepath.Base(path),
		Format:    "mp3",
		Title:     strPtr(title),
		ScannedAt: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestLoadMetadataMissingFile(t *testing.T) {
	s, stats, err := LoadMetadata(filepath.Join(t.TempDir(), "metadata.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, stats.Lines)
}

func TestAppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.jsonl")

	app, err := OpenAppender(path)
	require.NoError(t, err)
	require.NoError(t, app.Append(record("/m/b.mp3", "B")))
	require.NoError(t, app.Append(record("/m/a.mp3", "A")))
	require.NoError(t, app.Append(record("/m/b.mp3", "B2")))
	require.NoError(t, app.Close())

	s, stats, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Lines)
	assert.Equal(t, 2, stats.Records)
	assert.Equal(t, 1, stats.Superseded)

	recs := s.Records()
	require.Len(t, recs, 2)
	assert.Equal(t, "/m/a.mp3", recs[0].Path)
	assert.Equal(t, "/m/b.mp3", recs[1].Path)
	assert.Equal(t, "B2", *recs[1].Title)
}

func TestLoadSkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.jsonl")
	good, err := json.Marshal(record("/m/a.mp3", "A"))
	require.NoError(t, err)

	content := string(good) + "\n" +
		"{not json\n" +
		"\n" +
		`{"filename":"nopath.mp3"}` + "\n" +
		`{"path":"/m/c.mp3","filename":"c.mp3","format":"mp3","lossless":false,"scannedAt":"2024-03-01T10:00:00Z"}` + "\n" +
		`{"path":"/m/torn.mp3","filen`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, stats, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Corrupt)
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.Has("/m/a.mp3"))
	assert.True(t, s.Has("/m/c.mp3"))
	assert.False(t, s.Has("/m/torn.mp3"))
}

func TestAppenderTerminatesTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"path":"/m/torn.mp3","fil`), 0o644))

	app, err := OpenAppender(path)
	require.NoError(t, err)
	require.NoError(t, app.Append(record("/m/a.mp3", "A")))
	require.NoError(t, app.Close())

	s, stats, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Corrupt)
	assert.True(t, s.Has("/m/a.mp3"))
}

func TestReplace(t *testing.T) {
	s := NewMetadataStore()
	s.Put(record("/m/a.mp3", "Old"))

	require.NoError(t, s.Replace(record("/m/a.mp3", "New")))
	rec, ok := s.Get("/m/a.mp3")
	require.True(t, ok)
	assert.Equal(t, "New", *rec.Title)

	err := s.Replace(record("/m/missing.mp3", "X"))
	assert.ErrorIs(t, err, ErrUnknownPath)
	assert.Nil(t, s.Lookup("/m/missing.mp3"))
}

func TestRewriteMetadata(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.jsonl")
	app, err := OpenAppender(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, app.Append(record("/m/a.mp3", "A")))
	}
	require.NoError(t, app.Close())

	s, _, err := LoadMetadata(path)
	require.NoError(t, err)
	require.NoError(t, RewriteMetadata(path, s.Records()))

	_, stats, err := LoadMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Lines)
	assert.Equal(t, 0, stats.Superseded)
}

func TestGroupsDocumentRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "duplicates.json")
	keep := "/b/x.mp3"
	groups := []models.DuplicateGroup{{
		ID:            "group-1",
		Key:           models.GroupKey([]string{"/a/x.mp3", keep}),
		Confidence:    90,
		Files:         []string{"/a/x.mp3", keep},
		MatchReasons:  []string{models.ReasonDuration},
		SuggestedKeep: &keep,
	}}
	at := time.Date(2024, 6, 1, 8, 30, 0, 0, time.UTC)

	require.NoError(t, SaveGroups(path, groups, at))
	doc, err := LoadGroups(path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.TotalGroups)
	assert.Equal(t, at, doc.GeneratedAt)
	assert.Equal(t, groups, doc.Groups)

	_, err = LoadGroups(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDecisionsDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "decisions.json")

	doc, skipped, err := LoadDecisions(path)
	require.NoError(t, err)
	assert.Empty(t, doc.Decisions)
	assert.Equal(t, 0, skipped)

	decisions := []models.Decision{{
		GroupID:        "group-1",
		Keep:           []string{"/a"},
		Delete:         []string{"/b"},
		DecisionType:   models.DecisionAuto,
		RuleApplied:    models.RuleLossless,
		MetadataSource: &models.MetadataSource{Path: "/a"},
	}}
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, SaveDecisions(path, decisions, at))

	doc, skipped, err = LoadDecisions(path)
	require.NoError(t, err)
	assert.Equal(t, 0, skipped)
	assert.Equal(t, decisions, doc.Decisions)
	assert.Equal(t, at, doc.ReviewedAt)

	// No temp files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLoadDecisionsSkipsBadEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "decisions.json")
	content := `{
  "reviewedAt": "2024-06-01T09:00:00Z",
  "decisions": [
    {"groupId": "group-1", "keep": ["/a"], "delete": ["/b"], "decisionType": "manual", "ruleApplied": "manual"},
    {"groupId": 42},
    {"keep": ["/c"]},
    {"groupId": "group-2", "keep": ["/c"], "delete": [], "metadataSource": {"title": "/c"}}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	doc, skipped, err := LoadDecisions(path)
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)
	require.Len(t, doc.Decisions, 2)
	assert.Equal(t, "group-1", doc.Decisions[0].GroupID)
	assert.Equal(t, map[string]string{"title": "/c"}, doc.Decisions[1].MetadataSource.Fields)

	require.NoError(t, os.WriteFile(path, []byte("{"), 0o644))
	_, _, err = LoadDecisions(path)
	assert.Error(t, err)
}
