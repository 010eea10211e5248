package cluster

import (
	"path"
	"testing"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/matcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string     { return &s }
func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func rec(p string, duration float64) *models.AudioRecord {
	r := &models.AudioRecord{Path: p, Filename: path.Base(p), Format: path.Ext(p)[1:]}
	if duration > 0 {
		r.Duration = floatPtr(duration)
	}
	r.Lossless = models.IsLosslessFormat(r.Format)
	return r
}

func TestBuildScenarioCopySuffix(t *testing.T) {
	a := rec("/a/Song.mp3", 180)
	a.Artist, a.Title, a.Bitrate = strPtr("X"), strPtr("Y"), intPtr(128)
	b := rec("/b/Song (1).mp3", 181)
	b.Artist, b.Title, b.Bitrate = strPtr("X"), strPtr("Y"), intPtr(320)

	groups := Build([]*models.AudioRecord{a, b}, matcher.DefaultOptions())
	require.Len(t, groups, 1)

	g := groups[0]
	assert.Equal(t, "group-1", g.ID)
	assert.Equal(t, []string{"/a/Song.mp3", "/b/Song (1).mp3"}, g.Files)
	assert.GreaterOrEqual(t, g.Confidence, 85)
	require.NotNil(t, g.SuggestedKeep)
	assert.Equal(t, "/b/Song (1).mp3", *g.SuggestedKeep)
	assert.Equal(t, models.GroupKey(g.Files), g.Key)
}

func TestBuildTransitive(t *testing.T) {
	// A~B and B~C by duration, A and C too far apart to match directly
	a := rec("/m/alpha.mp3", 100)
	b := rec("/m/bravo.mp3", 104)
	c := rec("/m/charlie.mp3", 108)

	opts := matcher.DefaultOptions()
	require.False(t, matcher.IsMatch(matcher.Compare(a, c, opts), opts))

	groups := Build([]*models.AudioRecord{a, b, c}, opts)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"/m/alpha.mp3", "/m/bravo.mp3", "/m/charlie.mp3"}, groups[0].Files)
	// mean of 40, 40 and 0
	assert.Equal(t, 27, groups[0].Confidence)
	assert.Equal(t, []string{models.ReasonDuration}, groups[0].MatchReasons)
}

func TestBuildDropsSingletons(t *testing.T) {
	a := rec("/m/alpha.mp3", 100)
	b := rec("/m/bravo.mp3", 101)
	lonely := rec("/m/zulu.mp3", 900)

	groups := Build([]*models.AudioRecord{a, lonely, b}, matcher.DefaultOptions())
	require.Len(t, groups, 1)
	for _, g := range groups {
		assert.NotContains(t, g.Files, lonely.Path)
	}
	assert.Equal(t, []string{"/m/alpha.mp3", "/m/bravo.mp3"}, groups[0].Files)
}

func TestBuildOrdersByConfidence(t *testing.T) {
	weak1 := rec("/m/alpha.mp3", 100)
	weak2 := rec("/m/bravo.mp3", 101)

	strong1 := rec("/x/Track.flac", 250)
	strong1.Artist, strong1.Title, strong1.Album = strPtr("A"), strPtr("T"), strPtr("L")
	strong2 := rec("/y/Track.mp3", 250)
	strong2.Artist, strong2.Title, strong2.Album = strPtr("A"), strPtr("T"), strPtr("L")

	groups := Build([]*models.AudioRecord{weak1, weak2, strong1, strong2}, matcher.DefaultOptions())
	require.Len(t, groups, 2)
	assert.Equal(t, "group-1", groups[0].ID)
	assert.Equal(t, models.MaxConfidence, groups[0].Confidence)
	assert.Equal(t, []string{"/x/Track.flac", "/y/Track.mp3"}, groups[0].Files)
	assert.Equal(t, "group-2", groups[1].ID)
	assert.Equal(t, 40, groups[1].Confidence)

	require.NotNil(t, groups[0].SuggestedKeep)
	assert.Equal(t, "/x/Track.flac", *groups[0].SuggestedKeep)
}

func TestBuildDeterministic(t *testing.T) {
	records := []*models.AudioRecord{
		rec("/m/alpha.mp3", 100),
		rec("/m/bravo.mp3", 103),
		rec("/n/alpha.flac", 100),
		rec("/o/other.mp3", 500),
	}
	first := Build(records, matcher.DefaultOptions())
	second := Build(records, matcher.DefaultOptions())
	assert.Equal(t, first, second)
}

func TestSuggestKeeper(t *testing.T) {
	t.Run("no metadata", func(t *testing.T) {
		assert.Nil(t, SuggestKeeper([]*models.AudioRecord{rec("/a.mp3", 0), rec("/b.mp3", 0)}))
	})

	t.Run("tags outrank quality", func(t *testing.T) {
		lossless := rec("/a.flac", 100)
		lossless.Bitrate = intPtr(1411)
		tagged := rec("/b.mp3", 100)
		tagged.Title, tagged.Artist, tagged.Album = strPtr("T"), strPtr("A"), strPtr("L")
		tagged.Bitrate = intPtr(128)

		keep := SuggestKeeper([]*models.AudioRecord{lossless, tagged})
		require.NotNil(t, keep)
		assert.Equal(t, "/b.mp3", *keep)
	})

	t.Run("first wins ties", func(t *testing.T) {
		one := rec("/one.mp3", 100)
		two := rec("/two.mp3", 100)
		keep := SuggestKeeper([]*models.AudioRecord{one, two})
		require.NotNil(t, keep)
		assert.Equal(t, "/one.mp3", *keep)
	})
}

func TestQualityScore(t *testing.T) {
	r := rec("/a.flac", 0)
	r.Bitrate = intPtr(900)
	r.SampleRate = intPtr(44100)
	r.BitDepth = intPtr(16)
	assert.InDelta(t, 1000+900+441+160, QualityScore(r), 0.001)
	assert.Equal(t, 0.0, QualityScore(rec("/b.mp3", 0)))
}
