// Package matcher scores how likely two audio files are the same recording.
package matcher

import (
	"math"
	"path"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/normalize"
	"github.com/prismon/audio-janitor/pkg/pathutil"
)

// Signal weights
const (
	WeightDuration          = 40
	WeightArtistTitle       = 30
	WeightFilename          = 20
	WeightAlbum             = 10
	WeightDifferentLocation = 10
)

// Defaults used when the config leaves matching settings empty
const (
	DefaultDurationTolerance = 5.0
	DefaultScoreThreshold    = 40
)

// Options controls pair comparison
type Options struct {
	DurationTolerance float64 // seconds
	ScoreThreshold    int
}

// DefaultOptions returns the standard matching settings
func DefaultOptions() Options {
	return Options{
		DurationTolerance: DefaultDurationTolerance,
		ScoreThreshold:    DefaultScoreThreshold,
	}
}

// Candidate is a record with its comparison keys computed once
type Candidate struct {
	Record *models.AudioRecord

	artist, title, album string
	name                 normalize.Filename
	root                 string
}

// Prepare computes the normalized keys for a record
func Prepare(rec *models.AudioRecord) *Candidate {
	name := rec.Filename
	if name == "" {
		name = path.Base(rec.Path)
	}

	c := &Candidate{
		Record: rec,
		artist: normalize.Text(rec.TagValue("artist")),
		title:  normalize.Text(rec.TagValue("title")),
		album:  normalize.Text(rec.TagValue("album")),
		name:   normalize.ParseFilename(name),
		root:   pathutil.RootFolder(rec.Path),
	}
	return c
}

// Compare scores a pair of records. It is symmetric in its arguments.
func Compare(a, b *models.AudioRecord, opts Options) models.MatchResult {
	return CompareCandidates(Prepare(a), Prepare(b), opts)
}

// CompareCandidates scores two prepared records
func CompareCandidates(a, b *Candidate, opts Options) models.MatchResult {
	result := models.MatchResult{Reasons: []string{}}
	add := func(reason string, weight int) {
		result.Score += weight
		result.Reasons = append(result.Reasons, reason)
	}

	if durationsMatch(a.Record, b.Record, opts.DurationTolerance) {
		add(models.ReasonDuration, WeightDuration)
	}
	if a.artist != "" && a.title != "" && a.artist == b.artist && a.title == b.title {
		add(models.ReasonArtistTitle, WeightArtistTitle)
	}
	if a.name.Matches(b.name) {
		add(models.ReasonFilename, WeightFilename)
	}
	if a.album != "" && a.album == b.album {
		add(models.ReasonAlbum, WeightAlbum)
	}
	if a.root != b.root {
		add(models.ReasonDifferentLocation, WeightDifferentLocation)
	}

	return result
}

// IsMatch reports whether a result clears the duplicate threshold
func IsMatch(result models.MatchResult, opts Options) bool {
	return result.Score >= opts.ScoreThreshold
}

func durationsMatch(a, b *models.AudioRecord, tolerance float64) bool {
	if a.Duration == nil || b.Duration == nil {
		return false
	}
	return math.Abs(*a.Duration-*b.Duration) <= tolerance
}

// Pair is a matching pair of records, by index into the compared slice
type Pair struct {
	I, J   int
	Result models.MatchResult
}

// MatchingPairs compares every unordered pair once and returns those at or
// above the threshold, ordered by (I, J).
func MatchingPairs(candidates []*Candidate, opts Options) []Pair {
	var pairs []Pair
	eachPair(candidates, opts, func(i, j int, res models.MatchResult) {
		if IsMatch(res, opts) {
			pairs = append(pairs, Pair{I: i, J: j, Result: res})
		}
	})
	return pairs
}

func eachPair(candidates []*Candidate, opts Options, fn func(i, j int, res models.MatchResult)) {
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			fn(i, j, CompareCandidates(candidates[i], candidates[j], opts))
		}
	}
}
