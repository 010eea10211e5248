package models

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// losslessFormats is the set of container extensions treated as lossless
var losslessFormats = map[string]bool{
	"flac": true,
	"wav":  true,
	"aiff": true,
	"aif":  true,
	"alac": true,
	"ape":  true,
	"wv":   true,
}

// IsLosslessFormat reports whether a lowercase extension (without dot) is lossless
func IsLosslessFormat(format string) bool {
	return losslessFormats[strings.ToLower(strings.TrimPrefix(format, "."))]
}

// AudioRecord holds the extracted attributes of one scanned audio file.
// Path is the unique key within a metadata store.
type AudioRecord struct {
	Path        string    `json:"path"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	Duration    *float64  `json:"duration"`   // seconds
	Bitrate     *int      `json:"bitrate"`    // kbps
	SampleRate  *int      `json:"sampleRate"` // Hz
	BitDepth    *int      `json:"bitDepth"`
	Title       *string   `json:"title"`
	Artist      *string   `json:"artist"`
	Album       *string   `json:"album"`
	Genre       *string   `json:"genre"`
	Year        *int      `json:"year"`
	TrackNumber *int      `json:"trackNumber"`
	Format      string    `json:"format"`
	Lossless    bool      `json:"lossless"`
	ScannedAt   time.Time `json:"scannedAt"`
}

// TagFields lists the tag fields used for completeness scoring and metadata comparison
var TagFields = []string{"title", "artist", "album", "genre", "year"}

// TagValue returns the string form of one of TagFields, or "" when unset
func (r *AudioRecord) TagValue(field string) string {
	switch field {
	case "title":
		return deref(r.Title)
	case "artist":
		return deref(r.Artist)
	case "album":
		return deref(r.Album)
	case "genre":
		return deref(r.Genre)
	case "year":
		if r.Year != nil && *r.Year > 0 {
			return fmt.Sprintf("%d", *r.Year)
		}
	}
	return ""
}

// CopyTag sets one of TagFields on r to the value src holds
func (r *AudioRecord) CopyTag(field string, src *AudioRecord) {
	switch field {
	case "title":
		r.Title = cloneString(src.Title)
	case "artist":
		r.Artist = cloneString(src.Artist)
	case "album":
		r.Album = cloneString(src.Album)
	case "genre":
		r.Genre = cloneString(src.Genre)
	case "year":
		if src.Year != nil {
			y := *src.Year
			r.Year = &y
		} else {
			r.Year = nil
		}
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// FilledTagCount counts the non-empty fields among title, artist, album, genre and year
func (r *AudioRecord) FilledTagCount() int {
	n := 0
	for _, f := range TagFields {
		if strings.TrimSpace(r.TagValue(f)) != "" {
			n++
		}
	}
	return n
}

// HasMetadata reports whether anything beyond the path was extracted for the file
func (r *AudioRecord) HasMetadata() bool {
	return r.Duration != nil || r.Bitrate != nil || r.FilledTagCount() > 0
}

// BitrateValue returns the bitrate in kbps, 0 when unknown
func (r *AudioRecord) BitrateValue() int {
	if r.Bitrate == nil {
		return 0
	}
	return *r.Bitrate
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Match signal names, in the order they are reported
const (
	ReasonDuration          = "duration"
	ReasonArtistTitle       = "artist+title"
	ReasonFilename          = "filename"
	ReasonAlbum             = "album"
	ReasonDifferentLocation = "different-location"
)

// ReasonOrder is the canonical ordering of match reasons
var ReasonOrder = []string{
	ReasonDuration,
	ReasonArtistTitle,
	ReasonFilename,
	ReasonAlbum,
	ReasonDifferentLocation,
}

// MaxConfidence caps group confidence. A pair matching on every signal
// scores above it.
const MaxConfidence = 100

// MatchResult is the outcome of comparing two records
type MatchResult struct {
	Score   int      `json:"score"`
	Reasons []string `json:"reasons"`
}

// HasReason reports whether the named signal fired
func (m MatchResult) HasReason(reason string) bool {
	for _, r := range m.Reasons {
		if r == reason {
			return true
		}
	}
	return false
}

// DuplicateGroup is one connected component of matching files
type DuplicateGroup struct {
	ID            string   `json:"id"`
	Key           string   `json:"key"`
	Confidence    int      `json:"confidence"`
	Files         []string `json:"files"`
	MatchReasons  []string `json:"matchReasons"`
	SuggestedKeep *string  `json:"suggestedKeep"`
}

// GroupKey derives a content key from a member set. The key does not depend
// on member order, so it survives group id regeneration.
func GroupKey(paths []string) string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	sum := sha1.Sum([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:8])
}

// GroupsDocument is the persisted output of duplicate detection
type GroupsDocument struct {
	GeneratedAt time.Time        `json:"generatedAt"`
	TotalGroups int              `json:"totalGroups"`
	Groups      []DuplicateGroup `json:"groups"`
}

// Decision types
const (
	DecisionAuto   = "auto"
	DecisionManual = "manual"
)

// Values recorded in Decision.RuleApplied
const (
	RuleLossless              = "lossless"
	RuleBitrate               = "bitrate"
	RuleMetadata              = "metadata"
	RuleTie                   = "tie"
	RuleWeighted              = "weighted"
	RuleManual                = "manual"
	RuleConflictResolution    = "conflict-resolution"
	RuleDifferentArtists      = "different-artists"
	RuleLowerQualityDuplicate = "lower-quality-duplicate"
)

// Decision resolves one duplicate group
type Decision struct {
	GroupID             string          `json:"groupId"`
	GroupKey            string          `json:"groupKey,omitempty"`
	Keep                []string        `json:"keep"`
	Delete              []string        `json:"delete"`
	NotDuplicates       bool            `json:"notDuplicates"`
	DecisionType        string          `json:"decisionType"`
	RuleApplied         string          `json:"ruleApplied"`
	Reason              string          `json:"reason,omitempty"`
	CopyToDestination   bool            `json:"copyToDestination"`
	MetadataSource      *MetadataSource `json:"metadataSource,omitempty"`
	NeedsMetadataReview bool            `json:"needsMetadataReview"`
}

// Members returns keep followed by delete
func (d *Decision) Members() []string {
	out := make([]string, 0, len(d.Keep)+len(d.Delete))
	out = append(out, d.Keep...)
	return append(out, d.Delete...)
}

// AwaitingMerge reports whether the kept and deleted files carry different
// tags that nobody has merged yet. Such a decision must not be executed.
func (d *Decision) AwaitingMerge() bool {
	return d.NeedsMetadataReview && d.MetadataSource == nil && !d.NotDuplicates
}

// MetadataSource names where merged tag values come from: either a single
// file, or a mapping from tag field to the file supplying it.
type MetadataSource struct {
	Path   string
	Fields map[string]string
}

// MarshalJSON encodes a single source as a string and a mapping as an object
func (m MetadataSource) MarshalJSON() ([]byte, error) {
	if m.Fields != nil {
		return json.Marshal(m.Fields)
	}
	return json.Marshal(m.Path)
}

// UnmarshalJSON accepts either a path string or a field mapping
func (m *MetadataSource) UnmarshalJSON(data []byte) error {
	var path string
	if err := json.Unmarshal(data, &path); err == nil {
		m.Path = path
		m.Fields = nil
		return nil
	}
	var fields map[string]string
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("metadataSource must be a path or a field mapping: %w", err)
	}
	m.Path = ""
	m.Fields = fields
	return nil
}

// DecisionsDocument is the persisted decision set
type DecisionsDocument struct {
	ReviewedAt time.Time  `json:"reviewedAt"`
	Decisions  []Decision `json:"decisions"`
}
