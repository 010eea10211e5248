package inference

import "strings"

// Confidence labels
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Where a suggestion came from
const (
	SourceOracle   = "oracle"
	SourceFilename = "filename"
	SourceCache    = "cache"
)

// Guess is what can be read from a file's name and location, plus context
// that helps the oracle stay consistent with earlier answers
type Guess struct {
	Path          string   `json:"path"`
	Filename      string   `json:"filename"`
	Artist        string   `json:"artist,omitempty"`
	Title         string   `json:"title,omitempty"`
	Album         string   `json:"album,omitempty"`
	RecentArtists []string `json:"recentArtists,omitempty"`
	RecentGenres  []string `json:"recentGenres,omitempty"`
}

// Suggestion is a best-effort set of tag values
type Suggestion struct {
	Artist     string `json:"artist,omitempty"`
	Title      string `json:"title,omitempty"`
	Album      string `json:"album,omitempty"`
	Genre      string `json:"genre,omitempty"`
	Year       int    `json:"year,omitempty"`
	Confidence string `json:"confidence"`
	Source     string `json:"source,omitempty"`
	// Warning explains a degraded answer, such as a filename fallback
	Warning string `json:"-"`
}

// Empty reports whether no tag value is set
func (s Suggestion) Empty() bool {
	return strings.TrimSpace(s.Artist) == "" &&
		strings.TrimSpace(s.Title) == "" &&
		strings.TrimSpace(s.Album) == "" &&
		strings.TrimSpace(s.Genre) == "" &&
		s.Year == 0
}

// Result is either a suggestion or the reason there is none
type Result struct {
	suggestion Suggestion
	reason     string
	ok         bool
}

// Ok wraps a successful suggestion
func Ok(s Suggestion) Result {
	return Result{suggestion: s, ok: true}
}

// Err wraps a failure reason
func Err(reason string) Result {
	return Result{reason: reason}
}

// IsOk reports whether the result carries a suggestion
func (r Result) IsOk() bool {
	return r.ok
}

// Value returns the suggestion and whether there is one
func (r Result) Value() (Suggestion, bool) {
	return r.suggestion, r.ok
}

// Reason returns why there is no suggestion, "" for Ok results
func (r Result) Reason() string {
	return r.reason
}

// normalizeConfidence maps free-form labels onto high, medium or low
func normalizeConfidence(label string) string {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case ConfidenceHigh:
		return ConfidenceHigh
	case ConfidenceLow:
		return ConfidenceLow
	default:
		return ConfidenceMedium
	}
}
