// Package normalize turns tag values and filenames into comparable strings.
package normalize

import (
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/unicode/norm"
)

// SimilarityThreshold is the edit-distance similarity at which two cleaned
// filenames are considered the same
const SimilarityThreshold = 0.8

var (
	// Leading track numbers: "1-02 ", "1-02 - ", "01 ", "01. ", "07_", "3) ".
	// A bare space only ends a zero-padded or disc-track number, so artists
	// like "2 Unlimited" and "50 Cent" survive.
	leadingTrack = regexp.MustCompile(`^\s*(?:\d{1,2}[-.]\d{1,3}(?:\s*[-._)]+\s*|\s+)|0\d(?:\s*[-._)]+\s*|\s+)|\d{1,3}\s*[-._)]+\s*)`)
	// "11 Title": a two-digit number and a space, stripped only from names
	// without an artist-title separator
	bareTrack = regexp.MustCompile(`^\d{2}\s+`)
	// Quality annotations outside brackets: "320kbps", "192 kbps", "320k", "24bit", "96khz", "V0"
	qualityTag = regexp.MustCompile(`(?i)\b(?:\d{2,4}\s?(?:kbps|kb/s|k)|\d{2}\s?bit|\d{2,3}(?:\.\d)?\s?khz|v[02])\b`)
	// Bracketed or parenthetical segments
	bracketed = regexp.MustCompile(`\s*[\[({][^\])}]*[\])}]`)
	spaces    = regexp.MustCompile(`\s+`)
)

// ArtistTitleSeparators split "Artist - Title" style names, tried in order
var ArtistTitleSeparators = []string{" - ", " – ", " — ", "_-_", " _ "}

// Text lowercases, folds accents, strips punctuation and collapses whitespace.
// "Beyoncé - Halo!" -> "beyonce halo"
func Text(s string) string {
	s = norm.NFKD.String(s)

	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.Is(unicode.Mn, r):
			return -1
		case r == '_':
			return ' '
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			return -1
		case unicode.IsSpace(r):
			return ' '
		}
		return unicode.ToLower(r)
	}, s)

	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// CleanFilename strips the extension, leading track numbers, quality
// annotations and bracketed segments, leaving original casing intact.
func CleanFilename(name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	base = strings.TrimSuffix(base, path.Ext(base))

	base = leadingTrack.ReplaceAllString(base, "")
	if !hasSeparator(base) {
		base = bareTrack.ReplaceAllString(base, "")
	}
	base = bracketed.ReplaceAllString(base, "")
	base = qualityTag.ReplaceAllString(base, "")

	return strings.TrimSpace(spaces.ReplaceAllString(base, " "))
}

func hasSeparator(name string) bool {
	for _, sep := range ArtistTitleSeparators {
		if strings.Contains(name, sep) {
			return true
		}
	}
	return false
}

// SplitArtistTitle extracts an "Artist - Title" pair from a cleaned name
func SplitArtistTitle(cleaned string) (artist, title string, ok bool) {
	for _, sep := range ArtistTitleSeparators {
		idx := strings.Index(cleaned, sep)
		if idx < 0 {
			continue
		}
		artist = strings.TrimSpace(cleaned[:idx])
		title = strings.TrimSpace(cleaned[idx+len(sep):])
		if Text(artist) != "" && Text(title) != "" {
			return artist, title, true
		}
	}
	return "", "", false
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > maxLen {
		maxLen = n
	}
	if maxLen == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(maxLen)
}

// Filename holds the comparable forms of one file name
type Filename struct {
	Clean  string // CleanFilename output, original casing
	Text   string // Text of Clean
	Artist string // normalized artist from an "Artist - Title" name
	Title  string
	Paired bool // Artist and Title were found
}

// ParseFilename cleans a file name and splits it into artist and title
func ParseFilename(name string) Filename {
	f := Filename{Clean: CleanFilename(name)}
	f.Text = Text(f.Clean)
	if artist, title, ok := SplitArtistTitle(f.Clean); ok {
		f.Artist, f.Title, f.Paired = Text(artist), Text(title), true
	}
	return f
}

// Matches reports whether two names denote the same recording: both carry
// the same artist and title, or their normalized forms are equal or close by
// edit distance. Names that normalize to nothing never match.
func (f Filename) Matches(other Filename) bool {
	if f.Paired && other.Paired && f.Artist == other.Artist && f.Title == other.Title {
		return true
	}
	if f.Text == "" || other.Text == "" {
		return false
	}
	if f.Text == other.Text {
		return true
	}
	return Similarity(f.Text, other.Text) >= SimilarityThreshold
}
