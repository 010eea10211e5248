package inference

import (
	"path/filepath"
	"strings"

	"github.com/prismon/audio-janitor/pkg/normalize"
	"github.com/prismon/audio-janitor/pkg/pathutil"
)

// ParseFilename derives a guess from the file name and its folders:
// "Artist - Title" names give both fields, otherwise the cleaned name is the
// title and the folder two levels up is the artist (Artist/Album/track).
func ParseFilename(path string) Guess {
	slashed := filepath.ToSlash(path)
	guess := Guess{
		Path:     path,
		Filename: filepath.Base(path),
	}

	cleaned := normalize.CleanFilename(guess.Filename)
	if artist, title, ok := normalize.SplitArtistTitle(cleaned); ok {
		guess.Artist, guess.Title = artist, title
	} else {
		guess.Title = cleaned
		if pathutil.Depth(slashed) >= 3 {
			guess.Artist = folderHint(pathutil.ParentName(slashed, 2))
		}
	}

	if pathutil.Depth(slashed) >= 2 {
		guess.Album = folderHint(pathutil.ParentName(slashed, 1))
	}
	return guess
}

// FromGuess turns a filename guess into a low-trust suggestion
func FromGuess(g Guess) Suggestion {
	confidence := ConfidenceLow
	if g.Artist != "" && g.Title != "" {
		confidence = ConfidenceMedium
	}
	return Suggestion{
		Artist:     g.Artist,
		Title:      g.Title,
		Album:      g.Album,
		Confidence: confidence,
		Source:     SourceFilename,
	}
}

var placeholderFolders = map[string]bool{
	"unknown artist":  true,
	"unknown album":   true,
	"unknown":         true,
	"music":           true,
	"downloads":       true,
	"various artists": true,
}

func folderHint(name string) string {
	name = strings.TrimSpace(name)
	if placeholderFolders[normalize.Text(name)] {
		return ""
	}
	return name
}
