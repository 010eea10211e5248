package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello World", "hello world"},
		{"  Hello,   World!  ", "hello world"},
		{"Beyoncé - Halo", "beyonce halo"},
		{"Don't Stop", "dont stop"},
		{"snake_case_name", "snake case name"},
		{"AC/DC", "acdc"},
		{"", ""},
		{"!!!", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestCleanFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Song.mp3", "Song"},
		{"Song (1).mp3", "Song"},
		{"01 - Artist - Title.flac", "Artist - Title"},
		{"01. Title.mp3", "Title"},
		{"1-02 Title.mp3", "Title"},
		{"07_Title.mp3", "Title"},
		{"Title [Remastered 2011].flac", "Title"},
		{"Artist - Title 320kbps.mp3", "Artist - Title"},
		{"Title {Live}.m4a", "Title"},
		{"/music/a/Title.ogg", "Title"},
		{"2Pac - Changes.mp3", "2Pac - Changes"},
		{"2 Unlimited - No Limit.mp3", "2 Unlimited - No Limit"},
		{"50 Cent - In Da Club.mp3", "50 Cent - In Da Club"},
		{"10 Years - Wasteland.mp3", "10 Years - Wasteland"},
		{"05 Title.mp3", "Title"},
		{"11 Bohemian Rhapsody.flac", "Bohemian Rhapsody"},
		{"3) Title.mp3", "Title"},
		{"1-02 - Title.mp3", "Title"},
		{"12 - 50 Cent - In Da Club.mp3", "50 Cent - In Da Club"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanFilename(tt.in))
		})
	}
}

func TestSplitArtistTitle(t *testing.T) {
	tests := []struct {
		in         string
		wantArtist string
		wantTitle  string
		wantOK     bool
	}{
		{"Artist - Title", "Artist", "Title", true},
		{"Artist – Title", "Artist", "Title", true},
		{"Artist — Title", "Artist", "Title", true},
		{"Artist_-_Title", "Artist", "Title", true},
		{"Artist _ Title", "Artist", "Title", true},
		{"Artist - Title - Extra", "Artist", "Title - Extra", true},
		{"JustATitle", "", "", false},
		{" - Title", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			artist, title, ok := SplitArtistTitle(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantArtist, artist)
			assert.Equal(t, tt.wantTitle, title)
		})
	}
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("abc", "abc"))
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.InDelta(t, 0.8, Similarity("hello", "hallo"), 0.0001)
	assert.Equal(t, 0.0, Similarity("abc", ""))
	assert.InDelta(t, 0.75, Similarity("naïv", "naiv"), 0.0001)
}

func TestParseFilename(t *testing.T) {
	f := ParseFilename("/music/03 - Motörhead - Ace of Spades (Live).flac")
	assert.Equal(t, "Motörhead - Ace of Spades", f.Clean)
	assert.Equal(t, "motorhead ace of spades", f.Text)
	assert.True(t, f.Paired)
	assert.Equal(t, "motorhead", f.Artist)
	assert.Equal(t, "ace of spades", f.Title)

	f = ParseFilename("Intro.mp3")
	assert.False(t, f.Paired)
	assert.Equal(t, "intro", f.Text)
}

func TestFilenameMatches(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"copy suffix", "/a/Song.mp3", "/b/Song (1).mp3", true},
		{"artist title pattern", "01 - Queen - Bohemian Rhapsody.mp3", "Queen – bohemian rhapsody.flac", true},
		{"separators differ", "Queen_-_Bohemian Rhapsody.mp3", "Queen - Bohemian Rhapsody.m4a", true},
		{"small typo", "Bohemian Rhapsody.mp3", "Bohemian Rapsody.mp3", true},
		{"different songs", "Bohemian Rhapsody.mp3", "Another One Bites the Dust.mp3", false},
		{"empty after cleaning", "(1).mp3", "(1).mp3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := ParseFilename(tt.a), ParseFilename(tt.b)
			assert.Equal(t, tt.want, a.Matches(b))
			assert.Equal(t, tt.want, b.Matches(a))
		})
	}
}
