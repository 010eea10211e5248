package conflicts

import (
	"path"
	"strings"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/normalize"
	"github.com/prismon/audio-janitor/pkg/pathutil"
)

// formatScores rank container formats; lossless formats not listed get 20
var formatScores = map[string]float64{
	"flac": 30,
	"opus": 25,
	"m4a":  10,
	"aac":  10,
	"ogg":  8,
	"mp3":  5,
}

// lowTrustFolders are directory names that suggest a stray or temporary copy
var lowTrustFolders = map[string]bool{
	"downloads":  true,
	"download":   true,
	"temp":       true,
	"tmp":        true,
	"incoming":   true,
	"new folder": true,
	"copy":       true,
	"backup":     true,
	"untitled":   true,
	"unsorted":   true,
	"desktop":    true,
}

// placeholderOwners are artist folder names that do not identify anyone
var placeholderOwners = map[string]bool{
	"unknown artist":  true,
	"unknown":         true,
	"artist":          true,
	"various":         true,
	"various artists": true,
}

// FileScore rates how trustworthy a file's location and format are.
// Higher is better.
func FileScore(p string) float64 {
	score := 0.0
	lower := strings.ToLower(p)

	if pathutil.IsLocalDisk(p) {
		score += 20
	}
	if strings.Contains(lower, "unknown artist") {
		score -= 30
	}
	if strings.Contains(lower, "unknown album") {
		score -= 15
	}

	depth := pathutil.Depth(p)
	if depth > 5 {
		depth = 5
	}
	score += float64(depth) * 2

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if s, ok := formatScores[ext]; ok {
		score += s
	} else if models.IsLosslessFormat(ext) {
		score += 20
	}

	for _, seg := range strings.Split(path.Dir(lower), "/") {
		if lowTrustFolders[seg] {
			score -= 20
			break
		}
	}

	score -= float64(len(p)) / 100
	return score
}

// Owner returns the normalized artist-like folder of a file: the folder two
// levels up (Artist/Album/track), or the containing folder for shallow paths.
// Placeholder names yield "".
func Owner(p string) string {
	name := pathutil.ParentName(p, 2)
	if pathutil.Depth(p) < 3 {
		name = pathutil.ParentName(p, 1)
	}
	owner := normalize.Text(name)
	if placeholderOwners[owner] {
		return ""
	}
	return owner
}

// best returns the highest scoring path, the smallest path on ties
func best(paths []string) string {
	var winner string
	winnerScore := 0.0
	for i, p := range paths {
		s := FileScore(p)
		if i == 0 || s > winnerScore || (s == winnerScore && p < winner) {
			winner, winnerScore = p, s
		}
	}
	return winner
}
