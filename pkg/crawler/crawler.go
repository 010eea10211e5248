package crawler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/pathutil"
	"github.com/prismon/audio-janitor/pkg/source"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("crawler")
}

// ErrListerUnavailable is returned when none of the configured roots can be listed
var ErrListerUnavailable = errors.New("no usable library root")

// ListStats contains statistics about a listing run
type ListStats struct {
	Roots                []string
	MissingRoots         []string
	FilesMatched         int
	FilesIgnored         int
	DirectoriesProcessed int
	DirectoriesExcluded  int
	SymlinksSkipped      int
	Errors               int
	Duration             time.Duration
}

// Lister walks library roots and returns the audio files below them
type Lister struct {
	src        source.Source
	extensions map[string]bool
	exclude    []string
}

// NewLister creates a lister. Extensions are matched case-insensitively with
// or without a leading dot; exclude patterns are doublestar globs matched
// against absolute paths. If src is nil the local filesystem is used.
func NewLister(src source.Source, extensions []string, exclude []string) (*Lister, error) {
	if src == nil {
		src = source.NewFileSystemSource()
	}

	exts := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			exts[ext] = true
		}
	}
	if len(exts) == 0 {
		return nil, fmt.Errorf("at least one audio extension is required")
	}

	for _, pattern := range exclude {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}

	return &Lister{
		src:        src,
		extensions: exts,
		exclude:    append([]string(nil), exclude...),
	}, nil
}

// List walks every root with a stack-based DFS and returns matching files,
// sorted and without duplicates. Roots that cannot be read are logged and
// reported in the stats; ErrListerUnavailable is returned when none is usable.
func (l *Lister) List(ctx context.Context, roots []string) ([]string, *ListStats, error) {
	startTime := time.Now()
	stats := &ListStats{}

	var stack []string
	for _, root := range roots {
		abs, err := pathutil.ExpandPath(root)
		if err != nil {
			stats.MissingRoots = append(stats.MissingRoots, root)
			log.WithError(err).WithField("root", root).Warn("Invalid library root")
			continue
		}
		info, err := l.src.Stat(ctx, abs)
		if err != nil || !info.IsDir() {
			stats.MissingRoots = append(stats.MissingRoots, abs)
			log.WithFields(logrus.Fields{
				"root":  abs,
				"error": err,
			}).Warn("Library root is not a readable directory")
			continue
		}
		stats.Roots = append(stats.Roots, abs)
		stack = append(stack, abs)
	}

	if len(stats.Roots) == 0 {
		return nil, stats, fmt.Errorf("%w (tried %s)", ErrListerUnavailable, strings.Join(roots, ", "))
	}

	log.WithFields(logrus.Fields{
		"roots":      stats.Roots,
		"sourceType": l.src.Name(),
	}).Info("Starting library listing")

	seen := make(map[string]bool)
	var files []string
	lastProgressLog := time.Now()

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, stats, err
		}

		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		info, err := l.src.Stat(ctx, current)
		if err != nil {
			if errors.Is(err, source.ErrSymlink) {
				stats.SymlinksSkipped++
				continue
			}
			stats.Errors++
			log.WithFields(logrus.Fields{
				"path":  current,
				"error": err,
			}).Error("Failed to stat path")
			continue
		}

		if info.IsDir() {
			if l.excludedDir(current) {
				stats.DirectoriesExcluded++
				if logger.IsLevelEnabled(logrus.DebugLevel) {
					log.WithField("path", current).Debug("Directory excluded")
				}
				continue
			}
			stats.DirectoriesProcessed++

			children, err := l.src.ReadDir(ctx, current)
			if err != nil {
				stats.Errors++
				log.WithFields(logrus.Fields{
					"path":  current,
					"error": err,
				}).Error("Failed to read directory")
				continue
			}
			// Push in reverse so children pop in directory order
			for i := len(children) - 1; i >= 0; i-- {
				stack = append(stack, source.GetFullPath(current, children[i]))
			}
			continue
		}

		if !l.wanted(current) {
			stats.FilesIgnored++
			continue
		}
		if seen[current] {
			continue
		}
		seen[current] = true
		files = append(files, current)
		stats.FilesMatched++

		if now := time.Now(); now.Sub(lastProgressLog) > 5*time.Second {
			log.WithFields(logrus.Fields{
				"filesMatched": stats.FilesMatched,
				"remaining":    len(stack),
			}).Info("Listing progress")
			lastProgressLog = now
		}
	}

	sort.Strings(files)
	stats.Duration = time.Since(startTime)

	log.WithFields(logrus.Fields{
		"filesMatched":         stats.FilesMatched,
		"filesIgnored":         stats.FilesIgnored,
		"directoriesProcessed": stats.DirectoriesProcessed,
		"symlinksSkipped":      stats.SymlinksSkipped,
		"errors":               stats.Errors,
		"duration":             stats.Duration,
	}).Info("Library listing complete")

	return files, stats, nil
}

// wanted applies the extension filter and file exclusion patterns
func (l *Lister) wanted(path string) bool {
	name := filepath.Base(path)
	// AppleDouble resource forks carry the audio extension but no audio
	if strings.HasPrefix(name, "._") {
		return false
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !l.extensions[ext] {
		return false
	}
	for _, pattern := range l.exclude {
		if matchGlob(pattern, path) {
			return false
		}
	}
	return true
}

// excludedDir reports whether a whole directory is excluded, so the walk
// can prune it. A pattern like "**/@eaDir/**" prunes the @eaDir directory.
func (l *Lister) excludedDir(dir string) bool {
	for _, pattern := range l.exclude {
		if matchGlob(pattern, dir) {
			return true
		}
		if trimmed, found := strings.CutSuffix(pattern, "/**"); found && matchGlob(trimmed, dir) {
			return true
		}
	}
	return false
}

// matchGlob matches an absolute path against a pattern, both taken relative
// to the filesystem root so a leading ** also covers the first segment
func matchGlob(pattern, path string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	path = strings.TrimPrefix(filepath.ToSlash(path), "/")
	ok, _ := doublestar.Match(pattern, path)
	return ok
}
