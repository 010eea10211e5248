package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dhowden/tag"
	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("extractor")
}

// Extractor turns an audio file into an AudioRecord. Tags come from the file
// itself; duration and stream properties come from ffprobe when available.
type Extractor struct {
	ffprobePath string
	now         func() time.Time
}

// New creates an extractor. An empty ffprobe binary disables stream probing;
// a binary that cannot be found is logged once and probing is disabled.
func New(ffprobe string) *Extractor {
	e := &Extractor{now: time.Now}

	ffprobe = strings.TrimSpace(ffprobe)
	if ffprobe == "" {
		return e
	}
	path, err := exec.LookPath(ffprobe)
	if err != nil {
		log.WithFields(logrus.Fields{
			"binary": ffprobe,
			"error":  err,
		}).Warn("ffprobe not found, duration and bitrate will not be extracted")
		return e
	}
	e.ffprobePath = path
	return e
}

// ProbeAvailable reports whether stream properties will be extracted
func (e *Extractor) ProbeAvailable() bool {
	return e.ffprobePath != ""
}

// Extract reads one file. Missing tags or a failed probe leave the matching
// fields nil; only a file that cannot be opened is an error.
func (e *Extractor) Extract(ctx context.Context, path string) (*models.AudioRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("not a file: %s", path)
	}

	format := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	rec := &models.AudioRecord{
		Path:      path,
		Filename:  filepath.Base(path),
		Size:      stat.Size(),
		Format:    format,
		Lossless:  models.IsLosslessFormat(format),
		ScannedAt: e.now().UTC(),
	}

	if metadata, err := tag.ReadFrom(file); err != nil {
		if logger.IsLevelEnabled(logrus.DebugLevel) {
			log.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Debug("No readable tags")
		}
	} else {
		applyTags(rec, metadata)
	}

	if e.ffprobePath != "" {
		probe, err := Probe(ctx, e.ffprobePath, path)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.WithFields(logrus.Fields{
				"path":  path,
				"error": err,
			}).Warn("ffprobe failed")
		} else {
			applyProbe(rec, probe)
		}
	}

	return rec, nil
}

func applyTags(rec *models.AudioRecord, m tag.Metadata) {
	rec.Title = optionalString(m.Title())
	rec.Artist = optionalString(m.Artist())
	if rec.Artist == nil {
		rec.Artist = optionalString(m.AlbumArtist())
	}
	rec.Album = optionalString(m.Album())
	rec.Genre = optionalString(m.Genre())
	rec.Year = optionalInt(m.Year())
	track, _ := m.Track()
	rec.TrackNumber = optionalInt(track)
}

func applyProbe(rec *models.AudioRecord, p ProbeResult) {
	if d := p.DurationSeconds(); d > 0 {
		rec.Duration = &d
	}
	rec.Bitrate = optionalInt(p.BitRateKbps())
	rec.SampleRate = optionalInt(p.SampleRate())
	rec.BitDepth = optionalInt(p.BitDepth())
}

func optionalString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}
