// Package store persists audio metadata as JSON lines and the duplicate and
// decision documents as single JSON files.
package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("store")
}

// ErrUnknownPath is returned when replacing a record the store does not hold
var ErrUnknownPath = errors.New("path not in metadata store")

// LoadStats describes what a metadata load found
type LoadStats struct {
	Lines      int
	Records    int
	Corrupt    int
	Superseded int
}

// MetadataStore maps absolute paths to audio records
type MetadataStore struct {
	mu      sync.RWMutex
	records map[string]*models.AudioRecord
}

// NewMetadataStore creates an empty store
func NewMetadataStore() *MetadataStore {
	return &MetadataStore{records: make(map[string]*models.AudioRecord)}
}

// LoadMetadata reads a JSON-lines metadata file. Lines that do not parse, or
// parse without a path, are skipped and counted. Later lines for the same path
// replace earlier ones. A missing file yields an empty store.
func LoadMetadata(path string) (*MetadataStore, LoadStats, error) {
	s := NewMetadataStore()
	var stats LoadStats

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, stats, nil
		}
		return nil, stats, fmt.Errorf("failed to open metadata: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, readErr := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			stats.Lines++
			var rec models.AudioRecord
			if err := json.Unmarshal(line, &rec); err != nil || rec.Path == "" {
				stats.Corrupt++
				log.WithFields(logrus.Fields{
					"file": path,
					"line": stats.Lines,
				}).Warn("Skipping unreadable metadata line")
			} else {
				if _, exists := s.records[rec.Path]; exists {
					stats.Superseded++
				}
				r := rec
				s.records[rec.Path] = &r
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return nil, stats, fmt.Errorf("failed to read metadata: %w", readErr)
		}
	}

	stats.Records = len(s.records)
	log.WithFields(logrus.Fields{
		"file":       path,
		"records":    stats.Records,
		"corrupt":    stats.Corrupt,
		"superseded": stats.Superseded,
	}).Debug("Loaded metadata store")

	return s, stats, nil
}

// Len returns the number of records
func (s *MetadataStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Get returns the record for a path
func (s *MetadataStore) Get(path string) (*models.AudioRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[path]
	return rec, ok
}

// Has reports whether a path is known
func (s *MetadataStore) Has(path string) bool {
	_, ok := s.Get(path)
	return ok
}

// Put inserts or overwrites a record
func (s *MetadataStore) Put(rec *models.AudioRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.Path] = rec
}

// Replace swaps in a repaired record for a path already in the store
func (s *MetadataStore) Replace(rec *models.AudioRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.Path]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPath, rec.Path)
	}
	s.records[rec.Path] = rec
	return nil
}

// Records returns a snapshot of all records ordered by path. The records
// themselves are shared and must not be mutated.
func (s *MetadataStore) Records() []*models.AudioRecord {
	s.mu.RLock()
	out := make([]*models.AudioRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Snapshot returns an independent store holding the current records, for a
// matching or decision pass that must not observe concurrent repairs
func (s *MetadataStore) Snapshot() *MetadataStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := &MetadataStore{records: make(map[string]*models.AudioRecord, len(s.records))}
	for p, rec := range s.records {
		out.records[p] = rec
	}
	return out
}

// Lookup adapts the store to the function shape used by the decision engine
func (s *MetadataStore) Lookup(path string) *models.AudioRecord {
	rec, _ := s.Get(path)
	return rec
}

// Appender adds records to a metadata file one whole line at a time
type Appender struct {
	mu sync.Mutex
	f  *os.File
}

// OpenAppender opens a metadata file for appending. A torn final line left by
// an interrupted write is terminated first so the next record starts clean.
func OpenAppender(path string) (*Appender, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata for append: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat metadata: %w", err)
	}
	if info.Size() > 0 {
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, info.Size()-1); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to read metadata tail: %w", err)
		}
		if last[0] != '\n' {
			log.WithField("file", path).Warn("Terminating partial metadata line")
			if _, err := f.Write([]byte{'\n'}); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to repair metadata tail: %w", err)
			}
		}
	}

	return &Appender{f: f}, nil
}

// Append writes one record as a single line in a single write call
func (a *Appender) Append(rec *models.AudioRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.Path, err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.f.Write(data); err != nil {
		return fmt.Errorf("failed to append record %s: %w", rec.Path, err)
	}
	return nil
}

// Sync flushes appended records to stable storage
func (a *Appender) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.f.Sync()
}

// Close syncs and closes the file
func (a *Appender) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.f.Sync(); err != nil {
		a.f.Close()
		return err
	}
	return a.f.Close()
}

// RewriteMetadata compacts a metadata file to one line per record
func RewriteMetadata(path string, records []*models.AudioRecord) error {
	var buf bytes.Buffer
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", rec.Path, err)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return WriteFileAtomic(path, buf.Bytes(), 0o644)
}
