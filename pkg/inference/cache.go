package inference

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/prismon/audio-janitor/pkg/normalize"
	"github.com/prismon/audio-janitor/pkg/store"
)

// DefaultRecentLimit bounds the recent artist and genre lists
const DefaultRecentLimit = 20

// Cache remembers suggestions by normalized filename along with the artists
// and genres seen most recently. Safe for concurrent use.
type Cache struct {
	mu            sync.RWMutex
	entries       map[string]Suggestion
	recentArtists []string
	recentGenres  []string
	limit         int
}

// cacheDocument is the persisted form of a Cache
type cacheDocument struct {
	Entries       map[string]Suggestion `json:"entries"`
	RecentArtists []string              `json:"recentArtists"`
	RecentGenres  []string              `json:"recentGenres"`
}

// NewCache creates an empty cache. limit < 1 uses DefaultRecentLimit.
func NewCache(limit int) *Cache {
	if limit < 1 {
		limit = DefaultRecentLimit
	}
	return &Cache{
		entries: make(map[string]Suggestion),
		limit:   limit,
	}
}

// LoadCache reads a persisted cache. A missing file gives an empty cache.
func LoadCache(path string, limit int) (*Cache, error) {
	c := NewCache(limit)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, fmt.Errorf("failed to read inference cache: %w", err)
	}

	var doc cacheDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		log.WithError(err).WithField("path", path).Warn("Ignoring unreadable inference cache")
		return c, nil
	}
	for k, v := range doc.Entries {
		c.entries[k] = v
	}
	c.recentArtists = truncate(doc.RecentArtists, c.limit)
	c.recentGenres = truncate(doc.RecentGenres, c.limit)
	return c, nil
}

// Save writes the cache atomically
func (c *Cache) Save(path string) error {
	c.mu.RLock()
	doc := cacheDocument{
		Entries:       make(map[string]Suggestion, len(c.entries)),
		RecentArtists: append([]string{}, c.recentArtists...),
		RecentGenres:  append([]string{}, c.recentGenres...),
	}
	for k, v := range c.entries {
		doc.Entries[k] = v
	}
	c.mu.RUnlock()

	return store.WriteJSONAtomic(path, doc)
}

// Key is the cache key for a filename
func Key(filename string) string {
	return normalize.Text(normalize.CleanFilename(filename))
}

// Get returns the cached suggestion for filename
func (c *Cache) Get(filename string) (Suggestion, bool) {
	key := Key(filename)
	if key == "" {
		return Suggestion{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[key]
	return s, ok
}

// Put caches a suggestion and remembers its artist and genre
func (c *Cache) Put(filename string, s Suggestion) {
	key := Key(filename)
	c.mu.Lock()
	defer c.mu.Unlock()
	if key != "" {
		c.entries[key] = s
	}
	c.rememberLocked(s)
}

// Remember records artist and genre as most recent without caching an entry
func (c *Cache) Remember(s Suggestion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rememberLocked(s)
}

func (c *Cache) rememberLocked(s Suggestion) {
	c.recentArtists = pushRecent(c.recentArtists, s.Artist, c.limit)
	c.recentGenres = pushRecent(c.recentGenres, s.Genre, c.limit)
}

// Len returns the number of cached entries
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// RecentArtists returns artists, most recent first
func (c *Cache) RecentArtists() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.recentArtists...)
}

// RecentGenres returns genres, most recent first
func (c *Cache) RecentGenres() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string{}, c.recentGenres...)
}

// pushRecent moves value to the front, dropping an earlier equal entry
func pushRecent(list []string, value string, limit int) []string {
	key := normalize.Text(value)
	if key == "" {
		return list
	}
	out := make([]string, 0, len(list)+1)
	out = append(out, value)
	for _, v := range list {
		if normalize.Text(v) != key {
			out = append(out, v)
		}
	}
	return truncate(out, limit)
}

func truncate(list []string, limit int) []string {
	if len(list) > limit {
		return list[:limit]
	}
	return list
}
