package inference

import (
	"context"

	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("inference")
}

// Suggester combines the cache, the oracle and the filename fallback
type Suggester struct {
	oracle Oracle
	cache  *Cache
}

// NewSuggester creates a suggester. A nil oracle means filename parsing only;
// a nil cache disables caching.
func NewSuggester(oracle Oracle, cache *Cache) *Suggester {
	if cache == nil {
		cache = NewCache(0)
	}
	return &Suggester{oracle: oracle, cache: cache}
}

// Cache returns the cache in use
func (s *Suggester) Cache() *Cache {
	return s.cache
}

// Suggest returns the best available tag values for path. Oracle failures
// fall back to the filename guess and set Warning; they are never fatal.
// Fallback answers are not cached so a later run can still ask the oracle.
func (s *Suggester) Suggest(ctx context.Context, path string) Suggestion {
	guess := ParseFilename(path)

	if cached, ok := s.cache.Get(guess.Filename); ok {
		cached.Source = SourceCache
		return cached
	}

	reason := ReasonUnavailable
	if s.oracle != nil {
		guess.RecentArtists = s.cache.RecentArtists()
		guess.RecentGenres = s.cache.RecentGenres()

		result := s.oracle.Infer(ctx, guess)
		if suggestion, ok := result.Value(); ok {
			s.cache.Put(guess.Filename, suggestion)
			return suggestion
		}
		reason = result.Reason()
	}

	fallback := FromGuess(guess)
	fallback.Warning = "inference failed (" + reason + "), using filename"
	if s.oracle != nil {
		log.WithFields(logrus.Fields{
			"path":   path,
			"reason": reason,
		}).Warn("Inference failed, using filename")
	}
	return fallback
}
