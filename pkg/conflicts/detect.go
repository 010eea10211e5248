// Package conflicts finds files that one decision keeps and another deletes,
// and rewrites the affected decisions so no such file remains.
package conflicts

import (
	"sort"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("conflicts")
}

// Conflict is a file both kept and deleted across the decision set
type Conflict struct {
	Path      string   `json:"path"`
	KeptIn    []string `json:"keptIn"`
	DeletedIn []string `json:"deletedIn"`
}

// index maps each path to the group ids that keep or delete it, in decision order
type index struct {
	keep   map[string][]string
	delete map[string][]string
}

func buildIndex(decisions []models.Decision) index {
	idx := index{
		keep:   make(map[string][]string),
		delete: make(map[string][]string),
	}
	for _, d := range decisions {
		for _, p := range d.Keep {
			idx.keep[p] = appendUnique(idx.keep[p], d.GroupID)
		}
		for _, p := range d.Delete {
			idx.delete[p] = appendUnique(idx.delete[p], d.GroupID)
		}
	}
	return idx
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// Detect returns one entry per conflicting path, ordered by path
func Detect(decisions []models.Decision) []Conflict {
	idx := buildIndex(decisions)

	conflicts := []Conflict{}
	for path, keptIn := range idx.keep {
		deletedIn, ok := idx.delete[path]
		if !ok {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Path:      path,
			KeptIn:    keptIn,
			DeletedIn: deletedIn,
		})
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].Path < conflicts[j].Path
	})
	return conflicts
}
