package rules

import "github.com/prismon/audio-janitor/internal/models"

// DecidedSet tracks which groups and files already have a decision
type DecidedSet struct {
	groupIDs  map[string]bool
	groupKeys map[string]bool
	paths     map[string]bool
}

// NewDecidedSet indexes existing decisions
func NewDecidedSet(decisions []models.Decision) *DecidedSet {
	s := &DecidedSet{
		groupIDs:  make(map[string]bool),
		groupKeys: make(map[string]bool),
		paths:     make(map[string]bool),
	}
	for _, d := range decisions {
		s.Add(d)
	}
	return s
}

// Add records a decision. Decisions carrying a content key are matched by
// key only, since group ids are regenerated on every detection run.
func (s *DecidedSet) Add(d models.Decision) {
	if d.GroupKey != "" {
		s.groupKeys[d.GroupKey] = true
	} else if d.GroupID != "" {
		s.groupIDs[d.GroupID] = true
	}
	for _, p := range d.Keep {
		s.paths[p] = true
	}
	for _, p := range d.Delete {
		s.paths[p] = true
	}
}

// HasGroup reports whether a decision exists for the group
func (s *DecidedSet) HasGroup(g models.DuplicateGroup) bool {
	key := g.Key
	if key == "" {
		key = models.GroupKey(g.Files)
	}
	return s.groupKeys[key] || s.groupIDs[g.ID]
}

// Overlap returns the first member, in group order, that some decision covers
func (s *DecidedSet) Overlap(files []string) (string, bool) {
	for _, f := range files {
		if s.paths[f] {
			return f, true
		}
	}
	return "", false
}

// HasPath reports whether a file appears in any decision
func (s *DecidedSet) HasPath(path string) bool {
	return s.paths[path]
}

// Clone copies the set so a pass can extend it without touching the original
func (s *DecidedSet) Clone() *DecidedSet {
	c := &DecidedSet{
		groupIDs:  make(map[string]bool, len(s.groupIDs)),
		groupKeys: make(map[string]bool, len(s.groupKeys)),
		paths:     make(map[string]bool, len(s.paths)),
	}
	for k := range s.groupIDs {
		c.groupIDs[k] = true
	}
	for k := range s.groupKeys {
		c.groupKeys[k] = true
	}
	for k := range s.paths {
		c.paths[k] = true
	}
	return c
}
