package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/sirupsen/logrus"
)

// SaveGroups writes the duplicate groups document atomically
func SaveGroups(path string, groups []models.DuplicateGroup, generatedAt time.Time) error {
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	doc := models.GroupsDocument{
		GeneratedAt: generatedAt.UTC(),
		TotalGroups: len(groups),
		Groups:      groups,
	}
	if err := WriteJSONAtomic(path, doc); err != nil {
		return fmt.Errorf("failed to save groups: %w", err)
	}
	return nil
}

// LoadGroups reads the duplicate groups document. A missing file is an error:
// groups only exist after duplicate detection has run.
func LoadGroups(path string) (*models.GroupsDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read groups: %w", err)
	}
	var doc models.GroupsDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse groups %s: %w", path, err)
	}
	return &doc, nil
}

// SaveDecisions writes the full decision set atomically. Either every
// decision is on disk or the previous document is left untouched.
func SaveDecisions(path string, decisions []models.Decision, reviewedAt time.Time) error {
	if decisions == nil {
		decisions = []models.Decision{}
	}
	doc := models.DecisionsDocument{
		ReviewedAt: reviewedAt.UTC(),
		Decisions:  decisions,
	}
	if err := WriteJSONAtomic(path, doc); err != nil {
		return fmt.Errorf("failed to save decisions: %w", err)
	}
	return nil
}

type rawDecisionsDocument struct {
	ReviewedAt time.Time         `json:"reviewedAt"`
	Decisions  []json.RawMessage `json:"decisions"`
}

// LoadDecisions reads a decision set. Entries that fail to parse or carry no
// group id are skipped and counted; a missing file yields an empty set.
func LoadDecisions(path string) (*models.DecisionsDocument, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &models.DecisionsDocument{Decisions: []models.Decision{}}, 0, nil
		}
		return nil, 0, fmt.Errorf("failed to read decisions: %w", err)
	}

	var raw rawDecisionsDocument
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to parse decisions %s: %w", path, err)
	}

	doc := &models.DecisionsDocument{
		ReviewedAt: raw.ReviewedAt,
		Decisions:  make([]models.Decision, 0, len(raw.Decisions)),
	}
	skipped := 0
	for i, entry := range raw.Decisions {
		var d models.Decision
		if err := json.Unmarshal(entry, &d); err != nil || d.GroupID == "" {
			skipped++
			log.WithFields(logrus.Fields{
				"file":  path,
				"index": i,
			}).Warn("Skipping unreadable decision")
			continue
		}
		doc.Decisions = append(doc.Decisions, d)
	}

	return doc, skipped, nil
}
