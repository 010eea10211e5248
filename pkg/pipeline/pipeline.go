// Package pipeline wires the stages between a scanned library and a decision
// set: load, match, cluster, decide and resolve conflicts.
package pipeline

import (
	"fmt"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/cluster"
	"github.com/prismon/audio-janitor/pkg/conflicts"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/matcher"
	"github.com/prismon/audio-janitor/pkg/rules"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("pipeline")
}

// FindDuplicates clusters a snapshot of the store
func FindDuplicates(st *store.MetadataStore, opts matcher.Options, now time.Time) models.GroupsDocument {
	groups := cluster.Build(st.Snapshot().Records(), opts)
	if groups == nil {
		groups = []models.DuplicateGroup{}
	}
	return models.GroupsDocument{
		GeneratedAt: now.UTC(),
		TotalGroups: len(groups),
		Groups:      groups,
	}
}

// SaveDuplicates persists a groups document
func SaveDuplicates(path string, doc models.GroupsDocument) error {
	return store.SaveGroups(path, doc.Groups, doc.GeneratedAt)
}

// DecideResult is the outcome of an automatic decision pass
type DecideResult struct {
	Policy    string
	Engine    rules.Result
	Decisions []models.Decision
	Conflicts conflicts.Report
}

// AutoDecide runs the decision engine over groups not yet covered by
// existing, appends the new decisions and resolves any conflicts the merged
// set contains
func AutoDecide(groups []models.DuplicateGroup, cfg models.RuleConfiguration, st *store.MetadataStore, existing []models.Decision) (*DecideResult, error) {
	snapshot := st.Snapshot()
	engine, err := rules.NewEngine(cfg, snapshot.Lookup)
	if err != nil {
		return nil, fmt.Errorf("invalid duplicate rules: %w", err)
	}

	res := engine.Decide(groups, rules.NewDecidedSet(existing))

	merged := make([]models.Decision, 0, len(existing)+len(res.Decisions))
	merged = append(merged, existing...)
	merged = append(merged, res.Decisions...)

	resolved, report := conflicts.Resolve(merged)
	if len(report.Before) > 0 {
		log.WithFields(logrus.Fields{
			"before":      len(report.Before),
			"after":       len(report.After),
			"synthesized": len(report.Synthesized),
		}).Info("Resolved conflicts in merged decisions")
	}

	return &DecideResult{
		Policy:    engine.Policy().Name(),
		Engine:    res,
		Decisions: resolved,
		Conflicts: report,
	}, nil
}

// PendingGroups returns the groups no decision covers yet, in order. A group
// sharing any file with a decision counts as covered.
func PendingGroups(groups []models.DuplicateGroup, decisions []models.Decision) []models.DuplicateGroup {
	decided := rules.NewDecidedSet(decisions)
	var out []models.DuplicateGroup
	for _, g := range groups {
		if decided.HasGroup(g) {
			continue
		}
		if _, overlaps := decided.Overlap(g.Files); overlaps {
			continue
		}
		out = append(out, g)
	}
	return out
}
