// Package rules decides automatically which file of a duplicate group to keep.
package rules

import (
	"fmt"
	"path/filepath"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/normalize"
	"github.com/prismon/audio-janitor/pkg/pathutil"
	"github.com/sirupsen/logrus"
)

// Reasons a group is sent to manual review
const (
	ManualInsufficientMetadata = "insufficient-metadata"
	ManualLowConfidence        = "low-confidence"
	ManualNoSeparation         = "insufficient-score-difference"
)

// Reasons a group is left alone entirely
const (
	SkipAlreadyDecided = "already-decided"
	SkipOverlap        = "overlaps-decision"
)

// Lookup resolves a path to its metadata, nil when unknown
type Lookup func(path string) *models.AudioRecord

// ManualItem is a group the engine could not resolve
type ManualItem struct {
	Group  models.DuplicateGroup
	Reason string
}

// SkippedItem is a group the engine did not evaluate
type SkippedItem struct {
	Group  models.DuplicateGroup
	Reason string
	Path   string // member already covered by a decision, for overlaps
}

// Result partitions the evaluated groups
type Result struct {
	Decisions []models.Decision
	Manual    []ManualItem
	Skipped   []SkippedItem
}

// Engine resolves duplicate groups with one configured policy
type Engine struct {
	config models.RuleConfiguration
	policy Policy
	lookup Lookup
	log    *logrus.Entry
}

// NewEngine creates an engine for the active policy variant
func NewEngine(config models.RuleConfiguration, lookup Lookup) (*Engine, error) {
	log := logger.WithName("decision-engine")

	var policy Policy
	switch {
	case config.Ordered != nil && config.Weighted != nil:
		return nil, fmt.Errorf("rule configuration sets both ordered and weighted policies")
	case config.Ordered != nil:
		policy = NewOrderedPolicy(*config.Ordered, log)
	case config.Weighted != nil:
		policy = NewWeightedPolicy(*config.Weighted)
	default:
		return nil, fmt.Errorf("rule configuration has no policy")
	}

	return &Engine{config: config, policy: policy, lookup: lookup, log: log}, nil
}

// Policy returns the active policy
func (e *Engine) Policy() Policy {
	return e.policy
}

// Decide walks groups in order. Groups already decided, or sharing a file with
// any decision made before them (earlier runs or earlier in this pass), are
// skipped. The same input always produces the same result.
func (e *Engine) Decide(groups []models.DuplicateGroup, decided *DecidedSet) Result {
	if decided == nil {
		decided = NewDecidedSet(nil)
	} else {
		decided = decided.Clone()
	}

	result := Result{
		Decisions: []models.Decision{},
		Manual:    []ManualItem{},
		Skipped:   []SkippedItem{},
	}

	for _, group := range groups {
		if decided.HasGroup(group) {
			result.Skipped = append(result.Skipped, SkippedItem{Group: group, Reason: SkipAlreadyDecided})
			continue
		}
		if path, ok := decided.Overlap(group.Files); ok {
			e.log.WithFields(logrus.Fields{
				"group": group.ID,
				"path":  path,
			}).Debug("Skipping group that shares a file with an existing decision")
			result.Skipped = append(result.Skipped, SkippedItem{Group: group, Reason: SkipOverlap, Path: path})
			continue
		}

		decision, manualReason := e.decideGroup(group)
		if manualReason != "" {
			result.Manual = append(result.Manual, ManualItem{Group: group, Reason: manualReason})
			continue
		}

		decided.Add(decision)
		result.Decisions = append(result.Decisions, decision)
	}

	e.log.WithFields(logrus.Fields{
		"policy":  e.policy.Name(),
		"groups":  len(groups),
		"auto":    len(result.Decisions),
		"manual":  len(result.Manual),
		"skipped": len(result.Skipped),
	}).Info("Auto-decision pass complete")

	return result
}

// decideGroup returns a decision, or a manual review reason
func (e *Engine) decideGroup(group models.DuplicateGroup) (models.Decision, string) {
	members := make([]*models.AudioRecord, len(group.Files))
	withMetadata := 0
	for i, path := range group.Files {
		rec := e.lookup(path)
		if rec != nil && rec.HasMetadata() {
			withMetadata++
		}
		if rec == nil {
			rec = &models.AudioRecord{Path: path, Filename: filepath.Base(path)}
		}
		members[i] = rec
	}

	if withMetadata < 2 {
		return models.Decision{}, ManualInsufficientMetadata
	}
	if group.Confidence < e.config.ConfidenceThreshold {
		return models.Decision{}, ManualLowConfidence
	}

	choice := e.policy.Choose(members)
	if choice.Defer != "" {
		e.log.WithFields(logrus.Fields{
			"group":  group.ID,
			"reason": choice.Defer,
		}).Debug("Deferring group to manual review")
		return models.Decision{}, choice.Defer
	}

	keeper := members[choice.Keeper]
	deleted := make([]string, 0, len(members)-1)
	for i, rec := range members {
		if i != choice.Keeper {
			deleted = append(deleted, rec.Path)
		}
	}

	decision := models.Decision{
		GroupID:      group.ID,
		GroupKey:     group.Key,
		Keep:         []string{keeper.Path},
		Delete:       deleted,
		DecisionType: models.DecisionAuto,
		RuleApplied:  choice.Rule,
		Reason:       choice.Explanation,
	}
	if decision.GroupKey == "" {
		decision.GroupKey = models.GroupKey(group.Files)
	}

	if dest := e.config.DestinationDir(); dest != "" {
		decision.CopyToDestination = !pathutil.IsUnder(keeper.Path, dest)
	}

	if e.config.RevealMetadata && len(members) > 1 {
		representative := members[0]
		if choice.Keeper == 0 {
			representative = members[1]
		}
		if TagsDiffer(keeper, representative) && choice.Rule == models.RuleTie {
			decision.NeedsMetadataReview = true
		} else {
			decision.MetadataSource = &models.MetadataSource{Path: keeper.Path}
		}
	}

	e.log.WithFields(logrus.Fields{
		"group": group.ID,
		"rule":  decision.RuleApplied,
		"keep":  keeper.Path,
	}).Debug("Group resolved")

	return decision, ""
}

// TagsDiffer compares title, artist, album, genre and year after normalization
func TagsDiffer(a, b *models.AudioRecord) bool {
	for _, field := range models.TagFields {
		if normalize.Text(a.TagValue(field)) != normalize.Text(b.TagValue(field)) {
			return true
		}
	}
	return false
}
