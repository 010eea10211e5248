package rules

import (
	"fmt"
	"sort"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/pathutil"
	"github.com/sirupsen/logrus"
)

// Choice is a policy's verdict for one group
type Choice struct {
	Keeper      int    // index into the members
	Rule        string // value for Decision.RuleApplied
	Explanation string
	Defer       string // non-empty sends the group to manual review
}

// Policy picks a keeper among group members. Members are in group order and
// ties must resolve to the earliest member.
type Policy interface {
	Name() string
	Choose(members []*models.AudioRecord) Choice
}

type ruleKey func(rec *models.AudioRecord) float64

var ruleKeys = map[string]ruleKey{
	models.RuleLossless: func(rec *models.AudioRecord) float64 {
		if rec.Lossless {
			return 1
		}
		return 0
	},
	models.RuleBitrate: func(rec *models.AudioRecord) float64 {
		return float64(rec.BitrateValue())
	},
	models.RuleMetadata: func(rec *models.AudioRecord) float64 {
		return float64(rec.FilledTagCount())
	},
}

// OrderedPolicy applies rules in order; a rule decides only when it strictly
// separates the best member from the runner-up.
type OrderedPolicy struct {
	ruleOrder      []string
	destinationDir string
}

// NewOrderedPolicy drops unknown rule names with a warning
func NewOrderedPolicy(cfg models.OrderedRuleConfig, log *logrus.Entry) *OrderedPolicy {
	p := &OrderedPolicy{destinationDir: cfg.DestinationDir}
	for _, name := range cfg.RuleOrder {
		if _, ok := ruleKeys[name]; !ok {
			log.WithField("rule", name).Warn("Ignoring unknown rule")
			continue
		}
		p.ruleOrder = append(p.ruleOrder, name)
	}
	return p
}

// Name implements Policy
func (p *OrderedPolicy) Name() string {
	return models.PolicyOrdered
}

// Choose implements Policy
func (p *OrderedPolicy) Choose(members []*models.AudioRecord) Choice {
	for _, name := range p.ruleOrder {
		key := ruleKeys[name]
		order := rankDescending(members, key)
		best, second := key(members[order[0]]), key(members[order[1]])
		if best != second {
			return Choice{
				Keeper:      order[0],
				Rule:        name,
				Explanation: explainRule(name, members[order[0]]),
			}
		}
	}

	if p.destinationDir != "" {
		for i, rec := range members {
			if pathutil.IsUnder(rec.Path, p.destinationDir) {
				return Choice{
					Keeper:      i,
					Rule:        models.RuleTie,
					Explanation: "no rule separated the files; kept the copy already in the destination",
				}
			}
		}
	}

	return Choice{
		Keeper:      0,
		Rule:        models.RuleTie,
		Explanation: "no rule separated the files; kept the first file",
	}
}

func explainRule(name string, rec *models.AudioRecord) string {
	switch name {
	case models.RuleLossless:
		return fmt.Sprintf("kept the only lossless copy (%s)", rec.Format)
	case models.RuleBitrate:
		return fmt.Sprintf("kept the highest bitrate (%d kbps)", rec.BitrateValue())
	case models.RuleMetadata:
		return fmt.Sprintf("kept the most complete tags (%d/%d)", rec.FilledTagCount(), len(models.TagFields))
	}
	return name
}

// rankDescending returns member indices sorted by key, highest first,
// keeping group order among equal keys
func rankDescending(members []*models.AudioRecord, key ruleKey) []int {
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return key(members[order[a]]) > key(members[order[b]])
	})
	return order
}

// WeightedPolicy scores members on losslessness, relative bitrate, location
// priority and tag completeness, and requires a minimum winning margin.
type WeightedPolicy struct {
	cfg models.WeightedConfig
}

// NewWeightedPolicy creates a weighted policy
func NewWeightedPolicy(cfg models.WeightedConfig) *WeightedPolicy {
	return &WeightedPolicy{cfg: cfg}
}

// Name implements Policy
func (p *WeightedPolicy) Name() string {
	return models.PolicyWeighted
}

// Scores returns the composite score of every member
func (p *WeightedPolicy) Scores(members []*models.AudioRecord) []float64 {
	w := p.cfg.Weights

	minRate, maxRate := -1, -1
	for _, rec := range members {
		if rec.Bitrate == nil {
			continue
		}
		b := *rec.Bitrate
		if minRate < 0 || b < minRate {
			minRate = b
		}
		if b > maxRate {
			maxRate = b
		}
	}

	scores := make([]float64, len(members))
	for i, rec := range members {
		score := 0.0
		if rec.Lossless {
			score += float64(w.Lossless)
		}
		if rec.Bitrate != nil {
			if maxRate == minRate {
				score += float64(w.Bitrate)
			} else {
				score += float64(w.Bitrate) * float64(*rec.Bitrate-minRate) / float64(maxRate-minRate)
			}
		}
		score += float64(w.PathPriority) * p.pathScore(rec.Path)
		score += float64(w.MetadataQuality) * float64(rec.FilledTagCount()) / float64(len(models.TagFields))
		scores[i] = score
	}
	return scores
}

// pathScore is (n-rank)/n for the first listed directory containing the
// path, 0 when no listed directory does
func (p *WeightedPolicy) pathScore(path string) float64 {
	n := len(p.cfg.PathPriority)
	for rank, dir := range p.cfg.PathPriority {
		if pathutil.IsUnder(path, dir) {
			return float64(n-rank) / float64(n)
		}
	}
	return 0
}

// Choose implements Policy
func (p *WeightedPolicy) Choose(members []*models.AudioRecord) Choice {
	scores := p.Scores(members)
	order := make([]int, len(members))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	best, second := scores[order[0]], scores[order[1]]
	if best-second < p.cfg.ScoreDifferenceThreshold {
		return Choice{Defer: ManualNoSeparation}
	}

	return Choice{
		Keeper:      order[0],
		Rule:        models.RuleWeighted,
		Explanation: fmt.Sprintf("weighted score %.1f vs %.1f", best, second),
	}
}
