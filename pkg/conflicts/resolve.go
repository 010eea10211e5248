package conflicts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/sirupsen/logrus"
)

// ResolvedPrefix namespaces the ids of decisions synthesized by Resolve
const ResolvedPrefix = "resolved-"

// Report describes a resolution pass
type Report struct {
	Before         []Conflict `json:"before"`
	After          []Conflict `json:"after"`
	AffectedGroups []string   `json:"affectedGroups"`
	Components     int        `json:"components"`
	Synthesized    []string   `json:"synthesized"`
}

// component is a set of files connected through shared decisions
type component struct {
	decisions []int    // indices into the decision list, ascending
	files     []string // sorted
}

// Resolve replaces every decision entangled with a conflict by new decisions
// in which each file is either kept or deleted exactly once. Decisions not
// touching a conflict are returned unchanged and in order, followed by the
// synthesized ones. Running Resolve on its own output changes nothing.
func Resolve(decisions []models.Decision) ([]models.Decision, Report) {
	report := Report{
		Before:         Detect(decisions),
		AffectedGroups: []string{},
		Synthesized:    []string{},
	}

	if len(report.Before) == 0 {
		out := append([]models.Decision(nil), decisions...)
		report.After = []Conflict{}
		return out, report
	}

	components := findComponents(decisions, report.Before)
	report.Components = len(components)

	removed := make(map[int]bool)
	var synthesized []models.Decision
	nextID := nextResolvedID(decisions)

	for _, comp := range components {
		groupIDs := make([]string, 0, len(comp.decisions))
		for _, i := range comp.decisions {
			removed[i] = true
			groupIDs = append(groupIDs, decisions[i].GroupID)
		}
		report.AffectedGroups = append(report.AffectedGroups, groupIDs...)

		for _, d := range resolveComponent(comp, groupIDs) {
			d.GroupID = fmt.Sprintf("%s%d", ResolvedPrefix, nextID)
			nextID++
			synthesized = append(synthesized, d)
			report.Synthesized = append(report.Synthesized, d.GroupID)
		}

		log.WithFields(logrus.Fields{
			"groups": strings.Join(groupIDs, ","),
			"files":  len(comp.files),
		}).Info("Resolved conflicting decisions")
	}
	sort.Strings(report.AffectedGroups)

	out := make([]models.Decision, 0, len(decisions)-len(removed)+len(synthesized))
	for i, d := range decisions {
		if !removed[i] {
			out = append(out, d)
		}
	}
	out = append(out, synthesized...)

	report.After = Detect(out)
	return out, report
}

// findComponents walks the decision graph from every conflicted file. Two
// files are connected when any decision mentions both.
func findComponents(decisions []models.Decision, conflicts []Conflict) []component {
	byPath := make(map[string][]int)
	for i, d := range decisions {
		for _, p := range d.Members() {
			byPath[p] = append(byPath[p], i)
		}
	}

	visitedFile := make(map[string]bool)
	visitedDecision := make(map[int]bool)
	var out []component

	for _, c := range conflicts {
		if visitedFile[c.Path] {
			continue
		}

		var comp component
		visitedFile[c.Path] = true
		queue := []string{c.Path}

		for len(queue) > 0 {
			p := queue[0]
			queue = queue[1:]
			comp.files = append(comp.files, p)

			for _, di := range byPath[p] {
				if visitedDecision[di] {
					continue
				}
				visitedDecision[di] = true
				comp.decisions = append(comp.decisions, di)
				for _, member := range decisions[di].Members() {
					if !visitedFile[member] {
						visitedFile[member] = true
						queue = append(queue, member)
					}
				}
			}
		}

		sort.Ints(comp.decisions)
		sort.Strings(comp.files)
		out = append(out, comp)
	}
	return out
}

// resolveComponent keeps the best file per distinct owner when the files
// span several artists, otherwise the single best file
func resolveComponent(comp component, groupIDs []string) []models.Decision {
	reason := "conflict across " + strings.Join(groupIDs, ", ")

	buckets := make(map[string][]string)
	var placeholders []string
	for _, p := range comp.files {
		owner := Owner(p)
		if owner == "" {
			placeholders = append(placeholders, p)
			continue
		}
		buckets[owner] = append(buckets[owner], p)
	}

	if len(buckets) <= 1 {
		keeper := best(comp.files)
		return []models.Decision{newDecision(keeper, comp.files, models.RuleConflictResolution, reason)}
	}

	owners := make([]string, 0, len(buckets))
	for owner := range buckets {
		owners = append(owners, owner)
	}
	sort.Strings(owners)

	// Files without a usable owner go to the bucket holding the best file overall
	if len(placeholders) > 0 {
		overall := best(comp.files)
		target := Owner(overall)
		if target == "" {
			target = owners[0]
			bestScore := FileScore(best(buckets[target]))
			for _, owner := range owners[1:] {
				if s := FileScore(best(buckets[owner])); s > bestScore {
					target, bestScore = owner, s
				}
			}
		}
		buckets[target] = append(buckets[target], placeholders...)
		sort.Strings(buckets[target])
	}

	decisions := make([]models.Decision, 0, len(owners))
	for _, owner := range owners {
		files := buckets[owner]
		rule := models.RuleDifferentArtists
		if len(files) > 1 {
			rule = models.RuleLowerQualityDuplicate
		}
		decisions = append(decisions, newDecision(best(files), files, rule, reason+"; artist "+owner))
	}
	return decisions
}

func newDecision(keeper string, files []string, rule, reason string) models.Decision {
	deleted := make([]string, 0, len(files)-1)
	for _, p := range files {
		if p != keeper {
			deleted = append(deleted, p)
		}
	}
	return models.Decision{
		GroupKey:       models.GroupKey(files),
		Keep:           []string{keeper},
		Delete:         deleted,
		DecisionType:   models.DecisionAuto,
		RuleApplied:    rule,
		Reason:         reason,
		MetadataSource: &models.MetadataSource{Path: keeper},
	}
}

// nextResolvedID continues numbering after any resolved-N already present
func nextResolvedID(decisions []models.Decision) int {
	next := 1
	for _, d := range decisions {
		if !strings.HasPrefix(d.GroupID, ResolvedPrefix) {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(d.GroupID, ResolvedPrefix)); err == nil && n >= next {
			next = n + 1
		}
	}
	return next
}
