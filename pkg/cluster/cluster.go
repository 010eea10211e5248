// Package cluster groups matching files into duplicate sets.
package cluster

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/matcher"
	"github.com/sirupsen/logrus"
)

var log *logrus.Entry

func init() {
	log = logger.WithName("cluster")
}

// Build compares every pair of records, joins matching pairs into connected
// components and returns one group per component with two or more members.
// Members keep the order of records; groups are ordered by descending
// confidence and numbered in that order.
func Build(records []*models.AudioRecord, opts matcher.Options) []models.DuplicateGroup {
	start := time.Now()

	candidates := make([]*matcher.Candidate, len(records))
	for i, rec := range records {
		candidates[i] = matcher.Prepare(rec)
	}

	pairs := matcher.MatchingPairs(candidates, opts)
	adjacency := make([][]int, len(records))
	for _, p := range pairs {
		adjacency[p.I] = append(adjacency[p.I], p.J)
		adjacency[p.J] = append(adjacency[p.J], p.I)
	}

	var groups []models.DuplicateGroup
	for _, component := range components(adjacency) {
		if len(component) < 2 {
			continue
		}
		groups = append(groups, buildGroup(candidates, component, opts))
	}

	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Confidence > groups[j].Confidence
	})
	for i := range groups {
		groups[i].ID = fmt.Sprintf("group-%d", i+1)
	}

	log.WithFields(logrus.Fields{
		"files":    len(records),
		"matches":  len(pairs),
		"groups":   len(groups),
		"duration": time.Since(start).String(),
	}).Info("Duplicate detection complete")

	return groups
}

// components runs a breadth-first search from each unvisited node in index
// order. Each component is returned sorted ascending.
func components(adjacency [][]int) [][]int {
	visited := make([]bool, len(adjacency))
	var out [][]int

	for startNode := range adjacency {
		if visited[startNode] {
			continue
		}
		visited[startNode] = true
		queue := []int{startNode}
		var component []int

		for len(queue) > 0 {
			node := queue[0]
			queue = queue[1:]
			component = append(component, node)

			for _, next := range adjacency[node] {
				if !visited[next] {
					visited[next] = true
					queue = append(queue, next)
				}
			}
		}

		sort.Ints(component)
		out = append(out, component)
	}
	return out
}

// buildGroup scores every intra-group pair, not just the edges that linked
// the component, so confidence can fall below the match threshold. The mean
// is capped at models.MaxConfidence.
func buildGroup(candidates []*matcher.Candidate, members []int, opts matcher.Options) models.DuplicateGroup {
	files := make([]string, len(members))
	records := make([]*models.AudioRecord, len(members))
	for i, idx := range members {
		files[i] = candidates[idx].Record.Path
		records[i] = candidates[idx].Record
	}

	total, count := 0, 0
	seen := make(map[string]bool)
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			res := matcher.CompareCandidates(candidates[members[i]], candidates[members[j]], opts)
			total += res.Score
			count++
			for _, r := range res.Reasons {
				seen[r] = true
			}
		}
	}

	reasons := []string{}
	for _, r := range models.ReasonOrder {
		if seen[r] {
			reasons = append(reasons, r)
		}
	}

	confidence := int(math.Round(float64(total) / float64(count)))
	if confidence > models.MaxConfidence {
		confidence = models.MaxConfidence
	}

	return models.DuplicateGroup{
		Key:           models.GroupKey(files),
		Confidence:    confidence,
		Files:         files,
		MatchReasons:  reasons,
		SuggestedKeep: SuggestKeeper(records),
	}
}
