package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/conflicts"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/executor"
	"github.com/prismon/audio-janitor/pkg/rules"
	"github.com/prismon/audio-janitor/pkg/scanner"
)

// Lookup resolves a path to its metadata, nil when unknown
type Lookup func(path string) *models.AudioRecord

// Groups lists duplicate groups with one row per member. limit <= 0 shows all.
func Groups(w io.Writer, groups []models.DuplicateGroup, lookup Lookup, limit int) {
	shown := groups
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}

	var rows [][]string
	for _, g := range shown {
		for i, p := range g.Files {
			id, conf, reasons := "", "", ""
			if i == 0 {
				id = g.ID
				conf = strconv.Itoa(g.Confidence)
				reasons = strings.Join(g.MatchReasons, ", ")
			}
			keep := ""
			if g.SuggestedKeep != nil && *g.SuggestedKeep == p {
				keep = "*"
			}
			format, bitrate := "", ""
			if lookup != nil {
				if rec := lookup(p); rec != nil {
					format = rec.Format
					if rec.Bitrate != nil {
						bitrate = strconv.Itoa(*rec.Bitrate)
					}
				}
			}
			rows = append(rows, []string{id, conf, keep, p, format, bitrate, reasons})
		}
	}

	fmt.Fprintln(w, renderTable(
		fmt.Sprintf("Duplicate groups (%d)", len(groups)),
		[]string{"Group", "Conf", "Keep", "Path", "Format", "kbps", "Reasons"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
	))
	if len(shown) < len(groups) {
		fmt.Fprintf(w, "... %d more groups\n", len(groups)-len(shown))
	}
}

// Decisions lists decisions with their kept and deleted files
func Decisions(w io.Writer, decisions []models.Decision) {
	rows := make([][]string, 0, len(decisions))
	for _, d := range decisions {
		flags := []string{}
		if d.NotDuplicates {
			flags = append(flags, "not-duplicates")
		}
		if d.CopyToDestination {
			flags = append(flags, "copy")
		}
		if d.NeedsMetadataReview {
			flags = append(flags, "metadata-review")
		}
		rows = append(rows, []string{
			d.GroupID,
			d.DecisionType,
			d.RuleApplied,
			strings.Join(d.Keep, "\n"),
			strings.Join(d.Delete, "\n"),
			strings.Join(flags, ", "),
		})
	}
	fmt.Fprintln(w, renderTable(
		fmt.Sprintf("Decisions (%d)", len(decisions)),
		[]string{"Group", "Type", "Rule", "Keep", "Delete", "Flags"},
		rows, nil,
	))
}

// ManualQueue lists groups the engine left for manual review
func ManualQueue(w io.Writer, items []rules.ManualItem) {
	rows := make([][]string, 0, len(items))
	for _, item := range items {
		rows = append(rows, []string{item.Group.ID, strconv.Itoa(item.Group.Confidence), strconv.Itoa(len(item.Group.Files)), item.Reason})
	}
	fmt.Fprintln(w, renderTable(
		fmt.Sprintf("Needs manual review (%d)", len(items)),
		[]string{"Group", "Conf", "Files", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft},
	))
}

// Conflicts lists files both kept and deleted
func Conflicts(w io.Writer, found []conflicts.Conflict) {
	rows := make([][]string, 0, len(found))
	for _, c := range found {
		rows = append(rows, []string{c.Path, strings.Join(c.KeptIn, ", "), strings.Join(c.DeletedIn, ", ")})
	}
	fmt.Fprintln(w, renderTable(
		fmt.Sprintf("Conflicts (%d)", len(found)),
		[]string{"Path", "Kept in", "Deleted in"},
		rows, nil,
	))
}

// Resolution summarises a conflict resolution pass
func Resolution(w io.Writer, r conflicts.Report) {
	rows := [][]string{
		{"Conflicts before", strconv.Itoa(len(r.Before))},
		{"Conflicts after", strconv.Itoa(len(r.After))},
		{"Components", strconv.Itoa(r.Components)},
		{"Replaced decisions", strings.Join(r.AffectedGroups, ", ")},
		{"New decisions", strings.Join(r.Synthesized, ", ")},
	}
	fmt.Fprintln(w, renderTable("Conflict resolution", []string{"", ""}, rows, nil))
}

// Scan summarises a scan run
func Scan(w io.Writer, s *scanner.Stats) {
	rows := [][]string{
		{"Files listed", strconv.Itoa(s.Listed)},
		{"Already known", strconv.Itoa(s.Known)},
		{"Extracted", strconv.Itoa(s.Extracted)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Duration", s.Duration.Round(time.Millisecond).String()},
	}
	if s.Cancelled {
		rows = append(rows, []string{"Status", "cancelled (resume with 'scan')"})
	}
	fmt.Fprintln(w, renderTable("Scan", []string{"", ""}, rows, []columnAlignment{alignLeft, alignRight}))
}

// Execution summarises an execution run
func Execution(w io.Writer, s *executor.Summary) {
	title := "Execution"
	if s.DryRun {
		title = "Execution (dry run)"
	}
	rows := [][]string{
		{"Decisions", strconv.Itoa(s.Decisions)},
		{"Executed", strconv.Itoa(s.Executed)},
		{"Already executed", strconv.Itoa(s.AlreadyExecuted)},
		{"Held for metadata merge", strconv.Itoa(s.Held)},
		{"Not duplicates", strconv.Itoa(s.NotDuplicates)},
		{"Files deleted", strconv.Itoa(s.Deleted)},
		{"  via trash", strconv.Itoa(s.Trashed)},
		{"Already gone", strconv.Itoa(s.Missing)},
		{"Files copied", strconv.Itoa(s.Copied)},
		{"Failed", strconv.Itoa(s.Failed)},
	}
	fmt.Fprintln(w, renderTable(title, []string{"", ""}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, e := range s.Errors {
		fmt.Fprintf(w, "  error: %s\n", e)
	}
}

// Status is a snapshot of everything persisted in the home directory
type Status struct {
	Home          string
	Records       int
	CorruptLines  int
	Groups        int
	GroupsAt      time.Time
	Decisions     int
	Auto          int
	Manual        int
	Conflicts     int
	Pending       int
	Merges        int
	ScanFailures  int
	ExecutedCount int
	Checkpoints   []database.Checkpoint
	Runs          []*database.Run
}

// StatusTable renders a status snapshot
func StatusTable(w io.Writer, s Status) {
	groupsAt := "never"
	if !s.GroupsAt.IsZero() {
		groupsAt = s.GroupsAt.Local().Format(time.RFC3339)
	}
	rows := [][]string{
		{"Home", s.Home},
		{"Records", strconv.Itoa(s.Records)},
		{"Unreadable lines", strconv.Itoa(s.CorruptLines)},
		{"Duplicate groups", fmt.Sprintf("%d (generated %s)", s.Groups, groupsAt)},
		{"Decisions", fmt.Sprintf("%d (%d auto, %d manual)", s.Decisions, s.Auto, s.Manual)},
		{"Awaiting review", strconv.Itoa(s.Pending)},
		{"Awaiting metadata merge", strconv.Itoa(s.Merges)},
		{"Conflicts", strconv.Itoa(s.Conflicts)},
		{"Executed decisions", strconv.Itoa(s.ExecutedCount)},
		{"Scan failures", strconv.Itoa(s.ScanFailures)},
	}
	fmt.Fprintln(w, renderTable("Status", []string{"", ""}, rows, nil))

	if len(s.Checkpoints) > 0 {
		cps := append([]database.Checkpoint(nil), s.Checkpoints...)
		sort.Slice(cps, func(i, j int) bool { return cps[i].Name < cps[j].Name })
		cpRows := make([][]string, 0, len(cps))
		for _, cp := range cps {
			cpRows = append(cpRows, []string{cp.Name, fmt.Sprintf("%d/%d", cp.Processed, cp.Total), cp.Cursor, cp.UpdatedAt.Local().Format(time.RFC3339)})
		}
		fmt.Fprintln(w, renderTable("Checkpoints", []string{"Name", "Progress", "Cursor", "Updated"}, cpRows, nil))
	}

	if len(s.Runs) > 0 {
		runRows := make([][]string, 0, len(s.Runs))
		for _, r := range s.Runs {
			started := time.Unix(r.StartedAt, 0).Local().Format(time.RFC3339)
			processed := ""
			if r.Metadata != nil {
				processed = strconv.Itoa(r.Metadata.Processed)
			}
			runRows = append(runRows, []string{r.Kind, r.Status, started, processed})
		}
		fmt.Fprintln(w, renderTable("Recent runs", []string{"Kind", "Status", "Started", "Processed"}, runRows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight}))
	}
}
