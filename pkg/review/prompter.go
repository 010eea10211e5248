package review

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/inference"
)

// Actions a reviewer can take on a group
const (
	ActionKeep          = "keep"
	ActionNotDuplicates = "not-duplicates"
	ActionSkip          = "skip"
	ActionQuit          = "quit"
)

// Choice is the reviewer's answer for one group. Keep is the index into
// Item.Group.Files when Action is ActionKeep.
type Choice struct {
	Action string
	Keep   int
}

// Actions for a metadata repair suggestion
const (
	RepairAccept = "accept"
	RepairSkip   = "skip"
	RepairQuit   = "quit"
)

// Prompter asks the reviewer about one group. Rendering is left entirely to
// the implementation.
type Prompter interface {
	Choose(ctx context.Context, item Item, position, total int) (Choice, error)
}

// RepairPrompter asks whether to apply an inferred set of tags
type RepairPrompter interface {
	Confirm(ctx context.Context, rec *models.AudioRecord, suggestion inference.Suggestion) (string, error)
}

// LinePrompter reads single-line answers, for terminals and scripted input.
// End of input counts as quit.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewLinePrompter creates a prompter reading from in and writing to out
func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

// Choose renders the group and reads a choice
func (p *LinePrompter) Choose(ctx context.Context, item Item, position, total int) (Choice, error) {
	g := item.Group
	fmt.Fprintf(p.out, "\n[%d/%d] %s  confidence %d%%  (%s)\n", position, total, g.ID, g.Confidence, strings.Join(g.MatchReasons, ", "))
	if item.Reason != "" {
		fmt.Fprintf(p.out, "  needs review: %s\n", item.Reason)
	}
	for i, path := range g.Files {
		marker := " "
		if g.SuggestedKeep != nil && *g.SuggestedKeep == path {
			marker = "*"
		}
		fmt.Fprintf(p.out, " %s%d) %s\n", marker, i+1, path)
		if i < len(item.Records) && item.Records[i] != nil {
			fmt.Fprintf(p.out, "      %s\n", describe(item.Records[i]))
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return Choice{}, err
		}
		fmt.Fprintf(p.out, "keep [1-%d], (n)ot duplicates, (s)kip, (q)uit: ", len(g.Files))
		line, err := p.readLine()
		if err != nil {
			return Choice{Action: ActionQuit}, nil
		}

		switch line {
		case "n":
			return Choice{Action: ActionNotDuplicates}, nil
		case "s", "":
			return Choice{Action: ActionSkip}, nil
		case "q":
			return Choice{Action: ActionQuit}, nil
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(g.Files) {
			return Choice{Action: ActionKeep, Keep: n - 1}, nil
		}
		fmt.Fprintf(p.out, "unrecognized answer %q\n", line)
	}
}

// ChooseField lists the differing values of one tag field and reads which
// file supplies it
func (p *LinePrompter) ChooseField(ctx context.Context, d models.Decision, field string, options []FieldOption) (Choice, error) {
	fmt.Fprintf(p.out, "\n%s  %s differs (keeping %s)\n", d.GroupID, field, strings.Join(d.Keep, ", "))
	for i, o := range options {
		fmt.Fprintf(p.out, "  %d) %q  %s\n", i+1, o.Value, o.Path)
	}

	for {
		if err := ctx.Err(); err != nil {
			return Choice{}, err
		}
		fmt.Fprintf(p.out, "use [1-%d], (s)kip group, (q)uit: ", len(options))
		line, err := p.readLine()
		if err != nil {
			return Choice{Action: ActionQuit}, nil
		}
		switch line {
		case "s", "":
			return Choice{Action: ActionSkip}, nil
		case "q":
			return Choice{Action: ActionQuit}, nil
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(options) {
			return Choice{Action: ActionKeep, Keep: n - 1}, nil
		}
		fmt.Fprintf(p.out, "unrecognized answer %q\n", line)
	}
}

// Confirm shows current and suggested tags and reads y/n/q
func (p *LinePrompter) Confirm(ctx context.Context, rec *models.AudioRecord, s inference.Suggestion) (string, error) {
	fmt.Fprintf(p.out, "\n%s\n", rec.Path)
	fmt.Fprintf(p.out, "  current:   %s\n", describe(rec))
	fmt.Fprintf(p.out, "  suggested: artist=%q title=%q album=%q genre=%q year=%d (%s, %s)\n",
		s.Artist, s.Title, s.Album, s.Genre, s.Year, s.Confidence, s.Source)
	if s.Warning != "" {
		fmt.Fprintf(p.out, "  warning: %s\n", s.Warning)
	}

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		fmt.Fprint(p.out, "apply? (y)es, (n)o, (q)uit: ")
		line, err := p.readLine()
		if err != nil {
			return RepairQuit, nil
		}
		switch line {
		case "y":
			return RepairAccept, nil
		case "n", "":
			return RepairSkip, nil
		case "q":
			return RepairQuit, nil
		}
	}
}

func (p *LinePrompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(line)), nil
}

// AutoAccept applies suggestions at or above a confidence level without asking
type AutoAccept struct {
	MinConfidence string
}

var confidenceRank = map[string]int{
	inference.ConfidenceLow:    1,
	inference.ConfidenceMedium: 2,
	inference.ConfidenceHigh:   3,
}

// Confirm accepts when the suggestion is confident enough
func (a AutoAccept) Confirm(ctx context.Context, rec *models.AudioRecord, s inference.Suggestion) (string, error) {
	threshold := confidenceRank[a.MinConfidence]
	if threshold == 0 {
		threshold = confidenceRank[inference.ConfidenceHigh]
	}
	if confidenceRank[s.Confidence] >= threshold {
		return RepairAccept, nil
	}
	return RepairSkip, nil
}

// describe is a one-line summary of a record's format and tags
func describe(rec *models.AudioRecord) string {
	parts := []string{strings.ToUpper(rec.Format)}
	if rec.Bitrate != nil {
		parts = append(parts, fmt.Sprintf("%d kbps", *rec.Bitrate))
	}
	if rec.SampleRate != nil {
		parts = append(parts, fmt.Sprintf("%.1f kHz", float64(*rec.SampleRate)/1000))
	}
	if rec.BitDepth != nil {
		parts = append(parts, fmt.Sprintf("%d-bit", *rec.BitDepth))
	}
	if rec.Duration != nil {
		d := int(*rec.Duration)
		parts = append(parts, fmt.Sprintf("%d:%02d", d/60, d%60))
	}
	for _, f := range models.TagFields {
		if v := rec.TagValue(f); v != "" {
			parts = append(parts, fmt.Sprintf("%s=%q", f, v))
		}
	}
	return strings.Join(parts, "  ")
}
