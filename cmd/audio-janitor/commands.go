package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/conflicts"
	"github.com/prismon/audio-janitor/pkg/crawler"
	"github.com/prismon/audio-janitor/pkg/executor"
	"github.com/prismon/audio-janitor/pkg/extractor"
	"github.com/prismon/audio-janitor/pkg/home"
	"github.com/prismon/audio-janitor/pkg/inference"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/matcher"
	"github.com/prismon/audio-janitor/pkg/pipeline"
	"github.com/prismon/audio-janitor/pkg/report"
	"github.com/prismon/audio-janitor/pkg/review"
	"github.com/prismon/audio-janitor/pkg/rules"
	"github.com/prismon/audio-janitor/pkg/scanner"
	"github.com/prismon/audio-janitor/pkg/source"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func runInit(cmd *cobra.Command, args []string) {
	m, err := home.NewManager(homePath)
	if err != nil {
		fatal("Invalid home directory", err)
	}
	if err := m.Initialize(); err != nil {
		fatal("Failed to initialize home directory", err)
	}
	fmt.Printf("Initialized %s\n", m.Path())
	fmt.Printf("Edit %s to set your library roots, then run 'audio-janitor scan'\n", m.ConfigPath())
}

func runScan(cmd *cobra.Command, args []string) {
	env := setup("scan", true)
	defer env.Close()
	cfg := env.config

	lister, err := crawler.NewLister(source.NewFileSystemSource(), cfg.Library.Extensions, cfg.Library.Exclude)
	if err != nil {
		fatal("Invalid library settings", err)
	}
	ex := extractor.New(cfg.Scan.FFprobe)
	if !ex.ProbeAvailable() {
		fmt.Fprintln(os.Stderr, "Warning: ffprobe unavailable, duration and bitrate will not be recorded")
	}

	st := env.loadStore()
	appender, err := store.OpenAppender(env.home.MetadataPath())
	if err != nil {
		fatal("Failed to open metadata", err)
	}
	defer appender.Close()

	db := env.openDB()
	defer db.Close()

	opts := scanner.Options{
		Workers:         cfg.Scan.Workers,
		QueueSize:       cfg.Scan.QueueSize,
		CheckpointEvery: cfg.Scan.CheckpointEvery,
		Rescan:          rescan,
	}
	if workers > 0 {
		opts.Workers = workers
	}

	ctx, cancel := signalContext()
	defer cancel()

	stats, err := scanner.New(lister, ex, st, appender, db, opts).Run(ctx, cfg.Library.Roots)
	if stats != nil {
		report.Scan(os.Stdout, stats)
	}
	switch {
	case errors.Is(err, context.Canceled):
		fmt.Println("Scan interrupted; progress is saved and the next scan resumes where this one stopped")
		return
	case errors.Is(err, crawler.ErrListerUnavailable):
		fatal("No usable library root", err)
	case err != nil:
		fatal("Scan failed", err)
	}

	if stats.Failed > 0 {
		fmt.Printf("%d files could not be read; see 'audio-janitor status'\n", stats.Failed)
	}

	if compact {
		if err := appender.Sync(); err != nil {
			fatal("Failed to sync metadata", err)
		}
		if err := store.RewriteMetadata(env.home.MetadataPath(), st.Records()); err != nil {
			fatal("Failed to compact metadata", err)
		}
		fmt.Printf("Compacted metadata to %d records\n", st.Len())
	}
}

func runDuplicates(cmd *cobra.Command, args []string) {
	env := setup("duplicates", true)
	defer env.Close()

	st := env.loadStore()
	opts := matcher.Options{
		DurationTolerance: env.config.Matching.DurationTolerance,
		ScoreThreshold:    env.config.Matching.DuplicateScoreThreshold,
	}

	doc := pipeline.FindDuplicates(st, opts, time.Now())
	if err := pipeline.SaveDuplicates(env.home.GroupsPath(), doc); err != nil {
		fatal("Failed to save groups", err)
	}

	report.Groups(os.Stdout, doc.Groups, st.Lookup, groupLimit)
	fmt.Printf("Saved %d groups from %d files to %s\n", doc.TotalGroups, st.Len(), env.home.GroupsPath())
}

func runDecide(cmd *cobra.Command, args []string) {
	env := setup("decide", true)
	defer env.Close()

	groups := loadGroups(env)
	st := env.loadStore()
	existing := loadDecisions(env)

	res, err := pipeline.AutoDecide(groups.Groups, env.config.DuplicateRules, st, existing)
	if err != nil {
		fatal("Failed to decide", err)
	}
	if err := store.SaveDecisions(env.home.DecisionsPath(), res.Decisions, time.Now()); err != nil {
		fatal("Failed to save decisions", err)
	}

	if len(res.Engine.Decisions) > 0 {
		report.Decisions(os.Stdout, res.Engine.Decisions)
	}
	if showQueued && len(res.Engine.Manual) > 0 {
		report.ManualQueue(os.Stdout, res.Engine.Manual)
	}
	if len(res.Conflicts.Before) > 0 {
		report.Resolution(os.Stdout, res.Conflicts)
	}

	log.WithFields(logrus.Fields{
		"policy":  res.Policy,
		"auto":    len(res.Engine.Decisions),
		"manual":  len(res.Engine.Manual),
		"skipped": len(res.Engine.Skipped),
	}).Info("Command completed successfully")

	fmt.Printf("%s policy: %d decided automatically, %d need review, %d already covered\n",
		res.Policy, len(res.Engine.Decisions), len(res.Engine.Manual), len(res.Engine.Skipped))
	if len(res.Engine.Manual) > 0 {
		fmt.Println("Run 'audio-janitor review' to decide the rest")
	}
}

func runReview(cmd *cobra.Command, args []string) {
	env := setup("review", true)
	defer env.Close()

	groups := loadGroups(env)
	st := env.loadStore()
	existing := loadDecisions(env)

	pending := pipeline.PendingGroups(groups.Groups, existing)
	merges := review.PendingMerges(existing)
	if len(pending) == 0 && merges == 0 {
		fmt.Println("Nothing to review")
		return
	}

	db := env.openDB()
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	prompter := review.NewLinePrompter(os.Stdin, os.Stdout)
	decisions := existing

	if len(pending) > 0 {
		reasons := make(map[string]string)
		if engine, err := rules.NewEngine(env.config.DuplicateRules, st.Lookup); err == nil {
			for _, item := range engine.Decide(pending, rules.NewDecidedSet(existing)).Manual {
				reasons[item.Group.ID] = item.Reason
			}
		}
		items := make([]review.Item, len(pending))
		for i, g := range pending {
			items[i] = review.NewItem(g, reasons[g.ID], st.Lookup)
		}

		session := review.NewSession(
			prompter,
			db,
			env.home.DecisionsPath(),
			existing,
			review.Options{DestinationDir: env.config.DuplicateRules.DestinationDir()},
		)
		summary, err := session.Run(ctx, items)
		decisions = session.Decisions()
		if summary != nil {
			fmt.Printf("%d decided, %d marked not duplicates, %d skipped\n", summary.Decided, summary.NotDuplicates, summary.Skipped)
		}
		if paused(err) {
			return
		}
	}

	if review.PendingMerges(decisions) > 0 {
		appender, err := store.OpenAppender(env.home.MetadataPath())
		if err != nil {
			fatal("Failed to open metadata file", err)
		}
		defer appender.Close()

		fmt.Printf("\n%d decisions keep a file whose tags differ from the deleted ones\n", review.PendingMerges(decisions))
		merged, summary, err := review.NewMerge(prompter, st, appender, env.home.DecisionsPath()).Run(ctx, decisions)
		decisions = merged
		if summary != nil {
			fmt.Printf("%d merged, %d skipped\n", summary.Merged, summary.Skipped)
		}
		if paused(err) {
			return
		}
	}

	if found := conflicts.Detect(decisions); len(found) > 0 {
		fmt.Printf("%d conflicting files; run 'audio-janitor conflicts --fix'\n", len(found))
	}
}

// paused reports whether an interactive pass stopped early, exiting on
// anything other than a quit or an interrupt
func paused(err error) bool {
	switch {
	case errors.Is(err, review.ErrQuit), errors.Is(err, context.Canceled):
		fmt.Println("\nReview paused; run 'audio-janitor review' to continue")
		return true
	case err != nil:
		fatal("Review failed", err)
	}
	return false
}

func runConflicts(cmd *cobra.Command, args []string) {
	env := setup("conflicts", fixConflicts)
	defer env.Close()

	decisions := loadDecisions(env)
	found := conflicts.Detect(decisions)
	if len(found) == 0 {
		fmt.Println("No conflicts")
		return
	}
	report.Conflicts(os.Stdout, found)

	if !fixConflicts {
		fmt.Println("Run 'audio-janitor conflicts --fix' to resolve them")
		return
	}

	resolved, rep := conflicts.Resolve(decisions)
	if err := store.SaveDecisions(env.home.DecisionsPath(), resolved, time.Now()); err != nil {
		fatal("Failed to save decisions", err)
	}
	report.Resolution(os.Stdout, rep)
}

func runFixMetadata(cmd *cobra.Command, args []string) {
	env := setup("fix-metadata", true)
	defer env.Close()
	cfg := env.config.Inference

	st := env.loadStore()
	candidates := review.Candidates(st.Records())
	if repairLimit > 0 && len(candidates) > repairLimit {
		candidates = candidates[:repairLimit]
	}
	if len(candidates) == 0 {
		fmt.Println("Every file has a title and an artist")
		return
	}

	appender, err := store.OpenAppender(env.home.MetadataPath())
	if err != nil {
		fatal("Failed to open metadata", err)
	}
	defer appender.Close()

	cachePath := env.home.InferenceCachePath()
	cache, err := inference.LoadCache(cachePath, inference.DefaultRecentLimit)
	if err != nil {
		fatal("Failed to load inference cache", err)
	}

	oracle := inference.NewCommandOracle(cfg.Command, cfg.Args, time.Duration(cfg.TimeoutSeconds)*time.Second)
	var suggester *inference.Suggester
	if oracle.Available() {
		suggester = inference.NewSuggester(oracle, cache)
	} else {
		fmt.Fprintln(os.Stderr, "Warning: no inference command available, suggestions come from file and folder names")
		suggester = inference.NewSuggester(nil, cache)
	}

	db := env.openDB()
	defer db.Close()

	ctx, cancel := signalContext()
	defer cancel()

	prefetcher := inference.NewPrefetcher(ctx, suggester, cfg.Prefetch)
	defer prefetcher.Close()

	var prompter review.RepairPrompter = review.NewLinePrompter(os.Stdin, os.Stdout)
	if autoAccept {
		prompter = review.AutoAccept{MinConfidence: strings.ToLower(minConfidence)}
	}

	lookahead := cfg.Prefetch
	if lookahead < 1 {
		lookahead = review.DefaultLookahead
	}
	summary, err := review.NewRepair(prefetcher, prompter, st, appender, db, lookahead).Run(ctx, candidates)

	if saveErr := cache.Save(cachePath); saveErr != nil {
		log.WithError(saveErr).Warn("Failed to save inference cache")
	}

	switch {
	case errors.Is(err, review.ErrQuit), errors.Is(err, context.Canceled):
		fmt.Println("\nStopped; repaired records are saved")
	case err != nil:
		fatal("Metadata repair failed", err)
	}
	if summary != nil {
		fmt.Printf("%d repaired, %d skipped, %d without suggestions (%d from filenames)\n",
			summary.Repaired, summary.Skipped, summary.NoAnswer, summary.Fallbacks)
	}
}

func runExecute(cmd *cobra.Command, args []string) {
	env := setup("execute", true)
	defer env.Close()
	cfg := env.config

	decisions := loadDecisions(env)
	if len(decisions) == 0 {
		fmt.Println("No decisions to execute")
		return
	}

	if !dryRun && !assumeYes && !confirm(fmt.Sprintf("Apply %d decisions? Deleted files go to the trash when possible. [y/N] ", len(decisions))) {
		fmt.Println("Aborted")
		return
	}

	db := env.openDB()
	defer db.Close()

	execLog := logger.WithName("execute")
	deleter := executor.NewTrashDeleter(cfg.Execution.UseTrash, cfg.Execution.TrashCommand, execLog)
	if cfg.Execution.UseTrash && !deleter.Available() && !dryRun {
		fmt.Fprintln(os.Stderr, "Warning: no trash command found, files will be deleted permanently")
	}
	ex := executor.NewExecutor(db, deleter, executor.NewCopier(cfg.Execution.VerifyCopies), execLog)

	ctx, cancel := signalContext()
	defer cancel()

	summary, err := ex.Execute(ctx, decisions, executor.Options{
		DryRun:         dryRun,
		DestinationDir: cfg.DuplicateRules.DestinationDir(),
	})
	if summary != nil {
		report.Execution(os.Stdout, summary)
		if summary.Held > 0 {
			fmt.Printf("%d decisions wait for a metadata merge; run 'audio-janitor review'\n", summary.Held)
		}
	}
	switch {
	case errors.Is(err, executor.ErrUnresolvedConflicts):
		report.Conflicts(os.Stdout, conflicts.Detect(decisions))
		fatal("Refusing to execute", err)
	case errors.Is(err, context.Canceled):
		fmt.Println("Execution interrupted; remaining decisions run next time")
	case err != nil:
		fatal("Execution failed", err)
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	env := setup("status", false)
	defer env.Close()

	st, loadStats, err := store.LoadMetadata(env.home.MetadataPath())
	if err != nil {
		fatal("Failed to load metadata", err)
	}
	s := report.Status{
		Home:         env.home.Path(),
		Records:      st.Len(),
		CorruptLines: loadStats.Corrupt,
	}

	var groups []models.DuplicateGroup
	if doc, err := store.LoadGroups(env.home.GroupsPath()); err == nil {
		groups = doc.Groups
		s.Groups = doc.TotalGroups
		s.GroupsAt = doc.GeneratedAt
	}

	decisions := loadDecisions(env)
	s.Decisions = len(decisions)
	for _, d := range decisions {
		if d.DecisionType == models.DecisionAuto {
			s.Auto++
		} else {
			s.Manual++
		}
	}
	s.Conflicts = len(conflicts.Detect(decisions))
	s.Merges = review.PendingMerges(decisions)
	s.Pending = len(pipeline.PendingGroups(groups, decisions))

	db := env.openDB()
	defer db.Close()
	if n, err := db.FailureCount(); err == nil {
		s.ScanFailures = n
	}
	if keys, err := db.ExecutedKeys(); err == nil {
		s.ExecutedCount = len(keys)
	}
	if cps, err := db.ListCheckpoints(); err == nil {
		s.Checkpoints = cps
	}
	if runs, err := db.ListRuns("", 5); err == nil {
		s.Runs = runs
	}

	report.StatusTable(os.Stdout, s)
}

func loadGroups(env *environment) *models.GroupsDocument {
	doc, err := store.LoadGroups(env.home.GroupsPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fatal("No duplicate groups", fmt.Errorf("run 'audio-janitor duplicates' first"))
		}
		fatal("Failed to load groups", err)
	}
	return doc
}

func loadDecisions(env *environment) []models.Decision {
	doc, skipped, err := store.LoadDecisions(env.home.DecisionsPath())
	if err != nil {
		fatal("Failed to load decisions", err)
	}
	if skipped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: skipped %d unreadable decisions\n", skipped)
	}
	return doc.Decisions
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
