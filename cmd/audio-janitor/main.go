package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofrs/flock"
	"github.com/prismon/audio-janitor/pkg/database"
	"github.com/prismon/audio-janitor/pkg/home"
	"github.com/prismon/audio-janitor/pkg/logger"
	"github.com/prismon/audio-janitor/pkg/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	log *logrus.Entry

	// Home directory
	homePath string

	// scan command options
	rescan  bool
	compact bool
	workers int

	// duplicates command options
	groupLimit int

	// decide command options
	showQueued bool

	// conflicts command options
	fixConflicts bool

	// fix-metadata command options
	autoAccept    bool
	minConfidence string
	repairLimit   int

	// execute command options
	dryRun    bool
	assumeYes bool
)

func init() {
	log = logger.WithName("cli")
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "audio-janitor",
		Short: "Find and clean up duplicate audio files",
		Long: `audio-janitor - Duplicate audio file cleanup built with Go.

It scans music folders, extracts tags and stream properties, groups
near-duplicate recordings, decides which copy to keep (automatically or
with your help) and moves the rest to the trash.`,
	}

	rootCmd.PersistentFlags().StringVar(&homePath, "home", "", "Home directory (default $AUDIO_JANITOR_HOME or ~/.audio-janitor)")

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the home directory and a default config.yaml",
		Run:   runInit,
	}

	var scanCmd = &cobra.Command{
		Use:   "scan",
		Short: "Scan library roots and extract metadata for new files",
		Run:   runScan,
	}
	scanCmd.Flags().BoolVar(&rescan, "rescan", false, "Extract metadata again for files already in the store")
	scanCmd.Flags().BoolVar(&compact, "compact", false, "Rewrite the metadata file with one line per file afterwards")
	scanCmd.Flags().IntVar(&workers, "workers", 0, "Number of extraction workers (default from config)")

	var duplicatesCmd = &cobra.Command{
		Use:   "duplicates",
		Short: "Group near-duplicate files",
		Run:   runDuplicates,
	}
	duplicatesCmd.Flags().IntVar(&groupLimit, "limit", 25, "Number of groups to print (0 for all)")

	var decideCmd = &cobra.Command{
		Use:   "decide",
		Short: "Resolve duplicate groups automatically with the configured rules",
		Run:   runDecide,
	}
	decideCmd.Flags().BoolVar(&showQueued, "show-manual", true, "List groups left for manual review")

	var reviewCmd = &cobra.Command{
		Use:   "review",
		Short: "Decide the remaining groups interactively",
		Run:   runReview,
	}

	var conflictsCmd = &cobra.Command{
		Use:   "conflicts",
		Short: "Find files that one decision keeps and another deletes",
		Run:   runConflicts,
	}
	conflictsCmd.Flags().BoolVar(&fixConflicts, "fix", false, "Rewrite the affected decisions so no conflict remains")

	var fixMetadataCmd = &cobra.Command{
		Use:   "fix-metadata",
		Short: "Fill in missing tags from inferred suggestions",
		Run:   runFixMetadata,
	}
	fixMetadataCmd.Flags().BoolVar(&autoAccept, "yes", false, "Apply suggestions without asking")
	fixMetadataCmd.Flags().StringVar(&minConfidence, "min-confidence", "high", "Lowest confidence applied with --yes (high, medium, low)")
	fixMetadataCmd.Flags().IntVar(&repairLimit, "limit", 0, "Stop after this many files (0 for all)")

	var executeCmd = &cobra.Command{
		Use:   "execute",
		Short: "Apply decisions: copy kept files and trash the rest",
		Run:   runExecute,
	}
	executeCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Record what would happen without touching any file")
	executeCmd.Flags().BoolVar(&assumeYes, "yes", false, "Do not ask for confirmation")

	var statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Summarise the store, groups, decisions and progress",
		Run:   runStatus,
	}

	rootCmd.AddCommand(initCmd, scanCmd, duplicatesCmd, decideCmd, reviewCmd, conflictsCmd, fixMetadataCmd, executeCmd, statusCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// fatal logs err and exits
func fatal(msg string, err error) {
	log.WithError(err).Error(msg)
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}

// environment is what every command except init needs
type environment struct {
	home   *home.Manager
	config *home.Config
	closer io.Closer
	lock   *flock.Flock
}

// setup loads the config and applies its logging section. Commands that
// change state also take the home directory lock.
func setup(command string, exclusive bool) *environment {
	m, err := home.NewManager(homePath)
	if err != nil {
		fatal("Invalid home directory", err)
	}
	cfg, err := m.LoadConfig()
	if err != nil {
		fatal("Failed to load config", err)
	}

	if err := logger.ConfigureFromString(cfg.Logging.Level); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: invalid log level %q: %v\n", cfg.Logging.Level, err)
	}
	closer, err := logger.ConfigureFile(m.ResolvePath(cfg.Logging.File))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		closer = nil
	}

	env := &environment{home: m, config: cfg, closer: closer}

	if exclusive {
		env.lock = flock.New(m.LockPath())
		ok, err := env.lock.TryLock()
		if err != nil {
			fatal("Failed to acquire lock", err)
		}
		if !ok {
			fatal("Failed to acquire lock", fmt.Errorf("another audio-janitor command is using %s", m.Path()))
		}
	}

	log.WithFields(logrus.Fields{
		"command": command,
		"home":    m.Path(),
	}).Info("Executing command")
	return env
}

// Close releases the lock and the log file
func (e *environment) Close() {
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil {
			log.WithError(err).Warn("Failed to release lock")
		}
	}
	if e.closer != nil {
		e.closer.Close()
	}
}

func (e *environment) openDB() *database.StateDB {
	db, err := database.Open(e.home.DatabasePath())
	if err != nil {
		fatal("Failed to open state database", err)
	}
	return db
}

func (e *environment) loadStore() *store.MetadataStore {
	st, stats, err := store.LoadMetadata(e.home.MetadataPath())
	if err != nil {
		fatal("Failed to load metadata", err)
	}
	if stats.Corrupt > 0 {
		fmt.Fprintf(os.Stderr, "Warning: skipped %d unreadable lines in %s\n", stats.Corrupt, e.home.MetadataPath())
	}
	return st
}

// signalContext is cancelled on the first interrupt
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
