package executor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Deletion methods recorded in the audit log
const (
	MethodTrash     = "trash"
	MethodPermanent = "permanent"
	MethodDryRun    = "dry-run"
)

// DeleteResult reports how a file was removed
type DeleteResult struct {
	Method string
	Err    error
}

// Deleter removes one file
type Deleter interface {
	Delete(ctx context.Context, path string) DeleteResult
}

// defaultTrashCommands are tried in order when no command is configured
var defaultTrashCommands = [][]string{
	{"gio", "trash"},
	{"trash-put"},
	{"trash"},
}

// TrashDeleter moves files to the desktop trash and falls back to permanent
// removal, with a warning, when no trash command works
type TrashDeleter struct {
	commands [][]string
	useTrash bool
	logger   *logrus.Entry
}

// NewTrashDeleter resolves the trash commands available on PATH. A configured
// command replaces the defaults; it may carry arguments ("gio trash").
func NewTrashDeleter(useTrash bool, trashCommand string, logger *logrus.Entry) *TrashDeleter {
	d := &TrashDeleter{
		useTrash: useTrash,
		logger:   logger.WithField("component", "trash_deleter"),
	}
	if !useTrash {
		return d
	}

	candidates := defaultTrashCommands
	if fields := strings.Fields(trashCommand); len(fields) > 0 {
		candidates = [][]string{fields}
	}
	for _, c := range candidates {
		resolved, err := exec.LookPath(c[0])
		if err != nil {
			continue
		}
		d.commands = append(d.commands, append([]string{resolved}, c[1:]...))
	}
	if len(d.commands) == 0 {
		d.logger.Warn("No trash command found, deleted files will be removed permanently")
	}
	return d
}

// Available reports whether a trash command was found
func (d *TrashDeleter) Available() bool {
	return len(d.commands) > 0
}

// Delete trashes path, or removes it when trashing is off or fails
func (d *TrashDeleter) Delete(ctx context.Context, path string) DeleteResult {
	if d.useTrash {
		for _, c := range d.commands {
			cmd := exec.CommandContext(ctx, c[0], append(c[1:], path)...)
			out, err := cmd.CombinedOutput()
			if err == nil {
				return DeleteResult{Method: MethodTrash + ":" + filepath.Base(c[0])}
			}
			d.logger.WithFields(logrus.Fields{
				"command": filepath.Base(c[0]),
				"path":    path,
				"output":  strings.TrimSpace(string(out)),
			}).Debug("Trash command failed")
		}
		if err := ctx.Err(); err != nil {
			return DeleteResult{Err: err}
		}
		d.logger.WithField("path", path).Warn("Could not move file to trash, removing permanently")
	}

	if err := os.Remove(path); err != nil {
		return DeleteResult{Method: MethodPermanent, Err: fmt.Errorf("failed to remove %s: %w", path, err)}
	}
	return DeleteResult{Method: MethodPermanent}
}
