package home

import (
	"fmt"
	"os"
	"path/filepath"
)

// Manager handles the application home directory
type Manager struct {
	path string
}

// Subdirectories within home
const (
	LogsDir = "logs"
)

// Files within home
const (
	ConfigFile         = "config.yaml"
	MetadataFile       = "metadata.jsonl"
	GroupsFile         = "duplicates.json"
	DecisionsFile      = "decisions.json"
	DatabaseFile       = "state.db"
	InferenceCacheFile = "inference-cache.json"
	LockFile           = ".lock"
)

// NewManager creates a new home directory manager
func NewManager(path string) (*Manager, error) {
	if path == "" {
		path = DefaultHomePath()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("invalid home path: %w", err)
	}

	return &Manager{path: absPath}, nil
}

// DefaultHomePath returns AUDIO_JANITOR_HOME, or ~/.audio-janitor
func DefaultHomePath() string {
	if path := os.Getenv("AUDIO_JANITOR_HOME"); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".audio-janitor"
	}
	return filepath.Join(home, ".audio-janitor")
}

// Path returns the home directory path
func (m *Manager) Path() string {
	return m.path
}

// Initialize creates the home directory and a default config.yaml.
// An existing config is never overwritten.
func (m *Manager) Initialize() error {
	for _, dir := range []string{"", LogsDir} {
		path := m.JoinPath(dir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	if err := m.initializeConfig(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}
	return nil
}

// Exists checks if the home directory exists
func (m *Manager) Exists() bool {
	info, err := os.Stat(m.path)
	return err == nil && info.IsDir()
}

// JoinPath joins path elements relative to home directory
func (m *Manager) JoinPath(elem ...string) string {
	parts := append([]string{m.path}, elem...)
	return filepath.Join(parts...)
}

// ConfigPath returns the path to config.yaml
func (m *Manager) ConfigPath() string {
	return m.JoinPath(ConfigFile)
}

// MetadataPath returns the path to the JSON-lines metadata store
func (m *Manager) MetadataPath() string {
	return m.JoinPath(MetadataFile)
}

// GroupsPath returns the path to the duplicate groups document
func (m *Manager) GroupsPath() string {
	return m.JoinPath(GroupsFile)
}

// DecisionsPath returns the path to the decisions document
func (m *Manager) DecisionsPath() string {
	return m.JoinPath(DecisionsFile)
}

// DatabasePath returns the path to the state database
func (m *Manager) DatabasePath() string {
	return m.JoinPath(DatabaseFile)
}

// InferenceCachePath returns the path to the persisted inference cache
func (m *Manager) InferenceCachePath() string {
	return m.JoinPath(InferenceCacheFile)
}

// LockPath returns the path of the single-instance lock file
func (m *Manager) LockPath() string {
	return m.JoinPath(LockFile)
}

// ResolvePath makes a config-relative path absolute under home
func (m *Manager) ResolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return m.JoinPath(p)
}

func (m *Manager) initializeConfig() error {
	configPath := m.ConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	return os.WriteFile(configPath, []byte(defaultConfigYAML), 0644)
}

const defaultConfigYAML = `# audio-janitor configuration

# Where to look for audio files
library:
  roots:
    - ~/Music
  extensions: [mp3, flac, m4a, aac, ogg, opus, wav, aiff, aif, alac, ape, wv, wma]
  exclude:                 # glob patterns, ** matches across directories
    - "**/.Trash*/**"
    - "**/@eaDir/**"

# Metadata extraction
scan:
  workers: 4
  queueSize: 256
  checkpointEvery: 100     # records between persisted progress checkpoints
  ffprobe: ffprobe         # empty disables stream probing

# Pairwise matching
matching:
  durationTolerance: 5     # seconds
  duplicateScoreThreshold: 40

# Automatic resolution of duplicate groups.
# policy: ordered  -> ruleOrder, destinationDir
# policy: weighted -> scoreDifferenceThreshold, weights (sum 100), pathPriority
duplicateRules:
  policy: ordered
  confidenceThreshold: 70
  revealMetadata: true
  ruleOrder: [lossless, bitrate, metadata]
  destinationDir: ""

# Metadata inference for files with missing tags
inference:
  command: ""              # external program; empty uses filename parsing only
  args: []
  timeoutSeconds: 30
  prefetch: 2

# Deleting and relocating files
execution:
  useTrash: true
  trashCommand: ""         # empty tries gio, trash-put and trash in order
  verifyCopies: true

logging:
  level: info              # trace, debug, info, warn, error, silent
  file: logs/audio-janitor.log
`
