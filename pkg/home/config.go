package home

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prismon/audio-janitor/internal/models"
	"github.com/prismon/audio-janitor/pkg/pathutil"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when config.yaml does not exist
var ErrConfigNotFound = errors.New("config file not found")

// Config represents the application configuration
type Config struct {
	Library        LibraryConfig            `yaml:"library"`
	Scan           ScanConfig               `yaml:"scan"`
	Matching       MatchingConfig           `yaml:"matching"`
	DuplicateRules models.RuleConfiguration `yaml:"duplicateRules"`
	Inference      InferenceConfig          `yaml:"inference"`
	Execution      ExecutionConfig          `yaml:"execution"`
	Logging        LoggingConfig            `yaml:"logging"`
}

// LibraryConfig names the roots to scan and what to pick up there
type LibraryConfig struct {
	Roots      []string `yaml:"roots" validate:"required,min=1,dive,required"`
	Extensions []string `yaml:"extensions" validate:"required,min=1,dive,required"`
	Exclude    []string `yaml:"exclude"`
}

// ScanConfig contains metadata extraction settings
type ScanConfig struct {
	Workers         int    `yaml:"workers" validate:"gte=1,lte=64"`
	QueueSize       int    `yaml:"queueSize" validate:"gte=1"`
	CheckpointEvery int    `yaml:"checkpointEvery" validate:"gte=1"`
	FFprobe         string `yaml:"ffprobe"`
}

// MatchingConfig contains pairwise matching settings
type MatchingConfig struct {
	DurationTolerance       float64 `yaml:"durationTolerance" validate:"gte=0"`
	DuplicateScoreThreshold int     `yaml:"duplicateScoreThreshold" validate:"gte=1,lte=110"`
}

// InferenceConfig configures the external metadata inference program
type InferenceConfig struct {
	Command        string   `yaml:"command"`
	Args           []string `yaml:"args"`
	TimeoutSeconds int      `yaml:"timeoutSeconds" validate:"gte=0"`
	Prefetch       int      `yaml:"prefetch" validate:"gte=0,lte=16"`
}

// ExecutionConfig contains deletion and relocation settings
type ExecutionConfig struct {
	UseTrash     bool   `yaml:"useTrash"`
	TrashCommand string `yaml:"trashCommand"`
	VerifyCopies bool   `yaml:"verifyCopies"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error silent"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Library: LibraryConfig{
			Roots:      []string{"~/Music"},
			Extensions: []string{"mp3", "flac", "m4a", "aac", "ogg", "opus", "wav", "aiff", "aif", "alac", "ape", "wv", "wma"},
		},
		Scan: ScanConfig{
			Workers:         4,
			QueueSize:       256,
			CheckpointEvery: 100,
			FFprobe:         "ffprobe",
		},
		Matching: MatchingConfig{
			DurationTolerance:       5,
			DuplicateScoreThreshold: 40,
		},
		DuplicateRules: models.DefaultRuleConfiguration(),
		Inference: InferenceConfig{
			TimeoutSeconds: 30,
			Prefetch:       2,
		},
		Execution: ExecutionConfig{
			UseTrash:     true,
			VerifyCopies: true,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "logs/audio-janitor.log",
		},
	}
}

// LoadConfig loads config.yaml over the defaults and validates it.
// Absent keys keep their default values.
func (m *Manager) LoadConfig() (*Config, error) {
	configPath := m.ConfigPath()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s (run 'audio-janitor init')", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}

	return config, nil
}

// SaveConfig saves configuration to config.yaml
func (m *Manager) SaveConfig(config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.ConfigPath(), data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// normalize expands root and destination paths and lowercases extensions
func (c *Config) normalize() error {
	for i, root := range c.Library.Roots {
		expanded, err := pathutil.ExpandPath(root)
		if err != nil {
			return fmt.Errorf("invalid library root %q: %w", root, err)
		}
		c.Library.Roots[i] = expanded
	}

	for i, ext := range c.Library.Extensions {
		c.Library.Extensions[i] = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	}

	if c.DuplicateRules.Ordered != nil && c.DuplicateRules.Ordered.DestinationDir != "" {
		expanded, err := pathutil.ExpandPath(c.DuplicateRules.Ordered.DestinationDir)
		if err != nil {
			return fmt.Errorf("invalid destinationDir: %w", err)
		}
		c.DuplicateRules.Ordered.DestinationDir = expanded
	}

	if c.DuplicateRules.Weighted != nil {
		for i, dir := range c.DuplicateRules.Weighted.PathPriority {
			expanded, err := pathutil.ExpandPath(dir)
			if err != nil {
				return fmt.Errorf("invalid pathPriority entry %q: %w", dir, err)
			}
			c.DuplicateRules.Weighted.PathPriority[i] = expanded
		}
	}

	return nil
}
