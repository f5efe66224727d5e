// Package config loads Overstory's project-level configuration:
// config.yaml (human-authored settings), agent-manifest.json (the fixed
// capability roster), and the optional overstory.toml cost-tier override.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/overstory-run/overstory/internal/constants"
)

// ProjectConfig is the parsed form of config.yaml at a project's control
// directory root.
type ProjectConfig struct {
	ProjectName      string            `yaml:"projectName"`
	MaxDepth         int               `yaml:"maxDepth"`
	StaggerMs        int               `yaml:"staggerMs"`
	StaleThresholdS  int               `yaml:"staleThresholdSeconds"`
	ZombieThresholdS int               `yaml:"zombieThresholdSeconds"`
	WatchdogTickS    int               `yaml:"watchdogTickSeconds"`
	WorktreeBaseDir  string            `yaml:"worktreeBaseDir"`
	RunnerCommand    string            `yaml:"runnerCommand"`
	RunnerArgs       []string          `yaml:"runnerArgs"`
	Env              map[string]string `yaml:"env"`
}

// defaults returns a config pre-filled with Overstory's built-in timing
// defaults, so a minimal config.yaml only needs to name the project.
func defaults() *ProjectConfig {
	return &ProjectConfig{
		MaxDepth:         4,
		StaggerMs:        int(2000),
		StaleThresholdS:  int(constants.DefaultStaleThreshold.Seconds()),
		ZombieThresholdS: int(constants.DefaultZombieThreshold.Seconds()),
		WatchdogTickS:    int(constants.DefaultWatchdogTick.Seconds()),
		WorktreeBaseDir:  constants.WorktreesDir,
		RunnerCommand:    "claude",
		RunnerArgs:       []string{"--dangerously-skip-permissions"},
	}
}

// Load reads and parses config.yaml from a project's control directory. A
// missing file is not an error — Overstory runs on built-in defaults until
// a project opts into customizing them.
func Load(controlDir string) (*ProjectConfig, error) {
	cfg := defaults()
	path := filepath.Join(controlDir, constants.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cfg.ProjectName == "" {
		return nil, fmt.Errorf("%s: projectName is required", path)
	}
	return cfg, nil
}

// Save writes cfg back to config.yaml, preserving the human-authored
// document shape rather than flattening it to JSON.
func Save(controlDir string, cfg *ProjectConfig) error {
	path := filepath.Join(controlDir, constants.ConfigFile)
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(controlDir, 0755); err != nil {
		return fmt.Errorf("creating control directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
