package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for a steward project.
type Config struct {
	Version  int               `yaml:"version"`
	Workers  map[string]Worker `yaml:"workers"`
	Pipeline Pipeline          `yaml:"pipeline"`
}

// Worker describes a single opaque worker and how to invoke it.
type Worker struct {
	Capabilities []string `yaml:"capabilities"`          // e.g. author.prd, review.quality, execute
	Mode         string   `yaml:"mode"`                  // "cli" or "api"
	Cmd          string   `yaml:"cmd,omitempty"`         // CLI command to spawn
	Args         []string `yaml:"args,omitempty"`        // CLI arguments
	Provider     string   `yaml:"provider,omitempty"`    // API provider: openai, anthropic
	Model        string   `yaml:"model,omitempty"`       // Model name for API mode
	APIKeyEnv    string   `yaml:"api_key_env,omitempty"` // Env var name containing API key
	TimeoutSec   int      `yaml:"timeout_sec,omitempty"` // Timeout in seconds (0 = default 300)
	AutoAccept   bool     `yaml:"auto_accept,omitempty"` // Skip interactive permission prompts
}

// Pipeline holds the engine's tunables. Thresholds are published here,
// not buried in the gate logic.
type Pipeline struct {
	// MaxRevisions caps the gate/revision cycle per document. The
	// source behavior was unbounded; a cap guarantees termination.
	MaxRevisions int `yaml:"max_revisions,omitempty"`

	// CommitStrategy is the default cadence for finalizing completed
	// units: per-task, per-phase, per-feature, or manual.
	CommitStrategy string `yaml:"commit_strategy,omitempty"`

	// QualityHigh and QualityMedium are the score thresholds for the
	// quality gate's approved / approved_with_conditions verdicts.
	QualityHigh   int `yaml:"quality_high,omitempty"`
	QualityMedium int `yaml:"quality_medium,omitempty"`

	// Perspectives are the independent review angles fanned out
	// concurrently before the quality gate runs.
	Perspectives []string `yaml:"perspectives,omitempty"`

	// FanOutWorkers bounds concurrent perspective dispatches.
	FanOutWorkers int `yaml:"fan_out_workers,omitempty"`
}

// Defaults for unset pipeline fields.
const (
	DefaultMaxRevisions  = 3
	DefaultQualityHigh   = 80
	DefaultQualityMedium = 60
	DefaultFanOutWorkers = 4
)

// DefaultPerspectives mirror the quality rubric's dimensions.
var DefaultPerspectives = []string{"consistency", "completeness", "compliance", "feasibility"}

// EffectiveArgs returns the final args for a CLI worker, injecting
// non-interactive and auto-accept flags for known CLI tools. Users can
// always add these flags manually in args instead.
func (w Worker) EffectiveArgs() []string {
	if w.Mode != "cli" {
		return w.Args
	}

	args := make([]string, len(w.Args))
	copy(args, w.Args)

	switch w.Cmd {
	case "claude":
		if !containsAny(args, "-p", "--print") {
			args = appendFront(args, "--print")
		}
		if w.AutoAccept && !containsAny(args, "--dangerously-skip-permissions", "--permission-mode") {
			args = appendFront(args, "--dangerously-skip-permissions")
		}
	case "gemini":
		if w.AutoAccept && !containsAny(args, "-y", "--yolo") {
			args = appendFront(args, "--yolo")
		}
	case "codex":
		if w.AutoAccept && !containsAny(args, "--full-auto", "--approval-mode") {
			args = appendFront(args, "--full-auto")
		}
	}

	return args
}

// DefaultTimeout returns the effective timeout for the worker.
func (w Worker) DefaultTimeout() int {
	if w.TimeoutSec > 0 {
		return w.TimeoutSec
	}
	return 300
}

// Has reports whether the worker declares a capability.
func (w Worker) Has(capability string) bool {
	for _, c := range w.Capabilities {
		if c == capability {
			return true
		}
	}
	return false
}

// Load reads and parses the config file at the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the config to the given path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// DefaultConfig returns a starter config with no workers declared.
func DefaultConfig() *Config {
	cfg := &Config{
		Version: 1,
		Workers: map[string]Worker{},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Pipeline.MaxRevisions <= 0 {
		c.Pipeline.MaxRevisions = DefaultMaxRevisions
	}
	if c.Pipeline.CommitStrategy == "" {
		c.Pipeline.CommitStrategy = "per-task"
	}
	if c.Pipeline.QualityHigh <= 0 {
		c.Pipeline.QualityHigh = DefaultQualityHigh
	}
	if c.Pipeline.QualityMedium <= 0 {
		c.Pipeline.QualityMedium = DefaultQualityMedium
	}
	if len(c.Pipeline.Perspectives) == 0 {
		c.Pipeline.Perspectives = append([]string{}, DefaultPerspectives...)
	}
	if c.Pipeline.FanOutWorkers <= 0 {
		c.Pipeline.FanOutWorkers = DefaultFanOutWorkers
	}
}

func (c *Config) validate() error {
	for name, w := range c.Workers {
		if w.Mode == "" {
			return fmt.Errorf("worker %q: mode is required (cli or api)", name)
		}
		if w.Mode != "cli" && w.Mode != "api" {
			return fmt.Errorf("worker %q: mode must be 'cli' or 'api', got %q", name, w.Mode)
		}
		if w.Mode == "cli" && w.Cmd == "" {
			return fmt.Errorf("worker %q: cmd is required for cli mode", name)
		}
		if w.Mode == "api" && w.Provider == "" {
			return fmt.Errorf("worker %q: provider is required for api mode", name)
		}
		if len(w.Capabilities) == 0 {
			return fmt.Errorf("worker %q: at least one capability is required", name)
		}
	}

	if c.Pipeline.QualityHigh <= c.Pipeline.QualityMedium {
		return fmt.Errorf("pipeline: quality_high (%d) must exceed quality_medium (%d)",
			c.Pipeline.QualityHigh, c.Pipeline.QualityMedium)
	}
	switch c.Pipeline.CommitStrategy {
	case "per-task", "per-phase", "per-feature", "manual":
	default:
		return fmt.Errorf("pipeline: unknown commit_strategy %q", c.Pipeline.CommitStrategy)
	}
	return nil
}

// WorkerFor returns the worker declaring the given capability. Selection
// is deterministic: worker names are tried in sorted order.
func (c *Config) WorkerFor(capability string) (string, Worker, bool) {
	names := make([]string, 0, len(c.Workers))
	for name := range c.Workers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if c.Workers[name].Has(capability) {
			return name, c.Workers[name], true
		}
	}
	return "", Worker{}, false
}

// containsAny checks if any of the targets exist in the slice.
func containsAny(slice []string, targets ...string) bool {
	for _, s := range slice {
		for _, t := range targets {
			if s == t {
				return true
			}
		}
	}
	return false
}

// appendFront inserts a value at the beginning of a slice.
func appendFront(slice []string, val string) []string {
	return append([]string{val}, slice...)
}
