// Package config loads and validates a beam-search session's
// configuration: beam shape, ranking strategy, refinement schedule, and
// provider selections (spec §3's SessionConfig).
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// maxConfigFileSize guards against loading an unreasonably large config
// file (e.g. the wrong file pointed at by mistake).
const maxConfigFileSize = 1 << 20 // 1MB

// RankingStrategy selects the ranking engine's algorithm.
type RankingStrategy string

const (
	RankingAllPairs  RankingStrategy = "all_pairs"
	RankingTournament RankingStrategy = "tournament"
	RankingAuto      RankingStrategy = "auto"
)

// ProviderSelection names a collaborator implementation and carries its
// pass-through, provider-specific options (model name, endpoint, ...).
type ProviderSelection struct {
	Provider string         `yaml:"provider"`
	Options  map[string]any `yaml:"options"`
}

// SessionConfig is immutable once a session starts (spec §3). It is the
// orchestrator's sole configuration surface.
type SessionConfig struct {
	BeamWidth       int             `yaml:"beam_width"`
	KeepTop         int             `yaml:"keep_top"`
	MaxIterations   int             `yaml:"max_iterations"`
	AlignmentWeight float64         `yaml:"alignment_weight"`
	EnsembleSize    int             `yaml:"ensemble_size"`
	RankingStrategy RankingStrategy `yaml:"ranking_strategy"`

	// GracefulDegradation controls whether a ranking-call failure aborts
	// the session (false) or proceeds with the partial order and a
	// logged error (true), per spec §4.7's failure semantics.
	GracefulDegradation bool `yaml:"graceful_degradation"`

	// RefinementSchedule is the deterministic per-iteration dimension
	// sequence, e.g. ["what", "how", "what", ...]. Indexed modulo its own
	// length so a short schedule repeats across max_iterations.
	RefinementSchedule []string `yaml:"refinement_schedule"`

	TextModel        ProviderSelection `yaml:"text_model"`
	VisionComparator ProviderSelection `yaml:"vision_comparator"`
	ImageGenerator   ProviderSelection `yaml:"image_generator"`

	OutputDir string `yaml:"output_dir"`

	// API keys, only read from the environment when the file omits them.
	OpenAIKey string `yaml:"openai_key"`
	GoogleKey string `yaml:"google_key"`
}

// LoadConfig loads a SessionConfig from a YAML file, applies defaults,
// and fills in API keys from the environment when absent.
func LoadConfig(path string) (*SessionConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg SessionConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyDefaults()

	if cfg.OpenAIKey == "" {
		cfg.OpenAIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.GoogleKey == "" {
		cfg.GoogleKey = os.Getenv("GOOGLE_API_KEY")
	}

	return &cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(cfg *SessionConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *SessionConfig) applyDefaults() {
	if c.AlignmentWeight == 0 {
		c.AlignmentWeight = 0.7
	}
	if c.EnsembleSize == 0 {
		c.EnsembleSize = 1
	}
	if c.RankingStrategy == "" {
		c.RankingStrategy = RankingAuto
	}
	if len(c.RefinementSchedule) == 0 {
		c.RefinementSchedule = []string{"what", "how"}
	}
	if c.OutputDir == "" {
		c.OutputDir = "./output"
	}
}

// Validate enforces the invariants spec §3 states in prose.
func (c *SessionConfig) Validate() error {
	if c.BeamWidth <= 0 {
		return fmt.Errorf("beam_width must be positive, got %d", c.BeamWidth)
	}
	if c.KeepTop <= 0 {
		return fmt.Errorf("keep_top must be positive, got %d", c.KeepTop)
	}
	if c.KeepTop > c.BeamWidth {
		return fmt.Errorf("keep_top (%d) must be <= beam_width (%d)", c.KeepTop, c.BeamWidth)
	}
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive, got %d", c.MaxIterations)
	}
	if c.AlignmentWeight < 0 || c.AlignmentWeight > 1 {
		return fmt.Errorf("alignment_weight must be in [0,1], got %f", c.AlignmentWeight)
	}
	if c.EnsembleSize < 1 {
		return fmt.Errorf("ensemble_size must be >= 1, got %d", c.EnsembleSize)
	}
	switch c.RankingStrategy {
	case RankingAllPairs, RankingTournament, RankingAuto:
	default:
		return fmt.Errorf("ranking_strategy must be one of all_pairs, tournament, auto, got %q", c.RankingStrategy)
	}
	if len(c.RefinementSchedule) == 0 {
		return fmt.Errorf("refinement_schedule must not be empty")
	}
	for _, d := range c.RefinementSchedule {
		if d != "what" && d != "how" {
			return fmt.Errorf("refinement_schedule entries must be 'what' or 'how', got %q", d)
		}
	}
	return nil
}

// DimensionForIteration returns the refinement dimension scheduled for
// iteration t, cycling the schedule when t exceeds its length.
func (c *SessionConfig) DimensionForIteration(t int) string {
	return c.RefinementSchedule[t%len(c.RefinementSchedule)]
}
