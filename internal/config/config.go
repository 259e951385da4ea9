// Package config loads the analysis configuration: every analyzer exposes a
// Config with built-in defaults, and a YAML file can override any subset of
// them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vitalrun/vitalrun/internal/activity"
	"github.com/vitalrun/vitalrun/internal/circadian"
	"github.com/vitalrun/vitalrun/internal/hrv"
	"github.com/vitalrun/vitalrun/internal/patterns"
	"github.com/vitalrun/vitalrun/internal/performance"
	"github.com/vitalrun/vitalrun/internal/readiness"
	"github.com/vitalrun/vitalrun/internal/sessions"
	"github.com/vitalrun/vitalrun/internal/sleepdetect"
	"github.com/vitalrun/vitalrun/internal/strain"
)

// Analyst configures the optional LLM briefing step.
type Analyst struct {
	Enabled        bool    `yaml:"enabled"`
	Model          string  `yaml:"model"`
	MaxTokens      int64   `yaml:"max_tokens"`
	RequestsPerMin float64 `yaml:"requests_per_min"`
	TimeoutSec     int     `yaml:"timeout_sec"`
}

// Server configures the artifacts viewer.
type Server struct {
	Addr string `yaml:"addr"`
}

// Config is the full analysis configuration tree.
type Config struct {
	Activity    activity.Config    `yaml:"activity"`
	HRV         hrv.Config         `yaml:"hrv"`
	SleepDetect sleepdetect.Config `yaml:"sleep_detect"`
	Strain      strain.Config      `yaml:"strain"`
	Circadian   circadian.Config   `yaml:"circadian"`
	Sessions    sessions.Config    `yaml:"sleep_sessions"`
	Readiness   readiness.Config   `yaml:"readiness"`
	Patterns    patterns.Config    `yaml:"patterns"`
	Performance performance.Config `yaml:"performance"`
	Analyst     Analyst            `yaml:"analyst"`
	Server      Server             `yaml:"server"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Activity:    activity.DefaultConfig(),
		HRV:         hrv.DefaultConfig(),
		SleepDetect: sleepdetect.DefaultConfig(),
		Strain:      strain.DefaultConfig(),
		Circadian:   circadian.DefaultConfig(),
		Sessions:    sessions.DefaultConfig(),
		Readiness:   readiness.DefaultConfig(),
		Patterns:    patterns.DefaultConfig(),
		Performance: performance.DefaultConfig(),
		Analyst: Analyst{
			Model:          "claude-sonnet-4-5",
			MaxTokens:      1024,
			RequestsPerMin: 10,
			TimeoutSec:     60,
		},
		Server: Server{Addr: ":8090"},
	}
}

// Load reads a YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations that would produce nonsense output.
func (c Config) Validate() error {
	if c.Activity.SedentaryEnergy >= c.Activity.LightEnergy ||
		c.Activity.LightEnergy >= c.Activity.ModerateEnergy {
		return fmt.Errorf("activity energy thresholds must be strictly increasing")
	}
	if c.HRV.ConfidenceThreshold < 0 || c.HRV.ConfidenceThreshold > 1 {
		return fmt.Errorf("hrv confidence_threshold must be in [0,1]")
	}
	if len(c.Readiness.Tiers) == 0 {
		return fmt.Errorf("readiness tiers must not be empty")
	}
	for i := 1; i < len(c.Readiness.Tiers); i++ {
		if c.Readiness.Tiers[i].ReadyMin > c.Readiness.Tiers[i-1].ReadyMin {
			return fmt.Errorf("readiness tiers must be ordered best-first")
		}
	}
	if c.Sessions.RecoveryRedMax >= c.Sessions.RecoveryGreenMin {
		return fmt.Errorf("recovery red threshold must be below green threshold")
	}
	if c.Analyst.Enabled && c.Analyst.Model == "" {
		return fmt.Errorf("analyst model must be set when analyst is enabled")
	}
	return nil
}
