// Package config loads keygenie configuration from defaults, an optional YAML
// file and KEYGENIE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/keygenie/bb84sim/bb84"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is read when no config file is named explicitly. It may be
// absent.
const DefaultPath = "keygenie.yaml"

// EnvPrefix prefixes every environment override. Nested keys are separated by
// a double underscore, e.g. KEYGENIE_SIMULATION__NOISE_PERCENT.
const EnvPrefix = "KEYGENIE_"

// Config is the complete keygenie configuration.
type Config struct {
	Simulation SimulationConfig `koanf:"simulation"`
	Trials     TrialsConfig     `koanf:"trials"`
	Server     ServerConfig     `koanf:"server"`
	Log        LogConfig        `koanf:"log"`
}

// SimulationConfig expresses levels as percentages, the way the UI does.
type SimulationConfig struct {
	Qubits               int     `koanf:"qubits"`
	NoisePercent         float64 `koanf:"noise_percent"`
	EavesdroppingPercent float64 `koanf:"eavesdropping_percent"`
	Seed                 int64   `koanf:"seed"` // 0 seeds from the clock
}

// TrialsConfig sizes bulk runs: how many independent runs, and how many at
// once.
type TrialsConfig struct {
	Runs    int `koanf:"runs"`
	Workers int `koanf:"workers"`
}

// ServerConfig configures the HTTP adapter.
type ServerConfig struct {
	Port int `koanf:"port"`
}

// LogConfig selects the log level and whether output is human-readable.
type LogConfig struct {
	Level  string `koanf:"level"`
	Pretty bool   `koanf:"pretty"`
}

var defaults = map[string]interface{}{
	"simulation.qubits":                8,
	"simulation.noise_percent":         0.0,
	"simulation.eavesdropping_percent": 0.0,
	"simulation.seed":                  0,
	"trials.runs":                      100,
	"trials.workers":                   4,
	"server.port":                      8080,
	"log.level":                        "info",
	"log.pretty":                       false,
}

// Load reads configuration. An empty path falls back to DefaultPath, which is
// skipped if missing; a named path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	optional := path == ""
	if optional {
		path = DefaultPath
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	for key, v := range defaults {
		if !k.Exists(key) {
			k.Set(key, v)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range settings.
func (c *Config) Validate() error {
	if _, err := c.Simulation.Opts(); err != nil {
		return err
	}
	if c.Trials.Runs <= 0 {
		return fmt.Errorf("trials.runs must be positive, got %d", c.Trials.Runs)
	}
	if c.Trials.Workers <= 0 {
		return fmt.Errorf("trials.workers must be positive, got %d", c.Trials.Workers)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Opts converts the simulation settings into engine options, turning
// percentages into probabilities. Rand is left for the caller to fill in.
func (s SimulationConfig) Opts() (bb84.Opts, error) {
	noise, err := bb84.FromPercent(s.NoisePercent)
	if err != nil {
		return bb84.Opts{}, fmt.Errorf("simulation.noise_percent: %w", err)
	}
	eve, err := bb84.FromPercent(s.EavesdroppingPercent)
	if err != nil {
		return bb84.Opts{}, fmt.Errorf("simulation.eavesdropping_percent: %w", err)
	}
	if s.Qubits <= 0 {
		return bb84.Opts{}, fmt.Errorf("simulation.qubits: %w: must be positive, got %d", bb84.ErrInvalidConfig, s.Qubits)
	}
	return bb84.Opts{Qubits: s.Qubits, Noise: noise, Eavesdropping: eve}, nil
}
