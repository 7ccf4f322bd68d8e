// Package robustfl loads the description of a training session from a
// TOML or YAML file.
package robustfl

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/absmach/robustfl/coordinator"
	"github.com/absmach/robustfl/pkg/dataset"
	"github.com/absmach/robustfl/pkg/fl"
	"github.com/absmach/robustfl/pkg/storage"
	"github.com/pelletier/go-toml"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDuration = errors.New("invalid duration")

type Config struct {
	Session       SessionConfig  `toml:"session"       yaml:"session"`
	Model         ModelConfig    `toml:"model"         yaml:"model"`
	Preprocessing string         `toml:"preprocessing" yaml:"preprocessing"`
	Storage       storage.Config `toml:"storage"       yaml:"storage"`
}

type SessionConfig struct {
	ID            string   `toml:"id"             yaml:"id"`
	Roster        []string `toml:"roster"         yaml:"roster"`
	Mode          string   `toml:"mode"           yaml:"mode"`
	Strategy      string   `toml:"strategy"       yaml:"strategy"`
	MaxIterations int      `toml:"max_iterations" yaml:"max_iterations"`
	Codec         string   `toml:"codec"          yaml:"codec"`
	PollTimeout   string   `toml:"poll_timeout"   yaml:"poll_timeout"`
	StallWarning  string   `toml:"stall_warning"  yaml:"stall_warning"`
}

type ModelConfig struct {
	Architecture fl.Architecture `toml:"architecture"  yaml:"architecture"`
	Optimizer    string          `toml:"optimizer"     yaml:"optimizer"`
	Loss         string          `toml:"loss"          yaml:"loss"`
	Metric       string          `toml:"metric"        yaml:"metric"`
	LearningRate float64         `toml:"learning_rate" yaml:"learning_rate"`
	BatchSize    int             `toml:"batch_size"    yaml:"batch_size"`
	Epochs       int             `toml:"epochs"        yaml:"epochs"`
	NumData      int             `toml:"num_data"      yaml:"num_data"`
}

// LoadConfig reads a session file. Files ending in .yaml or .yml are parsed
// as YAML, everything else as TOML.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	default:
		tree, err := toml.Load(string(data))
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
		if err := tree.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	if _, err := cfg.Coordinator(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Coordinator converts the file into a validated coordinator configuration.
func (c *Config) Coordinator() (coordinator.Config, error) {
	mode, err := coordinator.ParseMode(c.Session.Mode)
	if err != nil {
		return coordinator.Config{}, err
	}
	strategy, err := fl.ParseStrategy(c.Session.Strategy)
	if err != nil {
		return coordinator.Config{}, err
	}
	kind, err := dataset.ParseKind(c.Preprocessing)
	if err != nil {
		return coordinator.Config{}, err
	}
	poll, err := parseDuration(c.Session.PollTimeout)
	if err != nil {
		return coordinator.Config{}, fmt.Errorf("poll_timeout: %w", err)
	}
	stall, err := parseDuration(c.Session.StallWarning)
	if err != nil {
		return coordinator.Config{}, fmt.Errorf("stall_warning: %w", err)
	}

	cfg := coordinator.Config{
		Session:       c.Session.ID,
		Roster:        c.Session.Roster,
		Mode:          mode,
		Strategy:      strategy,
		MaxIterations: c.Session.MaxIterations,
		Architecture:  c.Model.Architecture,
		Optimizer:     c.Model.Optimizer,
		Loss:          c.Model.Loss,
		Metric:        c.Model.Metric,
		LearningRate:  c.Model.LearningRate,
		BatchSize:     c.Model.BatchSize,
		Epochs:        c.Model.Epochs,
		NumData:       c.Model.NumData,
		Preprocessing: kind,
		PollTimeout:   poll,
		StallWarning:  stall,
	}
	if err := cfg.Validate(); err != nil {
		return coordinator.Config{}, err
	}

	return cfg, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidDuration, err)
	}

	return d, nil
}
