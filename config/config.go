package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/notargets/rotdof/partitions"
	"github.com/notargets/rotdof/rotation"
)

const (
	DefaultPartitionSize = 256
	DefaultStrategy      = "block"
	DefaultLogLevel      = "info"
)

var validate = validator.New()

type Config struct {
	Tolerance ToleranceConfig `yaml:"tolerance"`
	Assembly  AssemblyConfig  `yaml:"assembly"`
	LogLevel  string          `yaml:"log_level" validate:"oneof=debug info warn error"`
}

type ToleranceConfig struct {
	// Smallest normal or orthogonalised radial norm accepted for a frame
	Degenerate float64 `yaml:"degenerate" validate:"gt=0,lt=1"`
	// Bound on row norm and pairwise dot product errors reported by the CLI
	Orthonormal float64 `yaml:"orthonormal" validate:"gt=0,lt=1"`
}

type AssemblyConfig struct {
	PartitionSize int    `yaml:"partition_size" validate:"gt=0"`
	Strategy      string `yaml:"strategy" validate:"oneof=block round_robin graph sfc"`
	Workers       int    `yaml:"workers" validate:"gte=0"`
}

func DefaultConfig() *Config {
	return &Config{
		Tolerance: ToleranceConfig{
			Degenerate:  rotation.DegenerateTolerance,
			Orthonormal: rotation.OrthonormalTolerance,
		},
		Assembly: AssemblyConfig{
			PartitionSize: DefaultPartitionSize,
			Strategy:      DefaultStrategy,
		},
		LogLevel: DefaultLogLevel,
	}
}

// Load reads a YAML file over the defaults and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	return validate.Struct(c)
}

// Strategy returns the configured partition strategy
func (c *Config) Strategy() (partitions.PartitionStrategy, error) {
	return partitions.ParseStrategy(c.Assembly.Strategy)
}

// NewLogger returns a text logger writing to w at the named level
func NewLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		return nil, fmt.Errorf("log level %q: %w", level, err)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}
