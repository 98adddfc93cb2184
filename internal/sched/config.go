package sched

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	yaml "github.com/goccy/go-yaml"
)

// MaxWorkers caps the worker pool regardless of CPU count.
const MaxWorkers = 64

// Config mirrors config.yml (or config.toml).
type Config struct {
	MaxTasks     int     `yaml:"max_tasks" toml:"max_tasks"`           // 512 (by default)
	StackSize    int     `yaml:"stack_size" toml:"stack_size"`         // 64 KiB (by default)
	BigStackSize int     `yaml:"big_stack_size" toml:"big_stack_size"` // 8 MiB (by default)
	Workers      int     `yaml:"workers" toml:"workers"`               // -1 = CPU count - 1
	TargetFPS    int     `yaml:"target_fps" toml:"target_fps"`         // 60 (by default)
	BudgetMS     float64 `yaml:"budget_ms" toml:"budget_ms"`           // 0 = one frame at TargetFPS
	TimerHz      int     `yaml:"timer_hz" toml:"timer_hz"`             // rate of EventTimerTick posted by the driver
	StatusBuffer int     `yaml:"status_buffer" toml:"status_buffer"`   // 0 disables the status stream
	DebugChecks  bool    `yaml:"debug_checks" toml:"debug_checks"`
}

// DefaultConfig is used for anything a config file leaves out.
func DefaultConfig() Config {
	return Config{
		MaxTasks:     512,
		StackSize:    64 * 1024,
		BigStackSize: 8 * 1024 * 1024,
		Workers:      -1,
		TargetFPS:    60,
		TimerHz:      60,
	}
}

// FrameBudget is how long Tick may spend running tasks.
func (c Config) FrameBudget() time.Duration {
	if c.BudgetMS > 0 {
		return time.Duration(c.BudgetMS * float64(time.Millisecond))
	}
	return time.Second / time.Duration(c.TargetFPS)
}

// LoadConfig reads a YAML or TOML file (by extension) over the defaults.
// An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	default:
		err = yaml.Unmarshal(data, &cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	cfg.clamp()
	return cfg, nil
}

// Load is the lenient form of LoadConfig: a missing or malformed file
// yields the defaults.
func Load(path string) Config {
	cfg, err := LoadConfig(path)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

func (c Config) validate() error {
	if c.MaxTasks < 0 || c.StackSize < 0 || c.BigStackSize < 0 {
		return fmt.Errorf("%w: sizes must not be negative", ErrInvalidConfig)
	}
	if c.BudgetMS < 0 {
		return fmt.Errorf("%w: budget_ms must not be negative", ErrInvalidConfig)
	}
	return nil
}

// sanity clamps
func (c *Config) clamp() {
	def := DefaultConfig()
	if c.MaxTasks <= 0 {
		c.MaxTasks = def.MaxTasks
	}
	if c.StackSize <= 0 {
		c.StackSize = def.StackSize
	}
	if c.BigStackSize < c.StackSize {
		c.BigStackSize = c.StackSize
	}
	if c.Workers > MaxWorkers {
		c.Workers = MaxWorkers
	}
	if c.TargetFPS <= 0 {
		c.TargetFPS = def.TargetFPS
	}
	if c.TimerHz <= 0 {
		c.TimerHz = def.TimerHz
	}
	if c.StatusBuffer < 0 {
		c.StatusBuffer = 0
	}
}
