package sched

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeFile(t, "config.yml", `
max_tasks: 128
stack_size: 4096
workers: 2
target_fps: 30
debug_checks: true
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 128, cfg.MaxTasks)
	assert.Equal(t, 4096, cfg.StackSize)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, 30, cfg.TargetFPS)
	assert.True(t, cfg.DebugChecks)
	// untouched fields keep their defaults
	assert.Equal(t, DefaultConfig().BigStackSize, cfg.BigStackSize)
	assert.Equal(t, time.Second/30, cfg.FrameBudget())
}

func TestLoadConfigTOML(t *testing.T) {
	path := writeFile(t, "config.toml", `
max_tasks = 64
budget_ms = 4.5
timer_hz = 120
status_buffer = 256
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.MaxTasks)
	assert.Equal(t, 120, cfg.TimerHz)
	assert.Equal(t, 256, cfg.StatusBuffer)
	assert.Equal(t, 4500*time.Microsecond, cfg.FrameBudget())
}

func TestLoadConfigClamps(t *testing.T) {
	path := writeFile(t, "config.yaml", `
max_tasks: 0
stack_size: 8192
big_stack_size: 1024
workers: 1000
target_fps: 0
status_buffer: -5
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	def := DefaultConfig()
	assert.Equal(t, def.MaxTasks, cfg.MaxTasks)
	assert.Equal(t, 8192, cfg.BigStackSize)
	assert.Equal(t, MaxWorkers, cfg.Workers)
	assert.Equal(t, def.TargetFPS, cfg.TargetFPS)
	assert.Zero(t, cfg.StatusBuffer)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)

	bad := writeFile(t, "bad.yml", "max_tasks: [1, 2")
	_, err = LoadConfig(bad)
	assert.Error(t, err)

	negative := writeFile(t, "neg.yml", "budget_ms: -1\n")
	_, err = LoadConfig(negative)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, DefaultConfig(), Load(filepath.Join(t.TempDir(), "missing.yml")))

	path := writeFile(t, "config.yml", "max_tasks: 32\n")
	assert.Equal(t, 32, Load(path).MaxTasks)
}
