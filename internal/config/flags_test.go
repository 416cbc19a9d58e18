package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseFlags(t *testing.T, args ...string) *Flags {
	t.Helper()
	var f Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f.Register(fs)
	require.NoError(t, fs.Parse(args))
	return &f
}

func TestFlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: 127.0.0.1:9000\nlogging:\n  level: warn\n"), 0o600))
	levelPath := filepath.Join(dir, "level.yaml")
	require.NoError(t, os.WriteFile(levelPath, []byte("cell_size: 64\ncells: [2, 2, 1]\n"), 0o600))

	f := parseFlags(t, "-config", cfgPath, "-level", levelPath, "-debug", "-addr", ":7000", "-tick", "20ms", "-tracing")
	cfg, err := f.Load()
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 20*time.Millisecond, cfg.World.TickInterval)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 64.0, cfg.Level.CellSize)
	assert.Equal(t, [3]int{2, 2, 1}, cfg.Level.Cells)
}

func TestFlagsLeaveFileValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("server:\n  addr: 127.0.0.1:9000\n"), 0o600))

	cfg, err := parseFlags(t, "-config", cfgPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, Default().World.TickInterval, cfg.World.TickInterval)
}

func TestFlagsMissingLevel(t *testing.T) {
	_, err := parseFlags(t, "-level", filepath.Join(t.TempDir(), "missing.yaml")).Load()
	assert.ErrorIs(t, err, os.ErrNotExist)
}
