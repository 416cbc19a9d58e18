package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/visibility"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 15*time.Millisecond, cfg.World.TickInterval)
	assert.InDelta(t, 0.015, cfg.World.TickSeconds(), 1e-12)
	assert.Equal(t, 19, cfg.World.MaxChangeOffsets)
	assert.Equal(t, visibility.DefaultMaxClusters, cfg.World.MaxVisClusters)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
world:
  tick_interval: 50ms
  touch_buffering: true
  limits:
    max_coord: 4096
level:
  cell_size: 100
  cells: [4, 1, 1]
  view_radius: 150
  areas:
    - {id: 2, min: [2, 0, 0], max: [3, 0, 0]}
  portals:
    - {name: door, a: 1, b: 2}
logging:
  level: debug
  format: console
  file: /tmp/substrate.log
server:
  addr: 127.0.0.1:9000
tracing:
  enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.World.TickInterval)
	assert.True(t, cfg.World.TouchBuffering)
	assert.Equal(t, 4096.0, cfg.World.Limits.MaxCoord)
	assert.Equal(t, Default().World.Limits.MaxSpeed, cfg.World.Limits.MaxSpeed, "nested keys merge over defaults")
	assert.Equal(t, [3]int{4, 1, 1}, cfg.Level.Cells)
	require.Len(t, cfg.Level.Portals, 1)
	assert.False(t, cfg.Level.Portals[0].Open)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, 64, cfg.Server.SendBuffer, "untouched keys keep defaults")
	assert.True(t, cfg.Tracing.Enabled)

	lc := cfg.Logging.LogConfig()
	assert.Equal(t, log.LevelDebug, lc.Level)
	assert.Equal(t, "/tmp/substrate.log", lc.File.Path)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = LoadReader(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = LoadReader(strings.NewReader("world:\n  tick_rate: 3\n"))
	require.Error(t, err, "unknown keys are rejected")

	_, err = LoadReader(strings.NewReader("world:\n  tick_interval: 0s\nlogging:\n  format: xml\n"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = LoadReader(strings.NewReader("level:\n  cell_size: -1\n"))
	assert.ErrorIs(t, err, visibility.ErrInvalidGrid)
}
