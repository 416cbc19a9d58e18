// Package config holds the process configuration of the substrate server.
package config

import (
	"time"

	"github.com/zeusync/substrate/internal/core/netstate"
	"github.com/zeusync/substrate/internal/core/observability/log"
	"github.com/zeusync/substrate/internal/core/visibility"
	"github.com/zeusync/substrate/pkg/vmath"
)

// Config holds every section of the server configuration.
type Config struct {
	World   World                 `yaml:"world"`
	Level   visibility.GridConfig `yaml:"level"`
	Logging Logging               `yaml:"logging"`
	Server  Server                `yaml:"server"`
	Tracing Tracing               `yaml:"tracing"`
}

// World configures the simulation substrate.
type World struct {
	TickInterval     time.Duration `yaml:"tick_interval"`
	Capacity         int           `yaml:"capacity"` // 0 means unbounded
	Limits           vmath.Limits  `yaml:"limits"`
	TouchBuffering   bool          `yaml:"touch_buffering"`
	MaxVisLeafs      int           `yaml:"max_vis_leafs"`
	MaxVisClusters   int           `yaml:"max_vis_clusters"`
	MaxChangeOffsets int           `yaml:"max_change_offsets"`
	MaxChangeInfos   int           `yaml:"max_change_infos"`
}

// Logging configures the zap logger sinks.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Server configures the HTTP and websocket endpoints.
type Server struct {
	Addr            string        `yaml:"addr"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	SendBuffer      int           `yaml:"send_buffer"`
	ReadLimit       int64         `yaml:"read_limit"`
}

// Tracing configures the OpenTelemetry tracer provider.
type Tracing struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	PrettyPrint bool   `yaml:"pretty_print"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	logging := log.DefaultConfig()
	return &Config{
		World: World{
			TickInterval:     15 * time.Millisecond,
			Limits:           vmath.DefaultLimits(),
			MaxVisLeafs:      visibility.DefaultMaxLeafs,
			MaxVisClusters:   visibility.DefaultMaxClusters,
			MaxChangeOffsets: netstate.DefaultMaxChangeOffsets,
			MaxChangeInfos:   netstate.DefaultMaxChangeInfos,
		},
		Level: visibility.DefaultGridConfig(),
		Logging: Logging{
			Level:      logging.Level.String(),
			Format:     logging.Format,
			MaxSizeMB:  logging.File.MaxSizeMB,
			MaxBackups: logging.File.MaxBackups,
			MaxAgeDays: logging.File.MaxAgeDays,
			Compress:   logging.File.Compress,
		},
		Server: Server{
			Addr:            ":8080",
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			SendBuffer:      64,
			ReadLimit:       4096,
		},
		Tracing: Tracing{
			ServiceName: "substrate",
		},
	}
}

// TickSeconds returns the tick interval in simulation seconds.
func (w World) TickSeconds() float64 {
	return w.TickInterval.Seconds()
}

// LogConfig converts the logging section to a logger configuration.
func (l Logging) LogConfig() log.Config {
	return log.Config{
		Level:  log.ParseLevel(l.Level),
		Format: l.Format,
		File: log.FileConfig{
			Path:       l.File,
			MaxSizeMB:  l.MaxSizeMB,
			MaxBackups: l.MaxBackups,
			MaxAgeDays: l.MaxAgeDays,
			Compress:   l.Compress,
		},
	}
}
