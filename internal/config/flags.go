package config

import (
	"flag"
	"fmt"
	"time"

	"github.com/zeusync/substrate/internal/core/visibility"
)

// Flags holds command-line overrides. Zero values leave the loaded config
// untouched.
type Flags struct {
	Config   string
	Level    string
	Debug    bool
	Addr     string
	Tick     time.Duration
	LogFile  string
	Tracing  bool
	Capacity int
}

// Register binds the flags to fs.
func (f *Flags) Register(fs *flag.FlagSet) {
	fs.StringVar(&f.Config, "config", "", "Path to config file")
	fs.StringVar(&f.Level, "level", "", "Path to a level YAML file, replacing the level section")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.Addr, "addr", "", "HTTP listen address")
	fs.DurationVar(&f.Tick, "tick", 0, "Simulation tick interval")
	fs.StringVar(&f.LogFile, "log-file", "", "Also write logs to this rotated file")
	fs.BoolVar(&f.Tracing, "tracing", false, "Export tick spans to stdout")
	fs.IntVar(&f.Capacity, "capacity", 0, "Entity registry capacity")
}

// Load reads the config file named by the flags, applies the overrides and
// validates the result.
func (f *Flags) Load() (*Config, error) {
	cfg, err := Load(f.Config)
	if err != nil {
		return nil, err
	}
	if err := f.Apply(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Apply writes the overrides into cfg.
func (f *Flags) Apply(cfg *Config) error {
	if f.Level != "" {
		level, err := visibility.LoadGridFile(f.Level)
		if err != nil {
			return fmt.Errorf("load level: %w", err)
		}
		cfg.Level = level
	}
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.Addr != "" {
		cfg.Server.Addr = f.Addr
	}
	if f.Tick > 0 {
		cfg.World.TickInterval = f.Tick
	}
	if f.LogFile != "" {
		cfg.Logging.File = f.LogFile
	}
	if f.Tracing {
		cfg.Tracing.Enabled = true
	}
	if f.Capacity > 0 {
		cfg.World.Capacity = f.Capacity
	}
	return nil
}
