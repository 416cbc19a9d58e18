package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnknownFormat = errors.New("unknown log format")
)

// Load reads a YAML file over the defaults. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadReader(f)
	if err != nil {
		return nil, fmt.Errorf("loading config from %s: %w", path, err)
	}
	return cfg, nil
}

// LoadReader decodes YAML over the defaults and validates the result. Unknown
// keys are rejected.
func LoadReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section and joins the problems it finds.
func (c *Config) Validate() error {
	var errs []error
	w := c.World
	if w.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: world.tick_interval must be positive", ErrInvalidConfig))
	}
	if w.Capacity < 0 {
		errs = append(errs, fmt.Errorf("%w: world.capacity must not be negative", ErrInvalidConfig))
	}
	if w.Limits.MaxCoord < 0 || w.Limits.MaxAngle < 0 || w.Limits.MaxSpeed < 0 {
		errs = append(errs, fmt.Errorf("%w: world.limits must not be negative", ErrInvalidConfig))
	}
	if w.MaxVisLeafs < 1 || w.MaxVisClusters < 1 {
		errs = append(errs, fmt.Errorf("%w: world visibility caps must be at least 1", ErrInvalidConfig))
	}
	if w.MaxChangeOffsets < 1 {
		errs = append(errs, fmt.Errorf("%w: world.max_change_offsets must be at least 1", ErrInvalidConfig))
	}
	if err := c.Level.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("%w: level: %w", ErrInvalidConfig, err))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownFormat, c.Logging.Format))
	}
	if c.Server.Addr == "" {
		errs = append(errs, fmt.Errorf("%w: server.addr is empty", ErrInvalidConfig))
	}
	if c.Server.SendBuffer < 1 {
		errs = append(errs, fmt.Errorf("%w: server.send_buffer must be at least 1", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}
