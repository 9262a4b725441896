package config

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned when configuration values are out of range.
var ErrInvalid = errors.New("invalid configuration")

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "config: open %q", path)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, errors.Wrapf(err, "config: parse %q", path)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default] and
// validates the result. Unknown keys are rejected. An empty document yields
// the defaults.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "config: decode yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It reports every failure found, wrapped around [ErrInvalid].
func (cfg *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !cfg.Log.Level.IsValid() {
		add("log.level %q is invalid; valid values: debug, info, warn, error", cfg.Log.Level)
	}

	if cfg.Channel.URL == "" {
		add("channel.url is required")
	} else if !strings.HasPrefix(cfg.Channel.URL, "ws://") && !strings.HasPrefix(cfg.Channel.URL, "wss://") {
		add("channel.url %q must use ws:// or wss://", cfg.Channel.URL)
	}
	if cfg.Channel.RequestWidth <= 0 {
		add("channel.request_width must be positive, got %d", cfg.Channel.RequestWidth)
	}
	if cfg.Channel.JPEGQuality < 1 || cfg.Channel.JPEGQuality > 100 {
		add("channel.jpeg_quality must be in [1, 100], got %d", cfg.Channel.JPEGQuality)
	}
	if cfg.Channel.ReconnectDelay <= 0 {
		add("channel.reconnect_delay must be positive, got %s", cfg.Channel.ReconnectDelay)
	}
	if cfg.Channel.RequestTimeout < 0 {
		add("channel.request_timeout must not be negative, got %s", cfg.Channel.RequestTimeout)
	}

	if !(cfg.Tracker.MaxDistance > 0) || math.IsInf(cfg.Tracker.MaxDistance, 0) {
		add("tracker.max_distance must be positive, got %v", cfg.Tracker.MaxDistance)
	}
	if cfg.Tracker.StaleAfter <= 0 {
		add("tracker.stale_after must be positive, got %s", cfg.Tracker.StaleAfter)
	}
	if !inUnit(cfg.Tracker.LinePosition) {
		add("tracker.line_position must be in [0, 1], got %v", cfg.Tracker.LinePosition)
	}

	if !inUnit(cfg.Filter.Confidence) {
		add("filter.confidence must be in [0, 1], got %v", cfg.Filter.Confidence)
	}

	if !(cfg.Playback.Timestep > 0) || math.IsInf(cfg.Playback.Timestep, 0) {
		add("playback.timestep must be positive, got %v", cfg.Playback.Timestep)
	}

	if !(cfg.Source.FPS > 0) || math.IsInf(cfg.Source.FPS, 0) {
		add("source.fps must be positive, got %v", cfg.Source.FPS)
	}

	if len(problems) == 0 {
		return nil
	}
	return errors.Wrap(ErrInvalid, strings.Join(problems, "; "))
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
