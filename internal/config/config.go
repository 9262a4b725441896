// Package config provides the configuration schema and loader for the
// line counting service.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel converts l to slog level. Unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Channel  ChannelConfig  `yaml:"channel"`
	Tracker  TrackerConfig  `yaml:"tracker"`
	Filter   FilterConfig   `yaml:"filter"`
	Playback PlaybackConfig `yaml:"playback"`
	Source   SourceConfig   `yaml:"source"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Report   ReportConfig   `yaml:"report"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level LogLevel `yaml:"level"`
}

// ChannelConfig describes the detection service connection.
type ChannelConfig struct {
	// URL of the WebSocket detection endpoint.
	URL string `yaml:"url"`

	// RequestWidth is the width frames are resized to before encoding.
	// Height follows the display aspect ratio.
	RequestWidth int `yaml:"request_width"`

	// JPEGQuality is the encoder quality, 1..100.
	JPEGQuality int `yaml:"jpeg_quality"`

	// ReconnectDelay is the pause before redialing a closed connection.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`

	// RequestTimeout resolves a request as empty when no response arrives in time.
	// Zero disables the timeout.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// TrackerConfig holds line tracker parameters.
type TrackerConfig struct {
	// MaxDistance is the exclusive association radius in display pixels.
	MaxDistance float64 `yaml:"max_distance"`

	// StaleAfter is how long a track survives without a matching detection.
	StaleAfter time.Duration `yaml:"stale_after"`

	// LinePosition is the counting line as a fraction of display height.
	LinePosition float64 `yaml:"line_position"`
}

// FilterConfig holds detection filtering parameters.
type FilterConfig struct {
	// Confidence is the minimum confidence of detections handed to the tracker.
	Confidence float64 `yaml:"confidence"`
}

// PlaybackConfig holds frame pump parameters.
type PlaybackConfig struct {
	// Timestep is how far playback advances after each round trip, seconds.
	// Kept as a float: time.Duration can't hold 1/30 s exactly.
	Timestep float64 `yaml:"timestep"`
}

// SourceConfig describes the video source.
type SourceConfig struct {
	// FramesDir is a directory of still frames played in name order.
	FramesDir string `yaml:"frames_dir"`

	// FPS is the frame rate the still frames were extracted at.
	FPS float64 `yaml:"fps"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// ListenAddr of the /metrics HTTP server. Empty disables it.
	ListenAddr string `yaml:"listen_addr"`
}

// ReportConfig configures the CSV reports.
type ReportConfig struct {
	// CSVPath is where crossing events are written. Empty disables the log.
	CSVPath string `yaml:"csv_path"`

	// TracksPath is where per-frame track positions (raw, smoothed, predicted)
	// are written. Empty disables it.
	TracksPath string `yaml:"tracks_path"`
}

// Default returns configuration with every field set to its default.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: LogInfo,
		},
		Channel: ChannelConfig{
			URL:            "ws://localhost:8000/ws/detect",
			RequestWidth:   640,
			JPEGQuality:    50,
			ReconnectDelay: time.Second,
		},
		Tracker: TrackerConfig{
			MaxDistance:  50,
			StaleAfter:   2 * time.Second,
			LinePosition: 0.5,
		},
		Filter: FilterConfig{
			Confidence: 0.5,
		},
		Playback: PlaybackConfig{
			Timestep: 1.0 / 30.0,
		},
		Source: SourceConfig{
			FPS: 30,
		},
	}
}
