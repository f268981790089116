// Package config provides the configuration schema and loader for the
// LivePrompt assistant.
package config

import "time"

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

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Session   SessionConfig   `yaml:"session"`
	Audio     AudioConfig     `yaml:"audio"`
	Capture   CaptureConfig   `yaml:"capture"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig holds network and logging settings for the local control
// server (status WebSocket, health, metrics).
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., "127.0.0.1:8970").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// SessionConfig configures the live model session.
type SessionConfig struct {
	// APIKey authenticates against the live API. When empty, the
	// GEMINI_API_KEY environment variable is used instead.
	APIKey string `yaml:"api_key"`

	// Model selects the live model. Empty uses the provider default.
	Model string `yaml:"model"`

	// BaseURL overrides the provider's default WebSocket endpoint.
	BaseURL string `yaml:"base_url"`

	// Language is the expected speech language as a BCP-47 code.
	Language string `yaml:"language"`

	// Profile selects a built-in conversation profile ("interview",
	// "meeting", "sales"). Ignored when Instructions is set.
	Profile string `yaml:"profile"`

	// Instructions is the system prompt for the session. Overrides Profile.
	Instructions string `yaml:"instructions"`
}

// AudioConfig configures the capture-to-transport audio pipeline.
type AudioConfig struct {
	// SampleRate in Hz. Default 24000.
	SampleRate int `yaml:"sample_rate"`

	// Channels is the capture channel count, 1 or 2. Stereo is downmixed
	// to mono before transmission. Default 1.
	Channels int `yaml:"channels"`

	// ChunkDuration is the length of each transmitted chunk. Default 100ms.
	ChunkDuration time.Duration `yaml:"chunk_duration"`

	// Retention caps buffered audio when the transport stalls. Default 1s.
	Retention time.Duration `yaml:"retention"`
}

// CaptureConfig selects the system-audio capture mechanism. When Command is
// empty, a platform default (ffmpeg against the loopback device) is used.
type CaptureConfig struct {
	// Command is the capture binary to spawn.
	Command string `yaml:"command"`

	// Args are passed verbatim to the command.
	Args []string `yaml:"args"`
}

// ReconnectConfig bounds the automatic session recovery loop.
type ReconnectConfig struct {
	// MaxAttempts per disconnect. Default 3.
	MaxAttempts int `yaml:"max_attempts"`

	// Delay is the fixed wait before each attempt. Default 2s.
	Delay time.Duration `yaml:"delay"`
}

// StoreConfig configures conversation persistence. When PostgresDSN is empty,
// turns are kept in memory only.
type StoreConfig struct {
	// PostgresDSN is a pgx connection string.
	PostgresDSN string `yaml:"postgres_dsn"`
}
