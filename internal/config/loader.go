package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Session
	if cfg.Session.APIKey == "" && os.Getenv("GEMINI_API_KEY") == "" {
		slog.Warn("session.api_key is empty and GEMINI_API_KEY is unset; the live session will fail to authenticate")
	}
	switch cfg.Session.Profile {
	case "", "interview", "meeting", "sales":
	default:
		errs = append(errs, fmt.Errorf("session.profile %q is invalid; valid values: interview, meeting, sales", cfg.Session.Profile))
	}

	// Audio
	if cfg.Audio.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d is invalid", cfg.Audio.SampleRate))
	}
	if cfg.Audio.Channels != 0 && cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		errs = append(errs, fmt.Errorf("audio.channels %d is invalid; valid values: 1, 2", cfg.Audio.Channels))
	}
	if cfg.Audio.ChunkDuration < 0 {
		errs = append(errs, fmt.Errorf("audio.chunk_duration %v is invalid", cfg.Audio.ChunkDuration))
	}
	if cfg.Audio.Retention < 0 {
		errs = append(errs, fmt.Errorf("audio.retention %v is invalid", cfg.Audio.Retention))
	}
	if cfg.Audio.ChunkDuration > 0 && cfg.Audio.Retention > 0 && cfg.Audio.Retention < cfg.Audio.ChunkDuration {
		errs = append(errs, fmt.Errorf("audio.retention %v is shorter than audio.chunk_duration %v", cfg.Audio.Retention, cfg.Audio.ChunkDuration))
	}

	// Reconnect
	if cfg.Reconnect.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("reconnect.max_attempts %d is invalid", cfg.Reconnect.MaxAttempts))
	}
	if cfg.Reconnect.Delay < 0 {
		errs = append(errs, fmt.Errorf("reconnect.delay %v is invalid", cfg.Reconnect.Delay))
	}

	// Store
	if cfg.Store.PostgresDSN == "" {
		slog.Info("store.postgres_dsn is empty; conversation turns will not be persisted")
	}

	return errors.Join(errs...)
}
