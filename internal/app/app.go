// Package app assembles the capture → chunker → session pipeline and runs it
// alongside the local control server.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/liveprompt/liveprompt/internal/observe"
	"github.com/liveprompt/liveprompt/internal/server"
	"github.com/liveprompt/liveprompt/internal/session"
	"github.com/liveprompt/liveprompt/pkg/audio"
	"github.com/liveprompt/liveprompt/pkg/capture"
)

// Config configures an [App].
type Config struct {
	// Manager drives the live session. Required.
	Manager *session.Manager

	// Source delivers captured PCM frames. Required.
	Source capture.Source

	// Server is the local control server. May be nil (headless operation,
	// e.g. in tests).
	Server *server.Server

	// Params are the session parameters used on startup.
	Params session.Parameters

	// Chunker configures the audio slicing stage. Zero values use the
	// transport defaults (24 kHz mono, 100 ms chunks, 1 s retention).
	Chunker audio.ChunkerConfig

	// Logger for pipeline events. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics instruments. Defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// App owns the running assistant: one capture source feeding one chunker
// feeding one session manager.
type App struct {
	manager *session.Manager
	source  capture.Source
	server  *server.Server
	params  session.Parameters
	chunker *audio.Chunker
	log     *slog.Logger
	metrics *observe.Metrics
}

// New wires the pipeline. Chunks leaving the chunker go straight to the
// session manager; send failures during connection gaps are expected and only
// logged at debug level, since the retention cap already bounds what is lost.
func New(cfg Config) (*App, error) {
	if cfg.Manager == nil {
		return nil, fmt.Errorf("app: session manager is required")
	}
	if cfg.Source == nil {
		return nil, fmt.Errorf("app: capture source is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	a := &App{
		manager: cfg.Manager,
		source:  cfg.Source,
		server:  cfg.Server,
		params:  cfg.Params,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}

	chunker, err := audio.NewChunker(cfg.Chunker, func(ch audio.Chunk) {
		if err := a.manager.SendAudio(ch.Data); err != nil {
			a.log.Debug("chunk dropped", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.chunker = chunker
	return a, nil
}

// Run starts the session and pumps audio until ctx is cancelled or a pipeline
// component fails. On return the session is stopped and the capture source
// closed.
func (a *App) Run(ctx context.Context) error {
	if err := a.manager.Start(ctx, a.params); err != nil {
		return fmt.Errorf("app: %w", err)
	}

	g, runCtx := errgroup.WithContext(ctx)

	if a.server != nil {
		g.Go(func() error {
			return a.server.Run(runCtx)
		})
	}

	g.Go(func() error {
		return a.pump(runCtx)
	})

	err := g.Wait()

	if stopErr := a.manager.Stop(); stopErr != nil {
		a.log.Warn("session stop", "error", stopErr)
	}
	if closeErr := a.source.Close(); closeErr != nil {
		a.log.Warn("capture close", "error", closeErr)
	}
	return err
}

// pump moves frames from the capture source into the chunker. While the
// session is away (reconnecting) extraction is paused so the retention cap
// governs the backlog; it resumes the moment the session is active again.
func (a *App) pump(ctx context.Context) error {
	frames, err := a.source.Start(ctx)
	if err != nil {
		return fmt.Errorf("app: capture start: %w", err)
	}

	var dropped uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("app: capture stream ended")
			}

			if a.manager.State() == session.StateActive {
				a.chunker.Resume()
			} else {
				a.chunker.Pause()
			}

			if err := a.chunker.Ingest(frame.Data); err != nil {
				a.log.Error("malformed capture frame", "error", err)
				continue
			}

			if d := a.chunker.BytesDropped(); d > dropped {
				a.metrics.AudioBytesDropped.Add(ctx, int64(d-dropped))
				dropped = d
			}
		}
	}
}
