// Command liveprompt runs the interview assistant core: it captures system
// audio, streams it to a live model session, and serves status, health, and
// metrics on a local control port.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/oklog/ulid/v2"

	"github.com/liveprompt/liveprompt/internal/app"
	"github.com/liveprompt/liveprompt/internal/config"
	"github.com/liveprompt/liveprompt/internal/health"
	"github.com/liveprompt/liveprompt/internal/observe"
	"github.com/liveprompt/liveprompt/internal/server"
	"github.com/liveprompt/liveprompt/internal/session"
	"github.com/liveprompt/liveprompt/internal/store"
	"github.com/liveprompt/liveprompt/pkg/audio"
	"github.com/liveprompt/liveprompt/pkg/capture"
	"github.com/liveprompt/liveprompt/pkg/provider/live/gemini"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// A .env next to the binary is a convenient place for GEMINI_API_KEY.
	_ = godotenv.Load()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "liveprompt: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "liveprompt: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("liveprompt starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "liveprompt",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Live provider ─────────────────────────────────────────────────────────
	apiKey := cfg.Session.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	var opts []gemini.Option
	if cfg.Session.Model != "" {
		opts = append(opts, gemini.WithModel(cfg.Session.Model))
	}
	if cfg.Session.BaseURL != "" {
		opts = append(opts, gemini.WithBaseURL(cfg.Session.BaseURL))
	}
	provider := gemini.New(apiKey, opts...)

	// ── Capture source ────────────────────────────────────────────────────────
	source, err := buildSource(cfg)
	if err != nil {
		slog.Error("failed to set up audio capture", "err", err)
		return 1
	}

	// ── Turn store (optional) ─────────────────────────────────────────────────
	var (
		turnSink session.TurnSink
		checkers []health.Checker
	)
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		st, err := store.NewStore(ctx, dsn)
		if err != nil {
			slog.Error("failed to connect to turn store", "err", err)
			return 1
		}
		defer st.Close()
		turnSink = st
		checkers = append(checkers, health.Checker{Name: "store", Check: st.Ping})
		slog.Info("turn store connected")
	}

	// ── Control server ────────────────────────────────────────────────────────
	srv := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		Health:     health.New(checkers...),
		Logger:     logger,
	})

	// ── Session manager ───────────────────────────────────────────────────────
	sessionID := ulid.Make().String()
	manager, err := session.NewManager(session.ManagerConfig{
		Provider:             provider,
		SessionID:            sessionID,
		Sink:                 turnSink,
		Notifier:             srv,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectDelay:       cfg.Reconnect.Delay,
		Logger:               logger,
	})
	if err != nil {
		slog.Error("failed to create session manager", "err", err)
		return 1
	}

	application, err := app.New(app.Config{
		Manager: manager,
		Source:  source,
		Server:  srv,
		Params: session.Parameters{
			Instructions: instructionsFor(cfg.Session),
			Language:     cfg.Session.Language,
		},
		Chunker: audio.ChunkerConfig{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			ChunkDuration: cfg.Audio.ChunkDuration,
			Retention:     cfg.Audio.Retention,
		},
		Logger: logger,
	})
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	printStartupSummary(cfg, turnSink != nil)
	slog.Info("session ready — press Ctrl+C to shut down", "session_id", sessionID)

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// profileInstructions maps conversation profile tags to their built-in system
// prompts. Explicit session.instructions in the config override these.
var profileInstructions = map[string]string{
	"interview": "You are assisting the user during a live technical interview. " +
		"Listen to the conversation and answer the interviewer's questions concisely, " +
		"as if the user were answering. Answer only the most recent question.",
	"meeting": "You are assisting the user during a live meeting. Summarise key points " +
		"as they come up and suggest short, relevant responses to questions directed at the user.",
	"sales": "You are assisting the user during a live sales call. Suggest concise answers " +
		"to the prospect's questions and objections, focused on the most recent one.",
}

// instructionsFor resolves the effective system prompt: explicit instructions
// win, then the selected profile, then the interview default.
func instructionsFor(cfg config.SessionConfig) string {
	if cfg.Instructions != "" {
		return cfg.Instructions
	}
	if text, ok := profileInstructions[cfg.Profile]; ok {
		return text
	}
	return profileInstructions["interview"]
}

// buildSource creates the capture source from config, falling back to the
// platform default loopback command when none is configured.
func buildSource(cfg *config.Config) (capture.Source, error) {
	if cfg.Capture.Command != "" {
		return capture.NewProcessSource(capture.ProcessConfig{
			Command:    cfg.Capture.Command,
			Args:       cfg.Capture.Args,
			SampleRate: cfg.Audio.SampleRate,
			Channels:   cfg.Audio.Channels,
		})
	}
	return capture.ForPlatform(cfg.Audio.SampleRate, cfg.Audio.Channels, slog.Default())
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, storeConnected bool) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       LivePrompt — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Model", orDefault(cfg.Session.Model, "(provider default)"))
	printRow("Language", orDefault(cfg.Session.Language, "(auto)"))
	printRow("Profile", orDefault(cfg.Session.Profile, "interview"))
	printRow("Capture", orDefault(cfg.Capture.Command, "ffmpeg (auto)"))
	if storeConnected {
		printRow("Turn store", "postgres")
	} else {
		printRow("Turn store", "(disabled)")
	}
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(name, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-15s : %-19s ║\n", name, value)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
