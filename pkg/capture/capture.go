// Package capture acquires raw PCM audio from the host system.
//
// The package abstracts over platform capture mechanisms behind the Source
// interface. The shipped implementation, ProcessSource, runs an external
// capture helper (ffmpeg, parec, or a bundled binary) and reads interleaved
// s16le PCM from its stdout; mock sources for tests live in the mock
// subpackage.
package capture

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"sync"
	"time"

	"github.com/liveprompt/liveprompt/pkg/audio"
)

// Source delivers raw PCM frames from some capture mechanism.
//
// Start may be called once; the returned channel is closed when capture ends,
// whether by Close, context cancellation, or a capture failure. Frames are
// delivered in capture order.
type Source interface {
	Start(ctx context.Context) (<-chan audio.Frame, error)
	Close() error
}

// readBufSize is the stdout read granularity. At 24 kHz stereo this is
// roughly 40 ms of audio per read, well under the downstream chunk duration.
const readBufSize = 8192

var _ Source = (*ProcessSource)(nil)

// ProcessSource captures audio by spawning an external command and reading
// s16le PCM from its standard output. The command is expected to run until
// killed and to write continuously.
type ProcessSource struct {
	command    string
	args       []string
	sampleRate int
	channels   int
	log        *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// ProcessConfig configures a ProcessSource.
type ProcessConfig struct {
	// Command is the capture binary to spawn.
	Command string

	// Args are passed verbatim to the command.
	Args []string

	// SampleRate and Channels describe the PCM the command emits.
	// Default 24000 Hz mono.
	SampleRate int
	Channels   int

	// Logger for capture lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger
}

// NewProcessSource creates a ProcessSource. The command is not spawned until
// Start is called.
func NewProcessSource(cfg ProcessConfig) (*ProcessSource, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("capture: command is required")
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	if cfg.Channels != 1 && cfg.Channels != 2 {
		return nil, fmt.Errorf("capture: channel count %d is invalid (want 1 or 2)", cfg.Channels)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ProcessSource{
		command:    cfg.Command,
		args:       cfg.Args,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		log:        cfg.Logger,
	}, nil
}

// Start spawns the capture command and begins streaming frames. The returned
// channel is closed when the command exits or the context is cancelled.
func (p *ProcessSource) Start(ctx context.Context) (<-chan audio.Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, fmt.Errorf("capture: source closed")
	}
	if p.cancel != nil {
		return nil, fmt.Errorf("capture: already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(runCtx, p.command, p.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("capture: start %s: %w", p.command, err)
	}
	p.cancel = cancel

	p.log.Info("capture process started",
		"command", p.command,
		"sample_rate", p.sampleRate,
		"channels", p.channels,
	)

	frames := make(chan audio.Frame, 16)
	go p.readLoop(runCtx, cmd, stdout, frames)
	return frames, nil
}

// readLoop pumps stdout into the frame channel until the command exits.
func (p *ProcessSource) readLoop(ctx context.Context, cmd *exec.Cmd, stdout io.Reader, frames chan<- audio.Frame) {
	defer close(frames)
	defer func() {
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			p.log.Error("capture process exited", "command", p.command, "error", err)
		}
	}()

	start := time.Now()
	buf := make([]byte, readBufSize)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			frame := audio.Frame{
				Data:       data,
				SampleRate: p.sampleRate,
				Channels:   p.channels,
				Timestamp:  time.Since(start),
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				p.log.Error("capture read failed", "error", err)
			}
			return
		}
	}
}

// Close terminates the capture command. Idempotent.
func (p *ProcessSource) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if p.cancel != nil {
		p.cancel()
	}
	return nil
}

// ForPlatform builds the default system-audio capture command for the current
// OS: ffmpeg pulls from the loopback/monitor device and writes s16le PCM to
// stdout. The command and arguments can be overridden entirely through
// ProcessConfig when the defaults don't match the host's audio setup.
func ForPlatform(sampleRate, channels int, logger *slog.Logger) (*ProcessSource, error) {
	if sampleRate == 0 {
		sampleRate = audio.DefaultSampleRate
	}
	if channels == 0 {
		channels = 1
	}
	rate := fmt.Sprintf("%d", sampleRate)
	chans := fmt.Sprintf("%d", channels)
	common := []string{
		"-loglevel", "quiet",
		"-f", "s16le", "-ar", rate, "-ac", chans, "-",
	}

	var args []string
	switch runtime.GOOS {
	case "darwin":
		args = append([]string{"-f", "avfoundation", "-i", ":0"}, common...)
	case "windows":
		args = append([]string{"-f", "dshow", "-i", "audio=virtual-audio-capturer"}, common...)
	default:
		args = append([]string{"-f", "pulse", "-i", "default.monitor"}, common...)
	}

	return NewProcessSource(ProcessConfig{
		Command:    "ffmpeg",
		Args:       args,
		SampleRate: sampleRate,
		Channels:   channels,
		Logger:     logger,
	})
}
