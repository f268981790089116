// Package session owns the lifecycle of one live conversation: establishing
// the transport session, accumulating transcripts and responses into
// conversation turns, and recovering from connection drops.
//
// The Manager is a small state machine:
//
//	Idle ──Start──▶ Initializing ──▶ Active ──Stop──▶ Closing ──▶ Closed
//	                                   │ ▲
//	                          drop ────▼ │ restore
//	                                Reconnecting
//
// A session that exhausts its reconnection budget, or whose credential is
// rejected, moves to Closed directly. Closed and Idle both accept a new
// Start.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/liveprompt/liveprompt/internal/observe"
	"github.com/liveprompt/liveprompt/pkg/provider/live"
)

// State identifies where a Manager is in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateInitializing
	StateActive
	StateReconnecting
	StateClosing
	StateClosed
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitializing:
		return "initializing"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// User-facing status lines pushed through the StatusNotifier.
const (
	StatusConnected = "Live session connected"
	StatusListening = "Listening..."
	StatusClosed    = "Session closed"
)

// statusError renders an error as a user-facing status line.
func statusError(msg string) string {
	return "Error: " + msg
}

// Parameters describes how a session should be established. The Manager
// retains a copy for the session's lifetime so a dropped connection can be
// re-established identically; Stop clears the retained copy, which any
// in-flight reconnection loop treats as a cancellation signal.
type Parameters struct {
	// Instructions is the system prompt for the session.
	Instructions string

	// Language is the expected speech language as a BCP-47 code.
	Language string
}

// TurnSink receives completed conversation turns, typically for persistence.
type TurnSink interface {
	RecordTurn(ctx context.Context, sessionID string, turn ConversationTurn) error
}

// StatusNotifier receives user-facing status line updates.
type StatusNotifier interface {
	NotifyStatus(status string)
}

// ResponseNotifier is optionally implemented by a StatusNotifier that also
// wants the streamed model response text, delta by delta.
type ResponseNotifier interface {
	NotifyResponse(text string)
}

// Default reconnection parameters: a few quick retries and give up. A live
// conversation is not worth rejoining after ten seconds of dead air.
const (
	defaultMaxReconnectAttempts = 3
	defaultReconnectDelay       = 2 * time.Second
)

// ManagerConfig configures a [Manager].
type ManagerConfig struct {
	// Provider establishes live sessions. Required.
	Provider live.Provider

	// SessionID identifies this session in logs and persisted turns.
	SessionID string

	// Sink receives completed turns. May be nil.
	Sink TurnSink

	// Notifier receives status line updates. May be nil.
	Notifier StatusNotifier

	// MaxReconnectAttempts bounds the reconnection loop per disconnect.
	// Defaults to 3 if zero.
	MaxReconnectAttempts int

	// ReconnectDelay is the fixed wait before each reconnection attempt.
	// Defaults to 2s if zero.
	ReconnectDelay time.Duration

	// Logger for session lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger

	// Metrics instruments. Defaults to observe.DefaultMetrics().
	Metrics *observe.Metrics
}

// Manager drives one live conversation session.
//
// All exported methods are safe for concurrent use.
type Manager struct {
	provider    live.Provider
	sessionID   string
	sink        TurnSink
	notifier    StatusNotifier
	maxAttempts int
	delay       time.Duration
	log         *slog.Logger
	metrics     *observe.Metrics

	mu      sync.Mutex
	state   State
	params  *Parameters // nil when no session is configured (cleared by Stop)
	handle  live.SessionHandle
	history *History
	cancel  context.CancelFunc // cancels the session-lifetime context

	// Per-turn accumulators. Fragments append in arrival order and are
	// flushed only at a turn boundary where both sides are non-empty.
	pendingQuestion map[live.Role]*strings.Builder
	pendingAnswer   strings.Builder

	authFailed  bool
	sessionOpen bool // tracks the ActiveSessions gauge
}

// NewManager creates a Manager in StateIdle.
func NewManager(cfg ManagerConfig) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("session: provider is required")
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnectAttempts
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	return &Manager{
		provider:    cfg.Provider,
		sessionID:   cfg.SessionID,
		sink:        cfg.Sink,
		notifier:    cfg.Notifier,
		maxAttempts: cfg.MaxReconnectAttempts,
		delay:       cfg.ReconnectDelay,
		log:         cfg.Logger,
		metrics:     cfg.Metrics,
		state:       StateIdle,
		history:     NewHistory(),
		pendingQuestion: map[live.Role]*strings.Builder{
			live.RolePeer: {},
			live.RoleUser: {},
		},
	}, nil
}

// Start establishes a new session with the given parameters. Only one
// initialization can be in flight: calling Start while a session is starting,
// active, or reconnecting returns an error. A fresh Start resets the
// conversation history.
//
// A credential rejection is terminal: the Manager moves straight to
// StateClosed and the error is returned without consuming any retry budget.
func (m *Manager) Start(ctx context.Context, params Parameters) error {
	m.mu.Lock()
	if m.state != StateIdle && m.state != StateClosed {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("session: cannot start while %s", state)
	}
	m.state = StateInitializing
	p := params
	m.params = &p
	m.authFailed = false
	m.history.Reset()
	m.resetPendingLocked(true)
	runCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	started := time.Now()
	handle, err := m.provider.Connect(ctx, live.SessionConfig{
		Instructions: params.Instructions,
		Language:     params.Language,
	})
	m.metrics.ConnectDuration.Record(ctx, time.Since(started).Seconds())

	if err != nil {
		m.mu.Lock()
		m.params = nil
		m.cancel = nil
		if live.IsAuthError(err) {
			m.state = StateClosed
		} else {
			m.state = StateIdle
		}
		m.mu.Unlock()
		cancel()

		m.metrics.RecordSessionError(ctx, errorKind(err))
		m.notify(statusError(err.Error()))
		m.log.Error("session connect failed", "session_id", m.sessionID, "error", err)
		return fmt.Errorf("session: connect: %w", err)
	}

	m.mu.Lock()
	m.handle = handle
	m.state = StateActive
	m.sessionOpen = true
	m.mu.Unlock()

	m.metrics.ActiveSessions.Add(ctx, 1)
	m.log.Info("session connected", "session_id", m.sessionID)
	m.notify(StatusConnected)
	m.notify(StatusListening)

	go m.eventLoop(runCtx, handle)
	return nil
}

// SendAudio forwards one PCM chunk to the live transport. Returns an error
// when no session is active.
func (m *Manager) SendAudio(chunk []byte) error {
	handle, err := m.activeHandle()
	if err != nil {
		return err
	}

	started := time.Now()
	sendErr := handle.SendAudio(chunk)
	m.metrics.SendDuration.Record(context.Background(), time.Since(started).Seconds())
	m.metrics.AudioChunks.Add(context.Background(), 1)

	if sendErr != nil {
		return fmt.Errorf("session: send audio: %w", sendErr)
	}
	return nil
}

// SendImage forwards a still image to the live transport. Returns an error
// when no session is active.
func (m *Manager) SendImage(mimeType string, data []byte) error {
	handle, err := m.activeHandle()
	if err != nil {
		return err
	}
	if err := handle.SendImage(mimeType, data); err != nil {
		return fmt.Errorf("session: send image: %w", err)
	}
	return nil
}

// SendText forwards a text message to the live transport. Returns an error
// when no session is active.
func (m *Manager) SendText(text string) error {
	handle, err := m.activeHandle()
	if err != nil {
		return err
	}
	if err := handle.SendText(text); err != nil {
		return fmt.Errorf("session: send text: %w", err)
	}
	return nil
}

// activeHandle returns the current transport handle, or an explicit error
// when the session cannot accept sends.
func (m *Manager) activeHandle() (live.SessionHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateActive || m.handle == nil {
		return nil, fmt.Errorf("session: no active session (state %s)", m.state)
	}
	return m.handle, nil
}

// Stop closes the session. The retained parameters are cleared before the
// transport is released so that a reconnection loop racing with Stop observes
// the cancellation and aborts instead of resurrecting the session.
// Idempotent.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state == StateClosed || m.state == StateClosing {
		m.mu.Unlock()
		return nil
	}
	if m.state == StateIdle {
		m.mu.Unlock()
		return nil
	}
	m.state = StateClosing
	m.params = nil // cancellation signal, must precede transport release
	handle := m.handle
	m.handle = nil
	cancel := m.cancel
	m.cancel = nil
	wasOpen := m.sessionOpen
	m.sessionOpen = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		if err := handle.Close(); err != nil {
			m.log.Warn("session close", "session_id", m.sessionID, "error", err)
		}
	}

	m.mu.Lock()
	m.state = StateClosed
	m.mu.Unlock()

	if wasOpen {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	m.log.Info("session closed", "session_id", m.sessionID)
	m.notify(StatusClosed)
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// History returns the completed turns of the current session.
func (m *Manager) History() []ConversationTurn {
	return m.history.Turns()
}

// SessionID returns the identifier the Manager was created with.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// ── Event handling ─────────────────────────────────────────────────────────────

// eventLoop consumes one transport session's events until the channel closes,
// then decides between clean shutdown, terminal failure, and reconnection.
func (m *Manager) eventLoop(ctx context.Context, handle live.SessionHandle) {
	for ev := range handle.Events() {
		m.handleEvent(ctx, ev, handle)
	}

	m.mu.Lock()
	// A Stop (or a replacement session) already moved on; nothing to do.
	if m.handle != handle {
		m.mu.Unlock()
		return
	}
	m.handle = nil
	authFailed := m.authFailed
	// The answer in flight died with the connection; the unanswered
	// question is kept for replay.
	m.pendingAnswer.Reset()
	m.mu.Unlock()

	err := handle.Err()
	if authFailed || live.IsAuthError(err) {
		msg := "authentication rejected"
		if err != nil {
			msg = err.Error()
		}
		m.terminate(statusError(msg))
		return
	}

	m.mu.Lock()
	if m.state != StateActive {
		m.mu.Unlock()
		return
	}
	m.state = StateReconnecting
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("session dropped", "session_id", m.sessionID, "error", err)
	} else {
		m.log.Warn("session ended by server", "session_id", m.sessionID)
	}
	m.reconnectLoop(ctx)
}

func (m *Manager) handleEvent(ctx context.Context, ev live.Event, handle live.SessionHandle) {
	switch ev.Kind {
	case live.KindTranscript:
		m.mu.Lock()
		if b, ok := m.pendingQuestion[ev.Role]; ok {
			b.WriteString(ev.Text)
		}
		m.mu.Unlock()

	case live.KindResponse:
		m.mu.Lock()
		m.pendingAnswer.WriteString(ev.Text)
		m.mu.Unlock()
		if rn, ok := m.notifier.(ResponseNotifier); ok {
			rn.NotifyResponse(ev.Text)
		}

	case live.KindTurnComplete:
		m.completeTurn(ctx)

	case live.KindError:
		if ev.Err == nil {
			return
		}
		m.metrics.RecordSessionError(ctx, errorKind(ev.Err))
		m.notify(statusError(ev.Err.Error()))
		m.log.Error("session error", "session_id", m.sessionID, "error", ev.Err)
		if live.IsAuthError(ev.Err) {
			// Terminal. Closing the transport ends the event loop, which
			// then sees the flag and skips reconnection.
			m.mu.Lock()
			m.authFailed = true
			m.mu.Unlock()
			_ = handle.Close()
		}
	}
}

// completeTurn flushes the pending accumulators into the history, but only
// when both a question and an answer accumulated. A turn boundary with either
// side missing keeps the partials for the next boundary.
func (m *Manager) completeTurn(ctx context.Context) {
	m.mu.Lock()
	question := m.assembleQuestionLocked()
	answer := strings.TrimSpace(m.pendingAnswer.String())
	if question == "" || answer == "" {
		m.mu.Unlock()
		return
	}
	m.resetPendingLocked(true)
	m.mu.Unlock()

	turn := ConversationTurn{
		Question:    question,
		Answer:      answer,
		CompletedAt: time.Now(),
	}
	m.history.Append(turn)
	m.metrics.TurnsCompleted.Add(ctx, 1)
	m.log.Info("turn completed",
		"session_id", m.sessionID,
		"question_len", len(question),
		"answer_len", len(answer),
	)

	if m.sink != nil {
		recordCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.sink.RecordTurn(recordCtx, m.sessionID, turn); err != nil {
			m.log.Error("turn persistence failed", "session_id", m.sessionID, "error", err)
		}
		cancel()
	}

	m.notify(StatusListening)
}

// assembleQuestionLocked joins the per-role transcript accumulators, peer
// speech first. Must be called with m.mu held.
func (m *Manager) assembleQuestionLocked() string {
	parts := make([]string, 0, 2)
	for _, role := range []live.Role{live.RolePeer, live.RoleUser} {
		if b, ok := m.pendingQuestion[role]; ok {
			if text := strings.TrimSpace(b.String()); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, " ")
}

// resetPendingLocked clears the pending answer and, when withQuestion is set,
// the pending per-role transcripts. Must be called with m.mu held.
func (m *Manager) resetPendingLocked(withQuestion bool) {
	m.pendingAnswer.Reset()
	if withQuestion {
		for _, b := range m.pendingQuestion {
			b.Reset()
		}
	}
}

// terminate moves the Manager to StateClosed after a non-recoverable failure.
// An empty status skips the failure line and surfaces only StatusClosed.
func (m *Manager) terminate(status string) {
	m.mu.Lock()
	if m.state == StateClosed {
		m.mu.Unlock()
		return
	}
	m.state = StateClosed
	m.params = nil
	handle := m.handle
	m.handle = nil
	cancel := m.cancel
	m.cancel = nil
	wasOpen := m.sessionOpen
	m.sessionOpen = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handle != nil {
		_ = handle.Close()
	}
	if wasOpen {
		m.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	if status != "" {
		m.notify(status)
	}
	m.notify(StatusClosed)
}

// notify pushes a status line if a notifier is configured.
func (m *Manager) notify(status string) {
	if m.notifier != nil {
		m.notifier.NotifyStatus(status)
	}
}

// errorKind buckets errors for the session error counter.
func errorKind(err error) string {
	if live.IsAuthError(err) {
		return "auth"
	}
	return "transport"
}
