package session

import (
	"context"
	"strings"
	"time"

	"github.com/liveprompt/liveprompt/pkg/provider/live"
)

// replayPreamble frames the context sent to a freshly reconnected session so
// the model does not re-answer the whole backlog.
const replayPreamble = "The connection was interrupted and has been restored. " +
	"These questions were already asked earlier in this conversation; do not answer them again. " +
	"Answer only the most recent question:"

// reconnectLoop tries to re-establish a dropped session. Attempts are
// sequential with a fixed delay before each one; there is no backoff because
// the loop gives up after a handful of tries anyway. The retained parameters
// double as the cancellation signal: Stop clears them, and the loop checks
// for that before every attempt.
//
// On success the loop replays the conversation context and hands off to a new
// event loop; the attempt counter does not carry over to later disconnects.
func (m *Manager) reconnectLoop(ctx context.Context) {
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(m.delay):
		}

		m.mu.Lock()
		if m.state != StateReconnecting || m.params == nil {
			// Stopped while waiting.
			m.mu.Unlock()
			return
		}
		params := *m.params
		m.mu.Unlock()

		m.log.Info("attempting reconnection",
			"session_id", m.sessionID,
			"attempt", attempt,
			"max_attempts", m.maxAttempts,
		)

		handle, err := m.provider.Connect(ctx, live.SessionConfig{
			Instructions: params.Instructions,
			Language:     params.Language,
		})
		if err != nil {
			m.metrics.RecordReconnectAttempt(ctx, "failure")
			if live.IsAuthError(err) {
				// Retrying a rejected credential is pointless; stop here.
				m.log.Error("reconnection rejected", "session_id", m.sessionID, "error", err)
				m.terminate(statusError(err.Error()))
				return
			}
			m.log.Warn("reconnection attempt failed",
				"session_id", m.sessionID,
				"attempt", attempt,
				"error", err,
			)
			continue
		}

		m.mu.Lock()
		if m.state != StateReconnecting || m.params == nil {
			// Stop won the race while we were dialling.
			m.mu.Unlock()
			_ = handle.Close()
			return
		}
		m.handle = handle
		m.state = StateActive
		m.mu.Unlock()

		m.metrics.RecordReconnectAttempt(ctx, "success")
		m.log.Info("reconnection successful", "session_id", m.sessionID, "attempt", attempt)

		if replay := m.buildReplay(); replay != "" {
			if err := handle.SendText(replay); err != nil {
				m.log.Warn("context replay failed", "session_id", m.sessionID, "error", err)
			}
		}

		m.notify(StatusConnected)
		m.notify(StatusListening)
		go m.eventLoop(ctx, handle)
		return
	}

	// Budget exhaustion is an ordinary close to the user; the Error-prefixed
	// status is reserved for credential failures they can act on.
	m.log.Error("reconnection failed, giving up",
		"session_id", m.sessionID,
		"max_attempts", m.maxAttempts,
	)
	m.terminate("")
}

// buildReplay assembles the transcript-only context for a restored session:
// every question asked so far, oldest first, ending with any question that
// was still unanswered when the connection dropped. Answers are not replayed;
// the transport cannot be told they already happened, and repeating them
// would only prompt the model to react to its own words.
func (m *Manager) buildReplay() string {
	questions := m.history.Questions()

	m.mu.Lock()
	if pending := m.assembleQuestionLocked(); pending != "" {
		questions = append(questions, pending)
	}
	m.mu.Unlock()

	if len(questions) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(replayPreamble)
	for _, q := range questions {
		b.WriteString("\n- ")
		b.WriteString(q)
	}
	return b.String()
}
