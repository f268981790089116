// Package live defines the Provider interface for realtime conversation
// backends.
//
// A live provider wraps a bidirectional streaming AI service that accepts a
// continuous feed of audio (plus occasional still images and text) and
// returns incremental transcription and response text over a single,
// stateful session.
//
// The central abstraction is SessionHandle: an exclusive handle on one open
// channel. Sessions are long-lived (minutes) and may die at any moment; the
// caller is responsible for reconnection policy. All implementations must be
// safe for concurrent use.
package live

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the speaker a transcript fragment belongs to. Exactly two
// roles exist: the person running the assistant and their counterpart on the
// call.
type Role string

const (
	// RoleUser is the primary speaker — the person running the assistant.
	RoleUser Role = "user"

	// RolePeer is the conversation counterpart whose speech is captured
	// from system audio.
	RolePeer Role = "peer"
)

// EventKind discriminates the inbound events a session emits.
type EventKind int

const (
	// KindTranscript is a partial speech-recognition fragment. Role and
	// Text are set.
	KindTranscript EventKind = iota

	// KindResponse is a partial model response text fragment. Text is set.
	KindResponse

	// KindTurnComplete marks the end of a model turn. No payload.
	KindTurnComplete

	// KindError is a non-fatal server-reported error. Err is set.
	KindError
)

// Event is one inbound message from the remote model, already decoded from
// the wire protocol.
type Event struct {
	Kind EventKind
	Role Role
	Text string
	Err  error
}

// SessionConfig is the initial configuration for a new live session.
type SessionConfig struct {
	// Instructions is the system-level prompt for the session.
	Instructions string

	// Language is a BCP-47 code for the expected speech language, e.g.
	// "en-US". Empty means provider default.
	Language string
}

// SessionHandle represents an open live session. It is an interface so that
// test code can supply mock implementations without a network connection.
//
// Send methods are the hot path of the audio pipeline and must return
// quickly; they report an explicit error when the session can no longer
// accept frames. Callers must call Close when the session is no longer
// needed.
type SessionHandle interface {
	// SendAudio delivers one raw PCM chunk (s16le mono at the negotiated
	// rate) to the model. Chunks must be sent in capture order; the remote
	// model relies on temporal order for transcription.
	SendAudio(chunk []byte) error

	// SendImage delivers a still image frame (e.g. a screen capture) with
	// the given MIME type.
	SendImage(mimeType string, data []byte) error

	// SendText delivers a text message into the conversation. Empty
	// messages are rejected.
	SendText(text string) error

	// Events returns a read-only channel of decoded inbound events. The
	// channel is closed when the session ends for any reason; call
	// [SessionHandle.Err] afterwards to learn whether it ended cleanly.
	Events() <-chan Event

	// Err returns the error that terminated the session, or nil if it was
	// closed locally.
	Err() error

	// Close terminates the session and releases all resources. Calling
	// Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any live conversation backend.
type Provider interface {
	// Connect establishes a new session. The returned handle is ready to
	// accept audio immediately. The caller owns the handle and must Close it.
	Connect(ctx context.Context, cfg SessionConfig) (SessionHandle, error)
}

// AuthError marks a credential/authorization rejection from the provider.
// Auth failures are terminal: retrying with the same credential is a
// guaranteed repeat failure, so reconnection logic must not consume retry
// budget on them.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("live: authentication rejected: %s", e.Reason)
}

// IsAuthError reports whether err (or anything it wraps) is an [AuthError].
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}
