package session

import (
	"sync"
	"time"
)

// ConversationTurn is one completed question/answer exchange: the counterpart
// speech recognised during the turn and the model's full response to it.
type ConversationTurn struct {
	// Question is the transcribed speech that prompted the response.
	Question string

	// Answer is the complete model response text.
	Answer string

	// CompletedAt is when the turn boundary was observed.
	CompletedAt time.Time
}

// History is the ordered record of completed turns for one session. A turn
// enters the history only once both its question and answer are known;
// in-progress fragments live in the Manager's pending buffers until then.
//
// All methods are safe for concurrent use.
type History struct {
	mu    sync.Mutex
	turns []ConversationTurn
}

// NewHistory creates an empty History.
func NewHistory() *History {
	return &History{}
}

// Append adds a completed turn.
func (h *History) Append(turn ConversationTurn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
}

// Turns returns a copy of all completed turns in completion order.
func (h *History) Turns() []ConversationTurn {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := make([]ConversationTurn, len(h.turns))
	copy(cp, h.turns)
	return cp
}

// Questions returns the question text of every completed turn in order.
func (h *History) Questions() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	qs := make([]string, len(h.turns))
	for i, t := range h.turns {
		qs[i] = t.Question
	}
	return qs
}

// Len returns the number of completed turns.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Reset discards all turns.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = nil
}
