package session_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/liveprompt/liveprompt/internal/session"
)

func TestHistory_AppendPreservesOrder(t *testing.T) {
	t.Parallel()

	h := session.NewHistory()
	for i := range 5 {
		h.Append(session.ConversationTurn{
			Question:    fmt.Sprintf("question %d", i),
			Answer:      fmt.Sprintf("answer %d", i),
			CompletedAt: time.Now(),
		})
	}

	turns := h.Turns()
	if len(turns) != 5 {
		t.Fatalf("len = %d; want 5", len(turns))
	}
	for i, turn := range turns {
		if turn.Question != fmt.Sprintf("question %d", i) {
			t.Errorf("turn %d out of order: %q", i, turn.Question)
		}
	}

	qs := h.Questions()
	if len(qs) != 5 || qs[4] != "question 4" {
		t.Errorf("Questions() = %v", qs)
	}
}

func TestHistory_TurnsReturnsCopy(t *testing.T) {
	t.Parallel()

	h := session.NewHistory()
	h.Append(session.ConversationTurn{Question: "q", Answer: "a"})

	turns := h.Turns()
	turns[0].Question = "mutated"

	if h.Turns()[0].Question != "q" {
		t.Error("mutating the returned slice must not affect the history")
	}
}

func TestHistory_Reset(t *testing.T) {
	t.Parallel()

	h := session.NewHistory()
	h.Append(session.ConversationTurn{Question: "q", Answer: "a"})
	h.Reset()
	if h.Len() != 0 {
		t.Errorf("Len after Reset = %d; want 0", h.Len())
	}
}

func TestHistory_ConcurrentAppend(t *testing.T) {
	t.Parallel()

	h := session.NewHistory()
	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			for range 25 {
				h.Append(session.ConversationTurn{Question: "q", Answer: "a"})
			}
		})
	}
	wg.Wait()

	if h.Len() != 200 {
		t.Errorf("Len = %d; want 200", h.Len())
	}
}
