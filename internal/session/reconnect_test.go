package session_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/liveprompt/liveprompt/internal/session"
	"github.com/liveprompt/liveprompt/pkg/provider/live"
	"github.com/liveprompt/liveprompt/pkg/provider/live/mock"
)

// sequenceProvider hands out scripted results per Connect call.
type sequenceProvider struct {
	mu       sync.Mutex
	results  []func() (live.SessionHandle, error)
	fallback func() (live.SessionHandle, error)
	calls    int
}

func (p *sequenceProvider) Connect(_ context.Context, _ live.SessionConfig) (live.SessionHandle, error) {
	p.mu.Lock()
	idx := p.calls
	p.calls++
	var fn func() (live.SessionHandle, error)
	if idx < len(p.results) {
		fn = p.results[idx]
	} else {
		fn = p.fallback
	}
	p.mu.Unlock()

	if fn == nil {
		return nil, fmt.Errorf("no scripted result for connect %d", idx)
	}
	return fn()
}

func (p *sequenceProvider) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func ok(sess *mock.Session) func() (live.SessionHandle, error) {
	return func() (live.SessionHandle, error) { return sess, nil }
}

func fail(err error) func() (live.SessionHandle, error) {
	return func() (live.SessionHandle, error) { return nil, err }
}

// waitConnects polls until the provider has seen n Connect calls.
func waitConnects(t *testing.T, p *sequenceProvider, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if p.count() >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("provider saw %d connects; want %d", p.count(), n)
}

func TestReconnect_RestoresSessionAndReplaysQuestions(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 16)}
	sess2 := &mock.Session{EventsCh: make(chan live.Event, 16)}
	p := &sequenceProvider{results: []func() (live.SessionHandle, error){ok(sess1), ok(sess2)}}
	m, statuses, _ := newTestManager(t, p)

	if err := m.Start(context.Background(), session.Parameters{Instructions: "assist"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// One completed exchange, then an unanswered question, then the drop.
	sess1.EventsCh <- live.Event{Kind: live.KindTranscript, Role: live.RolePeer, Text: "What is a goroutine?"}
	sess1.EventsCh <- live.Event{Kind: live.KindResponse, Text: "A lightweight thread."}
	sess1.EventsCh <- live.Event{Kind: live.KindTurnComplete}
	waitHistory(t, m, 1)

	sess1.EventsCh <- live.Event{Kind: live.KindTranscript, Role: live.RolePeer, Text: "And a channel?"}
	time.Sleep(50 * time.Millisecond)
	close(sess1.EventsCh)

	waitConnects(t, p, 2)
	waitState(t, m, session.StateActive)

	texts := sess2.Texts()
	if len(texts) != 1 {
		t.Fatalf("restored session received %d text messages; want 1 replay", len(texts))
	}
	replay := texts[0]
	if !strings.Contains(replay, "already asked") || !strings.Contains(replay, "only the most recent") {
		t.Errorf("replay framing missing: %q", replay)
	}
	if !strings.Contains(replay, "What is a goroutine?") {
		t.Errorf("replay missing completed question: %q", replay)
	}
	if !strings.Contains(replay, "And a channel?") {
		t.Errorf("replay missing the unanswered question: %q", replay)
	}
	if strings.Contains(replay, "A lightweight thread.") {
		t.Errorf("replay must not contain answers: %q", replay)
	}
	if !statuses.contains(session.StatusConnected) {
		t.Errorf("statuses %v missing reconnect notification", statuses.all())
	}

	// History survives the reconnect.
	if got := len(m.History()); got != 1 {
		t.Errorf("history has %d turns after reconnect; want 1", got)
	}
}

func TestReconnect_NoReplayWithoutQuestions(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	sess2 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	p := &sequenceProvider{results: []func() (live.SessionHandle, error){ok(sess1), ok(sess2)}}
	m, _, _ := newTestManager(t, p)

	if err := m.Start(context.Background(), session.Parameters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(sess1.EventsCh)

	waitConnects(t, p, 2)
	waitState(t, m, session.StateActive)

	if got := sess2.Texts(); len(got) != 0 {
		t.Errorf("restored session received unexpected replay: %v", got)
	}
}

func TestReconnect_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	sess2 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	p := &sequenceProvider{results: []func() (live.SessionHandle, error){
		ok(sess1),
		fail(fmt.Errorf("dial tcp: connection refused")),
		ok(sess2),
	}}
	m, _, _ := newTestManager(t, p)

	if err := m.Start(context.Background(), session.Parameters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(sess1.EventsCh)

	waitConnects(t, p, 3)
	waitState(t, m, session.StateActive)
}

func TestReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	p := &sequenceProvider{
		results:  []func() (live.SessionHandle, error){ok(sess1)},
		fallback: fail(fmt.Errorf("dial tcp: connection refused")),
	}
	m, statuses, _ := newTestManager(t, p)

	if err := m.Start(context.Background(), session.Parameters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(sess1.EventsCh)

	waitState(t, m, session.StateClosed)

	// Initial connect plus exactly three retries.
	if got := p.count(); got != 4 {
		t.Errorf("provider saw %d connects; want 4", got)
	}
	if !statuses.contains(session.StatusClosed) {
		t.Errorf("statuses %v missing %q", statuses.all(), session.StatusClosed)
	}
	// Exhaustion is surfaced as an ordinary close; "Error: " lines are the
	// credential path.
	for _, s := range statuses.all() {
		if strings.HasPrefix(s, "Error: ") {
			t.Errorf("budget exhaustion emitted %q; want only %q", s, session.StatusClosed)
		}
	}
}

func TestReconnect_AuthFailureSkipsRemainingAttempts(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	p := &sequenceProvider{
		results: []func() (live.SessionHandle, error){
			ok(sess1),
			fail(&live.AuthError{Reason: "key revoked"}),
		},
		fallback: fail(fmt.Errorf("dial tcp: connection refused")),
	}
	m, statuses, _ := newTestManager(t, p)

	if err := m.Start(context.Background(), session.Parameters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(sess1.EventsCh)

	waitState(t, m, session.StateClosed)
	if got := p.count(); got != 2 {
		t.Errorf("provider saw %d connects; an auth rejection must end the loop immediately", got)
	}
	if !statuses.contains("Error: ") {
		t.Errorf("statuses %v missing an error line", statuses.all())
	}
}

func TestReconnect_StopCancelsLoop(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	p := &sequenceProvider{
		results:  []func() (live.SessionHandle, error){ok(sess1)},
		fallback: fail(fmt.Errorf("dial tcp: connection refused")),
	}

	statuses := &statusRecorder{}
	m, err := session.NewManager(session.ManagerConfig{
		Provider:             p,
		Notifier:             statuses,
		MaxReconnectAttempts: 3,
		ReconnectDelay:       100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if err := m.Start(context.Background(), session.Parameters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	close(sess1.EventsCh)
	waitState(t, m, session.StateReconnecting)

	// Stop clears the retained parameters; the loop must observe that
	// before its next attempt and bail out without dialling again.
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitState(t, m, session.StateClosed)

	connectsAtStop := p.count()
	time.Sleep(350 * time.Millisecond)
	if got := p.count(); got != connectsAtStop {
		t.Errorf("provider saw %d connects after Stop (was %d); loop kept running", got, connectsAtStop)
	}
}

func TestReconnect_DropAgainUsesFreshBudget(t *testing.T) {
	t.Parallel()

	sess1 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	sess2 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	sess3 := &mock.Session{EventsCh: make(chan live.Event, 8)}
	p := &sequenceProvider{results: []func() (live.SessionHandle, error){
		ok(sess1),
		fail(fmt.Errorf("connection refused")),
		fail(fmt.Errorf("connection refused")),
		ok(sess2),
		ok(sess3),
	}}
	m, _, _ := newTestManager(t, p)

	if err := m.Start(context.Background(), session.Parameters{}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// First drop burns two attempts before succeeding.
	close(sess1.EventsCh)
	waitConnects(t, p, 4)
	waitState(t, m, session.StateActive)

	// Second drop starts with a fresh budget and recovers on its first try.
	close(sess2.EventsCh)
	waitConnects(t, p, 5)
	waitState(t, m, session.StateActive)
}
