package app_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/liveprompt/liveprompt/internal/app"
	"github.com/liveprompt/liveprompt/internal/session"
	"github.com/liveprompt/liveprompt/pkg/audio"
	capturemock "github.com/liveprompt/liveprompt/pkg/capture/mock"
	"github.com/liveprompt/liveprompt/pkg/provider/live"
	livemock "github.com/liveprompt/liveprompt/pkg/provider/live/mock"
)

// newTestApp wires an App to fully mocked capture and transport. The chunker
// runs at 1000 Hz mono with 100 ms chunks, so 200 input bytes make one chunk.
func newTestApp(t *testing.T, sess *livemock.Session, src *capturemock.Source) *app.App {
	t.Helper()

	m, err := session.NewManager(session.ManagerConfig{
		Provider: &livemock.Provider{Session: sess},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	a, err := app.New(app.Config{
		Manager: m,
		Source:  src,
		Chunker: audio.ChunkerConfig{
			SampleRate:    1000,
			Channels:      1,
			ChunkDuration: 100 * time.Millisecond,
			Retention:     time.Second,
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	m, err := session.NewManager(session.ManagerConfig{Provider: &livemock.Provider{}})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if _, err := app.New(app.Config{Source: &capturemock.Source{}}); err == nil {
		t.Error("missing manager should be rejected")
	}
	if _, err := app.New(app.Config{Manager: m}); err == nil {
		t.Error("missing source should be rejected")
	}
}

func TestApp_PumpsAudioToSession(t *testing.T) {
	t.Parallel()

	sess := &livemock.Session{EventsCh: make(chan live.Event, 8)}
	src := &capturemock.Source{}
	a := newTestApp(t, sess, src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	// Two chunks' worth of audio in uneven bursts.
	src.Emit(audio.Frame{Data: make([]byte, 150), SampleRate: 1000, Channels: 1})
	src.Emit(audio.Frame{Data: make([]byte, 150), SampleRate: 1000, Channels: 1})
	src.Emit(audio.Frame{Data: make([]byte, 100), SampleRate: 1000, Channels: 1})

	deadline := time.Now().Add(3 * time.Second)
	for sess.AudioCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if got := sess.AudioCount(); got != 2 {
		t.Errorf("session received %d chunks; want 2", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on clean shutdown", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	if src.CloseCount() == 0 {
		t.Error("capture source not closed on shutdown")
	}
	if sess.CloseCount() == 0 {
		t.Error("session not stopped on shutdown")
	}
}

func TestApp_CaptureEndFailsRun(t *testing.T) {
	t.Parallel()

	sess := &livemock.Session{EventsCh: make(chan live.Event, 8)}
	src := &capturemock.Source{}
	a := newTestApp(t, sess, src)

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background()) }()

	// Wait for the pump to subscribe, then kill the capture stream.
	deadline := time.Now().Add(3 * time.Second)
	for src.StartCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	_ = src.Close()

	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "capture stream ended") {
			t.Errorf("Run = %v; want a capture-ended error", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after capture ended")
	}
}

func TestApp_StartFailurePropagates(t *testing.T) {
	t.Parallel()

	m, err := session.NewManager(session.ManagerConfig{
		Provider: &livemock.Provider{ConnectErr: context.DeadlineExceeded},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	a, err := app.New(app.Config{Manager: m, Source: &capturemock.Source{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := a.Run(context.Background()); err == nil {
		t.Fatal("Run should propagate the session start failure")
	}
}
