package livemusic

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-livemusic/core/audio"
	"github.com/koscakluka/ema-livemusic/core/audio/offline"
	events "github.com/koscakluka/ema-livemusic/core/events"
	"github.com/koscakluka/ema-livemusic/core/generation"
	"github.com/koscakluka/ema-livemusic/core/recording"
)

const testMimeType = "audio/l16;rate=48000;channels=2"

type fakeBackend struct {
	mu         sync.Mutex
	connects   int
	sessions   []*fakeSession
	connectErr error
	gate       chan struct{}
}

func (b *fakeBackend) Connect(ctx context.Context, handlers generation.Handlers) (generation.Session, error) {
	b.mu.Lock()
	b.connects++
	gate, connectErr := b.gate, b.connectErr
	b.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if connectErr != nil {
		return nil, connectErr
	}

	session := &fakeSession{handlers: handlers.WithDefaults()}
	b.mu.Lock()
	b.sessions = append(b.sessions, session)
	b.mu.Unlock()
	return session, nil
}

func (b *fakeBackend) connectCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connects
}

func (b *fakeBackend) last() *fakeSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.sessions) == 0 {
		return nil
	}
	return b.sessions[len(b.sessions)-1]
}

type fakeSession struct {
	mu       sync.Mutex
	handlers generation.Handlers
	prompts  [][]generation.WeightedPrompt
	configs  []generation.GenerationConfig
	controls []string
	closed   bool
}

func (s *fakeSession) ID() string { return "fake" }

func (s *fakeSession) SetWeightedPrompts(_ context.Context, prompts []generation.WeightedPrompt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return generation.ErrSessionClosed
	}
	s.prompts = append(s.prompts, prompts)
	return nil
}

func (s *fakeSession) SetGenerationConfig(_ context.Context, config generation.GenerationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return generation.ErrSessionClosed
	}
	s.configs = append(s.configs, config)
	return nil
}

func (s *fakeSession) control(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return generation.ErrSessionClosed
	}
	s.controls = append(s.controls, name)
	return nil
}

func (s *fakeSession) Play() error         { return s.control("PLAY") }
func (s *fakeSession) Pause() error        { return s.control("PAUSE") }
func (s *fakeSession) Stop() error         { return s.control("STOP") }
func (s *fakeSession) ResetContext() error { return s.control("RESET_CONTEXT") }

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSession) controlLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.controls...)
}

func (s *fakeSession) promptLog() [][]generation.WeightedPrompt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]generation.WeightedPrompt{}, s.prompts...)
}

// pcmChunk is d of stereo 48 kHz PCM at a constant quarter scale.
func pcmChunk(d time.Duration) generation.Chunk {
	frames := int(d.Seconds() * 48000)
	raw := make([]byte, frames*4)
	for i := 0; i < len(raw); i += 2 {
		binary.LittleEndian.PutUint16(raw[i:], uint16(8192))
	}
	return generation.Chunk{Data: base64.StdEncoding.EncodeToString(raw), MimeType: testMimeType}
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) handle(event events.Event) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

func (l *eventLog) states() []PlaybackState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var states []PlaybackState
	for _, event := range l.events {
		if changed, ok := event.(events.PlaybackStateChanged); ok {
			states = append(states, changed.State)
		}
	}
	return states
}

func (l *eventLog) errors() []events.Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	var errs []events.Error
	for _, event := range l.events {
		if errEvent, ok := event.(events.Error); ok {
			errs = append(errs, errEvent)
		}
	}
	return errs
}

func (l *eventLog) count(kind events.Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, event := range l.events {
		if event.Kind() == kind {
			n++
		}
	}
	return n
}

type testRig struct {
	helper  *Helper
	output  *audio.Context
	device  *offline.Device
	backend *fakeBackend
	events  *eventLog
	chunks  uint64
}

func newTestRig(t *testing.T, opts ...HelperOption) *testRig {
	t.Helper()
	return newTestRigWithOutput(t, 48000, 2, opts...)
}

func newTestRigWithOutput(t *testing.T, sampleRate, channels int, opts ...HelperOption) *testRig {
	t.Helper()

	output := audio.NewContext(sampleRate, channels)
	recorder, err := recording.New(
		recording.WithFormat(recording.FormatWAV),
		recording.WithDirectory(t.TempDir()),
		recording.WithEncoding(sampleRate, channels),
	)
	if err != nil {
		t.Fatalf("expected recorder, got %v", err)
	}

	rig := &testRig{
		output:  output,
		device:  offline.New(output),
		backend: &fakeBackend{},
		events:  &eventLog{},
	}
	rig.helper = NewHelper(append([]HelperOption{
		WithBackend(rig.backend),
		WithOutput(output),
		WithRecorder(recorder),
	}, opts...)...)
	rig.helper.Subscribe(rig.events.handle)
	t.Cleanup(rig.helper.Close)

	return rig
}

var testPrompt = generation.PromptSpec{Prompts: []generation.WeightedPrompt{{Text: "warm analog ambient", Weight: 1}}}

func (r *testRig) play(t *testing.T) *fakeSession {
	t.Helper()
	spec := testPrompt
	if err := r.helper.Play(t.Context(), &spec); err != nil {
		t.Fatalf("expected play to succeed, got %v", err)
	}
	session := r.backend.last()
	if session == nil {
		t.Fatalf("expected a session to be connected")
	}
	return session
}

// deliver pushes chunks through the session and waits until the helper has
// handled all of them.
func (r *testRig) deliver(t *testing.T, session *fakeSession, chunks ...generation.Chunk) {
	t.Helper()
	for _, chunk := range chunks {
		session.handlers.OnChunk(chunk)
		r.chunks++
	}
	waitFor(t, "chunks to be handled", func() bool {
		return r.helper.chunks.processed.Load() >= r.chunks
	})
}

func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !condition() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func expectState(t *testing.T, h *Helper, expected PlaybackState) {
	t.Helper()
	if got := h.State(); got != expected {
		t.Fatalf("expected state %q, got %q", expected, got)
	}
}
