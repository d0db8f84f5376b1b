package lyria

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-livemusic/core/generation"
)

type fakeServer struct {
	t        *testing.T
	server   *httptest.Server
	received chan map[string]json.RawMessage
	conns    chan *websocket.Conn
	apiKey   chan string
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		t:        t,
		received: make(chan map[string]json.RawMessage, 16),
		conns:    make(chan *websocket.Conn, 1),
		apiKey:   make(chan string, 1),
	}

	upgrader := websocket.Upgrader{}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.apiKey <- r.URL.Query().Get("key")
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("failed to upgrade: %v", err)
			return
		}

		var setup map[string]json.RawMessage
		if err := conn.ReadJSON(&setup); err != nil {
			t.Errorf("failed to read setup: %v", err)
			return
		}
		f.received <- setup
		if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
			t.Errorf("failed to write setup complete: %v", err)
			return
		}
		f.conns <- conn

		for {
			var msg map[string]json.RawMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.received <- msg
		}
	}))
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeServer) endpoint() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http")
}

func (f *fakeServer) next() map[string]json.RawMessage {
	f.t.Helper()
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(2 * time.Second):
		f.t.Fatalf("expected a client message, got none")
		return nil
	}
}

func (f *fakeServer) conn() *websocket.Conn {
	f.t.Helper()
	select {
	case conn := <-f.conns:
		return conn
	case <-time.After(2 * time.Second):
		f.t.Fatalf("expected the client to connect")
		return nil
	}
}

type recordedHandlers struct {
	mu       sync.Mutex
	chunks   []generation.Chunk
	filtered []generation.FilteredPrompt
	errs     []error
	closes   int
	signal   chan struct{}
}

func newRecordedHandlers() *recordedHandlers {
	return &recordedHandlers{signal: make(chan struct{}, 64)}
}

func (r *recordedHandlers) handlers() generation.Handlers {
	return generation.Handlers{
		OnChunk: func(chunk generation.Chunk) {
			r.mu.Lock()
			r.chunks = append(r.chunks, chunk)
			r.mu.Unlock()
			r.signal <- struct{}{}
		},
		OnFilteredPrompt: func(prompt generation.FilteredPrompt) {
			r.mu.Lock()
			r.filtered = append(r.filtered, prompt)
			r.mu.Unlock()
			r.signal <- struct{}{}
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
			r.signal <- struct{}{}
		},
		OnClose: func() {
			r.mu.Lock()
			r.closes++
			r.mu.Unlock()
			r.signal <- struct{}{}
		},
	}
}

func (r *recordedHandlers) wait(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-r.signal:
		case <-time.After(2 * time.Second):
			t.Fatalf("expected %d handler calls", n)
		}
	}
}

func TestConnectSendsSetupAndAPIKey(t *testing.T) {
	server := newFakeServer(t)
	client, err := NewClient(WithAPIKey("secret"), WithEndpoint(server.endpoint()), WithModel("models/test"))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	session, err := client.Connect(t.Context(), generation.Handlers{})
	if err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	defer session.Close()

	if key := <-server.apiKey; key != "secret" {
		t.Fatalf("expected api key in query, got %q", key)
	}
	setup := server.next()
	if !strings.Contains(string(setup["setup"]), `"model":"models/test"`) {
		t.Fatalf("expected setup with model, got %s", setup["setup"])
	}
	if session.ID() == "" {
		t.Fatalf("expected session id to be set")
	}
}

func TestSessionSendsPromptsConfigAndPlaybackControl(t *testing.T) {
	server := newFakeServer(t)
	client, _ := NewClient(WithAPIKey("secret"), WithEndpoint(server.endpoint()))
	session, err := client.Connect(t.Context(), generation.Handlers{})
	if err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	defer session.Close()
	server.next()

	bpm := 120
	if err := session.SetWeightedPrompts(t.Context(), []generation.WeightedPrompt{{Text: "dub techno", Weight: 1}}); err != nil {
		t.Fatalf("expected prompts to be sent, got %v", err)
	}
	if err := session.SetGenerationConfig(t.Context(), generation.GenerationConfig{BPM: &bpm}); err != nil {
		t.Fatalf("expected config to be sent, got %v", err)
	}
	if err := session.Play(); err != nil {
		t.Fatalf("expected play to be sent, got %v", err)
	}

	prompts := server.next()
	if got := string(prompts["clientContent"]); got != `{"weightedPrompts":[{"text":"dub techno","weight":1}]}` {
		t.Fatalf("unexpected client content %s", got)
	}
	config := server.next()
	if got := string(config["musicGenerationConfig"]); got != `{"bpm":120}` {
		t.Fatalf("unexpected generation config %s", got)
	}
	control := server.next()
	if got := string(control["playbackControl"]); got != `"PLAY"` {
		t.Fatalf("expected PLAY, got %s", got)
	}
}

func TestSessionDeliversChunksInOrderAndFilteredPrompts(t *testing.T) {
	server := newFakeServer(t)
	client, _ := NewClient(WithAPIKey("secret"), WithEndpoint(server.endpoint()))
	recorded := newRecordedHandlers()
	session, err := client.Connect(t.Context(), recorded.handlers())
	if err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}
	defer session.Close()

	conn := server.conn()
	_ = conn.WriteJSON(map[string]any{"serverContent": map[string]any{"audioChunks": []map[string]string{
		{"data": "AAA=", "mimeType": "audio/l16;rate=48000;channels=2"},
		{"data": "AQE=", "mimeType": "audio/l16;rate=48000;channels=2"},
	}}})
	_ = conn.WriteJSON(map[string]any{"filteredPrompt": map[string]string{"text": "bad", "filteredReason": "policy"}})
	recorded.wait(t, 3)

	recorded.mu.Lock()
	defer recorded.mu.Unlock()
	if len(recorded.chunks) != 2 || recorded.chunks[0].Data != "AAA=" || recorded.chunks[1].Data != "AQE=" {
		t.Fatalf("expected two chunks in order, got %+v", recorded.chunks)
	}
	if len(recorded.filtered) != 1 || recorded.filtered[0].Reason != "policy" {
		t.Fatalf("expected filtered prompt with reason, got %+v", recorded.filtered)
	}
}

func TestServerCloseIsReportedAsClose(t *testing.T) {
	server := newFakeServer(t)
	client, _ := NewClient(WithAPIKey("secret"), WithEndpoint(server.endpoint()))
	recorded := newRecordedHandlers()
	if _, err := client.Connect(t.Context(), recorded.handlers()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	conn := server.conn()
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	recorded.wait(t, 1)

	recorded.mu.Lock()
	defer recorded.mu.Unlock()
	if recorded.closes != 1 || len(recorded.errs) != 0 {
		t.Fatalf("expected a single close, got %d closes and %v errors", recorded.closes, recorded.errs)
	}
}

func TestAbruptDisconnectIsReportedAsError(t *testing.T) {
	server := newFakeServer(t)
	client, _ := NewClient(WithAPIKey("secret"), WithEndpoint(server.endpoint()))
	recorded := newRecordedHandlers()
	if _, err := client.Connect(t.Context(), recorded.handlers()); err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	_ = server.conn().Close()
	recorded.wait(t, 1)

	recorded.mu.Lock()
	defer recorded.mu.Unlock()
	if len(recorded.errs) != 1 {
		t.Fatalf("expected one error, got %v", recorded.errs)
	}
}

func TestClientCloseDoesNotCallHandlers(t *testing.T) {
	server := newFakeServer(t)
	client, _ := NewClient(WithAPIKey("secret"), WithEndpoint(server.endpoint()))
	recorded := newRecordedHandlers()
	session, err := client.Connect(t.Context(), recorded.handlers())
	if err != nil {
		t.Fatalf("expected connect to succeed, got %v", err)
	}

	if err := session.Close(); err != nil {
		t.Fatalf("expected close to succeed, got %v", err)
	}
	if err := session.Play(); err != generation.ErrSessionClosed {
		t.Fatalf("expected writes after close to fail with %v, got %v", generation.ErrSessionClosed, err)
	}

	select {
	case <-recorded.signal:
		t.Fatalf("expected no handler calls after a requested close")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewClient(); err != ErrMissingAPIKey {
		t.Fatalf("expected %v, got %v", ErrMissingAPIKey, err)
	}
}
