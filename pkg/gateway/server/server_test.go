package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dialworks/ivrgate/pkg/gateway/config"
)

func testServerConfig() config.Config {
	return config.Config{
		Addr:                 ":0",
		TwilioAccountSID:     "ACtest",
		TwilioAuthToken:      "secret",
		DeepgramAPIKey:       "dg_test",
		DeepgramBaseURL:      "https://api.deepgram.com",
		DeepgramModel:        "nova-2-phonecall",
		NavigationGoal:       "reach a human representative",
		FirstBufferWindow:    10 * time.Millisecond,
		BufferWindow:         10 * time.Millisecond,
		GateTimeout:          2 * time.Second,
		PostDTMFCooldown:     time.Millisecond,
		KeepaliveInterval:    50 * time.Millisecond,
		MaxNavAttempts:       5,
		LoopThreshold:        0.85,
		ConsecutiveThreshold: 2,
		WSMaxMessageBytes:    64 << 10,
		ReadHeaderTimeout:    time.Second,
		ShutdownGracePeriod:  time.Second,
		MetricsNamespace:     "ivrgate_test",
	}
}

type stubTranscriber struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (t *stubTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.calls
	t.calls++
	if i < len(t.texts) {
		return t.texts[i], nil
	}
	return "", nil
}

type stubSender struct{}

func (stubSender) SendDTMF(ctx context.Context, callID, digits string) (bool, error) {
	return true, nil
}

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewWithCollaborators(testServerConfig(), logger, &stubTranscriber{texts: []string{
		"Hi, this is Sarah speaking, how can I help you today?",
	}}, stubSender{})
}

func TestHealthz(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	srv.SetDraining()
	resp2, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz while draining: %v", err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("draining status = %d, want 503", resp2.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMediaStreamRejectsPlainHTTP(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/media-stream")
	if err != nil {
		t.Fatalf("GET /media-stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusSwitchingProtocols {
		t.Fatal("plain GET was upgraded")
	}
}

func TestMediaStreamRefusedWhileDraining(t *testing.T) {
	srv := newTestServer()
	srv.SetDraining()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/media-stream"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded while draining")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("response = %+v, want 503", resp)
	}
}

func TestMediaStreamSessionRunsToCompletion(t *testing.T) {
	srv := newTestServer()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/media-stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	send := func(v any) {
		t.Helper()
		raw, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	send(map[string]any{"event": "connected"})
	send(map[string]any{
		"event":     "start",
		"streamSid": "MZ1",
		"start": map[string]any{
			"streamSid": "MZ1",
			"callSid":   "CA1",
			"mediaFormat": map[string]any{
				"encoding": "audio/x-mulaw", "sampleRate": 8000, "channels": 1,
			},
		},
	})

	// One 10 ms window of mulaw at 8 kHz is 80 bytes.
	payload := base64.StdEncoding.EncodeToString(make([]byte, 80))
	send(map[string]any{
		"event": "media",
		"media": map[string]any{"payload": payload},
	})

	// The stub transcriber reports a human, the gate finishes, and the
	// server closes the connection.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for srv.LiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("live sessions = %d, want 0", srv.LiveSessions())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestWaitLiveSessionsImmediate(t *testing.T) {
	srv := newTestServer()
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if !srv.WaitLiveSessions(ctx) {
		t.Fatal("WaitLiveSessions returned false with no sessions")
	}
}
