// Package server is the HTTP front door: it upgrades /media-stream
// connections to websockets, runs one gate per connection, and tracks live
// sessions so shutdown can drain them.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dialworks/ivrgate/internal/metrics"
	"github.com/dialworks/ivrgate/pkg/core/gate"
	"github.com/dialworks/ivrgate/pkg/core/voice/stt"
	"github.com/dialworks/ivrgate/pkg/gateway/config"
	"github.com/dialworks/ivrgate/pkg/telephony"
	twiliostream "github.com/dialworks/ivrgate/pkg/telephony/twilio"
)

type Server struct {
	cfg     config.Config
	logger  *slog.Logger
	mux     *http.ServeMux
	metrics *metrics.Metrics

	upgrader    websocket.Upgrader
	transcriber gate.Transcriber
	sender      telephony.DTMFSender

	draining atomic.Bool

	mu       sync.Mutex
	sessions map[string]context.CancelFunc
	wg       sync.WaitGroup
}

// New wires the production collaborators: a Deepgram transcriber and a
// Twilio REST DTMF sender.
func New(cfg config.Config, logger *slog.Logger) *Server {
	provider := stt.NewDeepgramWithClient(cfg.DeepgramAPIKey, cfg.DeepgramBaseURL, nil)
	transcriber := gate.NewSTTTranscriber(provider, stt.TranscribeOptions{
		Model:      cfg.DeepgramModel,
		Encoding:   "mulaw",
		SampleRate: 8000,
		Channels:   1,
	})
	sender := twiliostream.NewDTMFSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken,
		twiliostream.WithSenderLogger(logger))
	return NewWithCollaborators(cfg, logger, transcriber, sender)
}

// NewWithCollaborators lets tests inject fakes for the transcriber and
// sender while keeping the rest of the server real.
func NewWithCollaborators(cfg config.Config, logger *slog.Logger, transcriber gate.Transcriber, sender telephony.DTMFSender) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		mux:     http.NewServeMux(),
		metrics: metrics.New(cfg.MetricsNamespace),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Twilio opens the websocket server-to-server; there is no
			// browser origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		transcriber: transcriber,
		sender:      sender,
		sessions:    make(map[string]context.CancelFunc),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.Handle("/metrics", s.metrics.Handler())
	s.mux.HandleFunc("/media-stream", s.handleMediaStream)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	if s.draining.Load() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}
	conn.SetReadLimit(s.cfg.WSMaxMessageBytes)

	// The request context dies when this handler returns, which is before
	// the session ends; sessions live on their own context and are torn
	// down via CancelLiveSessions.
	sessionID := uuid.NewString()
	ctx, cancel := s.trackSession(sessionID, context.Background())
	s.metrics.StreamConnected(1)

	go func() {
		defer func() {
			s.metrics.StreamConnected(-1)
			s.untrackSession(sessionID)
			_ = conn.Close()
		}()
		s.runSession(ctx, sessionID, conn)
		cancel()
	}()
}

// runSession drives one gate over a freshly upgraded connection. The gate
// itself never closes the socket; the session teardown in our caller does.
func (s *Server) runSession(ctx context.Context, sessionID string, conn *websocket.Conn) {
	logger := s.logger.With("session_id", sessionID)
	stream := twiliostream.NewMediaStream(conn, twiliostream.WithLogger(logger))

	g := gate.New("", stream, s.transcriber, s.sender,
		gate.WithConfig(s.gateConfig()),
		gate.WithLogger(logger),
		gate.WithMetrics(s.metrics),
	)
	res := g.Run(ctx)

	logger.Info("session finished",
		"call_id", stream.CallSID(),
		"outcome", res.Outcome.String(),
		"reason", res.Reason,
		"duration", res.Duration,
	)
}

func (s *Server) gateConfig() gate.Config {
	cfg := gate.DefaultConfig()
	cfg.FirstBufferWindow = s.cfg.FirstBufferWindow
	cfg.BufferWindow = s.cfg.BufferWindow
	cfg.OverallTimeout = s.cfg.GateTimeout
	cfg.PostDTMFCooldown = s.cfg.PostDTMFCooldown
	cfg.KeepaliveInterval = s.cfg.KeepaliveInterval
	cfg.NavigationGoal = s.cfg.NavigationGoal
	cfg.MaxNavAttempts = s.cfg.MaxNavAttempts
	cfg.LoopThreshold = s.cfg.LoopThreshold
	cfg.ConsecutiveThreshold = s.cfg.ConsecutiveThreshold
	return cfg
}

func (s *Server) trackSession(id string, parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	s.sessions[id] = cancel
	s.mu.Unlock()
	s.wg.Add(1)
	return ctx, cancel
}

func (s *Server) untrackSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	s.wg.Done()
}

// SetDraining makes /healthz and /media-stream refuse new work.
func (s *Server) SetDraining() {
	s.draining.Store(true)
}

// LiveSessions returns the number of sessions still running.
func (s *Server) LiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// WaitLiveSessions blocks until every session finishes or ctx expires. It
// reports whether the sessions all drained in time.
func (s *Server) WaitLiveSessions(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// CancelLiveSessions cancels every running session's context.
func (s *Server) CancelLiveSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.sessions {
		cancel()
	}
}
