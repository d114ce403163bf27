// Package gate implements the two-phase IVR navigation engine.
//
// Phase 1 (Gate) listens to a live media stream before any conversational
// AI engages: it buffers audio, transcribes it, classifies the far end, and
// presses menu digits until it can hand the call off with a definite
// outcome. Phase 2 (ContinuousDetector) keeps tracking IVR state while the
// AI engine talks, producing navigation guidance without owning sends.
package gate

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dialworks/ivrgate/internal/metrics"
	"github.com/dialworks/ivrgate/pkg/core/ivr"
	"github.com/dialworks/ivrgate/pkg/core/voice/stt"
	"github.com/dialworks/ivrgate/pkg/telephony"
)

// Transcriber turns one audio buffer into text. An empty string means no
// speech was detected.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// TranscriberFunc adapts a function to the Transcriber interface.
type TranscriberFunc func(ctx context.Context, audio []byte) (string, error)

// Transcribe implements Transcriber.
func (f TranscriberFunc) Transcribe(ctx context.Context, audio []byte) (string, error) {
	return f(ctx, audio)
}

// NewSTTTranscriber adapts an stt.Provider to the Transcriber interface.
func NewSTTTranscriber(p stt.Provider, opts stt.TranscribeOptions) Transcriber {
	return TranscriberFunc(func(ctx context.Context, audio []byte) (string, error) {
		tr, err := p.Transcribe(ctx, bytes.NewReader(audio), opts)
		if err != nil {
			return "", err
		}
		return tr.Text, nil
	})
}

// Gate runs Phase 1 for one call. It owns the media stream for the duration
// of the run but never closes it; the connection is handed to the next
// owner when the run ends.
type Gate struct {
	config     Config
	stream     telephony.MediaStream
	transcribe Transcriber
	sender     telephony.DTMFSender

	classifier *ivr.Classifier
	navigator  *ivr.Navigator
	loops      *ivr.LoopDetector
	status     *ivr.Status

	callID       string
	dtmfAttempts int
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithConfig overrides the default configuration.
func WithConfig(c Config) Option {
	return func(g *Gate) { g.config = c }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithMetrics attaches Prometheus instrumentation. Nil is fine.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

// New creates a gate for one call. callID may be empty; it is learned from
// the stream's start event when the provider supplies one.
func New(callID string, stream telephony.MediaStream, transcriber Transcriber, sender telephony.DTMFSender, opts ...Option) *Gate {
	g := &Gate{
		config:     DefaultConfig(),
		stream:     stream,
		transcribe: transcriber,
		sender:     sender,
		classifier: ivr.NewClassifier(),
		status:     ivr.NewStatus(),
		callID:     callID,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.navigator = ivr.NewNavigator(g.config.NavigationGoal, g.config.MaxNavAttempts)
	g.loops = ivr.NewLoopDetector(g.config.LoopWindow, g.config.LoopThreshold)
	return g
}

// Status returns the per-call IVR status the run has accumulated. The
// caller hands it to Phase 2 when the gate falls back to AI.
func (g *Gate) Status() *ivr.Status {
	return g.status
}

// Run drives the Phase-1 state machine until a terminal outcome. It always
// returns a Result; per-cycle failures are absorbed per the error policy
// and only the aggregate outcome surfaces.
func (g *Gate) Run(ctx context.Context) *Result {
	start := time.Now()
	res := g.run(ctx)
	res.Duration = time.Since(start)

	g.metrics.ObserveGateRun(res.Outcome.String(), res.Duration)
	g.logger.Info("gate run finished",
		"call_id", g.callID,
		"outcome", res.Outcome.String(),
		"reason", res.Reason,
		"duration", res.Duration,
		"dtmf_attempts", res.DTMFAttempts,
		"transcripts", len(res.TranscriptHistory),
	)
	return res
}

func (g *Gate) run(ctx context.Context) *Result {
	ctx, cancel := context.WithTimeout(ctx, g.config.OverallTimeout)
	defer cancel()

	var history []string
	finish := func(o Outcome, reason string) *Result {
		return &Result{Outcome: o, Reason: reason, TranscriptHistory: history, DTMFAttempts: g.dtmfAttempts}
	}

	buf := newAudioAccumulator(g.config.Audio)
	buf.setTarget(g.config.Audio.BytesForDuration(g.config.FirstBufferWindow))
	firstWindow := true

	// Keepalive teardown must run on every exit path.
	var keepaliveStop context.CancelFunc
	var keepaliveDone sync.WaitGroup
	stopKeepalive := func() {
		if keepaliveStop != nil {
			keepaliveStop()
			keepaliveDone.Wait()
			keepaliveStop = nil
		}
	}
	defer stopKeepalive()

	started := false
	for {
		ev, err := g.stream.Receive(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				return finish(OutcomeTimeout, "phase-1 time budget exceeded")
			case errors.Is(err, context.Canceled):
				return finish(OutcomeError, "run cancelled")
			case errors.Is(err, io.EOF):
				return finish(OutcomeCallDropped, "media stream closed")
			default:
				return finish(OutcomeError, fmt.Sprintf("receive: %v", err))
			}
		}

		switch ev.Type {
		case telephony.EventStart:
			if started {
				continue
			}
			started = true
			if g.callID == "" && ev.CallID != "" {
				g.callID = ev.CallID
			}
			g.logger.Info("media stream started", "call_id", g.callID, "stream_id", ev.StreamID)

			kctx, kcancel := context.WithCancel(ctx)
			keepaliveStop = kcancel
			keepaliveDone.Add(1)
			go func() {
				defer keepaliveDone.Done()
				g.keepalive(kctx)
			}()

		case telephony.EventMedia:
			buf.Write(ev.Audio)
			if !buf.Full() {
				continue
			}
			audio := buf.Flush()
			if firstWindow {
				firstWindow = false
				buf.setTarget(g.config.Audio.BytesForDuration(g.config.BufferWindow))
			}

			res := g.processBuffer(ctx, audio, &history)
			if res != nil {
				res.TranscriptHistory = history
				res.DTMFAttempts = g.dtmfAttempts
				return res
			}

		case telephony.EventStop:
			return finish(OutcomeCallDropped, "provider stopped the stream")

		case telephony.EventError:
			return finish(OutcomeError, ev.Message)
		}
	}
}

// processBuffer runs one transcribe-classify-navigate cycle. A nil return
// means keep listening; a non-nil Result is terminal.
func (g *Gate) processBuffer(ctx context.Context, audio []byte, history *[]string) *Result {
	t0 := time.Now()
	text, err := g.transcribe.Transcribe(ctx, audio)
	if err != nil {
		// A failed transcription is treated as a silent cycle, not a
		// terminal error; the next window gets a fresh chance.
		g.logger.Warn("transcription failed, treating as silence", "call_id", g.callID, "error", err)
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	*history = append(*history, text)

	mode, conf := g.classifier.Classify(text)
	g.metrics.ObserveTranscript(mode.String(), time.Since(t0))
	g.logger.Info("transcript classified",
		"call_id", g.callID, "mode", mode.String(), "confidence", conf, "text", text)

	switch mode {
	case ivr.ModeConversation:
		return &Result{Outcome: OutcomeHumanDetected, Reason: fmt.Sprintf("human speech (confidence %.2f)", conf)}

	case ivr.ModeVoicemail:
		return &Result{Outcome: OutcomeVoicemailDetected, Reason: fmt.Sprintf("voicemail greeting (confidence %.2f)", conf)}

	case ivr.ModeIVR:
		return g.navigateMenu(ctx, text)

	default:
		return nil
	}
}

// navigateMenu handles one IVR-classified transcript: loop bookkeeping,
// digit selection, the send itself, and the post-send cooldown.
func (g *Gate) navigateMenu(ctx context.Context, text string) *Result {
	g.loops.Add(text)
	g.status.LoopDetected = g.loops.IsLoopDetected()
	if g.status.LoopDetected && g.status.LastDigitSent != "" {
		// The menu repeated after a press: that digit did not move the
		// call forward.
		g.navigator.RecordFailure(g.status.LastDigitSent)
		g.status.RecordFailure(g.status.LastDigitSent)
		g.logger.Info("menu loop detected, digit marked failed",
			"call_id", g.callID, "digit", g.status.LastDigitSent)
	}

	g.status.Mode = ivr.ModeIVR
	g.status.MenuContext = g.classifier.DetectMenuContext(text)
	g.status.LastMenuTranscript = text

	decision := g.navigator.SelectDigit(text)
	switch decision.Action {
	case ivr.ActionPressDigit:
		return g.pressDigit(ctx, decision)
	case ivr.ActionFallbackToAI:
		return &Result{Outcome: OutcomeFallbackToAI, Reason: decision.Reason}
	default:
		return nil
	}
}

func (g *Gate) pressDigit(ctx context.Context, decision ivr.NavigationResult) *Result {
	ok, err := g.sender.SendDTMF(ctx, g.callID, decision.Digit)
	success := ok && err == nil
	g.metrics.ObserveDTMFSend(success)
	if err != nil {
		// Send failures do not abort the call; the cooldown still applies
		// so the navigator's view of time stays consistent.
		g.logger.Warn("dtmf send failed", "call_id", g.callID, "digit", decision.Digit, "error", err)
	} else {
		g.logger.Info("pressed digit", "call_id", g.callID, "digit", decision.Digit, "reason", decision.Reason)
	}

	g.navigator.RecordAttempt(decision.Digit)
	g.status.RecordDigit(decision.Digit)
	g.dtmfAttempts++

	if err := sleepCtx(ctx, g.config.PostDTMFCooldown); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return &Result{Outcome: OutcomeTimeout, Reason: "phase-1 time budget exceeded"}
		}
		return &Result{Outcome: OutcomeError, Reason: "run cancelled"}
	}
	return nil
}

// keepalive periodically writes silence frames so the provider does not
// close an idle stream while the engine is thinking.
func (g *Gate) keepalive(ctx context.Context) {
	payload := SilencePayload(g.config.Audio.BytesForDuration(g.config.KeepalivePayload))
	ticker := time.NewTicker(g.config.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := g.stream.SendMedia(payload); err != nil {
				g.logger.Debug("keepalive send failed", "call_id", g.callID, "error", err)
			}
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
