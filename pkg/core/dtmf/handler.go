// Package dtmf parses digit tags out of agent-generated text and sends the
// digits to the telephony provider with the pacing a real phone menu needs.
//
// Agent text streams in token by token, so the same response is scanned many
// times as it grows. The handler remembers how far it has scanned and only
// looks at newly appended text; the scan offset never moves past the start of
// a tag that is still streaming in, so tags split across deltas are found
// exactly once. Occurrences are deduplicated so a tag seen on a previous scan
// is never sent twice.
package dtmf

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dialworks/ivrgate/pkg/core/ivr"
)

// tagPattern matches an explicit digit tag in agent output.
var tagPattern = regexp.MustCompile(`<dtmf>([0-9*#]+)</dtmf>`)

// ExtractTags returns the digit sequence of every tag in text, in order of
// appearance. It does no deduplication or sending; use a Handler for that.
func ExtractTags(text string) []string {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

const (
	tagOpen  = "<dtmf>"
	tagClose = "</dtmf>"
)

// partialTag reports whether s looks like the start of a digit tag whose
// remainder has not streamed in yet. Tags can be arbitrarily long, so this
// checks the shape of the text rather than a fixed byte count.
func partialTag(s string) bool {
	if len(s) < len(tagOpen) {
		return strings.HasPrefix(tagOpen, s)
	}
	if !strings.HasPrefix(s, tagOpen) {
		return false
	}
	rest := s[len(tagOpen):]
	for len(rest) > 0 && isTagDigit(rest[0]) {
		rest = rest[1:]
	}
	return len(rest) < len(tagClose) && strings.HasPrefix(tagClose, rest)
}

func isTagDigit(b byte) bool {
	return (b >= '0' && b <= '9') || b == '*' || b == '#'
}

// resumeOffset returns where the next scan should start once everything
// before tail has been handled: the end of the text, unless the tail holds
// the opening of a tag that has not finished streaming.
func resumeOffset(text string, tail int) int {
	for i := tail; i < len(text); i++ {
		if text[i] == '<' && partialTag(text[i:]) {
			return i
		}
	}
	return len(text)
}

// SendFunc sends a digit string to the call. It reports whether the provider
// accepted the tones.
type SendFunc func(ctx context.Context, callID, digits string) (bool, error)

// SendResult records one send attempt for logging and telemetry.
type SendResult struct {
	Digits  string `json:"digits"`
	Success bool   `json:"success"`
	Err     error  `json:"-"`
}

// Config holds the pacing knobs for a Handler.
type Config struct {
	// PreSendDelay runs once before the first send of a response, letting
	// the far end finish speaking.
	PreSendDelay time.Duration `json:"pre_send_delay"`

	// PostSendCooldown is the window after any send during which no further
	// sends are attempted at all, even if new tags are parsed.
	PostSendCooldown time.Duration `json:"post_send_cooldown"`

	// InterSequenceDelay separates multiple sequences produced by one tag.
	InterSequenceDelay time.Duration `json:"inter_sequence_delay"`

	// CleanupTimeout bounds how long Cleanup waits for in-flight sends.
	CleanupTimeout time.Duration `json:"cleanup_timeout"`
}

// DefaultConfig returns the pacing defaults.
func DefaultConfig() Config {
	return Config{
		PreSendDelay:       1 * time.Second,
		PostSendCooldown:   3 * time.Second,
		InterSequenceDelay: 500 * time.Millisecond,
		CleanupTimeout:     5 * time.Second,
	}
}

// Handler is the per-call digit tag parser and sole digit sender.
type Handler struct {
	config Config
	send   SendFunc
	callID string
	logger *slog.Logger

	mu            sync.Mutex
	scanOffset    int
	responseSeq   int
	sent          map[string]bool
	cooldownUntil time.Time
	preSendDone   bool
	menuContext   ivr.MenuContext

	// In-flight tracked sends.
	taskMu    sync.Mutex
	taskSeq   int
	taskStops map[int]context.CancelFunc
	tasks     sync.WaitGroup
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithConfig overrides the pacing defaults.
func WithConfig(c Config) Option {
	return func(h *Handler) { h.config = c }
}

// NewHandler creates a handler for one call. send is the injected provider
// callback through which every digit leaves this process.
func NewHandler(callID string, send SendFunc, opts ...Option) *Handler {
	h := &Handler{
		config:    DefaultConfig(),
		send:      send,
		callID:    callID,
		logger:    slog.Default(),
		sent:      make(map[string]bool),
		taskStops: make(map[int]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetMenuContext updates the digit-splitting policy for subsequent tags.
func (h *Handler) SetMenuContext(mc ivr.MenuContext) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.menuContext = mc
}

// CheckAndSend scans the response text for digit tags and sends the first
// not-yet-sent tag, honoring the pre-send delay, post-send cooldown, and
// inter-sequence delay. At most one tag goes out per call: each send opens a
// cooldown window, and a second press belongs to whatever submenu the first
// press lands in, so later tags wait for a call after the cooldown expires.
// It returns the results of the sends it performed.
//
// The full response text accumulated so far must be passed each time; the
// handler scans only the part it has not seen.
func (h *Handler) CheckAndSend(ctx context.Context, responseText string) ([]SendResult, error) {
	h.mu.Lock()

	// Inside the cooldown window nothing is sent and the scan offset is not
	// advanced, so pending tags are picked up on a later call.
	if time.Now().Before(h.cooldownUntil) {
		h.mu.Unlock()
		return nil, nil
	}

	from := h.scanOffset
	if from > len(responseText) {
		from = len(responseText)
	}

	var (
		found   bool
		key     string
		digits  string
		scanned = from
	)
	for _, loc := range tagPattern.FindAllStringSubmatchIndex(responseText[from:], -1) {
		pos := from + loc[0]
		scanned = from + loc[1]
		d := responseText[from+loc[2] : from+loc[3]]
		// Keyed by response + position + digits so the same digit sequence
		// can legitimately repeat at a different point in the conversation.
		k := fmt.Sprintf("%d:%d:%s", h.responseSeq, pos, d)
		if h.sent[k] {
			continue
		}
		found, key, digits = true, k, d
		// The offset parks at this tag until it is marked sent, so it and
		// anything after it are rescanned on the next call.
		h.scanOffset = pos
		break
	}
	if !found {
		h.scanOffset = resumeOffset(responseText, scanned)
		h.mu.Unlock()
		return nil, nil
	}

	firstSend := !h.preSendDone
	h.preSendDone = true
	mc := h.menuContext
	h.mu.Unlock()

	if firstSend && h.config.PreSendDelay > 0 {
		if err := sleepCtx(ctx, h.config.PreSendDelay); err != nil {
			h.mu.Lock()
			h.preSendDone = false
			h.mu.Unlock()
			return nil, err
		}
	}

	// The tag counts as consumed only once sending starts; a call cancelled
	// during the pre-send delay leaves it eligible for retry. A send the
	// provider rejects is not retried, and the cooldown applies either way.
	h.mu.Lock()
	h.sent[key] = true
	h.mu.Unlock()

	var results []SendResult
	for i, seq := range SplitDigits(digits, mc) {
		if i > 0 && h.config.InterSequenceDelay > 0 {
			if err := sleepCtx(ctx, h.config.InterSequenceDelay); err != nil {
				return results, err
			}
		}
		results = append(results, h.doSend(ctx, seq))
	}

	h.mu.Lock()
	h.cooldownUntil = time.Now().Add(h.config.PostSendCooldown)
	h.mu.Unlock()

	return results, nil
}

// doSend performs one send through the injected callback and logs the
// outcome. Send failures do not abort the call; the cooldown applies either
// way so a flaky provider does not cause machine-gun retries.
func (h *Handler) doSend(ctx context.Context, digits string) SendResult {
	ok, err := h.send(ctx, h.callID, digits)
	res := SendResult{Digits: digits, Success: ok && err == nil, Err: err}
	if err != nil {
		h.logger.Warn("dtmf send failed", "call_id", h.callID, "digits", digits, "error", err)
	} else {
		h.logger.Info("dtmf sent", "call_id", h.callID, "digits", digits, "success", ok)
	}
	return res
}

// SendAsync performs a tracked fire-and-forget send. The task is registered
// in the in-flight set, removed on completion, and cancelled by Cleanup if
// still running when the call ends.
func (h *Handler) SendAsync(ctx context.Context, digits string) {
	taskCtx, cancel := context.WithCancel(ctx)

	h.taskMu.Lock()
	h.taskSeq++
	id := h.taskSeq
	h.taskStops[id] = cancel
	h.taskMu.Unlock()

	h.tasks.Add(1)
	go func() {
		defer func() {
			h.taskMu.Lock()
			delete(h.taskStops, id)
			h.taskMu.Unlock()
			cancel()
			h.tasks.Done()
		}()
		h.doSend(taskCtx, digits)
	}()
}

// InFlight returns how many tracked sends are currently running.
func (h *Handler) InFlight() int {
	h.taskMu.Lock()
	defer h.taskMu.Unlock()
	return len(h.taskStops)
}

// Cleanup cancels all pending tracked sends and waits for them to finish,
// bounded by the configured cleanup timeout. Ending a call must never leave
// an orphaned digit-send in flight.
func (h *Handler) Cleanup(ctx context.Context) error {
	h.taskMu.Lock()
	for _, cancel := range h.taskStops {
		cancel()
	}
	h.taskMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.tasks.Wait()
		close(done)
	}()

	timeout := h.config.CleanupTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("dtmf cleanup: %d sends still pending after %v", h.InFlight(), timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetForNewResponse rewinds the scan offset for a new agent turn. The
// dedup set is kept; occurrence keys carry a response sequence so positions
// restarting at zero cannot collide with the previous turn.
func (h *Handler) ResetForNewResponse() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scanOffset = 0
	h.preSendDone = false
	h.responseSeq++
}

// Reset clears dedup and cooldown state for a brand-new conversation.
func (h *Handler) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scanOffset = 0
	h.responseSeq = 0
	h.preSendDone = false
	h.cooldownUntil = time.Time{}
	h.sent = make(map[string]bool)
}

// SplitDigits splits a tag's digit string into send sequences according to
// the menu context. Extension, PIN, and voicemail prompts expect the whole
// string as one burst; generic menus get one digit at a time.
func SplitDigits(digits string, mc ivr.MenuContext) []string {
	if digits == "" {
		return nil
	}
	switch mc {
	case ivr.ContextExtension, ivr.ContextPIN, ivr.ContextVoicemail:
		return []string{digits}
	default:
		out := make([]string, 0, len(digits))
		for _, r := range digits {
			out = append(out, string(r))
		}
		return out
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
