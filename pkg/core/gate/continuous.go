package gate

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/dialworks/ivrgate/pkg/core/dtmf"
	"github.com/dialworks/ivrgate/pkg/core/ivr"
)

// ContinuousDetector tracks IVR state for Phase 2, after the gate has
// handed the call to the conversational engine. It classifies every remote
// transcript, keeps the per-call Status current, and produces navigation
// guidance text for the engine's prompt. It never sends digits itself; the
// DTMF handler attached to the agent's output stream is the only sender.
//
// Unlike the Gate, which runs on a single goroutine, the detector is called
// from both the transcription path and the agent output path, so all state
// is mutex-guarded.
type ContinuousDetector struct {
	mu sync.Mutex

	classifier *ivr.Classifier
	loops      *ivr.LoopDetector
	status     *ivr.Status
	goal       string

	// Hysteresis: mode only flips after this many consecutive agreeing
	// classifications.
	consecutiveThreshold int
	loopThreshold        float64

	callID string
	logger *slog.Logger
}

// NewContinuousDetector creates a Phase-2 detector for one call. status is
// usually the Gate's accumulated Status so attempted digits carry over; pass
// nil to start fresh.
func NewContinuousDetector(callID string, status *ivr.Status, cfg Config, logger *slog.Logger) *ContinuousDetector {
	if status == nil {
		status = ivr.NewStatus()
	}
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.ConsecutiveThreshold
	if threshold < 1 {
		threshold = 1
	}
	return &ContinuousDetector{
		classifier:           ivr.NewClassifier(),
		loops:                ivr.NewLoopDetector(cfg.LoopWindow, cfg.LoopThreshold),
		status:               status,
		goal:                 cfg.NavigationGoal,
		consecutiveThreshold: threshold,
		loopThreshold:        cfg.LoopThreshold,
		callID:               callID,
		logger:               logger,
	}
}

// ProcessRemoteTranscript classifies one transcript from the far end and
// updates the tracked mode. It returns the mode in effect after hysteresis.
func (d *ContinuousDetector) ProcessRemoteTranscript(text string) ivr.ClassificationMode {
	d.mu.Lock()
	defer d.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return d.status.Mode
	}

	mode, conf := d.classifier.Classify(text)
	switch mode {
	case ivr.ModeIVR, ivr.ModeVoicemail:
		// Voicemail greetings count toward the automated side of the
		// hysteresis; mid-call they behave like IVR prompts.
		d.status.ConsecutiveIVRCount++
		d.status.ConsecutiveHumanCount = 0
	case ivr.ModeConversation:
		d.status.ConsecutiveHumanCount++
		d.status.ConsecutiveIVRCount = 0
	default:
		// Unknown leaves the counters alone; a single ambiguous window
		// should not reset progress toward a flip.
	}

	previous := d.status.Mode
	if d.status.ConsecutiveIVRCount >= d.consecutiveThreshold {
		d.status.Mode = ivr.ModeIVR
	}
	if d.status.ConsecutiveHumanCount >= d.consecutiveThreshold {
		d.status.Mode = ivr.ModeConversation
	}

	if d.status.Mode != previous {
		d.logger.Info("call mode flipped",
			"call_id", d.callID, "from", previous.String(), "to", d.status.Mode.String(), "confidence", conf)
		if d.status.Mode == ivr.ModeConversation {
			// A human answered; earlier menu repetitions are no longer
			// meaningful.
			d.loops.Reset()
			d.status.LoopDetected = false
		}
	}

	if mode == ivr.ModeIVR {
		// Agent presses sit between menu transcripts in the loop window,
		// so menu repetition is checked against the last stored menu
		// directly; the window itself catches the agent retrying the same
		// press back to back.
		repeated := d.status.LastMenuTranscript != "" &&
			ivr.JaccardSimilarity(text, d.status.LastMenuTranscript) >= d.loopThreshold
		d.loops.Add(text)
		d.status.LoopDetected = repeated || d.loops.IsLoopDetected()
		if repeated && d.status.LastDigitSent != "" {
			d.status.RecordFailure(d.status.LastDigitSent)
			d.logger.Info("menu repeated after press, digit marked failed",
				"call_id", d.callID, "digit", d.status.LastDigitSent)
		}
		d.status.MenuContext = d.classifier.DetectMenuContext(text)
		d.status.LastMenuTranscript = text
	}

	return d.status.Mode
}

// ProcessAgentTranscript inspects the agent's own output for digit tags and
// records them as attempted. Each press also lands in the loop window as a
// synthetic entry, so an agent retrying the same press back to back reads
// as a loop.
func (d *ContinuousDetector) ProcessAgentTranscript(text string) {
	digits := dtmf.ExtractTags(text)
	if len(digits) == 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, seq := range digits {
		d.status.RecordDigit(seq)
		d.loops.Add(fmt.Sprintf("Pressed digit %s on keypad", seq))
		d.logger.Info("agent pressed digit", "call_id", d.callID, "digits", seq)
	}
}

// Mode returns the current hysteresis-filtered call mode.
func (d *ContinuousDetector) Mode() ivr.ClassificationMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status.Mode
}

// Status returns a copy of the current per-call status.
func (d *ContinuousDetector) Status() ivr.Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	snap := *d.status
	snap.AttemptedDigits = make(map[string]bool, len(d.status.AttemptedDigits))
	for k, v := range d.status.AttemptedDigits {
		snap.AttemptedDigits[k] = v
	}
	snap.FailedDigits = make(map[string]bool, len(d.status.FailedDigits))
	for k, v := range d.status.FailedDigits {
		snap.FailedDigits[k] = v
	}
	return snap
}

// BuildNavigationPrompt renders guidance text for the conversational
// engine's system prompt, or "" when the call is not in an IVR.
func (d *ContinuousDetector) BuildNavigationPrompt() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.status.Mode != ivr.ModeIVR {
		return ""
	}

	var b strings.Builder
	b.WriteString("The call is currently in an automated phone menu. Your goal: ")
	b.WriteString(d.goal)
	b.WriteString(".\n")
	b.WriteString("To press a key, include a tag like <dtmf>1</dtmf> in your response.\n")

	if len(d.status.AttemptedDigits) > 0 {
		b.WriteString("Digits already tried: ")
		b.WriteString(strings.Join(sortedDigits(d.status.AttemptedDigits), ", "))
		b.WriteString(".\n")
	}
	if len(d.status.FailedDigits) > 0 {
		b.WriteString("Digits that led back to the same menu (do not repeat): ")
		b.WriteString(strings.Join(sortedDigits(d.status.FailedDigits), ", "))
		b.WriteString(".\n")
	}
	if d.status.LoopDetected {
		b.WriteString("Warning: the menu is repeating itself. Try a different option, or 0 for an operator.\n")
	}
	if d.status.LastMenuTranscript != "" {
		options := ivr.ExtractMenuOptions(d.status.LastMenuTranscript)
		var untried []string
		for _, opt := range options {
			if !d.status.AttemptedDigits[opt.Digit] {
				untried = append(untried, fmt.Sprintf("%s (%s)", opt.Digit, opt.Description))
			}
		}
		if len(untried) > 0 {
			b.WriteString("Untried menu options: ")
			b.WriteString(strings.Join(untried, "; "))
			b.WriteString(".\n")
		}
	}
	return b.String()
}

// Reset clears all tracked state, for reuse across call legs.
func (d *ContinuousDetector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loops.Reset()
	d.status = ivr.NewStatus()
}

func sortedDigits(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
