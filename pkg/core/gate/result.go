package gate

import "time"

// Outcome is the terminal state of a Phase-1 gate run. Every run ends in
// exactly one of these; none is ever left ambiguous.
type Outcome int

const (
	// OutcomeHumanDetected means a live person answered.
	OutcomeHumanDetected Outcome = iota
	// OutcomeVoicemailDetected means the call hit a voicemail greeting.
	OutcomeVoicemailDetected
	// OutcomeTimeout means the hard wall-clock budget expired.
	OutcomeTimeout
	// OutcomeFallbackToAI means menu navigation gave up and the
	// conversational engine should take over.
	OutcomeFallbackToAI
	// OutcomeCallDropped means the provider stopped the stream.
	OutcomeCallDropped
	// OutcomeError means an unrecoverable failure ended the run.
	OutcomeError
)

// String returns a human-readable outcome name.
func (o Outcome) String() string {
	switch o {
	case OutcomeHumanDetected:
		return "HUMAN_DETECTED"
	case OutcomeVoicemailDetected:
		return "VOICEMAIL_DETECTED"
	case OutcomeTimeout:
		return "TIMEOUT"
	case OutcomeFallbackToAI:
		return "FALLBACK_TO_AI"
	case OutcomeCallDropped:
		return "CALL_DROPPED"
	case OutcomeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Result is the immutable record a gate run hands back to the call owner.
type Result struct {
	Outcome Outcome `json:"outcome"`
	// Reason adds human-readable detail to the outcome.
	Reason string `json:"reason,omitempty"`
	// TranscriptHistory is everything transcribed during the run, in
	// wall-clock order.
	TranscriptHistory []string `json:"transcript_history"`
	// Duration is how long the run took.
	Duration time.Duration `json:"duration"`
	// DTMFAttempts is how many digit sends the run made.
	DTMFAttempts int `json:"dtmf_attempts"`
}
