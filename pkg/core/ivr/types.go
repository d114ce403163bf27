// Package ivr implements the heuristics that decide what the far end of a
// phone call is: an automated menu, a live human, or a voicemail greeting.
// It also picks which touch-tone digit to press when the answer is a menu.
//
// Everything in this package is transcript-driven. No audio analysis happens
// here; callers feed in the output of a speech-to-text cycle and get back a
// classification or a navigation decision.
package ivr

// ClassificationMode is the outcome of classifying one transcript.
type ClassificationMode int

const (
	// ModeUnknown means no pattern category produced a usable signal.
	ModeUnknown ClassificationMode = iota
	// ModeIVR means the transcript reads like an automated phone menu.
	ModeIVR
	// ModeConversation means the transcript reads like a live human.
	ModeConversation
	// ModeVoicemail means the transcript reads like a voicemail greeting.
	ModeVoicemail
)

// String returns a human-readable mode name.
func (m ClassificationMode) String() string {
	switch m {
	case ModeIVR:
		return "IVR"
	case ModeConversation:
		return "CONVERSATION"
	case ModeVoicemail:
		return "VOICEMAIL"
	default:
		return "UNKNOWN"
	}
}

// MenuContext is a coarse classification of what kind of input an IVR prompt
// expects. It steers how a multi-digit string is split into send sequences.
type MenuContext int

const (
	// ContextUnknown means the prompt gave no hint about expected input.
	ContextUnknown MenuContext = iota
	// ContextMenu is a generic single-digit menu prompt.
	ContextMenu
	// ContextExtension is a prompt asking for a party's extension.
	ContextExtension
	// ContextPIN is a prompt asking for a PIN, passcode, or account number.
	ContextPIN
	// ContextVoicemail is a voicemail-system prompt.
	ContextVoicemail
)

// String returns a human-readable context name.
func (c MenuContext) String() string {
	switch c {
	case ContextMenu:
		return "MENU"
	case ContextExtension:
		return "EXTENSION"
	case ContextPIN:
		return "PIN"
	case ContextVoicemail:
		return "VOICEMAIL"
	default:
		return "UNKNOWN"
	}
}

// MenuOption is one selectable entry extracted from a menu prompt.
type MenuOption struct {
	// Digit is a single DTMF character: 0-9, *, or #.
	Digit string `json:"digit"`
	// Description is the free text the menu associated with the digit.
	Description string `json:"description"`
}

// NavigationAction tags a NavigationResult.
type NavigationAction int

const (
	// ActionNone means there is nothing useful to do this cycle.
	ActionNone NavigationAction = iota
	// ActionPressDigit means a digit should be sent to the call.
	ActionPressDigit
	// ActionFallbackToAI means heuristic navigation gave up and the
	// conversational engine should take over.
	ActionFallbackToAI
)

// String returns a human-readable action name.
func (a NavigationAction) String() string {
	switch a {
	case ActionPressDigit:
		return "PRESS_DIGIT"
	case ActionFallbackToAI:
		return "FALLBACK_TO_AI"
	default:
		return "NO_ACTION"
	}
}

// NavigationResult is one navigation decision.
type NavigationResult struct {
	Action NavigationAction `json:"action"`
	// Digit is set only when Action is ActionPressDigit.
	Digit string `json:"digit,omitempty"`
	// Reason explains the decision for logging and LLM guidance text.
	Reason string `json:"reason,omitempty"`
}

// PressDigit builds a press-digit result.
func PressDigit(digit, reason string) NavigationResult {
	return NavigationResult{Action: ActionPressDigit, Digit: digit, Reason: reason}
}

// FallbackToAI builds a fallback result.
func FallbackToAI(reason string) NavigationResult {
	return NavigationResult{Action: ActionFallbackToAI, Reason: reason}
}

// NoAction is the do-nothing result.
func NoAction() NavigationResult {
	return NavigationResult{Action: ActionNone}
}

// Status is the mutable per-call IVR tracking record. It is created at call
// start, mutated only by the orchestrator that owns the call, and discarded
// when the call ends.
type Status struct {
	Mode                  ClassificationMode `json:"mode"`
	ConsecutiveIVRCount   int                `json:"consecutive_ivr_count"`
	ConsecutiveHumanCount int                `json:"consecutive_human_count"`
	AttemptedDigits       map[string]bool    `json:"attempted_digits"`
	FailedDigits          map[string]bool    `json:"failed_digits"`
	LastDigitSent         string             `json:"last_digit_sent,omitempty"`
	LoopDetected          bool               `json:"loop_detected"`
	LastMenuTranscript    string             `json:"last_menu_transcript,omitempty"`
	MenuContext           MenuContext        `json:"menu_context"`
}

// NewStatus creates an empty per-call status.
func NewStatus() *Status {
	return &Status{
		Mode:            ModeUnknown,
		AttemptedDigits: make(map[string]bool),
		FailedDigits:    make(map[string]bool),
		MenuContext:     ContextUnknown,
	}
}

// RecordDigit marks a digit as attempted and remembers it as the last sent.
func (s *Status) RecordDigit(digit string) {
	s.AttemptedDigits[digit] = true
	s.LastDigitSent = digit
}

// RecordFailure marks a previously attempted digit as failed. Digits never
// attempted are ignored so FailedDigits stays a subset of AttemptedDigits.
func (s *Status) RecordFailure(digit string) {
	if s.AttemptedDigits[digit] {
		s.FailedDigits[digit] = true
	}
}
