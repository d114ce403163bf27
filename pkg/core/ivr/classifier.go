package ivr

import (
	"regexp"
	"strings"
)

const (
	// minTranscriptLen is the shortest transcript worth classifying.
	// Anything shorter is noise from a partial transcription cycle.
	minTranscriptLen = 4

	// exclusiveBoost is added to the confidence whenever an exclusive-IVR
	// or IVR-error pattern fires, since those are near-certain signals.
	exclusiveBoost = 0.2
)

// Classifier maps a transcript to a ClassificationMode with a confidence.
// It is stateless; one instance can serve any number of calls concurrently.
type Classifier struct {
	exclusiveIVR []*regexp.Regexp
	ivrError     []*regexp.Regexp
	generalIVR   []*regexp.Regexp
	human        []*regexp.Regexp
	voicemail    []*regexp.Regexp
}

// NewClassifier creates a classifier backed by the package pattern tables.
func NewClassifier() *Classifier {
	return &Classifier{
		exclusiveIVR: exclusiveIVRPatterns,
		ivrError:     ivrErrorPatterns,
		generalIVR:   generalIVRPatterns,
		human:        humanPatterns,
		voicemail:    voicemailPatterns,
	}
}

// Classify evaluates one transcript and returns the detected mode with a
// confidence in [0,1].
//
// The evaluation is priority-ordered, not a flat vote. A menu prompt that
// requests digit input always classifies as IVR even when voicemail phrases
// co-occur: "press 1 to leave a message" is a menu, not a greeting. That
// dominance rule is the load-bearing property of the whole gate.
func (c *Classifier) Classify(transcript string) (ClassificationMode, float64) {
	text := strings.ToLower(strings.TrimSpace(transcript))
	if len(text) < minTranscriptLen {
		return ModeUnknown, 0
	}

	exclusive := countMatches(c.exclusiveIVR, text)
	errors := countMatches(c.ivrError, text)
	general := countMatches(c.generalIVR, text)
	human := countMatches(c.human, text)
	voicemail := countMatches(c.voicemail, text)

	total := exclusive + errors + general + human + voicemail

	// Rule 1: digit-input prompts and retry phrases are decisive.
	if exclusive+errors > 0 {
		conf := float64(exclusive+errors+general)/float64(total) + exclusiveBoost
		if conf > 1 {
			conf = 1
		}
		return ModeIVR, conf
	}

	// Rule 2: silence from every table.
	if total == 0 {
		return ModeUnknown, 0
	}

	// Rule 3: human phrases outvoting both machine categories.
	if human > general && human > voicemail {
		return ModeConversation, float64(human) / float64(total)
	}

	// Rule 4: voicemail phrases with no generic menu language around them.
	if voicemail > 0 && general == 0 {
		return ModeVoicemail, float64(voicemail) / float64(total)
	}

	// Rule 5: generic menu language (hold messages, queue prompts).
	if general > 0 {
		return ModeIVR, float64(general) / float64(total)
	}

	return ModeUnknown, 0.3
}

// DetectMenuContext guesses what kind of input the prompt expects. The
// result steers digit-splitting downstream: extension and PIN contexts send
// multi-digit bursts, generic menus send one digit at a time.
func (c *Classifier) DetectMenuContext(transcript string) MenuContext {
	text := strings.ToLower(transcript)

	if containsAny(text, extensionKeywords) {
		return ContextExtension
	}
	if containsAny(text, pinKeywords) {
		return ContextPIN
	}
	if containsAny(text, vmContextKeywords) {
		return ContextVoicemail
	}
	if containsAny(text, menuKeywords) {
		return ContextMenu
	}
	return ContextUnknown
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
