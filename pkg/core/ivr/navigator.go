package ivr

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// DefaultMaxNavigationAttempts bounds how many digit selections the
// navigator makes before giving up and handing the call to the AI engine.
const DefaultMaxNavigationAttempts = 5

// Menu option extraction templates. Both prompt orders occur in the wild:
// "press 1 for sales" and "for sales press 1". Descriptions stop at clause
// punctuation so one sentence cannot swallow the next option.
var (
	pressFirstPattern = regexp.MustCompile(`press\s+(\w+)\s+(?:for|to|if)\s+([^.,;]+)`)
	pressLastPatterns = []*regexp.Regexp{
		regexp.MustCompile(`for\s+([^.,;]+?)\s*,?\s*(?:please\s+)?press\s+(\w+)`),
		regexp.MustCompile(`to\s+([^.,;]+?)\s*,?\s*(?:please\s+)?press\s+(\w+)`),
	}
)

// spokenDigits maps digit words as transcribed back to DTMF characters.
var spokenDigits = map[string]string{
	"zero": "0", "one": "1", "two": "2", "three": "3", "four": "4",
	"five": "5", "six": "6", "seven": "7", "eight": "8", "nine": "9",
	"star": "*", "pound": "#", "hash": "#",
}

// goalSynonyms expands goal keywords so "reach a human" can match a menu
// option described as "speak with a representative".
var goalSynonyms = map[string][]string{
	"human":          {"representative", "agent", "operator", "person", "staff", "receptionist"},
	"representative": {"agent", "operator", "person", "human"},
	"agent":          {"representative", "operator", "person"},
	"operator":       {"representative", "agent", "person"},
	"support":        {"help", "technical", "service", "assistance"},
	"billing":        {"payment", "payments", "account", "invoice"},
	"sales":          {"orders", "order", "purchase", "buy"},
	"appointment":    {"schedule", "scheduling", "booking", "reservations"},
	"pharmacy":       {"prescription", "prescriptions", "refill"},
}

// Navigator is the per-call menu-option extractor and digit-selection
// policy. It holds which digits have been tried and which failed, but it
// never sends anything itself; the orchestrator owns sending and reports
// outcomes back through RecordAttempt and RecordFailure.
//
// Navigator is not safe for concurrent use; each call owns its own.
type Navigator struct {
	goal        string
	maxAttempts int

	attempted    map[string]bool
	failed       map[string]bool
	attemptCount int
}

// NewNavigator creates a navigator for one call. The goal is free text such
// as "reach a human representative". maxAttempts <= 0 uses the default.
func NewNavigator(goal string, maxAttempts int) *Navigator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxNavigationAttempts
	}
	return &Navigator{
		goal:        goal,
		maxAttempts: maxAttempts,
		attempted:   make(map[string]bool),
		failed:      make(map[string]bool),
	}
}

// Goal returns the navigation goal text.
func (n *Navigator) Goal() string { return n.goal }

// AttemptedDigits returns the digits tried so far, sorted for stable output.
func (n *Navigator) AttemptedDigits() []string { return sortedKeys(n.attempted) }

// FailedDigits returns the digits recorded as failed, sorted.
func (n *Navigator) FailedDigits() []string { return sortedKeys(n.failed) }

// RecordAttempt marks a digit as tried. The orchestrator calls this after a
// send actually happens, not when the digit is merely selected.
func (n *Navigator) RecordAttempt(digit string) {
	n.attempted[digit] = true
}

// RecordFailure marks a tried digit as having led back to the same menu.
// Failure is determined externally by comparing pre/post-menu similarity.
func (n *Navigator) RecordFailure(digit string) {
	if n.attempted[digit] {
		n.failed[digit] = true
	}
}

// Reset clears all per-call state for reuse on a new call.
func (n *Navigator) Reset() {
	n.attempted = make(map[string]bool)
	n.failed = make(map[string]bool)
	n.attemptCount = 0
}

// ExtractMenuOptions pulls digit/description pairs out of a menu prompt.
// Spoken digit words are normalized ("star" to "*", "pound" to "#") and
// duplicate digits keep their first-seen description.
func ExtractMenuOptions(transcript string) []MenuOption {
	text := strings.ToLower(transcript)

	var options []MenuOption
	seen := make(map[string]bool)

	add := func(digit, desc string) {
		digit = normalizeDigit(digit)
		if digit == "" || seen[digit] {
			return
		}
		seen[digit] = true
		options = append(options, MenuOption{Digit: digit, Description: strings.TrimSpace(desc)})
	}

	for _, m := range pressFirstPattern.FindAllStringSubmatch(text, -1) {
		add(m[1], m[2])
	}
	for _, p := range pressLastPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			add(m[2], m[1])
		}
	}
	return options
}

// SelectDigit decides what to do with the given menu prompt. Each call
// consumes one navigation attempt; once the budget is exhausted every
// subsequent call returns a fallback decision.
func (n *Navigator) SelectDigit(transcript string) NavigationResult {
	n.attemptCount++
	if n.attemptCount > n.maxAttempts {
		return FallbackToAI(fmt.Sprintf("exhausted %d navigation attempts", n.maxAttempts))
	}

	options := ExtractMenuOptions(transcript)

	// Best goal match among untried options.
	if best, score := n.bestMatch(options); best != nil && score > 0 {
		return PressDigit(best.Digit, fmt.Sprintf("matched goal %q: %s", n.goal, best.Description))
	}

	// Operator fallback: 0 almost always reaches a person.
	if !n.attempted["0"] {
		return PressDigit("0", "fallback: operator")
	}

	// Any extracted option we have not tried yet.
	for _, opt := range options {
		if !n.attempted[opt.Digit] {
			return PressDigit(opt.Digit, fmt.Sprintf("untried option: %s", opt.Description))
		}
	}

	// Sequential sweep as a last resort.
	for d := '1'; d <= '9'; d++ {
		digit := string(d)
		if !n.attempted[digit] {
			return PressDigit(digit, "sequential fallback")
		}
	}

	return FallbackToAI("all digits exhausted")
}

// bestMatch scores untried options against the goal and returns the highest
// scorer, or nil when nothing scores above zero.
func (n *Navigator) bestMatch(options []MenuOption) (*MenuOption, int) {
	keywords := n.goalKeywords()
	if len(keywords) == 0 {
		return nil, 0
	}

	var best *MenuOption
	bestScore := 0
	for i := range options {
		opt := &options[i]
		if n.attempted[opt.Digit] {
			continue
		}
		score := scoreDescription(opt.Description, keywords)
		if score > bestScore {
			best = opt
			bestScore = score
		}
	}
	return best, bestScore
}

// goalKeywords tokenizes the goal and expands it through the synonym table.
func (n *Navigator) goalKeywords() map[string]bool {
	keywords := make(map[string]bool)
	for _, word := range strings.Fields(strings.ToLower(n.goal)) {
		word = strings.Trim(word, ".,!?\"'")
		if len(word) < 3 {
			continue
		}
		keywords[word] = true
		for _, syn := range goalSynonyms[word] {
			keywords[syn] = true
		}
	}
	return keywords
}

// scoreDescription counts exact keyword hits (worth 2) and substring
// partial matches (worth 1) between a menu description and the goal set.
func scoreDescription(description string, keywords map[string]bool) int {
	score := 0
	for _, word := range strings.Fields(strings.ToLower(description)) {
		word = strings.Trim(word, ".,!?\"'")
		if word == "" {
			continue
		}
		if keywords[word] {
			score += 2
			continue
		}
		for kw := range keywords {
			if len(kw) >= 4 && (strings.Contains(word, kw) || strings.Contains(kw, word) && len(word) >= 4) {
				score++
				break
			}
		}
	}
	return score
}

func normalizeDigit(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if mapped, ok := spokenDigits[raw]; ok {
		return mapped
	}
	if len(raw) == 1 && (raw == "*" || raw == "#" || (raw >= "0" && raw <= "9")) {
		return raw
	}
	return ""
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
