package ivr

import "strings"

const (
	// DefaultLoopWindow is how many recent transcripts are kept for
	// similarity comparison.
	DefaultLoopWindow = 10

	// DefaultLoopThreshold is the Jaccard similarity at or above which two
	// consecutive transcripts count as the same menu repeating.
	DefaultLoopThreshold = 0.85

	// minLoopEntryLen filters out fragments too short to compare usefully.
	minLoopEntryLen = 10
)

// LoopDetector keeps a bounded FIFO of recent transcripts and reports when
// the call appears to be stuck hearing the same menu again. Only the two
// most recent entries decide the loop signal, so a single novel transcript
// breaks it even if older entries matched each other.
//
// LoopDetector is not safe for concurrent use; each call owns its own.
type LoopDetector struct {
	window    int
	threshold float64
	history   []string
}

// NewLoopDetector creates a detector with the given window size and
// similarity threshold. Zero or negative arguments fall back to defaults.
func NewLoopDetector(window int, threshold float64) *LoopDetector {
	if window <= 0 {
		window = DefaultLoopWindow
	}
	if threshold <= 0 {
		threshold = DefaultLoopThreshold
	}
	return &LoopDetector{window: window, threshold: threshold}
}

// Add appends a transcript to the history, evicting the oldest entry when
// the window is full. Entries shorter than the minimum length are ignored.
func (d *LoopDetector) Add(transcript string) {
	if len(strings.TrimSpace(transcript)) < minLoopEntryLen {
		return
	}
	d.history = append(d.history, transcript)
	if len(d.history) > d.window {
		d.history = d.history[1:]
	}
}

// IsLoopDetected reports whether the two most recent transcripts are similar
// enough to count as a repeated menu.
func (d *LoopDetector) IsLoopDetected() bool {
	return d.LastSimilarity() >= d.threshold
}

// LastSimilarity returns the Jaccard similarity between the two most recent
// history entries, or 0 when fewer than two exist.
func (d *LoopDetector) LastSimilarity() float64 {
	n := len(d.history)
	if n < 2 {
		return 0
	}
	return JaccardSimilarity(d.history[n-2], d.history[n-1])
}

// Len returns the number of transcripts currently held.
func (d *LoopDetector) Len() int {
	return len(d.history)
}

// Reset clears the history.
func (d *LoopDetector) Reset() {
	d.history = d.history[:0]
}

// JaccardSimilarity computes |A∩B| / |A∪B| over the whitespace-tokenized,
// lower-cased word sets of a and b. Identical texts score 1.0, disjoint
// texts 0.0, and empty input 0.0.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for tok := range setA {
		if setB[tok] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		set[tok] = true
	}
	return set
}
