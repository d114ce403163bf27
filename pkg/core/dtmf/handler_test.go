package dtmf

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/dialworks/ivrgate/pkg/core/ivr"
)

// mockSender records every send it receives.
type mockSender struct {
	mu     sync.Mutex
	sends  []string
	result bool
	err    error
	block  chan struct{} // if set, sends wait until closed or ctx done
}

func (m *mockSender) send(ctx context.Context, callID, digits string) (bool, error) {
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, digits)
	return m.result, m.err
}

func (m *mockSender) sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sends))
	copy(out, m.sends)
	return out
}

func fastConfig() Config {
	return Config{
		PreSendDelay:       0,
		PostSendCooldown:   200 * time.Millisecond,
		InterSequenceDelay: 0,
		CleanupTimeout:     time.Second,
	}
}

func TestCheckAndSend_ParsesAndSends(t *testing.T) {
	sender := &mockSender{result: true}
	h := NewHandler("CA123", sender.send, WithConfig(fastConfig()))

	results, err := h.CheckAndSend(context.Background(), "Pressing now <dtmf>1</dtmf>")
	if err != nil {
		t.Fatalf("CheckAndSend: %v", err)
	}
	if len(results) != 1 || !results[0].Success || results[0].Digits != "1" {
		t.Fatalf("results = %+v, want one successful send of 1", results)
	}
	if got := sender.sent(); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("sends = %v, want [1]", got)
	}
}

func TestCheckAndSend_DedupsSameOccurrence(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	text := "I'll press one <dtmf>1</dtmf>"
	for i := 0; i < 3; i++ {
		if _, err := h.CheckAndSend(context.Background(), text); err != nil {
			t.Fatalf("CheckAndSend: %v", err)
		}
	}
	if got := sender.sent(); len(got) != 1 {
		t.Errorf("sends = %v, want exactly one despite repeated scans", got)
	}
}

func TestCheckAndSend_IncrementalScan(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	// Text grows as tokens stream in; the tag arrives split across deltas.
	ctx := context.Background()
	h.CheckAndSend(ctx, "Let me press ")
	h.CheckAndSend(ctx, "Let me press <dt")
	h.CheckAndSend(ctx, "Let me press <dtmf>2</dt")
	h.CheckAndSend(ctx, "Let me press <dtmf>2</dtmf> for you")

	if got := sender.sent(); !reflect.DeepEqual(got, []string{"2"}) {
		t.Errorf("sends = %v, want [2] found once across incremental scans", got)
	}
}

func TestCheckAndSend_LongTagSplitNearClose(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))
	h.SetMenuContext(ivr.ContextPIN)

	// The delta boundary falls one byte before the closing marker completes,
	// with the whole tag inside the previous delta.
	ctx := context.Background()
	h.CheckAndSend(ctx, "Entering your PIN now <dtmf>12345</dtmf")
	h.CheckAndSend(ctx, "Entering your PIN now <dtmf>12345</dtmf>")

	if got := sender.sent(); !reflect.DeepEqual(got, []string{"12345"}) {
		t.Errorf("sends = %v, want the split tag sent once as [12345]", got)
	}
}

func TestCheckAndSend_OneTagPerCooldownWindow(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = time.Hour
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	results, err := h.CheckAndSend(context.Background(), "<dtmf>1</dtmf> then <dtmf>2</dtmf>")
	if err != nil {
		t.Fatalf("CheckAndSend: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %+v, want exactly one send", results)
	}
	if got := sender.sent(); !reflect.DeepEqual(got, []string{"1"}) {
		t.Errorf("sends = %v, want only the first tag before the cooldown opens", got)
	}
}

func TestCheckAndSend_SecondTagSentAfterCooldown(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 30 * time.Millisecond
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx := context.Background()
	text := "<dtmf>1</dtmf> then <dtmf>2</dtmf>"
	h.CheckAndSend(ctx, text)
	time.Sleep(40 * time.Millisecond)
	h.CheckAndSend(ctx, text)

	if got := sender.sent(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("sends = %v, want [1 2] spaced across cooldown windows", got)
	}
}

func TestCheckAndSend_CancelDuringPreSendDelayKeepsTag(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PreSendDelay = 20 * time.Millisecond
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.CheckAndSend(ctx, "Dialing <dtmf>7</dtmf>"); err == nil {
		t.Fatal("CheckAndSend with a cancelled context returned nil error")
	}
	if got := sender.sent(); len(got) != 0 {
		t.Fatalf("sends = %v, want none when the pre-send delay is cancelled", got)
	}

	results, err := h.CheckAndSend(context.Background(), "Dialing <dtmf>7</dtmf>")
	if err != nil {
		t.Fatalf("CheckAndSend: %v", err)
	}
	if len(results) != 1 || results[0].Digits != "7" {
		t.Fatalf("results = %+v, want the tag sent on the retry", results)
	}
}

func TestPartialTag(t *testing.T) {
	tests := []struct {
		s    string
		want bool
	}{
		{"<", true},
		{"<dt", true},
		{"<dtmf>", true},
		{"<dtmf>12345", true},
		{"<dtmf>12345</dtmf", true},
		{"<dtmf>12345</dtmf>", false},
		{"<dtmf></dtmf>", false},
		{"<dtmx", false},
		{"< 5", false},
		{"<dtmf>12 and", false},
	}
	for _, tt := range tests {
		if got := partialTag(tt.s); got != tt.want {
			t.Errorf("partialTag(%q) = %v, want %v", tt.s, got, tt.want)
		}
	}
}

func TestCheckAndSend_SameDigitsDifferentPositions(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx := context.Background()
	h.CheckAndSend(ctx, "<dtmf>1</dtmf>")
	h.CheckAndSend(ctx, "<dtmf>1</dtmf> and again <dtmf>1</dtmf>")

	if got := sender.sent(); !reflect.DeepEqual(got, []string{"1", "1"}) {
		t.Errorf("sends = %v, want the same digits sent at both positions", got)
	}
}

func TestCheckAndSend_CooldownBlocksAllSends(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = time.Hour
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx := context.Background()
	h.CheckAndSend(ctx, "<dtmf>1</dtmf>")

	results, err := h.CheckAndSend(ctx, "<dtmf>1</dtmf> then <dtmf>2</dtmf>")
	if err != nil {
		t.Fatalf("CheckAndSend: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results during cooldown = %+v, want none", results)
	}
	if got := sender.sent(); len(got) != 1 {
		t.Errorf("sends = %v, want only the pre-cooldown send", got)
	}
}

func TestCheckAndSend_CooldownPreservesPendingTags(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 50 * time.Millisecond
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx := context.Background()
	h.CheckAndSend(ctx, "<dtmf>1</dtmf>")

	// Inside the cooldown: nothing sent, tag not consumed.
	h.CheckAndSend(ctx, "<dtmf>1</dtmf> then <dtmf>2</dtmf>")

	time.Sleep(60 * time.Millisecond)
	h.CheckAndSend(ctx, "<dtmf>1</dtmf> then <dtmf>2</dtmf>")

	if got := sender.sent(); !reflect.DeepEqual(got, []string{"1", "2"}) {
		t.Errorf("sends = %v, want [1 2] with the second tag sent after cooldown", got)
	}
}

func TestCheckAndSend_SplitsByMenuContext(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx := context.Background()

	// Generic menu context: one digit at a time.
	h.CheckAndSend(ctx, "<dtmf>123</dtmf>")
	if got := sender.sent(); !reflect.DeepEqual(got, []string{"1", "2", "3"}) {
		t.Fatalf("menu-context sends = %v, want [1 2 3]", got)
	}

	// Extension context: one burst.
	h.SetMenuContext(ivr.ContextExtension)
	h.CheckAndSend(ctx, "<dtmf>123</dtmf> now extension <dtmf>4567</dtmf>")
	got := sender.sent()
	if got[len(got)-1] != "4567" {
		t.Errorf("extension-context send = %q, want burst 4567", got[len(got)-1])
	}
}

func TestSplitDigits(t *testing.T) {
	tests := []struct {
		digits string
		mc     ivr.MenuContext
		want   []string
	}{
		{"123", ivr.ContextMenu, []string{"1", "2", "3"}},
		{"123", ivr.ContextUnknown, []string{"1", "2", "3"}},
		{"4567", ivr.ContextExtension, []string{"4567"}},
		{"0000", ivr.ContextPIN, []string{"0000"}},
		{"1", ivr.ContextVoicemail, []string{"1"}},
		{"", ivr.ContextMenu, nil},
	}
	for _, tt := range tests {
		if got := SplitDigits(tt.digits, tt.mc); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("SplitDigits(%q, %v) = %v, want %v", tt.digits, tt.mc, got, tt.want)
		}
	}
}

func TestResetForNewResponse_AllowsNewTurn(t *testing.T) {
	sender := &mockSender{result: true}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	ctx := context.Background()
	h.CheckAndSend(ctx, "<dtmf>5</dtmf>")
	h.ResetForNewResponse()
	h.CheckAndSend(ctx, "<dtmf>5</dtmf>")

	if got := sender.sent(); !reflect.DeepEqual(got, []string{"5", "5"}) {
		t.Errorf("sends = %v, want the tag sent once per response", got)
	}
}

func TestSendAsync_TrackedAndCleanedUp(t *testing.T) {
	sender := &mockSender{result: true, block: make(chan struct{})}
	h := NewHandler("CA123", sender.send, WithConfig(fastConfig()))

	h.SendAsync(context.Background(), "9")
	if h.InFlight() != 1 {
		t.Fatalf("InFlight = %d, want 1", h.InFlight())
	}

	// Cleanup cancels the blocked send and waits it out.
	if err := h.Cleanup(context.Background()); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if h.InFlight() != 0 {
		t.Errorf("InFlight = %d after Cleanup, want 0", h.InFlight())
	}
}

func TestCheckAndSend_SendFailureDoesNotAbort(t *testing.T) {
	sender := &mockSender{result: false, err: errors.New("provider unavailable")}
	cfg := fastConfig()
	cfg.PostSendCooldown = 0
	h := NewHandler("CA123", sender.send, WithConfig(cfg))

	results, err := h.CheckAndSend(context.Background(), "<dtmf>1</dtmf>")
	if err != nil {
		t.Fatalf("CheckAndSend returned error for a send failure: %v", err)
	}
	if len(results) != 1 || results[0].Success {
		t.Fatalf("results = %+v, want one unsuccessful result", results)
	}
}
