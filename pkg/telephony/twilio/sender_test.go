package twilio

import (
	"context"
	"errors"
	"strings"
	"testing"

	api "github.com/twilio/twilio-go/rest/api/v2010"
)

type mockCallUpdater struct {
	lastSID    string
	lastParams *api.UpdateCallParams
	err        error
}

func (m *mockCallUpdater) UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error) {
	m.lastSID = sid
	m.lastParams = params
	if m.err != nil {
		return nil, m.err
	}
	return &api.ApiV2010Call{}, nil
}

func TestSendDTMF_UpdatesCallWithPlayTwiML(t *testing.T) {
	updater := &mockCallUpdater{}
	sender := newDTMFSender(updater)

	ok, err := sender.SendDTMF(context.Background(), "CA123", "1")
	if err != nil || !ok {
		t.Fatalf("SendDTMF = %v, %v", ok, err)
	}
	if updater.lastSID != "CA123" {
		t.Errorf("call SID = %q, want CA123", updater.lastSID)
	}
	if updater.lastParams == nil || updater.lastParams.Twiml == nil {
		t.Fatal("no TwiML set on update params")
	}
	doc := *updater.lastParams.Twiml
	if !strings.Contains(doc, "<Play") || !strings.Contains(doc, `digits="w1"`) {
		t.Errorf("twiml = %q, want Play with digits", doc)
	}
}

func TestSendDTMF_RejectsInvalidDigits(t *testing.T) {
	updater := &mockCallUpdater{}
	sender := newDTMFSender(updater)

	for _, digits := range []string{"", "abc", "1;2"} {
		if ok, err := sender.SendDTMF(context.Background(), "CA123", digits); ok || err == nil {
			t.Errorf("SendDTMF(%q) = %v, %v, want rejection", digits, ok, err)
		}
	}
	if updater.lastParams != nil {
		t.Error("invalid digits reached the API client")
	}
}

func TestSendDTMF_APIError(t *testing.T) {
	updater := &mockCallUpdater{err: errors.New("call not in-progress")}
	sender := newDTMFSender(updater)

	ok, err := sender.SendDTMF(context.Background(), "CA123", "5")
	if ok || err == nil {
		t.Fatalf("SendDTMF = %v, %v, want failure", ok, err)
	}
}

func TestSendDTMF_CancelledContext(t *testing.T) {
	updater := &mockCallUpdater{}
	sender := newDTMFSender(updater)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if ok, err := sender.SendDTMF(ctx, "CA123", "1"); ok || !errors.Is(err, context.Canceled) {
		t.Errorf("SendDTMF = %v, %v, want context.Canceled", ok, err)
	}
}

func TestPlayDigitsTwiML(t *testing.T) {
	doc, err := PlayDigitsTwiML("42#")
	if err != nil {
		t.Fatalf("PlayDigitsTwiML: %v", err)
	}
	for _, want := range []string{"<Play", `digits="w42#"`, "<Pause"} {
		if !strings.Contains(doc, want) {
			t.Errorf("twiml %q missing %q", doc, want)
		}
	}
}
