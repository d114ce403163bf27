package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	twiliogo "github.com/twilio/twilio-go"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/twilio/twilio-go/twiml"

	"github.com/dialworks/ivrgate/pkg/telephony"
)

// Verify interface compliance at compile time.
var _ telephony.DTMFSender = (*DTMFSender)(nil)

// pauseAfterDigits keeps the call parked on the new TwiML document after the
// tones play, so the media stream stays up while navigation continues.
const pauseAfterDigits = "120"

// callUpdater is the slice of the Twilio REST API the sender uses.
type callUpdater interface {
	UpdateCall(sid string, params *api.UpdateCallParams) (*api.ApiV2010Call, error)
}

// DTMFSender plays digits into a live call by updating it with a TwiML
// document containing a <Play digits> verb.
type DTMFSender struct {
	calls  callUpdater
	logger *slog.Logger
}

// SenderOption configures a DTMFSender.
type SenderOption func(*DTMFSender)

// WithSenderLogger sets the logger. Defaults to slog.Default().
func WithSenderLogger(l *slog.Logger) SenderOption {
	return func(s *DTMFSender) { s.logger = l }
}

// NewDTMFSender creates a sender authenticated with the given Twilio
// credentials.
func NewDTMFSender(accountSID, authToken string, opts ...SenderOption) *DTMFSender {
	client := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return newDTMFSender(client.Api, opts...)
}

func newDTMFSender(calls callUpdater, opts ...SenderOption) *DTMFSender {
	s := &DTMFSender{calls: calls, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendDTMF plays the digit string on the call. A short 'w' wait is prefixed
// so the tone does not collide with the tail of the prompt.
func (s *DTMFSender) SendDTMF(ctx context.Context, callID, digits string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !validDigits(digits) {
		return false, fmt.Errorf("invalid dtmf digits %q", digits)
	}

	doc, err := PlayDigitsTwiML(digits)
	if err != nil {
		return false, fmt.Errorf("build twiml: %w", err)
	}

	params := &api.UpdateCallParams{}
	params.SetTwiml(doc)
	if _, err := s.calls.UpdateCall(callID, params); err != nil {
		return false, fmt.Errorf("update call %s: %w", callID, err)
	}

	s.logger.Debug("dtmf played via call update", "call_id", callID, "digits", digits)
	return true, nil
}

// PlayDigitsTwiML builds the TwiML document that plays the digits and then
// parks the call.
func PlayDigitsTwiML(digits string) (string, error) {
	play := &twiml.VoicePlay{Digits: "w" + digits}
	pause := &twiml.VoicePause{Length: pauseAfterDigits}
	return twiml.Voice([]twiml.Element{play, pause})
}

func validDigits(digits string) bool {
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if !strings.ContainsRune("0123456789*#w", r) {
			return false
		}
	}
	return true
}
