// Package twilio implements the telephony interfaces on top of Twilio Media
// Streams (websocket JSON frames) and the Twilio REST API.
package twilio

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Wire event names used by Media Streams.
const (
	eventConnected = "connected"
	eventStart     = "start"
	eventMedia     = "media"
	eventStop      = "stop"
	eventMark      = "mark"
	eventDTMF      = "dtmf"
	eventError     = "error"
)

// ErrProtocol marks a malformed or unexpected stream frame.
var ErrProtocol = errors.New("twilio: protocol error")

// Frame is one Media Streams JSON message. Exactly one of the payload
// pointers is set, matching the Event discriminator.
type Frame struct {
	Event          string        `json:"event"`
	SequenceNumber string        `json:"sequenceNumber,omitempty"`
	StreamSID      string        `json:"streamSid,omitempty"`
	Start          *StartPayload `json:"start,omitempty"`
	Media          *MediaPayload `json:"media,omitempty"`
	Stop           *StopPayload  `json:"stop,omitempty"`
	Mark           *MarkPayload  `json:"mark,omitempty"`
	Error          *ErrorPayload `json:"error,omitempty"`
}

// StartPayload carries stream metadata on the start frame.
type StartPayload struct {
	StreamSID    string            `json:"streamSid"`
	AccountSID   string            `json:"accountSid"`
	CallSID      string            `json:"callSid"`
	Tracks       []string          `json:"tracks"`
	MediaFormat  MediaFormat       `json:"mediaFormat"`
	CustomParams map[string]string `json:"customParameters,omitempty"`
}

// MediaFormat describes the audio encoding of the stream.
type MediaFormat struct {
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// MediaPayload carries one base64-encoded audio chunk.
type MediaPayload struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   string `json:"payload"`
}

// StopPayload carries call identifiers on the stop frame.
type StopPayload struct {
	AccountSID string `json:"accountSid"`
	CallSID    string `json:"callSid"`
}

// MarkPayload names a playback synchronization point.
type MarkPayload struct {
	Name string `json:"name"`
}

// ErrorPayload describes a stream-level error from the provider.
type ErrorPayload struct {
	Message string `json:"message"`
}

// ParseFrame decodes one websocket text message into a Frame, validating
// that the discriminator matches the payload that came with it.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	switch f.Event {
	case eventConnected, eventStop, eventMark, eventDTMF:
		// No payload required.
	case eventStart:
		if f.Start == nil {
			return nil, fmt.Errorf("%w: start frame without start payload", ErrProtocol)
		}
	case eventMedia:
		if f.Media == nil || f.Media.Payload == "" {
			return nil, fmt.Errorf("%w: media frame without payload", ErrProtocol)
		}
	case eventError:
		// Twilio omits a structured body on some error frames.
	case "":
		return nil, fmt.Errorf("%w: missing event discriminator", ErrProtocol)
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrProtocol, f.Event)
	}
	return &f, nil
}

// DecodeAudio returns the decoded audio bytes of a media frame.
func (f *Frame) DecodeAudio() ([]byte, error) {
	if f.Media == nil {
		return nil, fmt.Errorf("%w: not a media frame", ErrProtocol)
	}
	audio, err := base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: bad media payload: %v", ErrProtocol, err)
	}
	return audio, nil
}

// MarshalMediaFrame builds an outbound media frame for the given stream with
// the payload base64-encoded the way Twilio expects.
func MarshalMediaFrame(streamSID string, payload []byte) ([]byte, error) {
	f := Frame{
		Event:     eventMedia,
		StreamSID: streamSID,
		Media:     &MediaPayload{Payload: base64.StdEncoding.EncodeToString(payload)},
	}
	return json.Marshal(f)
}
