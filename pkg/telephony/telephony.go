// Package telephony defines the provider-neutral surface between the IVR
// navigation engine and a telephony backend: the media-stream events the
// engine consumes and the digit-send primitive it drives.
package telephony

import "context"

// EventType discriminates media-stream events.
type EventType int

const (
	// EventStart signals the provider began streaming; carries the stream ID.
	EventStart EventType = iota
	// EventMedia carries one frame of decoded telephony audio.
	EventMedia
	// EventStop signals the provider ended the stream (call hung up).
	EventStop
	// EventError signals a protocol-level problem on the stream.
	EventError
)

// String returns a human-readable event name.
func (t EventType) String() string {
	switch t {
	case EventStart:
		return "start"
	case EventMedia:
		return "media"
	case EventStop:
		return "stop"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// StreamEvent is one event received from the media stream, with payloads
// already decoded out of the wire encoding.
type StreamEvent struct {
	Type EventType
	// StreamID identifies the stream; set on EventStart.
	StreamID string
	// CallID is the provider call identifier, when the stream carries one.
	CallID string
	// Audio is the raw audio payload; set on EventMedia.
	Audio []byte
	// Message describes the problem; set on EventError.
	Message string
}

// MediaStream is a live media-stream connection. Implementations never close
// the underlying connection: the stream outlives Phase 1 and is handed to
// the conversational engine afterwards.
type MediaStream interface {
	// Receive blocks until the next event arrives or ctx is done.
	Receive(ctx context.Context) (*StreamEvent, error)

	// SendMedia writes one outbound audio frame (keepalive silence) to the
	// stream in the provider's wire encoding.
	SendMedia(payload []byte) error
}

// DTMFSender sends touch-tone digits into an active call.
type DTMFSender interface {
	// SendDTMF plays the digit string on the call and reports whether the
	// provider accepted it.
	SendDTMF(ctx context.Context, callID, digits string) (bool, error)
}
