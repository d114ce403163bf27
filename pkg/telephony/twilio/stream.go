package twilio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/dialworks/ivrgate/pkg/telephony"
)

// Verify interface compliance at compile time.
var _ telephony.MediaStream = (*MediaStream)(nil)

// Conn is the subset of *websocket.Conn the stream needs.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
}

// MediaStream adapts a Media Streams websocket connection to the
// telephony.MediaStream interface. A background read loop translates wire
// frames into events; mark and dtmf frames are dropped since the engine has
// no use for them.
//
// MediaStream never closes the websocket. The connection is owned by
// whoever accepted it and is handed past Phase 1 intact.
type MediaStream struct {
	conn   Conn
	logger *slog.Logger

	mu        sync.RWMutex
	streamSID string
	callSID   string

	events chan *telephony.StreamEvent
	once   sync.Once
}

// StreamOption configures a MediaStream.
type StreamOption func(*MediaStream)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) StreamOption {
	return func(s *MediaStream) { s.logger = l }
}

// NewMediaStream wraps an accepted websocket connection and starts the read
// loop.
func NewMediaStream(conn Conn, opts ...StreamOption) *MediaStream {
	s := &MediaStream{
		conn:   conn,
		logger: slog.Default(),
		events: make(chan *telephony.StreamEvent, 100),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.readLoop()
	return s
}

// StreamSID returns the stream identifier, available after the start frame.
func (s *MediaStream) StreamSID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamSID
}

// CallSID returns the call identifier, available after the start frame.
func (s *MediaStream) CallSID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.callSID
}

// Receive blocks until the next stream event arrives or ctx is done.
// It returns io.EOF once the read loop has finished and all buffered events
// were drained.
func (s *MediaStream) Receive(ctx context.Context) (*telephony.StreamEvent, error) {
	select {
	case ev, ok := <-s.events:
		if !ok {
			return nil, io.EOF
		}
		return ev, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendMedia writes one outbound audio frame in wire encoding.
func (s *MediaStream) SendMedia(payload []byte) error {
	data, err := MarshalMediaFrame(s.StreamSID(), payload)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write media frame: %w", err)
	}
	return nil
}

// readLoop reads wire frames until the socket errors or the provider sends
// stop, translating them into engine events.
func (s *MediaStream) readLoop() {
	defer s.closeEvents()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.emit(&telephony.StreamEvent{Type: telephony.EventStop})
				return
			}
			s.emit(&telephony.StreamEvent{Type: telephony.EventError, Message: err.Error()})
			return
		}

		frame, err := ParseFrame(data)
		if err != nil {
			s.emit(&telephony.StreamEvent{Type: telephony.EventError, Message: err.Error()})
			continue
		}

		switch frame.Event {
		case eventStart:
			s.mu.Lock()
			s.streamSID = frame.Start.StreamSID
			s.callSID = frame.Start.CallSID
			s.mu.Unlock()
			s.emit(&telephony.StreamEvent{
				Type:     telephony.EventStart,
				StreamID: frame.Start.StreamSID,
				CallID:   frame.Start.CallSID,
			})

		case eventMedia:
			audio, err := frame.DecodeAudio()
			if err != nil {
				s.logger.Debug("dropping undecodable media frame", "error", err)
				continue
			}
			s.emit(&telephony.StreamEvent{Type: telephony.EventMedia, Audio: audio})

		case eventStop:
			ev := &telephony.StreamEvent{Type: telephony.EventStop}
			if frame.Stop != nil {
				ev.CallID = frame.Stop.CallSID
			}
			s.emit(ev)
			return

		case eventError:
			msg := "provider error"
			if frame.Error != nil && frame.Error.Message != "" {
				msg = frame.Error.Message
			}
			s.emit(&telephony.StreamEvent{Type: telephony.EventError, Message: msg})

		case eventConnected, eventMark, eventDTMF:
			// Not interesting to the engine.
		}
	}
}

func (s *MediaStream) emit(ev *telephony.StreamEvent) {
	select {
	case s.events <- ev:
	default:
		// Consumer fell behind; dropping a media frame is preferable to
		// blocking the read loop and stalling the socket.
		s.logger.Debug("dropping stream event, consumer behind", "type", ev.Type.String())
	}
}

func (s *MediaStream) closeEvents() {
	s.once.Do(func() { close(s.events) })
}
