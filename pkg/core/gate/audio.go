package gate

// mulawSilence is the mulaw byte encoding zero amplitude.
const mulawSilence = 0xFF

// audioAccumulator collects raw media-frame bytes until a duration target
// is reached, then hands the chunk off for transcription. Unlike a ring
// buffer it never discards: the gate consumes every byte it is sent.
//
// The gate's processing loop is single-threaded, so no locking is needed.
type audioAccumulator struct {
	config AudioConfig
	data   []byte
	target int
}

func newAudioAccumulator(config AudioConfig) *audioAccumulator {
	return &audioAccumulator{config: config}
}

// setTarget sizes the current accumulation window in bytes.
func (a *audioAccumulator) setTarget(bytes int) {
	a.target = bytes
}

// Write appends one media frame.
func (a *audioAccumulator) Write(frame []byte) {
	a.data = append(a.data, frame...)
}

// Full reports whether the window target has been reached.
func (a *audioAccumulator) Full() bool {
	return a.target > 0 && len(a.data) >= a.target
}

// Flush returns the accumulated audio and clears the buffer.
func (a *audioAccumulator) Flush() []byte {
	out := a.data
	a.data = nil
	return out
}

// Len returns the buffered byte count.
func (a *audioAccumulator) Len() int {
	return len(a.data)
}

// SilencePayload builds a frame of mulaw silence covering the given number
// of bytes of audio time, used by the keepalive loop.
func SilencePayload(n int) []byte {
	payload := make([]byte, n)
	for i := range payload {
		payload[i] = mulawSilence
	}
	return payload
}
