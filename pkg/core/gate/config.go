package gate

import "time"

// AudioConfig specifies the telephony audio format of the media stream.
// Twilio Media Streams carry 8-bit mulaw at 8 kHz mono, so duration maps to
// bytes one-to-one per sample.
type AudioConfig struct {
	// SampleRate in Hz. Telephony default: 8000.
	SampleRate int `json:"sample_rate"`

	// Channels: 1 for mono.
	Channels int `json:"channels"`

	// BitsPerSample: 8 for mulaw.
	BitsPerSample int `json:"bits_per_sample"`
}

// DefaultAudioConfig returns the standard telephony configuration.
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		SampleRate:    8000,
		Channels:      1,
		BitsPerSample: 8,
	}
}

// BytesPerSecond returns the audio byte rate.
func (c AudioConfig) BytesPerSecond() int {
	return c.SampleRate * c.Channels * (c.BitsPerSample / 8)
}

// BytesForDuration returns the byte count equivalent to d of audio.
func (c AudioConfig) BytesForDuration(d time.Duration) int {
	return int(int64(c.BytesPerSecond()) * d.Milliseconds() / 1000)
}

// Config holds all tuning for a Phase-1 gate run.
type Config struct {
	// Audio is the media stream format.
	Audio AudioConfig `json:"audio"`

	// FirstBufferWindow is the duration of the first accumulation window.
	// It is shorter than the rest so a human answering with a quick "hello"
	// is detected before committing to a full menu-length window.
	FirstBufferWindow time.Duration `json:"first_buffer_window"`

	// BufferWindow is the duration of every window after the first, sized
	// to capture a whole menu prompt.
	BufferWindow time.Duration `json:"buffer_window"`

	// OverallTimeout is the hard wall-clock budget for the whole run.
	OverallTimeout time.Duration `json:"overall_timeout"`

	// PostDTMFCooldown is how long to wait after pressing a digit before
	// resuming buffering, giving the menu time to react.
	PostDTMFCooldown time.Duration `json:"post_dtmf_cooldown"`

	// KeepaliveInterval spaces the silence frames sent to the provider so
	// it does not close an idle stream.
	KeepaliveInterval time.Duration `json:"keepalive_interval"`

	// KeepalivePayload is the duration of silence in each keepalive frame.
	KeepalivePayload time.Duration `json:"keepalive_payload"`

	// NavigationGoal is the free-text goal handed to the Navigator.
	NavigationGoal string `json:"navigation_goal"`

	// MaxNavAttempts bounds digit selections before falling back to AI.
	MaxNavAttempts int `json:"max_nav_attempts"`

	// LoopWindow and LoopThreshold configure repeated-menu detection.
	LoopWindow    int     `json:"loop_window"`
	LoopThreshold float64 `json:"loop_threshold"`

	// ConsecutiveThreshold is how many agreeing classifications Phase 2
	// needs before flipping the externally visible mode.
	ConsecutiveThreshold int `json:"consecutive_threshold"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Audio:                DefaultAudioConfig(),
		FirstBufferWindow:    2 * time.Second,
		BufferWindow:         4 * time.Second,
		OverallTimeout:       60 * time.Second,
		PostDTMFCooldown:     3 * time.Second,
		KeepaliveInterval:    2 * time.Second,
		KeepalivePayload:     500 * time.Millisecond,
		NavigationGoal:       "reach a human representative",
		MaxNavAttempts:       5,
		LoopWindow:           10,
		LoopThreshold:        0.85,
		ConsecutiveThreshold: 2,
	}
}
