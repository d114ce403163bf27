package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the server-wide configuration, loaded from the environment.
type Config struct {
	Addr string

	// Twilio credentials for the DTMF sender.
	TwilioAccountSID string
	TwilioAuthToken  string

	// Deepgram credentials for transcription.
	DeepgramAPIKey  string
	DeepgramBaseURL string
	DeepgramModel   string

	// Gate tuning.
	NavigationGoal       string
	FirstBufferWindow    time.Duration
	BufferWindow         time.Duration
	GateTimeout          time.Duration
	PostDTMFCooldown     time.Duration
	KeepaliveInterval    time.Duration
	MaxNavAttempts       int
	LoopThreshold        float64
	ConsecutiveThreshold int

	// Websocket limits.
	WSMaxMessageBytes int64

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// MetricsNamespace prefixes every Prometheus metric name.
	MetricsNamespace string
}

// LoadFromEnv builds a Config from the environment and validates it.
// Credentials use the vendors' conventional variable names; everything else
// is prefixed IVRGATE_.
func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                 envOr("IVRGATE_ADDR", ":8080"),
		TwilioAccountSID:     strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID")),
		TwilioAuthToken:      strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")),
		DeepgramAPIKey:       strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
		DeepgramBaseURL:      envOr("IVRGATE_DEEPGRAM_BASE_URL", "https://api.deepgram.com"),
		DeepgramModel:        envOr("IVRGATE_DEEPGRAM_MODEL", "nova-2-phonecall"),
		NavigationGoal:       envOr("IVRGATE_NAVIGATION_GOAL", "reach a human representative"),
		FirstBufferWindow:    envDurationOr("IVRGATE_FIRST_BUFFER_WINDOW", 2*time.Second),
		BufferWindow:         envDurationOr("IVRGATE_BUFFER_WINDOW", 4*time.Second),
		GateTimeout:          envDurationOr("IVRGATE_GATE_TIMEOUT", 60*time.Second),
		PostDTMFCooldown:     envDurationOr("IVRGATE_POST_DTMF_COOLDOWN", 3*time.Second),
		KeepaliveInterval:    envDurationOr("IVRGATE_KEEPALIVE_INTERVAL", 2*time.Second),
		MaxNavAttempts:       envIntOr("IVRGATE_MAX_NAV_ATTEMPTS", 5),
		LoopThreshold:        envFloat64Or("IVRGATE_LOOP_THRESHOLD", 0.85),
		ConsecutiveThreshold: envIntOr("IVRGATE_CONSECUTIVE_THRESHOLD", 2),
		WSMaxMessageBytes:    envInt64Or("IVRGATE_WS_MAX_MESSAGE_BYTES", 64<<10),
		ReadHeaderTimeout:    envDurationOr("IVRGATE_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod:  envDurationOr("IVRGATE_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
		MetricsNamespace:     envOr("IVRGATE_METRICS_NAMESPACE", "ivrgate"),
	}

	if cfg.TwilioAccountSID == "" {
		return Config{}, fmt.Errorf("TWILIO_ACCOUNT_SID must be set")
	}
	if cfg.TwilioAuthToken == "" {
		return Config{}, fmt.Errorf("TWILIO_AUTH_TOKEN must be set")
	}
	if cfg.DeepgramAPIKey == "" {
		return Config{}, fmt.Errorf("DEEPGRAM_API_KEY must be set")
	}
	if strings.TrimSpace(cfg.NavigationGoal) == "" {
		return Config{}, fmt.Errorf("IVRGATE_NAVIGATION_GOAL must not be empty")
	}
	if cfg.FirstBufferWindow <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_FIRST_BUFFER_WINDOW must be > 0")
	}
	if cfg.BufferWindow <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_BUFFER_WINDOW must be > 0")
	}
	if cfg.GateTimeout <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_GATE_TIMEOUT must be > 0")
	}
	if cfg.PostDTMFCooldown <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_POST_DTMF_COOLDOWN must be > 0")
	}
	if cfg.KeepaliveInterval <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_KEEPALIVE_INTERVAL must be > 0")
	}
	if cfg.MaxNavAttempts <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_MAX_NAV_ATTEMPTS must be > 0")
	}
	if cfg.LoopThreshold <= 0 || cfg.LoopThreshold > 1 {
		return Config{}, fmt.Errorf("IVRGATE_LOOP_THRESHOLD must be in (0, 1]")
	}
	if cfg.ConsecutiveThreshold <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_CONSECUTIVE_THRESHOLD must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("IVRGATE_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envFloat64Or(key string, def float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
