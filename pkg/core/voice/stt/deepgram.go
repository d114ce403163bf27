package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const deepgramBaseURL = "https://api.deepgram.com"

var _ Provider = (*DeepgramProvider)(nil)

// DeepgramProvider implements the Provider interface using Deepgram's
// prerecorded transcription API. Telephony audio goes up raw with encoding
// metadata in the query string, so no container format is needed.
type DeepgramProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDeepgram creates a new Deepgram STT provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey:     apiKey,
		baseURL:    deepgramBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewDeepgramWithClient creates a Deepgram provider with a custom HTTP
// client and base URL. Empty baseURL keeps the default.
func NewDeepgramWithClient(apiKey, baseURL string, client *http.Client) *DeepgramProvider {
	if baseURL == "" {
		baseURL = deepgramBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &DeepgramProvider{apiKey: apiKey, baseURL: baseURL, httpClient: client}
}

// Name returns the provider identifier.
func (d *DeepgramProvider) Name() string {
	return "deepgram"
}

// deepgramResponse mirrors the slice of Deepgram's response the engine uses.
type deepgramResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Transcribe sends the audio to Deepgram's /v1/listen endpoint and returns
// the best alternative. No detected speech yields an empty Transcript, not
// an error.
func (d *DeepgramProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	q := url.Values{}
	model := opts.Model
	if model == "" {
		model = "nova-2-phonecall"
	}
	q.Set("model", model)
	if opts.Language != "" {
		q.Set("language", opts.Language)
	}
	encoding := opts.Encoding
	if encoding == "" {
		encoding = "mulaw"
	}
	q.Set("encoding", encoding)
	sampleRate := opts.SampleRate
	if sampleRate == 0 {
		sampleRate = 8000
	}
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	channels := opts.Channels
	if channels == 0 {
		channels = 1
	}
	q.Set("channels", strconv.Itoa(channels))
	q.Set("punctuate", "true")

	endpoint := d.baseURL + "/v1/listen?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, audio)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("deepgram status %d: %s", resp.StatusCode, string(body))
	}

	var decoded deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	result := &Transcript{Duration: decoded.Metadata.Duration}
	if len(decoded.Results.Channels) > 0 && len(decoded.Results.Channels[0].Alternatives) > 0 {
		alt := decoded.Results.Channels[0].Alternatives[0]
		result.Text = alt.Transcript
		result.Confidence = alt.Confidence
	}
	return result, nil
}
