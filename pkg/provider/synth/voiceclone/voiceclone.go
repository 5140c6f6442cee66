// Package voiceclone provides a synth.Synthesizer backed by a voice-cloning
// HTTP service.
//
// The service exposes POST <synthesize endpoint> taking a JSON body with the
// soul's voice name, the text, and optional speed/emotion hints, and returns
// base64-encoded audio plus its duration. Reachability is checked via
// GET /api/voice/status.
//
// Typical usage:
//
//	s, err := voiceclone.New("http://localhost:8001",
//	    voiceclone.WithTimeout(25*time.Second),
//	    voiceclone.WithMaxTextLength(500),
//	)
//	res, err := s.Synthesize(ctx, synth.Request{Text: "你好。", Voice: "mei"})
package voiceclone

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// Compile-time interface assertion.
var _ synth.Synthesizer = (*Synthesizer)(nil)

const (
	defaultTimeout       = 30 * time.Second
	defaultMaxTextLength = 500
	defaultEndpoint      = "/api/voice/synthesize"
	statusEndpoint       = "/api/voice/status"
)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s. This is a
// transport-level bound; the pipeline's per-job timeout is applied by the
// caller's context.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) {
		s.httpClient.Timeout = d
	}
}

// WithMaxTextLength sets the maximum text length in runes accepted per
// request. Longer inputs return synth.ErrTextTooLong without contacting the
// backend. Defaults to 500.
func WithMaxTextLength(n int) Option {
	return func(s *Synthesizer) {
		s.maxTextLength = n
	}
}

// WithSynthesizeEndpoint overrides the synthesis endpoint path.
func WithSynthesizeEndpoint(path string) Option {
	return func(s *Synthesizer) {
		s.endpoint = path
	}
}

// Synthesizer implements synth.Synthesizer against a voice-cloning server.
type Synthesizer struct {
	serverURL     string
	endpoint      string
	maxTextLength int
	httpClient    *http.Client
}

// New creates a Synthesizer targeting the voice-cloning server at serverURL
// (e.g. "http://localhost:8001"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("voiceclone: serverURL must not be empty")
	}
	s := &Synthesizer{
		serverURL:     strings.TrimRight(serverURL, "/"),
		endpoint:      defaultEndpoint,
		maxTextLength: defaultMaxTextLength,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// synthesizeRequest is the JSON body sent to the synthesis endpoint.
type synthesizeRequest struct {
	SoulName string  `json:"soul_name"`
	Text     string  `json:"text"`
	Speed    float64 `json:"speed,omitempty"`
	Emotion  string  `json:"emotion,omitempty"`
}

// synthesizeResponse is the JSON body returned by the synthesis endpoint.
type synthesizeResponse struct {
	Success         bool    `json:"success"`
	AudioBase64     string  `json:"audio_base64"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
	Error           string  `json:"error"`
}

// Synthesize implements synth.Synthesizer. Text longer than the configured
// maximum returns synth.ErrTextTooLong without a backend call.
func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error) {
	if req.Text == "" {
		return nil, errors.New("voiceclone: text must not be empty")
	}
	if n := utf8.RuneCountInString(req.Text); n > s.maxTextLength {
		return nil, fmt.Errorf("%w: %d > %d runes", synth.ErrTextTooLong, n, s.maxTextLength)
	}

	body := synthesizeRequest{
		SoulName: req.Voice,
		Text:     req.Text,
		Speed:    req.Speed,
		Emotion:  req.Emotion,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("voiceclone: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+s.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("voiceclone: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("voiceclone: POST %s: %w", s.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("voiceclone: POST %s returned status %d", s.endpoint, resp.StatusCode)
	}

	var out synthesizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("voiceclone: decode response: %w", err)
	}
	if !out.Success || out.AudioBase64 == "" {
		msg := out.Error
		if msg == "" {
			msg = "unknown"
		}
		return nil, fmt.Errorf("voiceclone: backend reported failure: %s", msg)
	}

	audio, err := base64.StdEncoding.DecodeString(out.AudioBase64)
	if err != nil {
		return nil, fmt.Errorf("voiceclone: decode audio payload: %w", err)
	}

	format := out.Format
	if format == "" {
		format = "wav"
	}
	return &synth.Result{
		Audio:           audio,
		Format:          format,
		DurationSeconds: out.DurationSeconds,
	}, nil
}

// Healthy implements synth.Synthesizer via GET /api/voice/status.
func (s *Synthesizer) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serverURL+statusEndpoint, nil)
	if err != nil {
		return fmt.Errorf("voiceclone: create status request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("voiceclone: GET %s: %w", statusEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("voiceclone: GET %s returned status %d", statusEndpoint, resp.StatusCode)
	}
	return nil
}
