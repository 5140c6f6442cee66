// Package config provides the configuration schema, loader, and provider
// registry for the SoulCast narration server.
package config

import (
	"log/slog"
	"time"

	"github.com/soulcast-ai/soulcast/internal/bubble"
	"github.com/soulcast-ai/soulcast/internal/segment"
)

// LogLevel controls log verbosity for the SoulCast server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// SlogLevel maps l to the corresponding slog level. Unrecognised values map
// to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for SoulCast.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Narration NarrationConfig `yaml:"narration"`
	Souls     []SoulConfig    `yaml:"souls"`
}

// ServerConfig holds network and logging settings for the SoulCast server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the provider implementation for each pipeline
// stage: the text producer and the speech synthesis backend.
type ProvidersConfig struct {
	LLM   ProviderEntry `yaml:"llm"`
	Synth SynthConfig   `yaml:"synth"`
}

// ProviderEntry is the common configuration block for LLM providers.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "anthropic").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o").
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// SynthConfig configures the speech synthesis backend.
type SynthConfig struct {
	// Backend selects the registered synthesizer implementation
	// ("voiceclone", "edge", "mock").
	Backend string `yaml:"backend"`

	// ServerURL is the base URL of the voice-clone service. Required when
	// Backend is "voiceclone".
	ServerURL string `yaml:"server_url"`

	// Voice is the default voice used when a soul does not specify one.
	Voice string `yaml:"voice"`

	// Timeout bounds a single backend synthesis call once admitted by the
	// gate. Zero selects the gate default.
	Timeout time.Duration `yaml:"timeout"`

	// MaxTextLength caps the rune count of a single synthesis request.
	// Zero selects the backend default.
	MaxTextLength int `yaml:"max_text_length"`

	// Fallback names a second backend tried when the primary fails
	// (e.g., "edge"). Empty disables fallback.
	Fallback string `yaml:"fallback"`
}

// NarrationConfig tunes the sentence segmentation and bubble pipeline.
type NarrationConfig struct {
	// BubbleCap is the maximum number of bubbles per turn. Zero selects the
	// default of 4.
	BubbleCap int `yaml:"bubble_cap"`

	// Floors overrides the per-tier minimum lengths of the boundary detector.
	// When nil, the built-in policy is used.
	Floors *FloorsConfig `yaml:"floors"`
}

// FloorsConfig holds per-tier minimum accumulated rune counts for boundary
// detection. Zero fields keep the built-in default for that tier.
type FloorsConfig struct {
	List      int `yaml:"list"`
	Paragraph int `yaml:"paragraph"`
	Stop      int `yaml:"stop"`
	Pause     int `yaml:"pause"`
	Emphasis  int `yaml:"emphasis"`
	Newline   int `yaml:"newline"`
	Comma     int `yaml:"comma"`
}

// Policy converts the floor overrides into a segment.Policy, filling unset
// fields from the default policy.
func (f *FloorsConfig) Policy() segment.Policy {
	p := segment.DefaultPolicy()
	if f == nil {
		return p
	}
	if f.List > 0 {
		p.ListFloor = f.List
	}
	if f.Paragraph > 0 {
		p.ParagraphFloor = f.Paragraph
	}
	if f.Stop > 0 {
		p.StopFloor = f.Stop
	}
	if f.Pause > 0 {
		p.PauseFloor = f.Pause
	}
	if f.Emphasis > 0 {
		p.EmphasisFloor = f.Emphasis
	}
	if f.Newline > 0 {
		p.NewlineFloor = f.Newline
	}
	if f.Comma > 0 {
		p.CommaFloor = f.Comma
	}
	return p
}

// Cap returns the effective bubble cap.
func (n NarrationConfig) Cap() int {
	if n.BubbleCap > 0 {
		return n.BubbleCap
	}
	return bubble.DefaultCap
}

// SoulConfig describes a single selectable persona with its voice parameters.
type SoulConfig struct {
	// Name is the soul's unique identifier, referenced by chat requests.
	Name string `yaml:"name"`

	// Persona is a free-text description injected into the LLM system prompt.
	Persona string `yaml:"persona"`

	// Voice is the synthesis voice identifier for this soul. Empty falls back
	// to the backend default voice.
	Voice string `yaml:"voice"`

	// Speed adjusts speaking rate in the range [0.5, 2.0]. 0 means default.
	Speed float64 `yaml:"speed"`

	// Emotion is an optional emotion hint forwarded to the backend.
	Emotion string `yaml:"emotion"`

	// Model overrides the configured LLM model for this soul. Optional.
	Model string `yaml:"model"`
}
