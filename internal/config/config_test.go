package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/soulcast-ai/soulcast/internal/config"
	"github.com/soulcast-ai/soulcast/internal/segment"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// ── helpers ──────────────────────────────────────────────────────────────────

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: info

providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4o
  synth:
    backend: voiceclone
    server_url: http://localhost:5000
    voice: meimei
    timeout: 45s
    max_text_length: 300
    fallback: edge

narration:
  bubble_cap: 6
  floors:
    stop: 24
    comma: 100

souls:
  - name: meimei
    persona: A cheerful companion who answers in short warm sentences.
    voice: meimei-v2
    speed: 0.9
    emotion: happy
  - name: narrator
    persona: A calm storyteller.
`

// ── YAML loading ──────────────────────────────────────────────────────────────

func TestLoadFromReader_Valid(t *testing.T) {
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q, want %q", cfg.Server.ListenAddr, ":8080")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("server.log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.LLM.Name != "openai" {
		t.Errorf("providers.llm.name: got %q, want %q", cfg.Providers.LLM.Name, "openai")
	}
	if cfg.Providers.Synth.Backend != "voiceclone" {
		t.Errorf("providers.synth.backend: got %q, want %q", cfg.Providers.Synth.Backend, "voiceclone")
	}
	if cfg.Providers.Synth.Timeout != 45*time.Second {
		t.Errorf("providers.synth.timeout: got %s, want 45s", cfg.Providers.Synth.Timeout)
	}
	if cfg.Providers.Synth.Fallback != "edge" {
		t.Errorf("providers.synth.fallback: got %q, want %q", cfg.Providers.Synth.Fallback, "edge")
	}
	if cfg.Narration.Cap() != 6 {
		t.Errorf("narration cap: got %d, want 6", cfg.Narration.Cap())
	}
	if len(cfg.Souls) != 2 {
		t.Fatalf("souls: got %d, want 2", len(cfg.Souls))
	}
	if cfg.Souls[0].Name != "meimei" {
		t.Errorf("souls[0].name: got %q", cfg.Souls[0].Name)
	}
	if cfg.Souls[0].Speed != 0.9 {
		t.Errorf("souls[0].speed: got %.2f, want 0.9", cfg.Souls[0].Speed)
	}
}

func TestLoadFromReader_EmptyIsValid(t *testing.T) {
	// An empty config should succeed (no required top-level fields).
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err != nil {
		t.Fatalf("unexpected error for empty config: %v", err)
	}
}

func TestLoadFromReader_UnknownFieldFails(t *testing.T) {
	yaml := `
server:
  listen_addr: ":8080"
  log_levle: info
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

// ── Floors → Policy mapping ───────────────────────────────────────────────────

func TestFloorsConfig_PolicyDefaults(t *testing.T) {
	var f *config.FloorsConfig
	if got, want := f.Policy(), segment.DefaultPolicy(); got != want {
		t.Errorf("nil floors policy = %+v, want defaults %+v", got, want)
	}
}

func TestFloorsConfig_PolicyOverrides(t *testing.T) {
	f := &config.FloorsConfig{Stop: 24, Comma: 100}
	p := f.Policy()
	if p.StopFloor != 24 {
		t.Errorf("StopFloor = %d, want 24", p.StopFloor)
	}
	if p.CommaFloor != 100 {
		t.Errorf("CommaFloor = %d, want 100", p.CommaFloor)
	}
	// Unset tiers keep the defaults.
	def := segment.DefaultPolicy()
	if p.ListFloor != def.ListFloor || p.EmphasisFloor != def.EmphasisFloor {
		t.Errorf("unset floors changed: %+v", p)
	}
}

// ── Validation ────────────────────────────────────────────────────────────────

func TestValidate_InvalidLogLevel(t *testing.T) {
	yaml := `
server:
  log_level: verbose
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MissingSoulName(t *testing.T) {
	yaml := `
souls:
  - persona: "A soul with no name"
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing soul name, got nil")
	}
	if !strings.Contains(err.Error(), "name") {
		t.Errorf("error should mention name, got: %v", err)
	}
}

func TestValidate_InvalidSpeed(t *testing.T) {
	yaml := `
souls:
  - name: speedy
    speed: 5.0
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid speed, got nil")
	}
}

func TestValidate_VoicecloneRequiresServerURL(t *testing.T) {
	yaml := `
providers:
  synth:
    backend: voiceclone
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for voiceclone without server_url, got nil")
	}
	if !strings.Contains(err.Error(), "server_url") {
		t.Errorf("error should mention server_url, got: %v", err)
	}
}

func TestValidate_FallbackSameAsPrimary(t *testing.T) {
	yaml := `
providers:
  synth:
    backend: edge
    fallback: edge
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for fallback equal to primary, got nil")
	}
}

func TestValidate_NegativeFloor(t *testing.T) {
	yaml := `
narration:
  floors:
    stop: -1
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for negative floor, got nil")
	}
}

// ── Registry ─────────────────────────────────────────────────────────────────

func TestRegistry_UnknownLLM(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "nonexistent"})
	if err == nil {
		t.Fatal("expected error for unknown LLM provider")
	}
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_UnknownSynth(t *testing.T) {
	reg := config.NewRegistry()
	_, err := reg.CreateSynth("nonexistent", config.SynthConfig{})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("expected ErrProviderNotRegistered, got: %v", err)
	}
}

func TestRegistry_RegisteredLLM(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubLLM{}
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		return want, nil
	})
	got, err := reg.CreateLLM(config.ProviderEntry{Name: "stub"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned provider is not the expected instance")
	}
}

func TestRegistry_RegisteredSynth(t *testing.T) {
	reg := config.NewRegistry()
	want := &stubSynth{}
	reg.RegisterSynth("stub", func(c config.SynthConfig) (synth.Synthesizer, error) {
		return want, nil
	})
	got, err := reg.CreateSynth("stub", config.SynthConfig{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Error("returned backend is not the expected instance")
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := config.NewRegistry()
	wantErr := errors.New("factory boom")
	reg.RegisterLLM("broken", func(e config.ProviderEntry) (llm.Provider, error) {
		return nil, wantErr
	})
	_, err := reg.CreateLLM(config.ProviderEntry{Name: "broken"})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected factory error %v, got %v", wantErr, err)
	}
}

// ── Stub implementations (satisfy interfaces for the compiler) ────────────────

// stubLLM implements llm.Provider with no-op methods.
type stubLLM struct{}

func (s *stubLLM) StreamCompletion(_ context.Context, _ llm.CompletionRequest) (<-chan llm.Chunk, error) {
	ch := make(chan llm.Chunk)
	close(ch)
	return ch, nil
}
func (s *stubLLM) Complete(_ context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}
func (s *stubLLM) Capabilities() llm.ModelCapabilities { return llm.ModelCapabilities{} }

// stubSynth implements synth.Synthesizer.
type stubSynth struct{}

func (s *stubSynth) Synthesize(_ context.Context, _ synth.Request) (*synth.Result, error) {
	return &synth.Result{Format: "wav"}, nil
}
func (s *stubSynth) Healthy(_ context.Context) error { return nil }
