package openai

import (
	"testing"

	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
)

// ── Constructor ───────────────────────────────────────────────────────────────

func TestNew_EmptyAPIKey(t *testing.T) {
	_, err := New("", "gpt-4o")
	if err == nil {
		t.Fatal("expected error for empty apiKey")
	}
}

func TestNew_EmptyModel(t *testing.T) {
	_, err := New("sk-test", "")
	if err == nil {
		t.Fatal("expected error for empty model")
	}
}

func TestNew_Valid(t *testing.T) {
	p, err := New("sk-test", "gpt-4o", WithBaseURL("http://localhost:9999/v1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p == nil {
		t.Fatal("expected non-nil provider")
	}
	if p.model != "gpt-4o" {
		t.Errorf("expected model gpt-4o, got %q", p.model)
	}
}

// ── buildParams ───────────────────────────────────────────────────────────────

func TestBuildParams_SystemPrompt(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	params, err := p.buildParams(llm.CompletionRequest{
		SystemPrompt: "You are a calm storyteller.",
		Messages:     []llm.Message{{Role: "user", Content: "讲个故事"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(params.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(params.Messages))
	}
	if params.Messages[0].OfSystem == nil {
		t.Error("expected first message to be a system message")
	}
	if params.Messages[1].OfUser == nil {
		t.Error("expected second message to be a user message")
	}
}

func TestBuildParams_Tuning(t *testing.T) {
	p := &Provider{model: "gpt-4o"}

	params, err := p.buildParams(llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: "Hi"}},
		Temperature: 0.4,
		MaxTokens:   512,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !params.Temperature.Valid() || params.Temperature.Value != 0.4 {
		t.Errorf("expected temperature 0.4, got %+v", params.Temperature)
	}
	if !params.MaxCompletionTokens.Valid() || params.MaxCompletionTokens.Value != 512 {
		t.Errorf("expected max completion tokens 512, got %+v", params.MaxCompletionTokens)
	}

	defaults, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if defaults.Temperature.Valid() {
		t.Error("expected unset temperature for zero value")
	}
	if defaults.MaxCompletionTokens.Valid() {
		t.Error("expected unset max completion tokens for zero value")
	}
}

func TestBuildParams_UnknownRole(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	_, err := p.buildParams(llm.CompletionRequest{
		Messages: []llm.Message{{Role: "tool", Content: "result"}},
	})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

// ── convertMessage ────────────────────────────────────────────────────────────

func TestConvertMessage_Assistant(t *testing.T) {
	msg, err := convertMessage(llm.Message{Role: "assistant", Content: "Hi there!", Name: "meimei"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.OfAssistant == nil {
		t.Fatal("expected assistant message")
	}
	if msg.OfAssistant.Content.OfString.Value != "Hi there!" {
		t.Errorf("unexpected content: %+v", msg.OfAssistant.Content)
	}
	if msg.OfAssistant.Name.Value != "meimei" {
		t.Errorf("expected name meimei, got %+v", msg.OfAssistant.Name)
	}
}

// ── modelCapabilities ─────────────────────────────────────────────────────────

func TestModelCapabilities(t *testing.T) {
	tests := []struct {
		model         string
		contextWindow int
		maxOutput     int
	}{
		{"gpt-4o", 128_000, 16_384},
		{"gpt-4o-mini", 128_000, 16_384},
		{"gpt-4-turbo", 128_000, 4_096},
		{"gpt-4", 8_192, 4_096},
		{"gpt-3.5-turbo", 16_385, 4_096},
		{"o1-mini", 128_000, 65_536},
		{"o1", 200_000, 100_000},
		{"unknown-model", 128_000, 4_096},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			caps := modelCapabilities(tt.model)
			if caps.ContextWindow != tt.contextWindow {
				t.Errorf("ContextWindow = %d, want %d", caps.ContextWindow, tt.contextWindow)
			}
			if caps.MaxOutputTokens != tt.maxOutput {
				t.Errorf("MaxOutputTokens = %d, want %d", caps.MaxOutputTokens, tt.maxOutput)
			}
			if !caps.SupportsStreaming {
				t.Error("expected SupportsStreaming=true")
			}
		})
	}
}

func TestCapabilities_Delegates(t *testing.T) {
	p := &Provider{model: "gpt-4o"}
	if got, want := p.Capabilities(), modelCapabilities("gpt-4o"); got != want {
		t.Errorf("Capabilities() = %+v, want %+v", got, want)
	}
}
