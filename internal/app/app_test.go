package app_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/soulcast-ai/soulcast/internal/app"
	"github.com/soulcast-ai/soulcast/internal/config"
	llmmock "github.com/soulcast-ai/soulcast/pkg/provider/llm/mock"
	synthmock "github.com/soulcast-ai/soulcast/pkg/provider/synth/mock"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: "127.0.0.1:0",
			LogLevel:   config.LogInfo,
		},
		Providers: config.ProvidersConfig{
			LLM:   config.ProviderEntry{Name: "mock"},
			Synth: config.SynthConfig{Backend: "mock", Timeout: 5 * time.Second},
		},
		Souls: []config.SoulConfig{
			{Name: "meimei", Persona: "A cheerful companion.", Voice: "meimei-v2"},
		},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM:   &llmmock.Provider{},
		Synth: &synthmock.Synthesizer{},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == nil {
		t.Fatal("New returned nil app")
	}
	if a.Addr() != "127.0.0.1:0" {
		t.Errorf("Addr() = %q, want configured listen address", a.Addr())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestNew_DefaultListenAddr(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Server.ListenAddr = ""
	a, err := app.New(context.Background(), cfg, testProviders(),
		app.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Addr() != ":8080" {
		t.Errorf("Addr() = %q, want :8080", a.Addr())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = a.Shutdown(ctx)
}

func TestNew_MissingProviders(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name      string
		providers *app.Providers
	}{
		{"nil providers", nil},
		{"missing llm", &app.Providers{Synth: &synthmock.Synthesizer{}}},
		{"missing synth", &app.Providers{LLM: &llmmock.Provider{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := app.New(context.Background(), testConfig(), tc.providers); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestNew_BadConfigPath(t *testing.T) {
	t.Parallel()
	_, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithLogger(discardLogger()),
		app.WithConfigPath("/nonexistent/config.yaml"))
	if err == nil {
		t.Fatal("expected error for unreadable config path, got nil")
	}
}

func TestRunAndShutdown(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	// Let the listener start, then request shutdown.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}

	sdCtx, sdCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer sdCancel()
	if err := a.Shutdown(sdCtx); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	a, err := app.New(context.Background(), testConfig(), testProviders(),
		app.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("first shutdown failed: %v", err)
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("second shutdown failed: %v", err)
	}
}
