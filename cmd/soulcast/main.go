// Command soulcast is the main entry point for the SoulCast narration server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/soulcast-ai/soulcast/internal/app"
	"github.com/soulcast-ai/soulcast/internal/config"
	"github.com/soulcast-ai/soulcast/internal/observe"
	"github.com/soulcast-ai/soulcast/internal/resilience"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm/anyllm"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm/openai"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth/edge"
	synthmock "github.com/soulcast-ai/soulcast/pkg/provider/synth/mock"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth/voiceclone"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "soulcast: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "soulcast: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel := new(slog.LevelVar)
	logLevel.Set(cfg.Server.LogLevel.SlogLevel())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("soulcast starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(context.Background(), observe.ProviderConfig{
		ServiceName: "soulcast",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(ctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	// ── Instantiate providers ─────────────────────────────────────────────────
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers,
		app.WithLogger(logger),
		app.WithLogLevelVar(logLevel),
		app.WithConfigPath(*configPath),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives its config block and constructs the appropriate
// provider from the real implementation packages.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// openai uses the native SDK provider; the key may come from config or the
	// environment.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		apiKey := entry.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(apiKey, entry.Model, opts...)
	})

	// anthropic, gemini, deepseek, mistral, groq, llamacpp, llamafile all go
	// through the any-llm gateway: optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			p, err := anyllm.New(providerName, entry.Model, opts...)
			if err != nil {
				return nil, err
			}
			return p, nil
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		p, err := anyllm.New("ollama", entry.Model, opts...)
		if err != nil {
			return nil, err
		}
		return p, nil
	})

	// ── Synthesis ─────────────────────────────────────────────────────────────

	reg.RegisterSynth("voiceclone", func(sc config.SynthConfig) (synth.Synthesizer, error) {
		var opts []voiceclone.Option
		if sc.Timeout > 0 {
			opts = append(opts, voiceclone.WithTimeout(sc.Timeout))
		}
		if sc.MaxTextLength > 0 {
			opts = append(opts, voiceclone.WithMaxTextLength(sc.MaxTextLength))
		}
		return voiceclone.New(sc.ServerURL, opts...)
	})

	reg.RegisterSynth("edge", func(sc config.SynthConfig) (synth.Synthesizer, error) {
		var opts []edge.Option
		if sc.Voice != "" {
			opts = append(opts, edge.WithVoice(sc.Voice))
		}
		return edge.New(opts...), nil
	})

	reg.RegisterSynth("mock", func(config.SynthConfig) (synth.Synthesizer, error) {
		return &synthmock.Synthesizer{}, nil
	})

	// Debug log of all registered providers.
	for kind, names := range config.ValidProviderNames {
		for _, name := range names {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// buildProviders instantiates the providers named in cfg using the registry
// and returns them in an [app.Providers] struct for the application to
// consume. When a fallback synthesis backend is configured, the primary is
// wrapped in a circuit-breaking fallback group.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.LLM.Name; name != "" {
		p, err := reg.CreateLLM(cfg.Providers.LLM)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "llm", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create llm provider %q: %w", name, err)
		} else {
			ps.LLM = p
			slog.Info("provider created", "kind", "llm", "name", name)
		}
	}

	if name := cfg.Providers.Synth.Backend; name != "" {
		primary, err := reg.CreateSynth(name, cfg.Providers.Synth)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Debug("provider not yet implemented — skipping", "kind", "synth", "name", name)
		} else if err != nil {
			return nil, fmt.Errorf("create synth backend %q: %w", name, err)
		} else {
			ps.Synth = primary
			slog.Info("provider created", "kind", "synth", "name", name)
		}

		if fbName := cfg.Providers.Synth.Fallback; fbName != "" && ps.Synth != nil {
			fb, err := reg.CreateSynth(fbName, cfg.Providers.Synth)
			if err != nil {
				return nil, fmt.Errorf("create fallback synth backend %q: %w", fbName, err)
			}
			group := resilience.NewSynthFallback(ps.Synth, name, resilience.FallbackConfig{})
			group.AddFallback(fbName, fb)
			ps.Synth = group
			slog.Info("synth fallback enabled", "primary", name, "fallback", fbName)
		}
	}

	return ps, nil
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         SoulCast — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	printProvider("Synth", cfg.Providers.Synth.Backend, cfg.Providers.Synth.Voice)
	printProvider("Fallback", cfg.Providers.Synth.Fallback, "")
	fmt.Printf("║  Souls configured: %-19d ║\n", len(cfg.Souls))
	fmt.Printf("║  Bubble cap      : %-19d ║\n", cfg.Narration.Cap())
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, detail string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if detail != "" {
		value = name + " / " + detail
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}
