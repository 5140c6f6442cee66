// Package app wires configuration, providers, the synthesis gate, the
// narration orchestrator, and the HTTP server into a runnable SoulCast
// instance.
//
// The expected call sequence from main is:
//
//	a, err := app.New(ctx, cfg, providers)
//	// handle err
//	err = a.Run(ctx)          // blocks until ctx is cancelled
//	err = a.Shutdown(sdCtx)   // graceful teardown with its own deadline
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/soulcast-ai/soulcast/internal/config"
	"github.com/soulcast-ai/soulcast/internal/health"
	"github.com/soulcast-ai/soulcast/internal/narrate"
	"github.com/soulcast-ai/soulcast/internal/observe"
	"github.com/soulcast-ai/soulcast/internal/server"
	"github.com/soulcast-ai/soulcast/internal/synthgate"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// defaultListenAddr is used when server.listen_addr is not configured.
const defaultListenAddr = ":8080"

// Providers bundles the external backends the app depends on. Both fields
// are required; main composes fallbacks before handing them over.
type Providers struct {
	LLM   llm.Provider
	Synth synth.Synthesizer
}

// Option configures optional App collaborators.
type Option func(*App)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to the process-wide instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithConfigPath enables hot reload: the file at path is watched and soul or
// log-level changes are applied without restart.
func WithConfigPath(path string) Option {
	return func(a *App) { a.configPath = path }
}

// WithLogLevelVar lets the watcher adjust log verbosity at runtime. The
// caller's handler must have been built with the same LevelVar.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = v }
}

// App owns the narration pipeline and its HTTP front end.
type App struct {
	cfg        *config.Config
	providers  *Providers
	logger     *slog.Logger
	metrics    *observe.Metrics
	logLevel   *slog.LevelVar
	configPath string

	gate       *synthgate.Gate
	orch       *narrate.Orchestrator
	srv        *server.Server
	httpServer *http.Server
	watcher    *config.Watcher

	closers  []func() error
	stopOnce sync.Once
}

// New assembles the application from configuration. No network listeners are
// opened; that happens in [App.Run].
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.Synth == nil {
		return nil, errors.New("app: both an LLM provider and a synthesis backend are required")
	}

	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}

	// ── 1. Synthesis gate ────────────────────────────────────────────────
	gateOpts := []synthgate.Option{synthgate.WithLogger(a.logger)}
	if cfg.Providers.Synth.Timeout > 0 {
		gateOpts = append(gateOpts, synthgate.WithTimeout(cfg.Providers.Synth.Timeout))
	}
	a.gate = synthgate.New(providers.Synth, gateOpts...)
	a.closers = append(a.closers, func() error {
		a.gate.Close()
		return nil
	})

	// ── 2. Narration orchestrator ────────────────────────────────────────
	a.orch = narrate.New(a.gate,
		narrate.WithPolicy(cfg.Narration.Floors.Policy()),
		narrate.WithBubbleCap(cfg.Narration.Cap()),
		narrate.WithLogger(a.logger),
		narrate.WithMetrics(a.metrics),
	)

	// ── 3. Health probes ─────────────────────────────────────────────────
	probes := health.New(health.Checker{
		Name:  "synth",
		Check: providers.Synth.Healthy,
	})

	// ── 4. HTTP server ───────────────────────────────────────────────────
	a.srv = server.New(providers.LLM, a.orch, cfg.Souls,
		server.WithLogger(a.logger),
		server.WithMetrics(a.metrics),
		server.WithHealth(probes),
		server.WithDefaultVoice(cfg.Providers.Synth.Voice),
	)

	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", observe.Middleware(a.metrics)(a.srv.Handler()))

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = defaultListenAddr
	}
	a.httpServer = &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── 5. Config hot reload ─────────────────────────────────────────────
	if a.configPath != "" {
		w, err := config.NewWatcher(a.configPath, a.applyConfigChange)
		if err != nil {
			return nil, fmt.Errorf("app: starting config watcher: %w", err)
		}
		a.watcher = w
	}

	return a, nil
}

// applyConfigChange applies the hot-reloadable parts of a config update.
func (a *App) applyConfigChange(old, new *config.Config) {
	d := config.Diff(old, new)

	if d.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(d.NewLogLevel.SlogLevel())
		a.logger.Info("log level updated", "level", d.NewLogLevel)
	}

	if d.SoulsChanged {
		a.srv.UpdateSouls(new.Souls)
		for _, sc := range d.SoulChanges {
			a.logger.Info("soul updated",
				"soul", sc.Name,
				"added", sc.Added,
				"removed", sc.Removed,
			)
		}
	}
}

// Run starts the HTTP listener and blocks until ctx is cancelled or the
// listener fails. Call [App.Shutdown] afterwards for graceful teardown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening",
			"addr", a.httpServer.Addr,
			"tls", a.cfg.Server.TLS != nil,
		)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpServer.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpServer.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("app: http server: %w", err)
	case <-ctx.Done():
		return nil
	}
}

// Shutdown gracefully stops the HTTP server and closes the pipeline in
// reverse initialisation order. It respects the deadline of ctx: once ctx
// expires, remaining closers are skipped. Safe to call multiple times.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.stopOnce.Do(func() {
		if a.watcher != nil {
			a.watcher.Stop()
		}

		if err := a.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("app: http shutdown: %w", err))
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				a.logger.Warn("shutdown deadline reached, skipping remaining closers",
					"remaining", i+1)
				break
			}
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}

		a.logger.Info("shutdown complete")
	})
	return errors.Join(errs...)
}

// Addr returns the listen address the HTTP server was configured with.
func (a *App) Addr() string {
	return a.httpServer.Addr
}
