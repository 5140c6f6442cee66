package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"synth": {"voiceclone", "edge", "mock"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Environment variable references ($VAR or ${VAR}) are expanded before
// decoding so secrets can stay out of the file. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("synth", cfg.Providers.Synth.Backend)

	// Provider availability warnings
	if cfg.Providers.LLM.Name == "" && len(cfg.Souls) > 0 {
		slog.Warn("no LLM provider configured; souls will not be able to generate responses")
	}
	if cfg.Providers.Synth.Backend == "" && len(cfg.Souls) > 0 {
		slog.Warn("no synthesis backend configured; turns will stream text without audio")
	}

	// Synth backend requirements
	if cfg.Providers.Synth.Backend == "voiceclone" && cfg.Providers.Synth.ServerURL == "" {
		errs = append(errs, errors.New("providers.synth.server_url is required when backend is voiceclone"))
	}
	if fb := cfg.Providers.Synth.Fallback; fb != "" {
		if fb == cfg.Providers.Synth.Backend {
			errs = append(errs, fmt.Errorf("providers.synth.fallback %q is the same as the primary backend", fb))
		} else if !slices.Contains(ValidProviderNames["synth"], fb) {
			errs = append(errs, fmt.Errorf("providers.synth.fallback %q is invalid; valid values: voiceclone, edge, mock", fb))
		}
	}
	if cfg.Providers.Synth.Timeout < 0 {
		errs = append(errs, fmt.Errorf("providers.synth.timeout %s is negative", cfg.Providers.Synth.Timeout))
	}
	if cfg.Providers.Synth.MaxTextLength < 0 {
		errs = append(errs, fmt.Errorf("providers.synth.max_text_length %d is negative", cfg.Providers.Synth.MaxTextLength))
	}

	// Narration
	if cfg.Narration.BubbleCap < 0 {
		errs = append(errs, fmt.Errorf("narration.bubble_cap %d is negative", cfg.Narration.BubbleCap))
	}
	if f := cfg.Narration.Floors; f != nil {
		for _, tier := range []struct {
			name  string
			floor int
		}{
			{"list", f.List},
			{"paragraph", f.Paragraph},
			{"stop", f.Stop},
			{"pause", f.Pause},
			{"emphasis", f.Emphasis},
			{"newline", f.Newline},
			{"comma", f.Comma},
		} {
			if tier.floor < 0 {
				errs = append(errs, fmt.Errorf("narration.floors.%s %d is negative", tier.name, tier.floor))
			}
		}
	}

	// Soul duplicate name detection
	soulNamesSeen := make(map[string]int, len(cfg.Souls))

	// Souls
	for i, soul := range cfg.Souls {
		prefix := fmt.Sprintf("souls[%d]", i)
		if soul.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		} else {
			if prev, ok := soulNamesSeen[soul.Name]; ok {
				errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of souls[%d]", prefix, soul.Name, prev))
			}
			soulNamesSeen[soul.Name] = i
		}
		if soul.Speed != 0 {
			if soul.Speed < 0.5 || soul.Speed > 2.0 {
				errs = append(errs, fmt.Errorf("%s.speed %.2f is out of range [0.5, 2.0]", prefix, soul.Speed))
			}
		}
		if soul.Voice == "" && cfg.Providers.Synth.Voice == "" && cfg.Providers.Synth.Backend != "" {
			slog.Warn("soul has no voice and no default voice is configured",
				"soul", soul.Name,
				"backend", cfg.Providers.Synth.Backend,
			)
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
