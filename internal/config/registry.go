package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	llm   map[string]func(ProviderEntry) (llm.Provider, error)
	synth map[string]func(SynthConfig) (synth.Synthesizer, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		llm:   make(map[string]func(ProviderEntry) (llm.Provider, error)),
		synth: make(map[string]func(SynthConfig) (synth.Synthesizer, error)),
	}
}

// RegisterLLM registers an LLM provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterSynth registers a synthesis backend factory under name.
func (r *Registry) RegisterSynth(name string, factory func(SynthConfig) (synth.Synthesizer, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synth[name] = factory
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateSynth instantiates a synthesis backend using the factory registered
// under the given name. The name is passed separately from cfg so the same
// SynthConfig can build both the primary and the fallback backend.
func (r *Registry) CreateSynth(name string, cfg SynthConfig) (synth.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.synth[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: synth/%q", ErrProviderNotRegistered, name)
	}
	return factory(cfg)
}
