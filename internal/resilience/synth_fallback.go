package resilience

import (
	"context"

	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// SynthFallback implements [synth.Synthesizer] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
type SynthFallback struct {
	group *FallbackGroup[synth.Synthesizer]
}

// Compile-time interface assertion.
var _ synth.Synthesizer = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred
// backend.
func NewSynthFallback(primary synth.Synthesizer, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis backend as a fallback.
func (f *SynthFallback) AddFallback(name string, backend synth.Synthesizer) {
	f.group.AddFallback(name, backend)
}

// Synthesize runs the request against the first healthy backend. A fallback
// backend receives the same request, so its voice must be able to handle the
// primary's voice names (or map them itself).
func (f *SynthFallback) Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error) {
	return ExecuteWithResult(f.group, func(s synth.Synthesizer) (*synth.Result, error) {
		return s.Synthesize(ctx, req)
	})
}

// Healthy reports healthy when at least one backend in the group is reachable.
func (f *SynthFallback) Healthy(ctx context.Context) error {
	return f.group.Execute(func(s synth.Synthesizer) error {
		return s.Healthy(ctx)
	})
}
