// Package mock provides a test double for the synth.Synthesizer interface.
//
// Use Synthesizer in unit tests to feed scripted results without a live
// backend and to observe the exact requests and their ordering. The Started
// and Release channels let serialization tests observe when a call begins
// executing and hold it there until the test decides to let it finish.
//
// Example:
//
//	s := &mock.Synthesizer{
//	    Results: []mock.Outcome{{Result: &synth.Result{Audio: []byte("a"), Format: "wav"}}},
//	}
//	res, err := s.Synthesize(ctx, synth.Request{Text: "Hi."})
package mock

import (
	"context"
	"sync"

	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// Outcome scripts the return values of one Synthesize call.
type Outcome struct {
	Result *synth.Result
	Err    error
}

// Call records a single invocation of Synthesize.
type Call struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req synth.Request
}

// Synthesizer is a mock implementation of synth.Synthesizer.
// A zero value returns an empty wav result for every call.
type Synthesizer struct {
	mu sync.Mutex

	// --- Configurable behaviour ---

	// Results is consumed one entry per call, in order. When exhausted (or
	// empty), calls return DefaultResult.
	Results []Outcome

	// DefaultResult is returned once Results is exhausted. Nil selects a
	// small placeholder wav result.
	DefaultResult *synth.Result

	// HealthyErr is returned by Healthy.
	HealthyErr error

	// Started, if non-nil, receives the request text when a Synthesize call
	// begins executing. Lets tests observe admission order.
	Started chan string

	// Release, if non-nil, is received from once per call after Started
	// fires and before the call returns. Lets tests hold a call in the
	// backend to assert that no second call is admitted concurrently.
	Release chan struct{}

	// --- Call records (read after test) ---

	// Calls records every invocation of Synthesize in order.
	Calls []Call

	// HealthyCallCount is the number of times Healthy was called.
	HealthyCallCount int
}

// Compile-time interface assertion.
var _ synth.Synthesizer = (*Synthesizer)(nil)

// Synthesize records the call, signals Started, waits on Release if set, and
// returns the next scripted Outcome.
func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error) {
	s.mu.Lock()
	s.Calls = append(s.Calls, Call{Ctx: ctx, Req: req})
	var out Outcome
	scripted := len(s.Results) > 0
	if scripted {
		out = s.Results[0]
		s.Results = s.Results[1:]
	}
	started := s.Started
	release := s.Release
	def := s.DefaultResult
	s.mu.Unlock()

	if started != nil {
		select {
		case started <- req.Text:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if scripted {
		return out.Result, out.Err
	}
	if def != nil {
		return def, nil
	}
	return &synth.Result{
		Audio:           []byte("mock-audio"),
		Format:          "wav",
		DurationSeconds: 0.1,
	}, nil
}

// Healthy records the call and returns HealthyErr.
func (s *Synthesizer) Healthy(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HealthyCallCount++
	return s.HealthyErr
}

// Reset clears all recorded calls. Thread-safe.
func (s *Synthesizer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = nil
	s.HealthyCallCount = 0
}
