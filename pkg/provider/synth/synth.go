// Package synth defines the Synthesizer interface for speech-synthesis
// backends.
//
// A synthesizer wraps a network-bound text→audio service. Backends are
// treated as single-concurrency resources: callers must serialize access
// externally (the synthesis gate does this); implementations are not
// required to tolerate concurrent Synthesize calls gracefully.
package synth

import (
	"context"
	"errors"
)

// ErrTextTooLong is returned when the input text exceeds the backend's
// configured maximum. The caller treats this as a skipped synthesis, not a
// backend failure.
var ErrTextTooLong = errors.New("synth: text exceeds backend maximum length")

// Request carries one synthesis call's input.
type Request struct {
	// Text is the sentence to narrate. Must be non-empty.
	Text string

	// Voice selects the backend voice (a soul's voice name for the
	// voice-clone backend, a neural voice id for Edge).
	Voice string

	// Speed is the playback-rate multiplier. Zero means the backend default.
	Speed float64

	// Emotion is an optional backend-specific style hint.
	Emotion string
}

// Result is a completed synthesis.
type Result struct {
	// Audio is the encoded audio payload.
	Audio []byte

	// Format names the audio container, e.g. "wav" or "mp3".
	Format string

	// DurationSeconds is the playback length of Audio.
	DurationSeconds float64
}

// Synthesizer is the abstraction over any speech-synthesis backend.
//
// Synthesize must respect ctx cancellation and deadlines; the per-job
// timeout is applied by the caller. Healthy reports backend reachability
// for readiness checks without performing synthesis.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) (*Result, error)
	Healthy(ctx context.Context) error
}
