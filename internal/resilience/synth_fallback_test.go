package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
	synthmock "github.com/soulcast-ai/soulcast/pkg/provider/synth/mock"
)

func TestSynthFallback_PrimarySuccess(t *testing.T) {
	primary := &synthmock.Synthesizer{
		Results: []synthmock.Outcome{
			{Result: &synth.Result{Audio: []byte("primary-audio"), Format: "wav"}},
		},
	}
	secondary := &synthmock.Synthesizer{}

	fb := NewSynthFallback(primary, "voiceclone", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("edge", secondary)

	res, err := fb.Synthesize(context.Background(), synth.Request{Text: "你好。", Voice: "meimei"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Audio) != "primary-audio" {
		t.Fatalf("audio = %q, want primary-audio", string(res.Audio))
	}
	if len(primary.Calls) != 1 {
		t.Fatalf("primary called %d times, want 1", len(primary.Calls))
	}
	if len(secondary.Calls) != 0 {
		t.Fatalf("secondary called %d times, want 0", len(secondary.Calls))
	}
}

func TestSynthFallback_Failover(t *testing.T) {
	primary := &synthmock.Synthesizer{
		Results: []synthmock.Outcome{{Err: errors.New("primary down")}},
	}
	secondary := &synthmock.Synthesizer{
		Results: []synthmock.Outcome{
			{Result: &synth.Result{Audio: []byte("fallback-audio"), Format: "mp3"}},
		},
	}

	fb := NewSynthFallback(primary, "voiceclone", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("edge", secondary)

	res, err := fb.Synthesize(context.Background(), synth.Request{Text: "你好。"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(res.Audio) != "fallback-audio" {
		t.Fatalf("audio = %q, want fallback-audio", string(res.Audio))
	}
	if len(primary.Calls) != 1 || len(secondary.Calls) != 1 {
		t.Fatalf("calls: primary=%d secondary=%d, want 1 each",
			len(primary.Calls), len(secondary.Calls))
	}
}

func TestSynthFallback_AllFail(t *testing.T) {
	primary := &synthmock.Synthesizer{
		Results: []synthmock.Outcome{{Err: errors.New("primary down")}},
	}
	secondary := &synthmock.Synthesizer{
		Results: []synthmock.Outcome{{Err: errors.New("secondary down")}},
	}

	fb := NewSynthFallback(primary, "voiceclone", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("edge", secondary)

	_, err := fb.Synthesize(context.Background(), synth.Request{Text: "你好。"})
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}

func TestSynthFallback_OpenCircuitSkipsPrimary(t *testing.T) {
	primary := &synthmock.Synthesizer{
		Results: []synthmock.Outcome{
			{Err: errors.New("down")},
			{Err: errors.New("down")},
		},
	}
	secondary := &synthmock.Synthesizer{}

	fb := NewSynthFallback(primary, "voiceclone", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})
	fb.AddFallback("edge", secondary)

	// Two failures trip the primary's breaker.
	for range 2 {
		if _, err := fb.Synthesize(context.Background(), synth.Request{Text: "嗨。"}); err != nil {
			t.Fatalf("fallback should have absorbed the failure: %v", err)
		}
	}

	// Third call must not reach the primary at all.
	if _, err := fb.Synthesize(context.Background(), synth.Request{Text: "嗨。"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(primary.Calls) != 2 {
		t.Fatalf("primary called %d times, want 2 (circuit open afterwards)", len(primary.Calls))
	}
	if len(secondary.Calls) != 3 {
		t.Fatalf("secondary called %d times, want 3", len(secondary.Calls))
	}
}

func TestSynthFallback_Healthy(t *testing.T) {
	primary := &synthmock.Synthesizer{HealthyErr: errors.New("unreachable")}
	secondary := &synthmock.Synthesizer{}

	fb := NewSynthFallback(primary, "voiceclone", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 3},
	})
	fb.AddFallback("edge", secondary)

	if err := fb.Healthy(context.Background()); err != nil {
		t.Fatalf("healthy should pass via fallback, got: %v", err)
	}

	secondary.HealthyErr = errors.New("also unreachable")
	if err := fb.Healthy(context.Background()); !errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want ErrAllFailed", err)
	}
}
