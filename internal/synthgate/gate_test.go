package synthgate_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soulcast-ai/soulcast/internal/synthgate"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth/mock"
)

func TestSubmitResolvesWithResult(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{
		Results: []mock.Outcome{
			{Result: &synth.Result{Audio: []byte("abc"), Format: "wav", DurationSeconds: 1.5}},
		},
	}
	g := synthgate.New(backend)
	defer g.Close()

	out := <-g.Submit(context.Background(), synthgate.Job{
		GroupID:    "g1",
		SentenceID: 0,
		Request:    synth.Request{Text: "Hello there."},
	})
	if out.Err != nil {
		t.Fatalf("outcome error = %v", out.Err)
	}
	if out.Result.DurationSeconds != 1.5 {
		t.Errorf("DurationSeconds = %v, want 1.5", out.Result.DurationSeconds)
	}
	if len(backend.Calls) != 1 || backend.Calls[0].Req.Text != "Hello there." {
		t.Errorf("backend calls = %+v, want one call with the job text", backend.Calls)
	}
}

func TestJobsAreSerializedFIFO(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{
		Started: make(chan string),
		Release: make(chan struct{}),
	}
	g := synthgate.New(backend)
	defer g.Close()

	ctx := context.Background()
	first := g.Submit(ctx, synthgate.Job{GroupID: "g1", SentenceID: 0, Request: synth.Request{Text: "one"}})
	second := g.Submit(ctx, synthgate.Job{GroupID: "g1", SentenceID: 1, Request: synth.Request{Text: "two"}})

	// The first job starts; the second must not while the first is held.
	if got := <-backend.Started; got != "one" {
		t.Fatalf("first admitted job = %q, want %q", got, "one")
	}
	select {
	case got := <-backend.Started:
		t.Fatalf("second job %q admitted while first still executing", got)
	case <-time.After(50 * time.Millisecond):
	}

	backend.Release <- struct{}{}
	if out := <-first; out.Err != nil {
		t.Fatalf("first outcome error = %v", out.Err)
	}

	if got := <-backend.Started; got != "two" {
		t.Fatalf("second admitted job = %q, want %q", got, "two")
	}
	backend.Release <- struct{}{}
	if out := <-second; out.Err != nil {
		t.Fatalf("second outcome error = %v", out.Err)
	}
}

func TestTimeoutMeasuredFromExecutionStart(t *testing.T) {
	t.Parallel()

	// The first job blocks until its execution window lapses; the second is
	// instant. Even though the second waits in the queue longer than the
	// timeout, it must still succeed because its window starts at admission.
	backend := &mock.Synthesizer{
		Started: make(chan string, 2),
		Release: make(chan struct{}),
	}
	g := synthgate.New(backend, synthgate.WithTimeout(60*time.Millisecond))
	defer g.Close()

	ctx := context.Background()
	first := g.Submit(ctx, synthgate.Job{SentenceID: 0, Request: synth.Request{Text: "slow"}})
	second := g.Submit(ctx, synthgate.Job{SentenceID: 1, Request: synth.Request{Text: "fast"}})

	<-backend.Started

	out1 := <-first
	if !errors.Is(out1.Err, synthgate.ErrTimeout) {
		t.Fatalf("first outcome error = %v, want ErrTimeout", out1.Err)
	}

	<-backend.Started
	backend.Release <- struct{}{}
	out2 := <-second
	if out2.Err != nil {
		t.Fatalf("second outcome error = %v, want success despite long queue wait", out2.Err)
	}
}

func TestCancelWhileQueuedSkipsBackend(t *testing.T) {
	t.Parallel()

	backend := &mock.Synthesizer{
		Started: make(chan string),
		Release: make(chan struct{}),
	}
	g := synthgate.New(backend)
	defer g.Close()

	first := g.Submit(context.Background(), synthgate.Job{SentenceID: 0, Request: synth.Request{Text: "held"}})
	<-backend.Started

	ctx, cancel := context.WithCancel(context.Background())
	second := g.Submit(ctx, synthgate.Job{SentenceID: 1, Request: synth.Request{Text: "queued"}})
	cancel()

	out := <-second
	if !errors.Is(out.Err, context.Canceled) {
		t.Fatalf("queued outcome error = %v, want context.Canceled", out.Err)
	}

	backend.Release <- struct{}{}
	<-first

	if len(backend.Calls) != 1 {
		t.Errorf("backend calls = %d, want 1 (cancelled job must not reach the backend)", len(backend.Calls))
	}
}

func TestSubmitAfterCloseFails(t *testing.T) {
	t.Parallel()

	g := synthgate.New(&mock.Synthesizer{})
	g.Close()

	out := <-g.Submit(context.Background(), synthgate.Job{Request: synth.Request{Text: "late"}})
	if !errors.Is(out.Err, synthgate.ErrClosed) {
		t.Errorf("outcome error = %v, want ErrClosed", out.Err)
	}
}
