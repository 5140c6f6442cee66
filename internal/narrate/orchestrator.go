// Package narrate implements the per-turn stream orchestrator.
//
// The orchestrator consumes a token stream from a generative text producer,
// detects sentence boundaries in the accumulated text, splits arriving
// chunks at the exact boundary offset into per-bubble pieces, submits each
// finalized sentence to the synthesis gate, and emits the ordered event
// protocol for the client.
//
// One Run call is one turn. All turn state (buffers, counters, the current
// bubble) lives in a turn value owned by the single Run goroutine, so
// concurrent turns are fully independent; the synthesis gate is the only
// shared mutable state. Token processing is strictly sequential — boundary
// detection must see chunks in arrival order — while synthesis jobs resolve
// concurrently and their events interleave via a results channel consumed by
// the same loop.
package narrate

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soulcast-ai/soulcast/internal/bubble"
	"github.com/soulcast-ai/soulcast/internal/observe"
	"github.com/soulcast-ai/soulcast/internal/segment"
	"github.com/soulcast-ai/soulcast/internal/synthgate"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
	"github.com/soulcast-ai/soulcast/pkg/stream"
)

// turnState tracks where a turn is in its lifecycle.
type turnState int

const (
	stateAwaitingFirstToken turnState = iota
	stateStreaming
	stateFinalizing
	stateDone
)

// Terminal statuses reported by Run.
const (
	StatusDone      = "done"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Option is a functional option for configuring an Orchestrator.
type Option func(*Orchestrator)

// WithPolicy overrides the boundary detection policy.
func WithPolicy(p segment.Policy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

// WithBubbleCap sets the per-turn bubble cap. Defaults to bubble.DefaultCap.
func WithBubbleCap(n int) Option {
	return func(o *Orchestrator) { o.alloc = bubble.NewAllocator(n) }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// Orchestrator runs narrated response turns. It is safe for concurrent use;
// each Run call owns its turn state exclusively.
type Orchestrator struct {
	gate    *synthgate.Gate
	alloc   *bubble.Allocator
	policy  segment.Policy
	logger  *slog.Logger
	metrics *observe.Metrics
}

// New constructs an Orchestrator in front of the given synthesis gate.
func New(gate *synthgate.Gate, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		gate:   gate,
		alloc:  bubble.NewAllocator(bubble.DefaultCap),
		policy: segment.DefaultPolicy(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// TurnRequest identifies and parameterises one turn.
type TurnRequest struct {
	// GroupID identifies the response turn. Empty generates a fresh UUID.
	GroupID string

	// Voice, Speed, and Emotion are forwarded to every synthesis job of the
	// turn.
	Voice   string
	Speed   float64
	Emotion string
}

// turn holds all mutable state of one running turn. Owned exclusively by the
// Run goroutine; never shared.
type turn struct {
	o       *Orchestrator
	groupID string
	req     TurnRequest
	sink    stream.Sink
	ctx     context.Context
	logger  *slog.Logger
	started time.Time

	state turnState
	buf   string // accumulated text of the current open bubble
	cur   int    // current sentence id
	atCap bool   // true once the last allowed bubble is open

	results   chan synthgate.Outcome
	pending   int
	succeeded int
	failed    int
}

// Run executes one complete turn: it consumes tokens until the producer
// finishes or fails, emits the event protocol to sink, and returns once the
// terminal event has been sent. The returned status is one of StatusDone,
// StatusError, StatusCancelled; the error reports transport failures only —
// producer and synthesis failures are reported to the client through the
// protocol.
func (o *Orchestrator) Run(ctx context.Context, req TurnRequest, tokens <-chan llm.Chunk, sink stream.Sink) (string, error) {
	groupID := req.GroupID
	if groupID == "" {
		groupID = uuid.NewString()
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer o.alloc.Release(groupID)

	o.metrics.ActiveTurns.Add(ctx, 1)
	defer o.metrics.ActiveTurns.Add(ctx, -1)

	t := &turn{
		o:       o,
		groupID: groupID,
		req:     req,
		sink:    sink,
		ctx:     turnCtx,
		logger:  o.logger.With("group_id", groupID),
		started: time.Now(),
		state:   stateAwaitingFirstToken,
		results: make(chan synthgate.Outcome, o.alloc.Cap()),
	}

	status, err := t.run(tokens)
	elapsed := time.Since(t.started)
	o.metrics.RecordTurn(context.WithoutCancel(ctx), status, elapsed.Seconds())
	t.logger.Info("turn finished",
		"status", status,
		"bubbles", o.alloc.Count(groupID),
		"succeeded", t.succeeded,
		"failed", t.failed,
		"elapsed", elapsed,
	)
	return status, err
}

// run drives the state machine and returns the terminal status plus any
// transport error.
func (t *turn) run(tokens <-chan llm.Chunk) (string, error) {
	cancelled := false

consume:
	for t.state == stateAwaitingFirstToken || t.state == stateStreaming {
		select {
		case <-t.ctx.Done():
			cancelled = true
			break consume

		case out := <-t.results:
			t.pending--
			if err := t.resolve(out); err != nil {
				return StatusError, err
			}

		case chunk, ok := <-tokens:
			if !ok {
				t.state = stateFinalizing
				break
			}
			if chunk.FinishReason == "error" {
				return t.abortOnProducerError(chunk.Text)
			}

			if t.state == stateAwaitingFirstToken {
				if err := t.openFirstBubble(); err != nil {
					return t.sendFailure(err)
				}
			}
			if chunk.Text != "" {
				if err := t.consumeChunk(chunk.Text); err != nil {
					return t.sendFailure(err)
				}
			}
			if chunk.FinishReason != "" {
				t.state = stateFinalizing
			}
		}
	}

	if !cancelled && t.state == stateFinalizing {
		t.o.metrics.LLMDuration.Record(t.ctx, time.Since(t.started).Seconds())
		if err := t.finalizeLast(); err != nil {
			return t.sendFailure(err)
		}

		// Await every submitted job; audio and per-bubble error events are
		// emitted as each resolves, in completion order.
		for t.pending > 0 {
			select {
			case out := <-t.results:
				t.pending--
				if err := t.resolve(out); err != nil {
					return StatusError, err
				}
			case <-t.ctx.Done():
				cancelled = true
				t.pending = 0
			}
		}
	}

	// The terminal event is emitted even after cancellation so the client
	// (or an in-process consumer) always observes an end of turn.
	t.state = stateDone
	done := stream.New(stream.Done{
		GroupID:        t.groupID,
		Succeeded:      t.succeeded,
		Failed:         t.failed,
		ElapsedSeconds: time.Since(t.started).Seconds(),
	})
	if err := t.sink.Send(context.WithoutCancel(t.ctx), done); err != nil {
		return StatusError, fmt.Errorf("narrate: send done event: %w", err)
	}
	if cancelled {
		return StatusCancelled, nil
	}
	return StatusDone, nil
}

// abortOnProducerError emits the terminal error event for a mid-stream
// producer failure. Open bubbles remain as-is and in-flight synthesis jobs
// are not awaited; the deferred cancel in Run releases them.
func (t *turn) abortOnProducerError(msg string) (string, error) {
	t.logger.Error("producer failed", "error", msg)
	ev := stream.New(stream.Error{GroupID: t.groupID, Message: msg})
	if err := t.sink.Send(context.WithoutCancel(t.ctx), ev); err != nil {
		return StatusError, fmt.Errorf("narrate: send error event: %w", err)
	}
	return StatusError, nil
}

// sendFailure classifies an emission failure: a cancelled turn context means
// the client went away, anything else is a transport error.
func (t *turn) sendFailure(err error) (string, error) {
	if errors.Is(err, context.Canceled) && t.ctx.Err() != nil {
		return StatusCancelled, nil
	}
	return StatusError, err
}

// openFirstBubble opens sentence 0 and enters streaming state.
func (t *turn) openFirstBubble() error {
	id, err := t.o.alloc.Open(t.groupID)
	if err != nil {
		return fmt.Errorf("narrate: open first bubble: %w", err)
	}
	t.cur = id
	t.atCap = t.o.alloc.AtCap(t.groupID)
	t.state = stateStreaming
	t.o.metrics.Bubbles.Add(t.ctx, 1)
	return t.send(stream.MessageStart{GroupID: t.groupID, SentenceID: id})
}

// consumeChunk appends one producer chunk to the current bubble and performs
// boundary detection and splitting. A single chunk may cross several
// boundaries; the eager loop flushes each completed sentence before
// emitting the remainder.
func (t *turn) consumeChunk(chunk string) error {
	emitted := len(t.buf) // prefix of buf already sent as token events
	t.buf += chunk

	if !t.atCap {
		for {
			k, ok := t.o.policy.Detect(t.buf)
			if !ok {
				break
			}
			if k > len(t.buf) {
				// Split computed past the accumulated text. This must never
				// reach the client: drop the split and continue degraded by
				// appending the whole chunk to the current bubble.
				t.logger.Error("boundary offset beyond buffer, dropping split",
					"offset", k, "buffer_len", len(t.buf), "sentence_id", t.cur)
				break
			}
			if k < emitted {
				// The boundary lies in text already streamed to this bubble
				// (a tier floor was crossed by this chunk). Finalize at the
				// chunk start so emitted tokens and finalized text agree.
				k = emitted
			}

			// Route the piece of the just-appended chunk that belongs to the
			// current bubble, then finalize it.
			if prefix := t.buf[emitted:k]; prefix != "" {
				if err := t.send(stream.Token{GroupID: t.groupID, SentenceID: t.cur, Text: prefix}); err != nil {
					return err
				}
			}
			if err := t.finalize(t.buf[:k]); err != nil {
				return err
			}

			// Open the successor; the suffix seeds its buffer.
			id, err := t.o.alloc.Open(t.groupID)
			if err != nil {
				return fmt.Errorf("narrate: open bubble: %w", err)
			}
			t.cur = id
			t.buf = t.buf[k:]
			emitted = 0
			t.o.metrics.Bubbles.Add(t.ctx, 1)
			if err := t.send(stream.MessageStart{GroupID: t.groupID, SentenceID: id}); err != nil {
				return err
			}

			if t.o.alloc.AtCap(t.groupID) {
				// The last allowed bubble absorbs everything from here on;
				// no further boundary detection for the rest of the stream.
				t.atCap = true
				break
			}
		}
	}

	if tail := t.buf[emitted:]; tail != "" {
		return t.send(stream.Token{GroupID: t.groupID, SentenceID: t.cur, Text: tail})
	}
	return nil
}

// finalize marks the current bubble's text final and submits it for
// synthesis. text is exactly the concatenation of the bubble's token event
// payloads.
func (t *turn) finalize(text string) error {
	if err := t.send(stream.SentenceEnd{GroupID: t.groupID, SentenceID: t.cur}); err != nil {
		return err
	}
	if text == "" {
		return nil
	}

	job := synthgate.Job{
		GroupID:    t.groupID,
		SentenceID: t.cur,
		Request: synth.Request{
			Text:    text,
			Voice:   t.req.Voice,
			Speed:   t.req.Speed,
			Emotion: t.req.Emotion,
		},
	}
	outCh := t.o.gate.Submit(t.ctx, job)
	t.pending++

	// Forward the single outcome into the turn's results channel so the run
	// loop can interleave audio events with token processing. The channel is
	// buffered to the bubble cap, so this never blocks even if the turn
	// aborts before draining.
	go func() {
		t.results <- <-outCh
	}()
	return nil
}

// finalizeLast closes the bubble still open when the producer completes,
// whatever its length.
func (t *turn) finalizeLast() error {
	if t.o.alloc.Count(t.groupID) == 0 {
		return nil
	}
	return t.finalize(t.buf)
}

// resolve emits the event for one resolved synthesis job. Audio arrives out
// of band relative to token events, so emission uses a detached context: a
// result landing just after cancellation is still best-effort delivered.
func (t *turn) resolve(out synthgate.Outcome) error {
	ctx := context.WithoutCancel(t.ctx)

	if out.Err != nil {
		t.failed++
		status := "error"
		if errors.Is(out.Err, synthgate.ErrTimeout) {
			status = "timeout"
		}
		t.o.metrics.RecordSynthesisJob(ctx, status, out.QueueWait.Seconds(), out.ExecDuration.Seconds())
		id := out.Job.SentenceID
		ev := stream.New(stream.Error{
			GroupID:    t.groupID,
			SentenceID: &id,
			Message:    out.Err.Error(),
		})
		if err := t.sink.Send(ctx, ev); err != nil {
			return fmt.Errorf("narrate: send error event: %w", err)
		}
		return nil
	}

	t.succeeded++
	t.o.metrics.RecordSynthesisJob(ctx, "ok", out.QueueWait.Seconds(), out.ExecDuration.Seconds())
	ev := stream.New(stream.Audio{
		GroupID:         t.groupID,
		SentenceID:      out.Job.SentenceID,
		AudioBase64:     base64.StdEncoding.EncodeToString(out.Result.Audio),
		Format:          out.Result.Format,
		DurationSeconds: out.Result.DurationSeconds,
	})
	if err := t.sink.Send(ctx, ev); err != nil {
		return fmt.Errorf("narrate: send audio event: %w", err)
	}
	return nil
}

// send emits one event on the live turn context.
func (t *turn) send(p stream.Payload) error {
	ev := stream.New(p)
	if err := t.sink.Send(t.ctx, ev); err != nil {
		return fmt.Errorf("narrate: send %s event: %w", ev.Type, err)
	}
	return nil
}
