package stream_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/soulcast-ai/soulcast/pkg/stream"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	ev := stream.New(stream.Token{GroupID: "g1", SentenceID: 2, Text: "你好。"})
	b, err := stream.MarshalEnvelope(ev)
	if err != nil {
		t.Fatalf("MarshalEnvelope() error = %v", err)
	}

	got, err := stream.UnmarshalEnvelope(b)
	if err != nil {
		t.Fatalf("UnmarshalEnvelope() error = %v", err)
	}
	if got.Type != stream.TypeToken {
		t.Errorf("Type = %q, want %q", got.Type, stream.TypeToken)
	}
	if got.Data != ev.Data {
		t.Errorf("Data = %#v, want %#v", got.Data, ev.Data)
	}
}

func TestUnmarshalEnvelopeUnknownType(t *testing.T) {
	t.Parallel()

	_, err := stream.UnmarshalEnvelope([]byte(`{"type":"bogus","data":{}}`))
	if err == nil {
		t.Fatal("UnmarshalEnvelope() expected error for unknown type")
	}
}

func TestErrorPayloadOmitsNilSentenceID(t *testing.T) {
	t.Parallel()

	b, err := stream.MarshalEnvelope(stream.New(stream.Error{GroupID: "g1", Message: "producer failed"}))
	if err != nil {
		t.Fatalf("MarshalEnvelope() error = %v", err)
	}
	if strings.Contains(string(b), "sentence_id") {
		t.Errorf("turn-level error should omit sentence_id, got %s", b)
	}
}

func TestSSEWriterFraming(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := stream.NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter() error = %v", err)
	}

	events := []stream.Event{
		stream.New(stream.MessageStart{GroupID: "g1", SentenceID: 0}),
		stream.New(stream.Token{GroupID: "g1", SentenceID: 0, Text: "Hi. "}),
		stream.New(stream.Done{GroupID: "g1", Succeeded: 1, ElapsedSeconds: 0.5}),
	}
	for _, ev := range events {
		if err := w.Send(context.Background(), ev); err != nil {
			t.Fatalf("Send(%s) error = %v", ev.Type, err)
		}
	}

	if got := rec.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := rec.Header().Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", got)
	}

	body := rec.Body.String()
	records := strings.Split(strings.TrimSuffix(body, "\n\n"), "\n\n")
	if len(records) != len(events) {
		t.Fatalf("got %d SSE records, want %d:\n%s", len(records), len(events), body)
	}
	if !strings.HasPrefix(records[0], "event: message_start\ndata: ") {
		t.Errorf("first record framing wrong:\n%s", records[0])
	}
	if !strings.Contains(records[2], `"succeeded":1`) {
		t.Errorf("done record missing aggregate count:\n%s", records[2])
	}
}

func TestSSEWriterStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	w, err := stream.NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := w.Send(ctx, stream.New(stream.Token{GroupID: "g1"})); err == nil {
		t.Fatal("Send() expected error after context cancellation")
	}
	if rec.Body.Len() != 0 {
		t.Errorf("no record should be written after cancellation, got %q", rec.Body.String())
	}
}
