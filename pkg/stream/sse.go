package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// SSEWriter emits events as Server-Sent Events records:
//
//	event: <type>\n
//	data: <json payload>\n
//	\n
//
// Each record is flushed immediately so the client observes events as they
// are emitted rather than at buffer boundaries.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

var _ Sink = (*SSEWriter)(nil)

// NewSSEWriter prepares w for event streaming: it sets the SSE headers
// (including X-Accel-Buffering to defeat reverse-proxy buffering) and writes
// the 200 status. It returns an error if w does not support flushing.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("stream: response writer does not support flushing")
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Send implements Sink. It returns the context error if ctx is already done,
// so a disconnected client stops the emitting turn promptly.
func (s *SSEWriter) Send(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("stream: marshal %s payload: %w", ev.Type, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("stream: write sse record: %w", err)
	}
	s.flusher.Flush()
	return nil
}
