// Package stream defines the server→client event protocol for narrated
// response turns.
//
// A turn is delivered as an ordered sequence of events. For a single bubble
// the order is always opened → zero or more token appends → finalized →
// (eventually) audio or a synthesis error. Open/finalize events across
// bubbles follow strict sentence-id order; audio events are exempt from
// cross-bubble ordering because synthesis completion timing is independent
// of token arrival, but every audio event references a bubble that was
// already announced.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
)

// Type discriminates the event payload kinds.
type Type string

const (
	// TypeMessageStart announces a newly opened bubble.
	TypeMessageStart Type = "message_start"
	// TypeToken appends text to an open bubble.
	TypeToken Type = "token"
	// TypeSentenceEnd marks a bubble's text as final; synthesis was submitted.
	TypeSentenceEnd Type = "sentence_end"
	// TypeAudio binds a synthesis result to a finalized bubble.
	TypeAudio Type = "audio"
	// TypeDone terminates a turn with aggregate status.
	TypeDone Type = "done"
	// TypeError reports a producer failure (no sentence id) or a per-bubble
	// synthesis failure (sentence id set).
	TypeError Type = "error"
)

// Payload is implemented by exactly the six event payload types.
type Payload interface {
	eventType() Type
}

// Event pairs a discriminator with its payload. Data's concrete type always
// matches Type.
type Event struct {
	Type Type
	Data Payload
}

// MessageStart is the payload of a message_start event.
type MessageStart struct {
	GroupID    string `json:"group_id"`
	SentenceID int    `json:"sentence_id"`
}

// Token is the payload of a token event.
type Token struct {
	GroupID    string `json:"group_id"`
	SentenceID int    `json:"sentence_id"`
	Text       string `json:"text"`
}

// SentenceEnd is the payload of a sentence_end event.
type SentenceEnd struct {
	GroupID    string `json:"group_id"`
	SentenceID int    `json:"sentence_id"`
}

// Audio is the payload of an audio event. AudioBase64 carries the raw
// synthesized bytes base64-encoded; Format names the container ("wav",
// "mp3").
type Audio struct {
	GroupID         string  `json:"group_id"`
	SentenceID      int     `json:"sentence_id"`
	AudioBase64     string  `json:"audio_base64"`
	Format          string  `json:"format"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Done is the terminal payload of a successful (possibly partially
// successful) turn. Succeeded and Failed count resolved synthesis jobs.
type Done struct {
	GroupID        string  `json:"group_id"`
	Succeeded      int     `json:"succeeded"`
	Failed         int     `json:"failed"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
}

// Error is the payload of an error event. SentenceID is nil for turn-level
// producer failures and set for per-bubble synthesis failures.
type Error struct {
	GroupID    string `json:"group_id"`
	SentenceID *int   `json:"sentence_id,omitempty"`
	Message    string `json:"message"`
}

func (MessageStart) eventType() Type { return TypeMessageStart }
func (Token) eventType() Type        { return TypeToken }
func (SentenceEnd) eventType() Type  { return TypeSentenceEnd }
func (Audio) eventType() Type        { return TypeAudio }
func (Done) eventType() Type         { return TypeDone }
func (Error) eventType() Type        { return TypeError }

// New wraps a payload into an Event with the matching discriminator.
func New(p Payload) Event {
	return Event{Type: p.eventType(), Data: p}
}

// Sink receives the events of one turn in emission order. Implementations
// must be safe for use from a single emitting goroutine; Send returning an
// error aborts the turn on the transport side.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// envelope is the JSON framing used by message-oriented transports
// (WebSocket). SSE carries the discriminator in its own event: line instead.
type envelope struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalEnvelope encodes ev as a single self-describing JSON message.
func MarshalEnvelope(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("stream: marshal %s payload: %w", ev.Type, err)
	}
	return json.Marshal(envelope{Type: ev.Type, Data: data})
}

// UnmarshalEnvelope decodes a self-describing JSON message back into an
// Event with a concretely typed payload. Used by Go clients and tests.
func UnmarshalEnvelope(b []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Event{}, fmt.Errorf("stream: unmarshal envelope: %w", err)
	}
	return decodePayload(env.Type, env.Data)
}

// decodePayload decodes raw JSON into the payload type named by t.
func decodePayload(t Type, data []byte) (Event, error) {
	var p Payload
	switch t {
	case TypeMessageStart:
		p = &MessageStart{}
	case TypeToken:
		p = &Token{}
	case TypeSentenceEnd:
		p = &SentenceEnd{}
	case TypeAudio:
		p = &Audio{}
	case TypeDone:
		p = &Done{}
	case TypeError:
		p = &Error{}
	default:
		return Event{}, fmt.Errorf("stream: unknown event type %q", t)
	}
	if err := json.Unmarshal(data, p); err != nil {
		return Event{}, fmt.Errorf("stream: unmarshal %s payload: %w", t, err)
	}
	return Event{Type: t, Data: deref(p)}, nil
}

// deref converts the pointer used for unmarshalling back to the value form
// emitted by New, so round-tripped events compare equal.
func deref(p Payload) Payload {
	switch v := p.(type) {
	case *MessageStart:
		return *v
	case *Token:
		return *v
	case *SentenceEnd:
		return *v
	case *Audio:
		return *v
	case *Done:
		return *v
	case *Error:
		return *v
	default:
		return p
	}
}
