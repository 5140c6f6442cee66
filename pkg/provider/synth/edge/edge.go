// Package edge provides a synth.Synthesizer backed by Microsoft Edge neural
// TTS via the edge-tts-go client.
//
// Edge streams MP3 frames over a websocket; the frames are collected into a
// single MP3 payload and the duration is measured by decoding the payload
// with go-mp3. Useful as a free fallback backend when the primary
// voice-cloning service is down.
package edge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/soulcast-ai/soulcast/pkg/provider/synth"
)

// Compile-time interface assertion.
var _ synth.Synthesizer = (*Synthesizer)(nil)

const defaultVoice = "zh-CN-XiaoxiaoNeural"

// go-mp3 always emits 16-bit stereo PCM, 4 bytes per sample frame.
const pcmBytesPerFrame = 4

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithVoice sets the Edge neural voice used when a request does not name
// one. Defaults to zh-CN-XiaoxiaoNeural.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) {
		s.voice = voice
	}
}

// Synthesizer implements synth.Synthesizer using Edge neural TTS.
type Synthesizer struct {
	voice string
}

// New creates an Edge-backed Synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{voice: defaultVoice}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize implements synth.Synthesizer. The request's Voice overrides the
// configured default; Speed and Emotion are not supported by Edge and are
// ignored.
func (s *Synthesizer) Synthesize(ctx context.Context, req synth.Request) (*synth.Result, error) {
	if req.Text == "" {
		return nil, errors.New("edge: text must not be empty")
	}
	voice := req.Voice
	if voice == "" {
		voice = s.voice
	}

	comm, err := edge.NewCommunicate(req.Text, edge.WithVoice(voice))
	if err != nil {
		return nil, fmt.Errorf("edge: create communicate: %w", err)
	}

	ch, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("edge: start stream: %w", err)
	}

	// Stream() emits maps; entries with type=="audio" carry MP3 frames.
	var buf bytes.Buffer
	for msg := range ch {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		if msgType, ok := msg["type"].(string); ok && msgType == "audio" {
			if data, ok := msg["data"].([]byte); ok {
				buf.Write(data)
			}
		}
	}
	if buf.Len() == 0 {
		return nil, errors.New("edge: no audio data received")
	}

	duration, err := mp3Duration(buf.Bytes())
	if err != nil {
		return nil, err
	}
	return &synth.Result{
		Audio:           buf.Bytes(),
		Format:          "mp3",
		DurationSeconds: duration,
	}, nil
}

// Healthy implements synth.Synthesizer. The Edge endpoint has no status API;
// reachability is only observable by synthesizing, so Healthy reports ok.
func (s *Synthesizer) Healthy(context.Context) error {
	return nil
}

// mp3Duration decodes data and derives the playback length from the PCM
// byte count and sample rate.
func mp3Duration(data []byte) (float64, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("edge: decode mp3: %w", err)
	}
	n, err := io.Copy(io.Discard, dec)
	if err != nil {
		return 0, fmt.Errorf("edge: read pcm: %w", err)
	}
	frames := n / pcmBytesPerFrame
	return float64(frames) / float64(dec.SampleRate()), nil
}
