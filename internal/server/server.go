// Package server exposes the narration pipeline over HTTP.
//
// Three API surfaces share one handler:
//
//   - POST /api/chat    — request/response chat; the reply streams back as
//     Server-Sent Events carrying the narration event protocol.
//   - GET  /api/chat/ws — the same protocol over a WebSocket, one turn per
//     connection.
//   - GET  /api/souls   — lists the configured souls.
//
// Liveness and readiness probes are registered when a health handler is
// supplied.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"

	"github.com/soulcast-ai/soulcast/internal/config"
	"github.com/soulcast-ai/soulcast/internal/health"
	"github.com/soulcast-ai/soulcast/internal/narrate"
	"github.com/soulcast-ai/soulcast/internal/observe"
	"github.com/soulcast-ai/soulcast/pkg/provider/llm"
	"github.com/soulcast-ai/soulcast/pkg/stream"
)

// Option configures optional Server collaborators.
type Option func(*Server)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithMetrics sets the metrics sink. Defaults to the process-wide instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth registers the health handler's probe routes on the server mux.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithDefaultVoice sets the voice used for souls that do not name their own.
func WithDefaultVoice(voice string) Option {
	return func(s *Server) { s.defaultVoice = voice }
}

// Server routes chat requests into the narration orchestrator. Safe for
// concurrent use; the soul table may be swapped at runtime via UpdateSouls.
type Server struct {
	provider llm.Provider
	orch     *narrate.Orchestrator
	logger   *slog.Logger
	metrics  *observe.Metrics
	health   *health.Handler

	defaultVoice string

	mu    sync.RWMutex
	souls map[string]config.SoulConfig
}

// New creates a Server backed by the given text provider and orchestrator.
func New(provider llm.Provider, orch *narrate.Orchestrator, souls []config.SoulConfig, opts ...Option) *Server {
	s := &Server{
		provider: provider,
		orch:     orch,
		logger:   slog.Default(),
		metrics:  observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.UpdateSouls(souls)
	return s
}

// UpdateSouls replaces the soul table. Turns already in flight keep the soul
// they resolved at admission.
func (s *Server) UpdateSouls(souls []config.SoulConfig) {
	table := make(map[string]config.SoulConfig, len(souls))
	for _, soul := range souls {
		table[soul.Name] = soul
	}
	s.mu.Lock()
	s.souls = table
	s.mu.Unlock()
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /api/souls", s.handleSouls)
	if s.health != nil {
		s.health.Register(mux)
	}
	return mux
}

// chatRequest is the JSON body of POST /api/chat and the first WebSocket
// message on /api/chat/ws.
type chatRequest struct {
	// UserID labels the speaker; forwarded to the model as the message name.
	UserID string `json:"user_id,omitempty"`
	// Soul selects which configured soul answers.
	Soul string `json:"soul"`
	// Message is the user's utterance.
	Message string `json:"message"`
	// GroupID optionally pins the turn's group id; empty generates one.
	GroupID string `json:"group_id,omitempty"`
	// Model is accepted for wire compatibility. The provider's model is fixed
	// at construction, so this field is currently ignored.
	Model string `json:"model,omitempty"`
}

// soulInfo is one entry of the GET /api/souls response.
type soulInfo struct {
	Name    string  `json:"name"`
	Voice   string  `json:"voice,omitempty"`
	Speed   float64 `json:"speed,omitempty"`
	Emotion string  `json:"emotion,omitempty"`
}

func (s *Server) handleSouls(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	infos := make([]soulInfo, 0, len(s.souls))
	for _, soul := range s.souls {
		infos = append(infos, soulInfo{
			Name:    soul.Name,
			Voice:   s.resolveVoice(soul),
			Speed:   soul.Speed,
			Emotion: soul.Emotion,
		})
	}
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(infos); err != nil {
		s.logger.Error("encoding souls response", "error", err)
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	soul, treq, lreq, err := s.admit(req)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	tokens, err := s.provider.StreamCompletion(r.Context(), lreq)
	if err != nil {
		s.logger.Error("starting completion stream", "soul", soul.Name, "error", err)
		http.Error(w, "text provider unavailable", http.StatusBadGateway)
		return
	}

	sink, err := stream.NewSSEWriter(w)
	if err != nil {
		// Headers are not written yet in this branch, a plain error is fine.
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	s.runTurn(r.Context(), soul, treq, tokens, sink)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "server error")

	_, data, err := conn.Read(r.Context())
	if err != nil {
		return
	}
	var req chatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		conn.Close(websocket.StatusInvalidFramePayloadData, "invalid JSON request")
		return
	}

	soul, treq, lreq, err := s.admit(req)
	if err != nil {
		conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	tokens, err := s.provider.StreamCompletion(r.Context(), lreq)
	if err != nil {
		s.logger.Error("starting completion stream", "soul", soul.Name, "error", err)
		conn.Close(websocket.StatusInternalError, "text provider unavailable")
		return
	}

	s.runTurn(r.Context(), soul, treq, tokens, &wsSink{conn: conn})
	conn.Close(websocket.StatusNormalClosure, "")
}

// admit validates a chat request and resolves it into the turn request for
// the orchestrator and the completion request for the model.
func (s *Server) admit(req chatRequest) (config.SoulConfig, narrate.TurnRequest, llm.CompletionRequest, error) {
	if req.Message == "" {
		return config.SoulConfig{}, narrate.TurnRequest{}, llm.CompletionRequest{}, errEmptyMessage
	}

	s.mu.RLock()
	soul, ok := s.souls[req.Soul]
	s.mu.RUnlock()
	if !ok {
		return config.SoulConfig{}, narrate.TurnRequest{}, llm.CompletionRequest{},
			fmt.Errorf("%w: %q", errUnknownSoul, req.Soul)
	}

	treq := narrate.TurnRequest{
		GroupID: req.GroupID,
		Voice:   s.resolveVoice(soul),
		Speed:   soul.Speed,
		Emotion: soul.Emotion,
	}
	lreq := llm.CompletionRequest{
		SystemPrompt: soul.Persona,
		Messages: []llm.Message{
			{Role: "user", Content: req.Message, Name: req.UserID},
		},
	}
	return soul, treq, lreq, nil
}

func (s *Server) runTurn(ctx context.Context, soul config.SoulConfig, treq narrate.TurnRequest, tokens <-chan llm.Chunk, sink stream.Sink) {
	status, err := s.orch.Run(ctx, treq, tokens, sink)
	if err != nil {
		s.logger.Warn("turn ended with transport error",
			"soul", soul.Name, "status", status, "error", err)
	}
}

func (s *Server) resolveVoice(soul config.SoulConfig) string {
	if soul.Voice != "" {
		return soul.Voice
	}
	return s.defaultVoice
}

var (
	errEmptyMessage = errors.New("message must not be empty")
	errUnknownSoul  = errors.New("unknown soul")
)

func statusFor(err error) int {
	if errors.Is(err, errUnknownSoul) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
}

// wsSink adapts a WebSocket connection to the stream.Sink interface. Events
// are written as text frames carrying the JSON envelope.
type wsSink struct {
	conn *websocket.Conn
}

var _ stream.Sink = (*wsSink)(nil)

func (ws *wsSink) Send(ctx context.Context, ev stream.Event) error {
	data, err := stream.MarshalEnvelope(ev)
	if err != nil {
		return err
	}
	return ws.conn.Write(ctx, websocket.MessageText, data)
}
