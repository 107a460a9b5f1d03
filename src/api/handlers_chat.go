package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	companion "github.com/Protocol-Lattice/go-companion"
)

// ChatHandler serves conversation turns.
type ChatHandler struct {
	svc      *companion.Service
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewChatHandler(svc *companion.Service, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{
		svc: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

// Chat handles POST /v1/chat/{agentID}
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	turn, err := h.svc.HandleTurn(r.Context(), companion.TurnRequest{
		Prompt:  req.Prompt,
		AgentID: chi.URLParam(r, "agentID"),
		UserID:  GetUserID(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, turn)
}

// streamEvent is one websocket frame sent to the client.
type streamEvent struct {
	Type   string `json:"type"` // delta|done|error
	Delta  string `json:"delta,omitempty"`
	Text   string `json:"text,omitempty"`
	Cached bool   `json:"cached,omitempty"`
	Error  string `json:"error,omitempty"`
}

const streamWriteTimeout = 10 * time.Second

// Stream handles GET /v1/chat/{agentID}/stream. Each text frame from the
// client is a chatRequest; the reply streams back as delta frames followed
// by one done or error frame.
func (h *ChatHandler) Stream(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	userID := GetUserID(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	send := func(ev streamEvent) error {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		return conn.WriteJSON(ev)
	}

	for {
		var req chatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		var done streamEvent
		chunks, err := h.svc.StreamTurn(ctx, companion.TurnRequest{
			Prompt:  req.Prompt,
			AgentID: agentID,
			UserID:  userID,
		}, func(c companion.Completion) {
			if c.Err != nil {
				done = streamEvent{Type: "error", Error: companion.ErrGeneration.Error()}
				return
			}
			done = streamEvent{Type: "done", Text: c.Text, Cached: c.Cached}
		})
		if err != nil {
			if send(streamEvent{Type: "error", Error: err.Error()}) != nil {
				return
			}
			continue
		}

		for chunk := range chunks {
			if chunk.Done {
				continue
			}
			if chunk.Delta == "" {
				continue
			}
			if err := send(streamEvent{Type: "delta", Delta: chunk.Delta}); err != nil {
				return
			}
		}
		if done.Type == "" {
			done = streamEvent{Type: "error", Error: "stream interrupted"}
		}
		if err := send(done); err != nil {
			return
		}
	}
}
