package handlers

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/benvon/ai-task/internal/logger"
	"github.com/benvon/ai-task/internal/models"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 64 * 1024
)

// Server to client message types
const (
	MessageConnected        = "connected"
	MessageResponseStart    = "response_start"
	MessageResponseChunk    = "response_chunk"
	MessageResponseComplete = "response_complete"
	MessageError            = "error"
)

// clientMessage is a prompt sent over the socket. Message is the field the
// web client sends; Prompt is accepted as well.
type clientMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
}

func (m clientMessage) text() string {
	if m.Message != "" {
		return strings.TrimSpace(m.Message)
	}
	return strings.TrimSpace(m.Prompt)
}

// ServerMessage is a frame sent to the client
type ServerMessage struct {
	Type         string `json:"type"`
	TaskID       string `json:"task_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Chunk        string `json:"chunk,omitempty"`
	FullResponse string `json:"full_response,omitempty"`
	ExchangeID   string `json:"exchange_id,omitempty"`
}

// StreamHandler streams answers over a WebSocket
type StreamHandler struct {
	tasks    TaskLookup
	chat     ChatService
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewStreamHandler creates a stream handler accepting browser connections
// from allowedOrigins. Requests without an Origin header are accepted.
func NewStreamHandler(tasks TaskLookup, chat ChatService, allowedOrigins []string, log *zap.Logger) *StreamHandler {
	return &StreamHandler{
		tasks: tasks,
		chat:  chat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
		logger: logger.OrNop(log),
	}
}

// RegisterRoutes registers the socket route on a router carrying the /ws prefix
func (h *StreamHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/tasks/{id}", h.ServeWS).Methods("GET")
}

// ServeWS authenticates, loads the task and then answers each prompt the
// client sends until it disconnects.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r)
	if user == nil {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	task, err := h.tasks.GetByID(r.Context(), id, user.ID)
	if err != nil {
		respondStoreError(w, err, "get task")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket_upgrade_failed", zap.Error(err))
		return
	}
	defer func() {
		_ = conn.Close()
	}()
	conn.SetReadLimit(wsMaxMessageSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.send(conn, ServerMessage{Type: MessageConnected, TaskID: task.ID.String()}); err != nil {
		return
	}

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket_read_failed", zap.String("task_id", task.ID.String()), zap.Error(err))
			}
			return
		}
		if err := h.answer(ctx, conn, task, msg.text()); err != nil {
			return
		}
	}
}

// answer streams one prompt. A returned error means the socket is unusable.
func (h *StreamHandler) answer(ctx context.Context, conn *websocket.Conn, task *models.Task, prompt string) error {
	if prompt == "" {
		return h.send(conn, ServerMessage{Type: MessageError, Message: "Prompt is required"})
	}
	if err := h.send(conn, ServerMessage{Type: MessageResponseStart, Message: prompt}); err != nil {
		return err
	}

	var writeErr error
	result, err := h.chat.ChatStream(ctx, task, prompt, func(chunk, full string) error {
		if chunk == "" {
			return nil
		}
		writeErr = h.send(conn, ServerMessage{Type: MessageResponseChunk, Chunk: chunk, FullResponse: full})
		return writeErr
	})
	if writeErr != nil {
		return writeErr
	}
	if err != nil {
		h.logger.Error("stream_chat_failed",
			zap.String("task_id", task.ID.String()),
			zap.String("error", logger.SanitizeError(err)),
		)
		return h.send(conn, ServerMessage{Type: MessageError, Message: "Failed to answer prompt"})
	}

	return h.send(conn, ServerMessage{
		Type:         MessageResponseComplete,
		FullResponse: result.Exchange.Response,
		ExchangeID:   result.Exchange.ID.String(),
	})
}

func (h *StreamHandler) send(conn *websocket.Conn, msg ServerMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
