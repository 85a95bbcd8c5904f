package stream

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	chatService "github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/pkg/utils"
)

// SSE event names, in the order a successful turn emits them.
const (
	EventStart   = "start"
	EventDelta   = "delta"
	EventMessage = "message"
	EventEnd     = "end"
	EventError   = "error"
)

// Handler streams agent answers via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
	log     *zap.Logger
}

// New creates a new stream handler.
func New(chatSvc *chatService.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{chatSvc: chatSvc, log: log}
}

// RegisterRoutes mounts GET /session/{sessionID}/stream.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/session/{sessionID}/stream", h.handleStream)
}

// Event is the JSON payload of every SSE frame.
type Event struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if !r.URL.Query().Has("message") {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}
	message := r.URL.Query().Get("message")

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(event string, payload Event) {
		payload.SessionID = sessionID
		if err := utils.SendSSEEvent(w, flusher, event, payload); err != nil {
			h.log.Debug("sse write failed", zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	send(EventStart, Event{})

	reply, err := session.Bot.Stream(r.Context(), message, func(delta string) {
		send(EventDelta, Event{Content: delta})
	})
	if err != nil {
		h.log.Warn("stream turn failed", zap.String("session_id", sessionID), zap.Error(err))
		send(EventError, Event{Content: reply, Error: err.Error()})
		return
	}

	send(EventMessage, Event{Content: reply})
	send(EventEnd, Event{})
	h.log.Info("stream completed",
		zap.String("session_id", sessionID),
		zap.Int("chars", len(reply)),
		zap.String("reply", utils.TruncateText(reply, 120)),
	)
}
