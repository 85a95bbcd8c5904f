package ws

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/model/chat"
	chatService "github.com/zhouzirui/research-agent/internal/service/chat"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Inbound frame types.
const (
	TypeMessage = "message"
	TypeClear   = "clear"
	TypeHistory = "history"
)

// Outbound-only frame types.
const (
	TypeConnected = "connected"
	TypeDelta     = "delta"
	TypeCleared   = "cleared"
	TypeError     = "error"
)

// Handler WebSocket聊天处理器
type Handler struct {
	chatSvc  *chatService.Service
	log      *zap.Logger
	upgrader websocket.Upgrader

	pongWait   time.Duration
	pingPeriod time.Duration
}

// New 创建WebSocket处理器
func New(chatSvc *chatService.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		chatSvc:    chatSvc,
		log:        log,
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// InboundMessage 客户端发送的帧
type InboundMessage struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// OutboundMessage 服务端推送的帧
type OutboundMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content,omitempty"`
	History   []chat.Message `json:"history,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// conn 串行化写操作，gorilla 连接不允许并发写
type conn struct {
	ws        *websocket.Conn
	mu        sync.Mutex
	sessionID string
}

func (c *conn) send(msg OutboundMessage) error {
	msg.SessionID = c.sessionID
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(msg)
}

// handleWebSocket 处理WebSocket连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if errors.Is(err, chatService.ErrSessionNotFound) {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer wsConn.Close()

	c := &conn{ws: wsConn, sessionID: sessionID}
	log := h.log.With(zap.String("session_id", sessionID))
	log.Info("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = wsConn.SetReadDeadline(time.Now().Add(h.pongWait))
	wsConn.SetPongHandler(func(string) error {
		return wsConn.SetReadDeadline(time.Now().Add(h.pongWait))
	})

	go pingLoop(ctx, wsConn, h.pingPeriod)

	if err := c.send(OutboundMessage{Type: TypeConnected}); err != nil {
		return
	}

	// 代理回合在 worker 中按序执行，读循环持续运行以处理 pong 并续期读超时
	frames := make(chan InboundMessage, 8)
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		for msg := range frames {
			if err := h.dispatch(ctx, c, session, msg); err != nil {
				log.Debug("websocket write failed", zap.Error(err))
				cancel()
				_ = wsConn.Close()
				return
			}
		}
	}()
	defer func() {
		cancel()
		close(frames)
		<-workerDone
	}()

	for {
		var msg InboundMessage
		if err := wsConn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("websocket read error", zap.Error(err))
			}
			return
		}
		_ = wsConn.SetReadDeadline(time.Now().Add(h.pongWait))

		select {
		case frames <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, c *conn, session *chatService.Session, msg InboundMessage) error {
	switch msg.Type {
	case TypeMessage:
		reply, err := session.Bot.Stream(ctx, msg.Content, func(delta string) {
			_ = c.send(OutboundMessage{Type: TypeDelta, Content: delta})
		})
		if err != nil {
			h.log.Warn("websocket turn failed", zap.String("session_id", session.ID), zap.Error(err))
			return c.send(OutboundMessage{Type: TypeError, Content: reply, Error: err.Error()})
		}
		return c.send(OutboundMessage{Type: TypeMessage, Content: reply})

	case TypeClear:
		session.Bot.Clear()
		return c.send(OutboundMessage{Type: TypeCleared, Content: "Session history cleared"})

	case TypeHistory:
		return c.send(OutboundMessage{Type: TypeHistory, History: session.Bot.History()})

	default:
		return c.send(OutboundMessage{Type: TypeError, Error: "unknown message type: " + msg.Type})
	}
}

func pingLoop(ctx context.Context, wsConn *websocket.Conn, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl may run concurrently with WriteJSON.
			if err := wsConn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
