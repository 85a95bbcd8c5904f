package chat

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/model/chat"
	chatService "github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/internal/service/export"
	"github.com/zhouzirui/research-agent/pkg/utils"
)

const defaultCleanDays = 30

// Handler 聊天与会话管理的HTTP处理器
type Handler struct {
	chatSvc  *chatService.Service
	exporter *export.Exporter
	validate *validator.Validate
	log      *zap.Logger
}

// New 创建聊天处理器
func New(chatSvc *chatService.Service, exporter *export.Exporter, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		chatSvc:  chatSvc,
		exporter: exporter,
		validate: newValidator(),
		log:      log,
	}
}

// RegisterRoutes 注册聊天相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/chat", h.handleChat)
	r.Post("/session/new", h.handleCreateSession)
	r.Get("/sessions", h.handleListSessions)

	r.Get("/session/{sessionID}", h.handleGetSession)
	r.Delete("/session/{sessionID}", h.handleDeleteSession)
	r.Delete("/session/{sessionID}/clear", h.handleClearSession)
	r.Get("/session/{sessionID}/history", h.handleHistory)
	r.Post("/session/{sessionID}/export", h.handleExport)

	r.Get("/exports", h.handleListExports)
	r.Delete("/exports", h.handleCleanExports)
}

// chatRequest.Message is a pointer so an absent key is rejected while an
// empty string is still a valid turn.
type chatRequest struct {
	Message   *string `json:"message" validate:"required"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

type exportRequest struct {
	Format   string `json:"format" validate:"omitempty,oneof=json markdown"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
}

// handleChat 发送消息并返回回复，首次使用的会话会自动创建
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var payload chatRequest
	if !h.decode(w, r, &payload) {
		return
	}

	reply, sessionID, err := h.chatSvc.Chat(r.Context(), payload.SessionID, *payload.Message)
	if err != nil {
		var agentErr *chatService.AgentError
		switch {
		case errors.As(err, &agentErr):
			// 代理失败时仍以兜底回复应答
			h.log.Warn("agent failed, replying with fallback",
				zap.String("session_id", sessionID), zap.Error(err))
		default:
			h.log.Error("chat failed", zap.Error(err))
			utils.RespondError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	utils.RespondJSON(w, http.StatusOK, chatResponse{Response: reply, SessionID: sessionID})
}

// handleCreateSession 创建会话
func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.CreateSession(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"session_id": session.ID,
		"message":    "New session created",
	})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.chatSvc.GetSession(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, session.Info())
}

func (h *Handler) handleClearSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.ClearHistory(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, "Session history cleared")
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteSession(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.respondServiceError(w, err)
		return
	}
	utils.RespondMessage(w, http.StatusOK, "Session deleted")
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string][]chat.SessionInfo{
		"sessions": h.chatSvc.ListSessions(r.Context()),
	})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	history, err := h.chatSvc.History(r.Context(), sessionID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"history":    history,
	})
}

// handleExport 将会话导出为 JSON 或 Markdown 文件
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	history, err := h.chatSvc.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	var payload exportRequest
	if r.ContentLength != 0 {
		if !h.decode(w, r, &payload) {
			return
		}
	}

	var path string
	if payload.Format == "markdown" {
		path, err = h.exporter.ExportMarkdown(history, payload.Title)
	} else {
		path, err = h.exporter.SaveConversation(history, payload.Filename)
	}
	if err != nil {
		h.log.Error("export failed", zap.Error(err))
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]string{"path": path})
}

func (h *Handler) handleListExports(w http.ResponseWriter, r *http.Request) {
	conversations, err := h.exporter.ListConversations()
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"conversations": conversations})
}

// handleCleanExports 删除超过 days 天的导出文件，默认30天
func (h *Handler) handleCleanExports(w http.ResponseWriter, r *http.Request) {
	days := defaultCleanDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			utils.RespondError(w, http.StatusBadRequest, "days must be a non-negative integer")
			return
		}
		days = parsed
	}

	removed, err := h.exporter.CleanOldFiles(days)
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		utils.RespondError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, chatService.ErrSessionNotFound) {
		utils.RespondError(w, http.StatusNotFound, "Session not found")
		return
	}
	h.log.Error("session operation failed", zap.Error(err))
	utils.RespondError(w, http.StatusInternalServerError, err.Error())
}

// newValidator 校验错误中使用 JSON 字段名
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err.Error()
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		return fe.Field() + " is invalid"
	}
}
