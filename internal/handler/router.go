package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/handler/chat"
	"github.com/zhouzirui/research-agent/internal/handler/stream"
	"github.com/zhouzirui/research-agent/internal/handler/ws"
	chatService "github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/internal/service/export"
	"github.com/zhouzirui/research-agent/pkg/utils"
)

const (
	apiName    = "Research Agent API"
	apiVersion = "1.0.0"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, exporter *export.Exporter, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	r.Get("/", handleRoot)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":   "healthy",
			"sessions": chatSvc.Count(),
		})
	})

	chat.New(chatSvc, exporter, log).RegisterRoutes(r)
	stream.New(chatSvc, log).RegisterRoutes(r)
	ws.New(chatSvc, log).RegisterRoutes(r)

	return r
}

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"message": apiName,
		"version": apiVersion,
		"endpoints": map[string]string{
			"chat":          "/chat",
			"new_session":   "/session/new",
			"get_session":   "/session/{session_id}",
			"clear_session": "/session/{session_id}/clear",
			"history":       "/session/{session_id}/history",
			"export":        "/session/{session_id}/export",
			"stream":        "/session/{session_id}/stream",
			"websocket":     "/ws/{session_id}",
			"list_sessions": "/sessions",
			"exports":       "/exports",
			"health":        "/health",
		},
	})
}

// requestLogger logs one line per request once the response is written.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
