package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	chatService "github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/internal/service/export"
)

func newTestRouter(t *testing.T, log *zap.Logger) (http.Handler, *chatService.Service) {
	t.Helper()
	chatSvc := chatService.NewService(func() *chatService.Bot {
		return chatService.NewBot(nil, 10, nil)
	})
	exporter := export.NewExporter(filepath.Join(t.TempDir(), "outputs"))
	return NewRouter(chatSvc, exporter, log), chatSvc
}

func TestHealthReportsSessionCount(t *testing.T) {
	r, chatSvc := newTestRouter(t, nil)
	_, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"status":"healthy","sessions":1}`, resp.Body.String())
}

func TestRootListsEndpoints(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))

	var body struct {
		Version   string            `json:"version"`
		Endpoints map[string]string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, apiVersion, body.Version)
	assert.Equal(t, "/chat", body.Endpoints["chat"])
	assert.Equal(t, "/health", body.Endpoints["health"])
}

func TestCORSPreflight(t *testing.T) {
	r, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	r, _ := newTestRouter(t, zap.New(core))

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/session/unknown", nil))
	require.Equal(t, http.StatusNotFound, resp.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/session/unknown", fields["path"])
	assert.EqualValues(t, http.StatusNotFound, fields["status"])
}
