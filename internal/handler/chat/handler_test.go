package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/research-agent/internal/model/chat"
	chatservice "github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/internal/service/export"
)

type stubExecutor struct {
	err error
}

func (s *stubExecutor) Generate(_ context.Context, _ []chat.Message, input string) (*schema.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return schema.AssistantMessage("answer to "+input, nil), nil
}

func (s *stubExecutor) Stream(ctx context.Context, history []chat.Message, input string) (*schema.StreamReader[*schema.Message], error) {
	msg, err := s.Generate(ctx, history, input)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func setupRouter(t *testing.T, exec chatservice.Executor) (*chi.Mux, *chatservice.Service, *export.Exporter) {
	t.Helper()
	chatSvc := chatservice.NewService(func() *chatservice.Bot {
		return chatservice.NewBot(exec, 10, nil)
	})
	exporter := export.NewExporter(filepath.Join(t.TempDir(), "outputs"))

	r := chi.NewRouter()
	New(chatSvc, exporter, nil).RegisterRoutes(r)
	return r, chatSvc, exporter
}

func do(t *testing.T, r http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	return out
}

func TestChatCreatesSession(t *testing.T) {
	r, chatSvc, _ := setupRouter(t, &stubExecutor{})

	resp := do(t, r, http.MethodPost, "/chat", map[string]string{"message": "What is Go?"})
	require.Equal(t, http.StatusOK, resp.Code)

	body := decodeBody[chatResponse](t, resp)
	assert.Equal(t, "answer to What is Go?", body.Response)
	assert.NotEmpty(t, body.SessionID)
	assert.Equal(t, 1, chatSvc.Count())

	resp = do(t, r, http.MethodPost, "/chat", map[string]string{"message": "More", "session_id": body.SessionID})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, body.SessionID, decodeBody[chatResponse](t, resp).SessionID)
	assert.Equal(t, 1, chatSvc.Count())
}

func TestChatAgentFailureStillReturnsFallback(t *testing.T) {
	r, _, _ := setupRouter(t, &stubExecutor{err: errors.New("model unavailable")})

	resp := do(t, r, http.MethodPost, "/chat", map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, chatservice.FallbackReply, decodeBody[chatResponse](t, resp).Response)
}

func TestChatValidation(t *testing.T) {
	r, _, _ := setupRouter(t, &stubExecutor{})

	resp := do(t, r, http.MethodPost, "/chat", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "message is required", decodeBody[map[string]string](t, resp)["error"])

	resp = do(t, r, http.MethodPost, "/chat", "{broken")
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestChatBlankMessageIsATurn(t *testing.T) {
	r, chatSvc, _ := setupRouter(t, &stubExecutor{})

	for _, message := range []string{"", "   "} {
		resp := do(t, r, http.MethodPost, "/chat", map[string]string{"message": message})
		require.Equal(t, http.StatusOK, resp.Code, "%q", message)
		body := decodeBody[chatResponse](t, resp)
		require.NotEmpty(t, body.SessionID)

		session, err := chatSvc.GetSession(context.Background(), body.SessionID)
		require.NoError(t, err)
		assert.Equal(t, 2, session.Bot.Len())
	}
}

func TestSessionLifecycle(t *testing.T) {
	r, _, _ := setupRouter(t, &stubExecutor{})

	resp := do(t, r, http.MethodPost, "/session/new", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	created := decodeBody[map[string]string](t, resp)
	assert.Equal(t, "New session created", created["message"])
	id := created["session_id"]
	require.NotEmpty(t, id)

	resp = do(t, r, http.MethodPost, "/chat", map[string]string{"message": "hi", "session_id": id})
	require.Equal(t, http.StatusOK, resp.Code)

	resp = do(t, r, http.MethodGet, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	info := decodeBody[chat.SessionInfo](t, resp)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, 2, info.MessageCount)
	assert.NotEmpty(t, info.CreatedAt)

	resp = do(t, r, http.MethodGet, "/session/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	history := decodeBody[struct {
		SessionID string         `json:"session_id"`
		History   []chat.Message `json:"history"`
	}](t, resp)
	assert.Equal(t, id, history.SessionID)
	assert.Equal(t, []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "answer to hi"},
	}, history.History)

	resp = do(t, r, http.MethodDelete, "/session/"+id+"/clear", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Session history cleared", decodeBody[map[string]string](t, resp)["message"])

	resp = do(t, r, http.MethodGet, "/session/"+id, nil)
	assert.Equal(t, 0, decodeBody[chat.SessionInfo](t, resp).MessageCount)

	resp = do(t, r, http.MethodDelete, "/session/"+id, nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "Session deleted", decodeBody[map[string]string](t, resp)["message"])

	resp = do(t, r, http.MethodGet, "/session/"+id, nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestUnknownSessionReturns404(t *testing.T) {
	r, _, _ := setupRouter(t, &stubExecutor{})

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/session/nope"},
		{http.MethodDelete, "/session/nope"},
		{http.MethodDelete, "/session/nope/clear"},
		{http.MethodGet, "/session/nope/history"},
		{http.MethodPost, "/session/nope/export"},
	} {
		resp := do(t, r, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, "Session not found", decodeBody[map[string]string](t, resp)["error"])
	}
}

func TestExportUnknownSessionBeforeBodyValidation(t *testing.T) {
	r, _, _ := setupRouter(t, &stubExecutor{})

	resp := do(t, r, http.MethodPost, "/session/nope/export", map[string]string{"format": "pdf"})
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = do(t, r, http.MethodPost, "/session/nope/export", "{broken")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListSessions(t *testing.T) {
	r, chatSvc, _ := setupRouter(t, &stubExecutor{})

	resp := do(t, r, http.MethodGet, "/sessions", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"sessions":[]}`, resp.Body.String())

	_, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)
	_, err = chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	resp = do(t, r, http.MethodGet, "/sessions", nil)
	body := decodeBody[map[string][]chat.SessionInfo](t, resp)
	assert.Len(t, body["sessions"], 2)
}

func TestExportAndCleanup(t *testing.T) {
	r, chatSvc, exporter := setupRouter(t, &stubExecutor{})
	_, id, err := chatSvc.Chat(context.Background(), "", "hello")
	require.NoError(t, err)

	resp := do(t, r, http.MethodPost, "/session/"+id+"/export", map[string]string{"format": "markdown", "title": "Notes"})
	require.Equal(t, http.StatusOK, resp.Code)
	mdPath := decodeBody[map[string]string](t, resp)["path"]
	assert.True(t, strings.HasSuffix(mdPath, ".md"))
	assert.Equal(t, exporter.Dir(), filepath.Dir(mdPath))

	resp = do(t, r, http.MethodPost, "/session/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	jsonPath := decodeBody[map[string]string](t, resp)["path"]
	assert.True(t, strings.HasSuffix(jsonPath, ".json"))

	loaded, err := exporter.LoadConversation(jsonPath)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)

	resp = do(t, r, http.MethodPost, "/session/"+id+"/export", map[string]string{"format": "pdf"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(t, r, http.MethodGet, "/exports", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	listed := decodeBody[map[string][]export.Conversation](t, resp)
	require.Len(t, listed["conversations"], 1)
	assert.Equal(t, jsonPath, listed["conversations"][0].Path)

	resp = do(t, r, http.MethodDelete, "/exports?days=30", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.JSONEq(t, `{"removed":0}`, resp.Body.String())

	resp = do(t, r, http.MethodDelete, "/exports?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}
