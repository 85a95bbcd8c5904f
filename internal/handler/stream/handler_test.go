package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/research-agent/internal/model/chat"
	chatservice "github.com/zhouzirui/research-agent/internal/service/chat"
)

type chunkedExecutor struct {
	chunks []string
	err    error
}

func (c *chunkedExecutor) Generate(context.Context, []chat.Message, string) (*schema.Message, error) {
	return schema.AssistantMessage(strings.Join(c.chunks, ""), nil), c.err
}

func (c *chunkedExecutor) Stream(context.Context, []chat.Message, string) (*schema.StreamReader[*schema.Message], error) {
	if c.err != nil {
		return nil, c.err
	}
	msgs := make([]*schema.Message, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		msgs = append(msgs, schema.AssistantMessage(chunk, nil))
	}
	return schema.StreamReaderFromArray(msgs), nil
}

type frame struct {
	event string
	data  Event
}

func readFrames(t *testing.T, body string) []frame {
	t.Helper()
	var frames []frame
	var current frame
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &current.data))
		case line == "":
			frames = append(frames, current)
			current = frame{}
		}
	}
	return frames
}

func setup(t *testing.T, exec chatservice.Executor) (*chi.Mux, *chatservice.Service, string) {
	t.Helper()
	chatSvc := chatservice.NewService(func() *chatservice.Bot {
		return chatservice.NewBot(exec, 10, nil)
	})
	session, err := chatSvc.CreateSession(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	New(chatSvc, nil).RegisterRoutes(r)
	return r, chatSvc, session.ID
}

func streamURL(id, message string) string {
	return "/session/" + id + "/stream?message=" + url.QueryEscape(message)
}

func TestStreamEmitsDeltasThenMessage(t *testing.T) {
	r, chatSvc, id := setup(t, &chunkedExecutor{chunks: []string{"Hel", "lo"}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, streamURL(id, "greet me"), nil))

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "text/event-stream", resp.Header().Get("Content-Type"))

	frames := readFrames(t, resp.Body.String())
	var events []string
	for _, f := range frames {
		events = append(events, f.event)
		assert.Equal(t, id, f.data.SessionID)
	}
	assert.Equal(t, []string{EventStart, EventDelta, EventDelta, EventMessage, EventEnd}, events)
	assert.Equal(t, "Hello", frames[3].data.Content)

	history, err := chatSvc.History(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestStreamFailureSendsErrorEvent(t *testing.T) {
	r, _, id := setup(t, &chunkedExecutor{err: errors.New("model down")})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, streamURL(id, "hi"), nil))

	frames := readFrames(t, resp.Body.String())
	require.Len(t, frames, 2)
	assert.Equal(t, EventError, frames[1].event)
	assert.Equal(t, chatservice.FallbackReply, frames[1].data.Content)
	assert.Contains(t, frames[1].data.Error, "model down")
}

func TestStreamRequestErrors(t *testing.T) {
	r, _, id := setup(t, &chunkedExecutor{chunks: []string{"x"}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/session/"+id+"/stream", nil))
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, streamURL("unknown", "hi"), nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/session/unknown/stream", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestStreamEmptyMessageIsATurn(t *testing.T) {
	r, chatSvc, id := setup(t, &chunkedExecutor{chunks: []string{"ok"}})

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, streamURL(id, ""), nil))
	require.Equal(t, http.StatusOK, resp.Code)

	frames := readFrames(t, resp.Body.String())
	require.NotEmpty(t, frames)
	assert.Equal(t, EventEnd, frames[len(frames)-1].event)

	session, err := chatSvc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 2, session.Bot.Len())
}
