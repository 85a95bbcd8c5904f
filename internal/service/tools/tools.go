// Package tools exposes the agent's external capabilities as eino tools:
// encyclopedia lookup, web search, saving text to disk and reading the clock.
//
// Every adapter reports failures as plain text rather than a Go error so the
// model can read the problem and decide what to do next.
package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/research-agent/internal/config"
)

// Tool names as presented to the model.
const (
	NameWikipedia   = "Wikipedia"
	NameWebSearch   = "WebSearch"
	NameSaveToFile  = "SaveToFile"
	NameCurrentTime = "CurrentTime"
)

const userAgent = "research-agent/1.0 (+https://github.com/zhouzirui/research-agent)"

// Handler runs a tool against the raw JSON arguments produced by the model.
type Handler func(ctx context.Context, args json.RawMessage) string

type adapter struct {
	info    *schema.ToolInfo
	handler Handler
}

// New wraps a handler as an eino invokable tool.
func New(info *schema.ToolInfo, handler Handler) tool.InvokableTool {
	return &adapter{info: info, handler: handler}
}

func (a *adapter) Info(_ context.Context) (*schema.ToolInfo, error) {
	return a.info, nil
}

func (a *adapter) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	return a.handler(ctx, json.RawMessage(argumentsInJSON)), nil
}

// Set bundles the concrete adapters so they can also be called directly.
type Set struct {
	Wikipedia *Wikipedia
	Search    *Search
	Saver     *Saver
	Clock     *Clock
}

// NewSet builds every adapter from configuration, sharing one HTTP client.
func NewSet(cfg config.ToolsConfig) *Set {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	client := &http.Client{Timeout: timeout}

	return &Set{
		Wikipedia: NewWikipedia(client, WikipediaConfig{
			Lang:     cfg.WikiLang,
			TopK:     cfg.WikiTopK,
			MaxChars: cfg.WikiMaxChars,
		}),
		Search: NewSearch(client, SearchConfig{MaxResults: cfg.SearchMaxResults}),
		Saver:  NewSaver(cfg.OutputDir),
		Clock:  NewClock(),
	}
}

// All returns the tools in the order they are offered to the model.
func (s *Set) All() []tool.BaseTool {
	return []tool.BaseTool{
		s.Wikipedia.Tool(),
		s.Search.Tool(),
		s.Saver.Tool(),
		s.Clock.Tool(),
	}
}

// decodeQuery accepts {"query": "..."} or, when the model ignores the schema,
// a bare JSON string or raw text.
func decodeQuery(args json.RawMessage) string {
	var payload struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &payload); err == nil && payload.Query != "" {
		return strings.TrimSpace(payload.Query)
	}

	var bare string
	if err := json.Unmarshal(args, &bare); err == nil {
		return strings.TrimSpace(bare)
	}

	raw := strings.TrimSpace(string(args))
	if strings.HasPrefix(raw, "{") {
		return ""
	}
	return raw
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
