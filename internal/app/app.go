package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/config"
	"github.com/zhouzirui/research-agent/internal/service/ai"
	"github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/internal/service/export"
	"github.com/zhouzirui/research-agent/internal/service/tools"
)

// App holds the services shared by the HTTP server and the terminal client.
type App struct {
	Agent    *ai.Service
	Chat     *chat.Service
	Exporter *export.Exporter
	Tools    *tools.Set
}

// New connects to the chat model and assembles the agent stack.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		return nil, err
	}

	toolSet := tools.NewSet(cfg.Tools)
	agent, err := ai.NewService(ctx, chatModel, toolSet.All(), cfg.Agent, log.Named("agent"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	botLog := log.Named("bot")
	maxHistory := cfg.Agent.MaxHistoryLength
	chatSvc := chat.NewService(func() *chat.Bot {
		return chat.NewBot(agent, maxHistory, botLog)
	})

	return &App{
		Agent:    agent,
		Chat:     chatSvc,
		Exporter: export.NewExporter(cfg.Tools.OutputDir),
		Tools:    toolSet,
	}, nil
}
