package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	einoagent "github.com/cloudwego/eino/flow/agent"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/config"
	"github.com/zhouzirui/research-agent/internal/model/chat"
)

// Service runs the tool-calling agent. It is stateless with respect to
// conversations: callers pass the history they want the model to see.
type Service struct {
	agent    *react.Agent
	template prompt.ChatTemplate
	opts     []einoagent.AgentOption
	log      *zap.Logger
}

// NewService compiles a ReAct agent over the chat model and tools.
// Models implementing model.ToolCallingChatModel get tools attached per
// request; plain model.ChatModel implementations (such as ark) bind them once.
func NewService(ctx context.Context, chatModel model.BaseChatModel, tools []tool.BaseTool, cfg config.AgentConfig, log *zap.Logger) (*Service, error) {
	if log == nil {
		log = zap.NewNop()
	}

	maxIterations := cfg.MaxIterations
	if maxIterations < 1 {
		maxIterations = 1
	}

	agentCfg := &react.AgentConfig{
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		// Each iteration is one model call plus one tools call, and the final
		// answer costs one more model call.
		MaxStep: 2*maxIterations + 1,
	}
	switch m := chatModel.(type) {
	case model.ToolCallingChatModel:
		agentCfg.ToolCallingModel = m
	case model.ChatModel:
		agentCfg.Model = m
	default:
		return nil, fmt.Errorf("chat model %T cannot call tools", chatModel)
	}

	agent, err := react.NewAgent(ctx, agentCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build agent: %w", err)
	}

	svc := &Service{
		agent:    agent,
		template: NewPromptTemplate(),
		log:      log,
	}
	if cfg.Verbose {
		svc.opts = append(svc.opts, einoagent.WithComposeOptions(compose.WithCallbacks(newTraceHandler(log))))
	}
	return svc, nil
}

// Generate produces the agent's final answer for input given prior turns.
func (s *Service) Generate(ctx context.Context, history []chat.Message, input string) (*schema.Message, error) {
	messages, err := s.buildMessages(ctx, history, input)
	if err != nil {
		return nil, err
	}

	response, err := s.agent.Generate(ctx, messages, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to run agent: %w", err)
	}

	s.log.Debug("generated response", zap.Int("history", len(history)), zap.Int("length", len(response.Content)))
	return response, nil
}

// Stream produces the agent's final answer as a stream of chunks.
func (s *Service) Stream(ctx context.Context, history []chat.Message, input string) (*schema.StreamReader[*schema.Message], error) {
	messages, err := s.buildMessages(ctx, history, input)
	if err != nil {
		return nil, err
	}

	stream, err := s.agent.Stream(ctx, messages, s.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to stream agent output: %w", err)
	}
	return stream, nil
}

func (s *Service) buildMessages(ctx context.Context, history []chat.Message, input string) ([]*schema.Message, error) {
	messages, err := s.template.Format(ctx, map[string]any{
		"chat_history": toSchemaMessages(history),
		"input":        input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to format prompt: %w", err)
	}
	return messages, nil
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	if len(history) == 0 {
		return nil
	}

	out := make([]*schema.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return out
}
