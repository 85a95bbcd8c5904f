package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/model/chat"
	"github.com/zhouzirui/research-agent/pkg/utils"
)

// logPreviewRunes caps message text copied into log fields.
const logPreviewRunes = 80

// Executor plans and runs tools on the bot's behalf.
type Executor interface {
	Generate(ctx context.Context, history []chat.Message, input string) (*schema.Message, error)
	Stream(ctx context.Context, history []chat.Message, input string) (*schema.StreamReader[*schema.Message], error)
}

// Bot pairs an executor with a bounded conversational memory. Turns on the
// same bot are serialized by turn; mu only guards history, so reads never
// wait for an agent run.
type Bot struct {
	turn     sync.Mutex
	mu       sync.Mutex
	executor Executor
	history  *history
	log      *zap.Logger
}

// NewBot creates a bot remembering at most maxHistory messages.
func NewBot(executor Executor, maxHistory int, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		executor: executor,
		history:  newHistory(maxHistory),
		log:      log,
	}
}

// Chat answers input and records the exchange. On agent failure it returns
// FallbackReply together with an *AgentError; the exchange is still recorded.
func (b *Bot) Chat(ctx context.Context, input string) (string, error) {
	b.turn.Lock()
	defer b.turn.Unlock()

	reply, err := b.generate(ctx, b.History(), input)
	b.remember(input, reply)
	return reply, err
}

// Stream is Chat with incremental output: onDelta receives each non-empty
// chunk as it arrives. The returned reply is the full answer.
func (b *Bot) Stream(ctx context.Context, input string, onDelta func(string)) (string, error) {
	b.turn.Lock()
	defer b.turn.Unlock()

	reply, err := b.stream(ctx, b.History(), input, onDelta)
	b.remember(input, reply)
	return reply, err
}

// Clear forgets the whole conversation.
func (b *Bot) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.reset()
}

// History returns a copy of the remembered messages, oldest first.
func (b *Bot) History() []chat.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.snapshot()
}

// Len reports how many messages are remembered.
func (b *Bot) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.history.len()
}

func (b *Bot) generate(ctx context.Context, history []chat.Message, input string) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = b.fail(fmt.Errorf("executor panic: %v", r))
		}
	}()

	b.log.Debug("chat turn",
		zap.Int("history", len(history)),
		zap.String("input", utils.TruncateText(input, logPreviewRunes)),
		zap.Int("input_tokens", utils.EstimateTokens(input)),
	)

	resp, err := b.executor.Generate(ctx, history, input)
	if err != nil {
		return b.fail(err)
	}
	return answerText(resp), nil
}

func (b *Bot) stream(ctx context.Context, history []chat.Message, input string, onDelta func(string)) (reply string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reply, err = b.fail(fmt.Errorf("executor panic: %v", r))
		}
	}()

	sr, err := b.executor.Stream(ctx, history, input)
	if err != nil {
		return b.fail(err)
	}
	defer sr.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := sr.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return b.fail(recvErr)
		}
		if chunk == nil {
			continue
		}
		chunks = append(chunks, chunk)
		if chunk.Content != "" && onDelta != nil {
			onDelta(chunk.Content)
		}
	}

	if len(chunks) == 0 {
		return EmptyAnswerReply, nil
	}
	full, err := schema.ConcatMessages(chunks)
	if err != nil {
		return b.fail(err)
	}
	return answerText(full), nil
}

func (b *Bot) fail(err error) (string, error) {
	b.log.Error("agent run failed", zap.Error(err))
	return FallbackReply, &AgentError{Err: err}
}

func (b *Bot) remember(input, reply string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.push(chat.Message{Role: chat.RoleUser, Content: input})
	b.history.push(chat.Message{Role: chat.RoleAssistant, Content: reply})
}

func answerText(msg *schema.Message) string {
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return EmptyAnswerReply
	}
	return msg.Content
}
