package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/app"
	"github.com/zhouzirui/research-agent/internal/config"
	"github.com/zhouzirui/research-agent/internal/pkg/logger"
	"github.com/zhouzirui/research-agent/internal/service/chat"
	"github.com/zhouzirui/research-agent/internal/service/export"
	"github.com/zhouzirui/research-agent/pkg/utils"
)

const banner = `============================================================
Research Agent
============================================================

Available commands:
  - Type your question or request
  - 'clear'            Clear chat history
  - 'history'          View chat history
  - 'save [filename]'  Save the conversation as JSON
  - 'export [title]'   Export the conversation as Markdown
  - 'quit' or 'exit'   Exit

============================================================
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// 日志走 stderr，避免与对话输出交错
	zapLog := logger.New(cfg.Log, cfg.Agent.Verbose, logger.WithConsole(os.Stderr))
	defer func() { _ = zapLog.Sync() }()
	zap.ReplaceGlobals(zapLog)

	services, err := app.New(ctx, cfg, zapLog)
	if err != nil {
		log.Fatalf("failed to initialize agent: %v", err)
	}
	session, err := services.Chat.CreateSession(ctx)
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}

	color.Cyan(banner)
	repl := &repl{bot: session.Bot, exporter: services.Exporter, out: os.Stdout}
	repl.run(ctx, os.Stdin)
}

var (
	youLabel  = color.New(color.FgGreen, color.Bold)
	aiLabel   = color.New(color.FgCyan, color.Bold)
	infoColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
)

type repl struct {
	bot      *chat.Bot
	exporter *export.Exporter
	out      io.Writer
}

func (r *repl) run(ctx context.Context, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		youLabel.Fprint(r.out, "You: ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\n\nGoodbye! Thanks for chatting!")
			return
		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(r.out, "\nGoodbye! Thanks for chatting!")
				return
			}
			if !r.handle(ctx, strings.TrimSpace(line)) {
				return
			}
		}
	}
}

// handle processes one line and reports whether the loop should continue.
func (r *repl) handle(ctx context.Context, input string) bool {
	if input == "" {
		return true
	}

	command, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(command) {
	case "quit", "exit", "q":
		if arg == "" {
			fmt.Fprintln(r.out, "\nGoodbye! Thanks for chatting!")
			return false
		}
	case "clear":
		if arg == "" {
			r.bot.Clear()
			infoColor.Fprintln(r.out, "Chat history cleared.")
			return true
		}
	case "history":
		if arg == "" {
			r.printHistory()
			return true
		}
	case "save":
		path, err := r.exporter.SaveConversation(r.bot.History(), arg)
		r.reportExport(path, err)
		return true
	case "export":
		path, err := r.exporter.ExportMarkdown(r.bot.History(), arg)
		r.reportExport(path, err)
		return true
	}

	aiLabel.Fprint(r.out, "\nAI: ")
	streamed := false
	reply, err := r.bot.Stream(ctx, input, func(delta string) {
		streamed = true
		fmt.Fprint(r.out, delta)
	})
	if err != nil || !streamed {
		fmt.Fprint(r.out, reply)
	}
	fmt.Fprint(r.out, "\n\n")
	return true
}

func (r *repl) printHistory() {
	history := r.bot.History()
	if len(history) == 0 {
		infoColor.Fprintln(r.out, "No chat history yet.")
		return
	}
	fmt.Fprintln(r.out, "\n--- Chat History ---")
	fmt.Fprintln(r.out, utils.FormatHistory(history))
	fmt.Fprintln(r.out, "--- End of History ---")
	fmt.Fprintln(r.out)
}

func (r *repl) reportExport(path string, err error) {
	if err != nil {
		errColor.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	infoColor.Fprintf(r.out, "Saved to %s\n", path)
}
