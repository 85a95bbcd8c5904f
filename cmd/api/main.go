package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/research-agent/internal/app"
	"github.com/zhouzirui/research-agent/internal/config"
	"github.com/zhouzirui/research-agent/internal/handler"
	"github.com/zhouzirui/research-agent/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLog := logger.New(cfg.Log, cfg.Agent.Verbose)
	defer func() { _ = zapLog.Sync() }()
	zap.ReplaceGlobals(zapLog)

	if envErr != nil {
		zapLog.Warn("no .env file loaded, continuing with system environment variables only", zap.Error(envErr))
	}

	if err := cfg.Validate(); err != nil {
		zapLog.Fatal("invalid configuration - 请检查 Ark 模型相关环境变量", zap.Error(err))
	}

	services, err := app.New(ctx, cfg, zapLog)
	if err != nil {
		zapLog.Fatal("failed to initialize agent", zap.Error(err))
	}
	zapLog.Info("agent initialized",
		zap.String("model", cfg.AI.Model),
		zap.Int("max_iterations", cfg.Agent.MaxIterations),
		zap.Int("max_history", cfg.Agent.MaxHistoryLength),
		zap.String("output_dir", cfg.Tools.OutputDir),
	)

	router := handler.NewRouter(services.Chat, services.Exporter, zapLog.Named("http"))

	startServer(ctx, cfg.Server, router, zapLog)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zapLog *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zapLog.Info("research agent listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zapLog.Fatal("server error", zap.Error(err))
	}
	zapLog.Info("server stopped")
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
