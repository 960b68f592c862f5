package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	server "github.com/kazz187/tasksmith/internal"
	"github.com/kazz187/tasksmith/internal/app"
	"github.com/kazz187/tasksmith/internal/config"
	"github.com/kazz187/tasksmith/internal/pipeline"
	"github.com/kazz187/tasksmith/pkg/clog"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	if env.APIKey == "" {
		slog.Error("TASKSMITH_API_KEY is required")
		os.Exit(1)
	}

	// Graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	a, err := app.New(ctx, env)
	if err != nil {
		slog.Error("failed to build application", "error", err)
		os.Exit(1)
	}
	a.Start(ctx)

	srv := server.NewServer(env, pipeline.NewServer(a.Pipeline))
	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	if err := a.Close(); err != nil {
		slog.Error("failed to close application", "error", err)
	}
}
