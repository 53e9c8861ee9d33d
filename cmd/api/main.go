package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fish-server/internal/server"
)

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	if level != "" {
		if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
			return nil, err
		}
	}
	return cfg.Build()
}

func gracefulShutdown(logger *zap.Logger, customServer *server.Server, httpServer *http.Server, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	logger.Info("shutdown signal received, press Ctrl+C again to force")
	stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := customServer.Shutdown(ctx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("http server forced to shutdown", zap.Error(err))
	}

	done <- true
}

func main() {
	cfg, problems := server.LoadConfig(os.Getenv)

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		logger, _ = zap.NewProduction()
		logger.Warn("invalid LOG_LEVEL, using info", zap.String("level", cfg.LogLevel), zap.Error(err))
	}
	defer logger.Sync()

	for _, problem := range problems {
		logger.Warn("config", zap.Error(problem))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	customServer, httpServer, err := server.NewServer(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("failed to start server", zap.Error(err))
	}

	done := make(chan bool, 1)
	go gracefulShutdown(logger, customServer, httpServer, done)

	logger.Info("listening",
		zap.String("addr", httpServer.Addr),
		zap.Duration("disconnect_grace", cfg.DisconnectGrace),
		zap.Bool("deal_remainder", cfg.DealRemainder),
	)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}

	<-done
	logger.Info("graceful shutdown complete")
}
