package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"delivery-tracker/backend/internal/config"
	"delivery-tracker/backend/internal/logger"
	"delivery-tracker/backend/internal/server"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.Must(cfg.Log, cfg.Server.Environment)
	defer log.Sync()

	app, err := server.NewApp(cfg, log)
	if err != nil {
		log.Fatal("failed to initialize", zap.Error(err))
	}
	app.StartBackground()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() { serveErr <- app.ListenAndServe() }()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
		os.Exit(1)
	}
}
