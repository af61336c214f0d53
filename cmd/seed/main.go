package main

import (
	"time"

	"delivery-tracker/backend/internal/config"
	"delivery-tracker/backend/internal/database"
	"delivery-tracker/backend/internal/logger"
	"delivery-tracker/backend/internal/server"
	"delivery-tracker/backend/internal/services"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		zap.NewExample().Fatal("failed to load config", zap.Error(err))
	}

	log := logger.Must(cfg.Log, cfg.Server.Environment).Named("seed")
	defer log.Sync()

	pool, err := database.NewDatabasePool(server.PoolConfig(cfg))
	if err != nil {
		log.Fatal("failed to connect", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(pool.DB); err != nil {
		log.Fatal("migration failed", zap.Error(err))
	}

	now := time.Now()
	res, err := database.Seed(pool.DB, now)
	if err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}

	refreshed, err := services.NewProjectService(cfg.Location()).RefreshAllProgress(pool.DB, now)
	if err != nil {
		log.Fatal("progress refresh failed", zap.Error(err))
	}

	log.Info("seed complete",
		zap.Int64("users", res.Users),
		zap.Int64("projects", res.Projects),
		zap.Int64("tasks", res.Tasks),
		zap.Int64("members", res.Members),
		zap.Int("refreshed", refreshed),
		zap.String("password", database.SeedPassword),
	)
}
