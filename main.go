package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	clts "botdash/clients"
	"botdash/config"
	"botdash/internal/app"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// .env is optional; env vars win either way
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config from environment variables
	envConfig := config.Load()

	// Optional YAML overlay on top of env/defaults
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		overlaid, err := config.LoadFile(path, envConfig)
		if err != nil {
			logger.Fatal("failed to load config file", zap.String("path", path), zap.Error(err))
		}
		envConfig = overlaid
		logger.Info("config file applied", zap.String("path", path))
	}

	if result := envConfig.Validate(); !result.Valid {
		for _, verr := range result.Errors {
			logger.Error("invalid config value",
				zap.String("field", verr.Field),
				zap.String("message", verr.Message),
			)
		}
		logger.Fatal("invalid config")
	}

	logger.Info("starting botdash", zap.Bool("isProd", envConfig.IsProd))

	// Create LiveConfig with env config as initial value
	liveConfig := config.NewLiveConfig(envConfig)

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, envConfig)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	runner := app.NewRunner(clients, liveConfig)
	if err := runner.Run(ctx); err != nil {
		logger.Fatal("runner failed", zap.Error(err))
	}
}
