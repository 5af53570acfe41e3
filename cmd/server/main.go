// Command server runs the API edge: identity endpoints, the JWT gate and rate
// limiter, and the reverse proxy to the storefront API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/app"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/internal/config"
	"github.com/DeepanshuParakh29/ElitereplicasIn-sub000/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New("api-edge", cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.Error("api edge exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("api edge stopped")
}

// run blocks until SIGINT/SIGTERM or a fatal server error.
func run(cfg *config.Config, log *slog.Logger) error {
	log.Info("starting api edge",
		slog.String("environment", cfg.Environment),
		slog.String("version", cfg.Version),
		slog.Int("http_port", cfg.HTTPPort),
		slog.String("storefront", cfg.StorefrontURL),
	)

	edge, err := app.NewApp(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return edge.Run(ctx)
}
