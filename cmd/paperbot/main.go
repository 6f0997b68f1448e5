package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/medlit/paperbot/internal/app"
	"github.com/medlit/paperbot/internal/config"
	"github.com/medlit/paperbot/internal/db"
)

func main() {
	mode := flag.String("mode", "serve", "Service mode (serve, batch)")
	dir := flag.String("dir", "", "Directory of PDFs to ingest (for batch mode)")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if err := runMode(ctx, application, cfg, *mode, *dir, &logger); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func runMode(ctx context.Context, application *app.App, cfg *config.Config, mode, dir string, logger *zerolog.Logger) error {
	switch mode {
	case "serve":
		// Health server runs alongside every long-lived mode.
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				logger.Error().Err(err).Msg("health check server error")
			}
		}()

		return application.Run(ctx)

	case "batch":
		if dir == "" {
			dir = cfg.UploadDir
		}

		return application.RunBatch(ctx, dir)

	default:
		log.Fatalf("Usage: %s --mode=[serve|batch]", os.Args[0])

		return nil
	}
}
