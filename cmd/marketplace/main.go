package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

// setupLogger настраивает формат и уровень логирования по
// MARKETPLACE_LOG_LEVEL и MARKETPLACE_LOG_FORMAT.
func setupLogger(lookup func(string) (string, bool)) error {
	format, _ := lookup("MARKETPLACE_LOG_FORMAT")
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}

	level := log.InfoLevel
	if raw, ok := lookup("MARKETPLACE_LOG_LEVEL"); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			log.SetLevel(level)
			return err
		}
		level = parsed
	}
	log.SetLevel(level)
	return nil
}

func main() {
	if err := setupLogger(os.LookupEnv); err != nil {
		log.WithError(err).Warn("invalid MARKETPLACE_LOG_LEVEL, using info")
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":   version.String(),
		"http_addr": cfg.HTTPAddr,
		"storage":   cfg.StorageDriver,
	}).Info("starting marketplace")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("marketplace exited with error")
	}

	log.Info("marketplace stopped")
}
