package main

import (
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/sessionops/sessiondock/internal/config"
	"github.com/sessionops/sessiondock/internal/httpapi"
	"github.com/sessionops/sessiondock/internal/sessiondock"
)

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load(os.Getenv("SESSIONDOCK_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	} else {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, keeping default")
	}

	store, err := sessiondock.BuildRecordStoreFromDSN(cfg.StoreDSN)
	if err != nil {
		logger.Fatal().Err(err).Str("dsn", cfg.StoreDSN).Msg("failed to initialize record store")
	}
	if closer, ok := store.(io.Closer); ok {
		defer closer.Close()
	}

	hub := sessiondock.NewHub()
	if dirStore, ok := store.(*sessiondock.DirStore); ok && cfg.Watch {
		watcher, err := sessiondock.NewWatcher(dirStore.Dir(), hub, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("directory watcher unavailable")
		} else {
			defer watcher.Close()
		}
	}

	server := httpapi.NewServerWithConfig(store, hub, httpapi.ServerConfig{
		MaxBodyBytes:    cfg.MaxBodyBytes,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		Logger:          logger,
	})

	logger.Info().Str("addr", cfg.Addr).Str("dsn", cfg.StoreDSN).Msg("sessiondock listening")
	if err := http.ListenAndServe(cfg.Addr, server); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
