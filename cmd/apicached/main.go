package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fofxtools/api-cache/internal/archive"
	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/database"
	"github.com/fofxtools/api-cache/internal/handlers"
	"github.com/fofxtools/api-cache/internal/httpserver"
	"github.com/fofxtools/api-cache/internal/purger"
	"github.com/fofxtools/api-cache/internal/ratelimit"
	"github.com/fofxtools/api-cache/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg := config.Load()

	db, err := database.NewPostgresDB(logger, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Database setup failed")
	}

	responseStore := store.New(logger, db)

	clientLimiter := ratelimit.New(logger, func(client string) ratelimit.Config {
		cc := cfg.Client(client)
		return ratelimit.Config{
			MaxAttempts:  cc.RateLimitMaxAttempts,
			DecaySeconds: cc.RateLimitDecaySeconds,
		}
	})

	adminLimiter := ratelimit.New(logger, func(string) ratelimit.Config {
		return ratelimit.Config{
			MaxAttempts:  cfg.AdminRateLimit,
			DecaySeconds: int(cfg.AdminRateWindow.Seconds()),
		}
	})

	var archiver archive.Archiver
	if cfg.ArchiveEnabled {
		archiver = archive.NewS3Archiver(logger, cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		cancel()
	}()

	go purger.New(logger, responseStore, archiver, cfg).Start(ctx)

	adminHandler := handlers.NewAdminHandler(logger, cfg, responseStore, clientLimiter, db)

	r := mux.NewRouter()
	r.Use(handlers.LoggingMiddleware(logger, db))
	r.Use(handlers.RateLimitMiddleware(adminLimiter))
	handlers.RegisterRoutes(r, adminHandler)

	if err := httpserver.Start(ctx, logger, cfg.ListenAddr, r); err != nil {
		logger.WithError(err).Fatal("Server failed")
	}
}
