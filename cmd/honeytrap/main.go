// Package main is the entry point for the honeytrap service.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"honeytrap/internal/api"
	"honeytrap/internal/config"
	"honeytrap/internal/engagement"
	"honeytrap/internal/feed"
	"honeytrap/internal/gateway"
	"honeytrap/internal/intel"
	"honeytrap/internal/logging"
	"honeytrap/internal/middleware"
	"honeytrap/internal/report"
	"honeytrap/internal/schema"
	"honeytrap/internal/session"
	"honeytrap/internal/storage"
	s3archive "honeytrap/internal/storage/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg.Logging)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"http_port", cfg.Server.HTTPPort,
		"auth_enabled", cfg.Auth.Enabled,
		"registry_backend", cfg.Registry.Backend,
		"archive_enabled", cfg.Archive.Enabled,
		"feed_enabled", cfg.Feed.Enabled,
		"llm_model", cfg.Gateway.Model,
		"llm_api_key", logging.MaskAPIKey(cfg.Gateway.APIKey),
		"report_endpoint", cfg.Report.Endpoint,
		"report_api_key", logging.MaskAPIKey(cfg.Report.APIKey),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := session.NewStore(cfg.Session)
	llm, err := gateway.NewClient(cfg.Gateway)
	if err != nil {
		logger.Error("failed to build model gateway", "error", err)
		os.Exit(1)
	}

	// Scammer registry
	var registry intel.Registry
	var redisRegistry *intel.RedisRegistry
	if cfg.Registry.Backend == "redis" {
		redisRegistry, err = intel.NewRedisRegistry(cfg.Registry.Redis)
		if err != nil {
			logger.Error("failed to connect to redis registry", "error", err)
			os.Exit(1)
		}
		registry = redisRegistry
	} else {
		registry = intel.NewMemoryRegistry()
	}

	intelService := intel.NewService(llm, registry, logger)

	// Report delivery with optional Kafka fan-out
	var sinks []report.Sink
	var feedProducer *feed.Producer
	if cfg.Feed.Enabled {
		feedProducer, err = feed.NewProducer(cfg.Feed, logger)
		if err != nil {
			logger.Error("failed to initialize report feed", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, feedProducer)
	}
	dispatcher := report.NewDispatcher(cfg.Report, logger, sinks...)

	engine, err := engagement.NewEngine(cfg.Engagement, store, llm, llm, llm, intelService, dispatcher, logger)
	if err != nil {
		logger.Error("failed to build engagement engine", "error", err)
		os.Exit(1)
	}

	handler := api.NewHandler(engine, store, registry)

	// Archival backends
	var chClient *storage.ClickHouseClient
	var archiver *storage.Archiver
	if cfg.Archive.Enabled {
		chClient, err = storage.NewClickHouseClient(cfg.Archive.ClickHouse)
		if err != nil {
			logger.Error("failed to connect to ClickHouse", "error", err)
			os.Exit(1)
		}
		if err := storage.NewMigrator(chClient).Run(ctx); err != nil {
			logger.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}
		archiver = storage.NewArchiver(chClient, cfg.Archive.Writer)
		logger.Info("session archive initialized", "hosts", cfg.Archive.ClickHouse.Hosts)
	}

	var transcripts *s3archive.TranscriptArchiver
	if cfg.Transcript.Enabled {
		s3Client, err := s3archive.NewClient(ctx, &cfg.Transcript.S3, logger)
		if err != nil {
			logger.Error("failed to initialize s3 client", "error", err)
			os.Exit(1)
		}
		transcripts = s3archive.NewTranscriptArchiver(s3Client, logger)
	}

	engine.OnReported = func(sess *schema.Session) {
		handler.NoteReported(sess)
		if archiver != nil {
			if err := archiver.Archive(sess); err != nil {
				logger.Error("session archive failed", "session_id", sess.ID, "error", err)
			}
		}
		if transcripts != nil {
			archiveCtx, archiveCancel := context.WithTimeout(context.Background(), time.Minute)
			defer archiveCancel()
			if _, err := transcripts.Archive(archiveCtx, sess); err != nil {
				logger.Error("transcript archive failed", "session_id", sess.ID, "error", err)
			}
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      middleware.Chain(handler.Routes(), cfg, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("starting honeytrap server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	cancel()

	if archiver != nil {
		if err := archiver.Close(); err != nil {
			logger.Error("archiver close error", "error", err)
		}
	}
	if chClient != nil {
		if err := chClient.Close(); err != nil {
			logger.Error("clickhouse close error", "error", err)
		}
	}
	if feedProducer != nil {
		if err := feedProducer.Close(); err != nil {
			logger.Error("feed close error", "error", err)
		}
	}
	if redisRegistry != nil {
		if err := redisRegistry.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}
	store.Close()

	logger.Info("shutdown complete", "sessions_in_memory", store.Count())
}

func setupLogging(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
