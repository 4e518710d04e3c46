package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/docsbot/internal/config"
	"github.com/mixelka/docsbot/internal/ingest"
	"github.com/mixelka/docsbot/internal/openai"
	"github.com/mixelka/docsbot/internal/pinecone"
)

func main() {
	// Load configuration
	cfg, err := config.LoadIngest()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting ingestion", "dir", cfg.DocsDir)

	embedder := openai.NewClient(openai.Config{
		BaseURL:    cfg.OpenAIBaseURL,
		APIKey:     cfg.OpenAIAPIKey,
		EmbedModel: cfg.EmbedModel,
	})
	index := pinecone.NewClient(pinecone.Config{
		IndexHost: cfg.PineconeIndexHost,
		APIKey:    cfg.PineconeAPIKey,
		Namespace: cfg.PineconeNamespace,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Abort the run on SIGINT/SIGTERM
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	ing := ingest.NewIngestor(embedder, index, ingest.Options{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	}, logger)

	total, err := ing.IngestDir(ctx, cfg.DocsDir)
	if err != nil {
		logger.Error("ingestion failed", "upserted", total, "error", err)
		os.Exit(1)
	}

	logger.Info("ingestion completed", "upserted", total)
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
			NoColor:    false,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
