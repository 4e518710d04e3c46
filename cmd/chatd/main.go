package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mixelka/docsbot/internal/chat"
	"github.com/mixelka/docsbot/internal/config"
	"github.com/mixelka/docsbot/internal/openai"
	"github.com/mixelka/docsbot/internal/pinecone"
	"github.com/mixelka/docsbot/internal/web"
)

func main() {
	// Load configuration
	cfg, err := config.LoadChat()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting chat service", "addr", cfg.ListenAddr)

	// Create pipeline clients
	llm := openai.NewClient(openai.Config{
		BaseURL:    cfg.OpenAIBaseURL,
		APIKey:     cfg.OpenAIAPIKey,
		EmbedModel: cfg.EmbedModel,
		ChatModel:  cfg.ChatModel,
	})
	index := pinecone.NewClient(pinecone.Config{
		IndexHost: cfg.PineconeIndexHost,
		APIKey:    cfg.PineconeAPIKey,
		Namespace: cfg.PineconeNamespace,
	})

	// Load deployment-specific focus rules and reference links
	var rules chat.Rules
	if cfg.RulesPath != "" {
		rules, err = chat.LoadRules(cfg.RulesPath)
		if err != nil {
			logger.Error("failed to load rules", "path", cfg.RulesPath, "error", err)
			os.Exit(1)
		}
		logger.Info("rules loaded", "path", cfg.RulesPath,
			"focus", len(rules.Focus), "links", len(rules.RefLinks))
	}

	executor := chat.NewExecutor(llm, index, llm, chat.ExecutorOptions{
		TopK:       cfg.TopK,
		FocusRules: rules.Focus,
		RefLinks:   rules.RefLinks,
	}, logger)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           web.NewServer(executor, chat.NewRegistry(), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh

		logger.Info("received shutdown signal", "signal", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
		close(done)
	}()

	logger.Info("chat service is running, press Ctrl+C to stop")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done

	logger.Info("chat service stopped")
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
