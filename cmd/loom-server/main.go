// Package main provides the standalone loom server.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/llm"
	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/server"
	"github.com/loomchat/loom/internal/session"
	"github.com/loomchat/loom/internal/tree"
)

func main() {
	configFile := flag.String("config", "", "YAML config overlay file")
	flag.Parse()

	cfg := config.Load()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadFile(cfg, *configFile)
		if err != nil {
			slog.Error("failed to load config file", "path", *configFile, "error", err)
			os.Exit(1)
		}
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := cleanup(); err != nil {
			slog.Error("failed to close log file", "error", err)
		}
	}()
	slog.SetDefault(logger)

	slog.Info("starting loom-server",
		"addr", cfg.ListenAddr,
		"llm_provider", cfg.LLMProvider,
		"embed_provider", cfg.EmbedProvider,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	completer, err := llm.NewCompleter(ctx, cfg)
	cancel()
	if err != nil {
		slog.Error("failed to create completion provider", "error", err)
		os.Exit(1)
	}

	var inner llm.Embedder
	if provider, err := llm.NewEmbedder(cfg); err != nil {
		slog.Warn("embedding provider unavailable, using local fallback only", "error", err)
	} else {
		inner = provider
	}
	var embedder llm.Embedder = llm.NewResilient(inner)
	if cached, err := llm.NewCachedEmbedder(embedder, cfg.EmbedCacheSize); err == nil {
		embedder = cached
	}

	stats := metrics.NewCollector()
	t := tree.New(embedder,
		tree.WithScoring(cfg.Scoring),
		tree.WithMetrics(stats),
	)
	sess := session.New(t, completer, embedder,
		session.WithMetrics(stats),
		session.WithLogger(logger),
	)
	defer sess.Close()

	srv := server.New(sess, cfg.ListenAddr,
		server.WithStats(stats),
		server.WithLogger(logger),
	)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
