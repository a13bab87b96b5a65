package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loomchat/loom/internal/config"
	"github.com/loomchat/loom/internal/llm"
	"github.com/loomchat/loom/internal/metrics"
	"github.com/loomchat/loom/internal/server"
	"github.com/loomchat/loom/internal/session"
	"github.com/loomchat/loom/internal/tree"
)

var serveConfigFile string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the loom server",
	Long: `Run the loom HTTP server.

Configuration comes from LOOM_* environment variables, optionally
overlaid with a YAML file via --config.

Examples:
  loom serve
  loom serve --config loom.yaml
  LOOM_LLM_PROVIDER=openai OPENAI_API_KEY=... loom serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigFile, "config", "c", "", "YAML config overlay file")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if serveConfigFile != "" {
		var err error
		cfg, err = config.LoadFile(cfg, serveConfigFile)
		if err != nil {
			return fmt.Errorf("load config file: %w", err)
		}
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer func() {
		if err := cleanup(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()

	logger.Info("starting loom server", "addr", cfg.ListenAddr, "llm_provider", cfg.LLMProvider, "embed_provider", cfg.EmbedProvider)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	completer, err := llm.NewCompleter(ctx, cfg)
	cancel()
	if err != nil {
		return fmt.Errorf("init completion provider: %w", err)
	}

	embedder := buildEmbedder(cfg, logger)
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

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// buildEmbedder assembles the embedding chain: provider, wrapped so failure
// degrades to the deterministic local fallback, fronted by an LRU cache.
func buildEmbedder(cfg config.Config, logger *slog.Logger) llm.Embedder {
	provider, err := llm.NewEmbedder(cfg)
	if err != nil {
		logger.Warn("embedding provider unavailable, using local fallback only", "error", err)
		provider = nil
	}

	var inner llm.Embedder
	if provider != nil {
		inner = provider
	}
	resilient := llm.NewResilient(inner)
	cached, err := llm.NewCachedEmbedder(resilient, cfg.EmbedCacheSize)
	if err != nil {
		return resilient
	}
	return cached
}
