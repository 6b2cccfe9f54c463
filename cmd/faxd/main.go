// Faxd is a fax intake daemon for a medical practice.
//
// It extracts routing fields from OCR'd fax text with an LLM, classifies
// the document, overlays operator corrections recalled from an
// embedding-indexed store, and serves the pipeline over HTTP.
//
// Configuration is loaded from ~/.config/faxd/config.yaml with
// environment overrides. See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	AGENT_API_KEY=sk-... faxd
//
//	# Explicit config file
//	faxd -config /etc/faxd/config.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/faxd/internal/agent"
	"github.com/fyrsmithlabs/faxd/internal/config"
	"github.com/fyrsmithlabs/faxd/internal/corrections"
	"github.com/fyrsmithlabs/faxd/internal/embeddings"
	"github.com/fyrsmithlabs/faxd/internal/logging"
	"github.com/fyrsmithlabs/faxd/internal/pipeline"
	"github.com/fyrsmithlabs/faxd/internal/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file (default ~/.config/faxd/config.yaml)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  faxd            Start the faxd daemon\n")
			fmt.Fprintf(os.Stderr, "  faxd version    Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("faxd by Fyrsmith Labs\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the faxd server and blocks until context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger
//  3. Create embedding service and correction store
//  4. Create extraction agent and pipeline
//  5. Start HTTP server
//  6. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting faxd",
		zap.Int("port", cfg.Server.Port),
		zap.String("service", cfg.Observability.ServiceName),
		zap.String("corrections_backend", cfg.Corrections.Backend),
		zap.Duration("shutdown_timeout", cfg.Server.ShutdownTimeout))

	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
	})
	if err != nil {
		return fmt.Errorf("failed to create embedding service: %w", err)
	}

	store, err := corrections.NewStore(cfg.Corrections.Backend,
		corrections.ChromemConfig{
			Path:       cfg.Chromem.Path,
			Compress:   cfg.Chromem.Compress,
			Collection: cfg.Chromem.Collection,
		},
		corrections.QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: cfg.Qdrant.Collection,
			VectorSize: cfg.Qdrant.VectorSize,
		},
		embedder, logger)
	if err != nil {
		return fmt.Errorf("failed to create correction store: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("correction store close failed", zap.Error(cerr))
		}
	}()

	ag, err := agent.NewOpenAIAgent(agent.Config{
		BaseURL:    cfg.Agent.BaseURL,
		Model:      cfg.Agent.Model,
		APIKey:     cfg.Agent.APIKey.Value(),
		MaxTokens:  cfg.Agent.MaxTokens,
		Timeout:    cfg.Agent.Timeout,
		MaxRetries: cfg.Agent.MaxRetries,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	p, err := pipeline.New(ag, store, pipeline.Config{
		TopK:          cfg.Corrections.TopK,
		MinSimilarity: &cfg.Corrections.MinSimilarity,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	srv, err := server.NewServer(p, store, logger, &server.Config{
		Host: "0.0.0.0",
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
