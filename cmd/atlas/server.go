package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atlasgraph/atlas"
	"github.com/atlasgraph/atlas/pkg/config"
	"github.com/atlasgraph/atlas/pkg/logger"
	"github.com/atlasgraph/atlas/pkg/server"
	"github.com/atlasgraph/atlas/pkg/telemetry"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the Atlas HTTP server",
	Long: `Start the Atlas HTTP server to provide REST API access to the
knowledge graph.

The server provides endpoints for:
- Ingesting documents
- Hybrid search
- Per-result score explanations
- Health checks

Configuration can be provided through config files, environment variables, or command-line flags.`,
	RunE: runServer,
}

var (
	serverHost string
	serverPort int
	serverMode string
)

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().StringVar(&serverHost, "host", "localhost", "Server host")
	serverCmd.Flags().IntVar(&serverPort, "port", 8080, "Server port")
	serverCmd.Flags().StringVar(&serverMode, "mode", "release", "Server mode (debug, release, test)")

	// Graph backend flags
	serverCmd.Flags().String("graph-provider", "badger", "Graph backend (memory, badger, neo4j)")
	serverCmd.Flags().String("graph-path", "./atlas_db", "Data directory for the badger backend")
	serverCmd.Flags().String("graph-uri", "", "Neo4j URI")
	serverCmd.Flags().String("graph-username", "", "Neo4j username")
	serverCmd.Flags().String("graph-password", "", "Neo4j password")

	// Embedding flags
	serverCmd.Flags().String("embedding-provider", "local", "Embedding provider (local, openai)")
	serverCmd.Flags().String("embedding-model", "", "Embedding model")
	serverCmd.Flags().String("embedding-api-key", "", "Embedding API key")

	// Extraction flags
	serverCmd.Flags().String("patterns-file", "", "YAML file with additional extraction patterns")

	// Telemetry flags
	serverCmd.Flags().String("telemetry-parquet-path", "", "Directory for telemetry parquet files")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	overrideServerFlags(cmd, cfg)

	log, closeLog, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	engine, err := atlas.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize engine: %w", err)
	}
	defer engine.Close()

	srv := server.New(cfg, engine)
	srv.Setup()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("server listening", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := srv.Start(); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		log.Info("server stopped gracefully")
		return nil
	}
}

func overrideServerFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host = serverHost
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = serverPort
	}
	if cmd.Flags().Changed("mode") {
		cfg.Server.Mode = serverMode
	}

	if cmd.Flags().Changed("graph-provider") {
		cfg.Graph.Provider, _ = cmd.Flags().GetString("graph-provider")
	}
	if cmd.Flags().Changed("graph-path") {
		cfg.Graph.Path, _ = cmd.Flags().GetString("graph-path")
	}
	if cmd.Flags().Changed("graph-uri") {
		cfg.Graph.URI, _ = cmd.Flags().GetString("graph-uri")
	}
	if cmd.Flags().Changed("graph-username") {
		cfg.Graph.Username, _ = cmd.Flags().GetString("graph-username")
	}
	if cmd.Flags().Changed("graph-password") {
		cfg.Graph.Password, _ = cmd.Flags().GetString("graph-password")
	}

	if cmd.Flags().Changed("embedding-provider") {
		cfg.Embedding.Provider, _ = cmd.Flags().GetString("embedding-provider")
	}
	if cmd.Flags().Changed("embedding-model") {
		cfg.Embedding.Model, _ = cmd.Flags().GetString("embedding-model")
	}
	if cmd.Flags().Changed("embedding-api-key") {
		cfg.Embedding.APIKey, _ = cmd.Flags().GetString("embedding-api-key")
	}

	if cmd.Flags().Changed("patterns-file") {
		cfg.Patterns.File, _ = cmd.Flags().GetString("patterns-file")
	}

	if cmd.Flags().Changed("telemetry-parquet-path") {
		cfg.Telemetry.ParquetPath, _ = cmd.Flags().GetString("telemetry-parquet-path")
		cfg.Telemetry.Enabled = true
	}
}

// setupLogger builds the colorized stderr logger, layered with the
// parquet telemetry handler when enabled.
func setupLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	colorHandler := logger.NewColorHandler(os.Stderr, &slog.HandlerOptions{
		Level: logger.ParseLevel(cfg.Log.Level),
	})

	if !cfg.Telemetry.Enabled {
		return slog.New(colorHandler), func() {}, nil
	}

	path := cfg.Telemetry.ParquetPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to resolve telemetry directory: %w", err)
		}
		path = filepath.Join(home, ".atlas", "telemetry")
	}

	parquetHandler, err := telemetry.NewParquetHandler(colorHandler, path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return slog.New(parquetHandler), func() { parquetHandler.Close() }, nil
}
