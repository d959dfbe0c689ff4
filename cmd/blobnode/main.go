package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/marmos91/blobnode/internal/logger"
	"github.com/marmos91/blobnode/pkg/config"
	"github.com/marmos91/blobnode/pkg/server"
	"github.com/marmos91/blobnode/pkg/storage"
)

// version is stamped by the build (-ldflags "-X main.version=...").
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to config file (default: "+config.GetDefaultConfigPath()+")")
	printConfig := flag.Bool("print-config", false, "Print the effective configuration and exit")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("blobnode %s\n", version)
		return
	}

	// Load configuration (file + BLOBNODE_* environment + defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			log.Fatalf("Failed to render configuration: %v", err)
		}
		fmt.Print(string(out))
		return
	}

	// Configure logging before anything else speaks
	if err := setupLogging(&cfg.Logging); err != nil {
		log.Fatalf("Failed to configure logging: %v", err)
	}

	logger.Info("blobnode %s starting (node id: %s, name: %s)", version, cfg.Node.ID, cfg.Node.Name)

	// Context cancelled by SIGINT/SIGTERM drives the whole shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Metrics registry, collectors, and HTTP server (no-ops when disabled)
	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
	}

	// File store backend
	store, err := config.CreateFileStore(ctx, &cfg.Storage)
	if err != nil {
		log.Fatalf("Failed to create file store: %v", err)
	}
	logger.Info("File store ready: type=%s base_path=%s", cfg.Storage.Type, cfg.Storage.BasePath)

	// Path mapper: the node's addressing scheme
	mapper, err := storage.NewPathMapper(storage.MapperConfig{
		BasePath:         cfg.Storage.BasePath,
		TempDirName:      cfg.Storage.TempDir,
		ShardSymbolCount: cfg.Storage.ShardSymbols,
		ShardLevelCount:  cfg.Storage.ShardLevels,
	})
	if err != nil {
		log.Fatalf("Failed to create path mapper: %v", err)
	}

	// The storage pipeline every adapter shares
	svc, err := storage.NewService(ctx, storage.Config{
		NodeID:        cfg.Node.ID,
		UploadSlots:   cfg.Storage.MaxConcurrentUploads,
		DownloadSlots: cfg.Storage.MaxConcurrentDownloads,
		ChunkSize:     cfg.Storage.ChunkSize,
	}, mapper, store, metricsResult.Storage)
	if err != nil {
		log.Fatalf("Failed to create storage service: %v", err)
	}
	logger.Info("Storage service ready: sharding=%dx%d chunk_size=%d slots=%d/%d",
		cfg.Storage.ShardSymbols, cfg.Storage.ShardLevels, cfg.Storage.ChunkSize,
		cfg.Storage.MaxConcurrentUploads, cfg.Storage.MaxConcurrentDownloads)

	// Protocol adapters
	adapters, err := config.CreateAdapters(cfg, metricsResult.BSP)
	if err != nil {
		log.Fatalf("Failed to create adapters: %v", err)
	}

	srv := server.New(svc, cfg.Server.ShutdownTimeout)
	for _, a := range adapters {
		if err := srv.AddAdapter(a); err != nil {
			log.Fatalf("Failed to register %s adapter: %v", a.Protocol(), err)
		}
	}

	// Serve blocks until a signal arrives or an adapter fails
	err = srv.Serve(ctx)

	// Stop the metrics server after the adapters are down so /metrics
	// stays scrapeable through most of the shutdown
	if metricsResult.Server != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if stopErr := metricsResult.Server.Stop(stopCtx); stopErr != nil {
			logger.Error("Metrics server stop error: %v", stopErr)
		}
		stopCancel()
	}

	if err != nil && err != context.Canceled {
		logger.Error("Server error: %v", err)
		os.Exit(1)
	}

	logger.Info("blobnode stopped")
}

// setupLogging applies the logging configuration. Level and format are
// package-wide; output may be stdout, stderr, or a file path.
func setupLogging(cfg *config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)

	switch cfg.Output {
	case "stdout", "":
		// default destination
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", cfg.Output, err)
		}
		// Held for the process lifetime
		logger.SetOutput(f)
	}

	return nil
}
