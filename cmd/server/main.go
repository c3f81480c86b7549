package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fluxo/tsv-export/pkg/config"
	grpcserver "github.com/fluxo/tsv-export/pkg/grpc"
	"github.com/fluxo/tsv-export/pkg/logger"
	"github.com/fluxo/tsv-export/pkg/oss"
	"github.com/fluxo/tsv-export/pkg/storage"
	"github.com/fluxo/tsv-export/pkg/taskmanager"
)

var (
	configPath = flag.String("config", "config.yaml", "Path to configuration file")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(
		cfg.Logging.Level,
		cfg.Logging.Format,
		cfg.Logging.Output,
		cfg.Logging.EnableTracing,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	log.Info(fmt.Sprintf("Starting TSV export service v%s", version))
	log.Info("Configuration loaded successfully", logger.Fields{
		"grpc_port":      cfg.Server.Port,
		"max_concurrent": cfg.Concurrency.MaxConcurrentTasks,
		"encoding":       cfg.Output.Encoding,
		"line_separator": cfg.Output.LineSeparator,
		"oss_enabled":    cfg.OSS.Enabled,
	})

	cleanupInterval := time.Duration(0)
	if cfg.Storage.CleanupEnabled {
		cleanupInterval = cfg.Storage.CleanupInterval
	}
	storageMgr, err := storage.NewManager(
		cfg.Storage.TempDirectory,
		cfg.Storage.TempRetention,
		cleanupInterval,
		log,
	)
	if err != nil {
		log.Fatal("Failed to initialize storage manager", logger.Fields{"error": err.Error()})
	}
	log.Info("Storage manager initialized", logger.Fields{"temp_dir": cfg.Storage.TempDirectory})

	var uploader taskmanager.Uploader
	var ossUploader *oss.Uploader
	if cfg.OSS.Enabled {
		ossUploader, err = oss.NewUploader(&cfg.OSS, log)
		if err != nil {
			log.Fatal("Failed to initialize OSS uploader", logger.Fields{"error": err.Error()})
		}
		uploader = ossUploader
		log.Info("OSS uploader initialized", logger.Fields{
			"endpoint": cfg.OSS.Endpoint,
			"bucket":   cfg.OSS.Bucket,
		})
	} else {
		log.Info("OSS upload disabled, finished files stay in temp storage")
	}

	taskMgr := taskmanager.NewManager(cfg, log, storageMgr, uploader)
	log.Info("Task manager initialized", logger.Fields{
		"max_concurrent": cfg.Concurrency.MaxConcurrentTasks,
		"queue_timeout":  cfg.Concurrency.QueueTimeout.String(),
	})

	grpcServer := grpcserver.NewServer(cfg, log, taskMgr)
	if err := grpcServer.Start(); err != nil {
		log.Fatal("Failed to start gRPC server", logger.Fields{"error": err.Error()})
	}

	log.Info("Ready to accept export requests", logger.Fields{"grpc_port": cfg.Server.Port})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received, initiating graceful shutdown...")

	grpcServer.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := taskMgr.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during task manager shutdown", logger.Fields{"error": err.Error()})
	}

	if err := storageMgr.Close(); err != nil {
		log.Error("Error closing storage manager", logger.Fields{"error": err.Error()})
	}

	if ossUploader != nil {
		if err := ossUploader.Close(); err != nil {
			log.Error("Error closing OSS uploader", logger.Fields{"error": err.Error()})
		}
	}

	log.Info("Shutdown complete")
}
