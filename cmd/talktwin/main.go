// main package for the talktwin web service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/bootstrap"
	"github.com/book-expert/talktwin/internal/config"
	"github.com/book-expert/talktwin/internal/objectstore"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/web"
	"github.com/book-expert/talktwin/internal/worker"
	"github.com/nats-io/nats.go"
)

const shutdownTimeout = 30 * time.Second

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := bootstrap.NewLogger(os.TempDir(), "talktwin-bootstrap.log")
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	err = bootstrap.LoadDotEnv(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load .env: %v", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := bootstrap.NewLogger(cfg.Paths.BaseLogsDir, "talktwin.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	narrator, err := bootstrap.Pipeline(ctx, cfg, finalLog)
	if err != nil {
		finalLog.Error("Failed to build pipeline: %v", err)

		return err
	}

	if cfg.NATS.Enabled {
		closeWorker, workerErr := startWorker(ctx, cfg, narrator, finalLog)
		if workerErr != nil {
			return workerErr
		}
		defer closeWorker()
	}

	return serve(ctx, cfg, narrator, finalLog)
}

func serve(ctx context.Context, cfg *config.Config, narrator *pipeline.Pipeline, log *logger.Logger) error {
	server, err := web.NewServer(web.Options{
		Title:          cfg.Web.Title,
		LogoPath:       cfg.Web.LogoPath,
		StylesheetPath: cfg.Web.StylesheetPath,
		WorkspaceDir:   cfg.Paths.WorkspaceDir,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, narrator, log)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		log.System("Shutting down web UI.")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		shutdownErr := server.Shutdown(shutdownCtx)
		if shutdownErr != nil {
			log.Error("Web UI shutdown failed: %v", shutdownErr)
		}
	}()

	err = server.Listen(cfg.Web.Address)
	if err != nil {
		return fmt.Errorf("web UI stopped: %w", err)
	}

	return nil
}

// startWorker connects to NATS and runs the narration worker until ctx ends.
func startWorker(
	ctx context.Context,
	cfg *config.Config,
	narrator *pipeline.Pipeline,
	log *logger.Logger,
) (func(), error) {
	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		log.Error("Failed to connect to NATS at %s: %v", cfg.NATS.URL, err)

		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ObjectStoreBucket)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	narrationWorker, err := worker.NewNatsWorker(natsConnection, worker.Options{
		Subject:      cfg.NATS.NarrationSubject,
		QueueGroup:   cfg.NATS.QueueGroup,
		WorkspaceDir: cfg.Paths.WorkspaceDir,
	}, store, narrator, log)
	if err != nil {
		natsConnection.Close()

		return nil, err
	}

	go func() {
		runErr := narrationWorker.Run(ctx)
		if runErr != nil {
			log.Error("Narration worker stopped: %v", runErr)
		}
	}()

	log.System("Listening for narration jobs on subject: %s", cfg.NATS.NarrationSubject)

	return natsConnection.Close, nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
