package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairchat/gateway"
	"pairchat/httpapi"
	"pairchat/moderation"
	"pairchat/repositories"
	"pairchat/runtime"
	"pairchat/runtime/workers"
	"pairchat/services"
	"pairchat/storage"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for HTTP and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Full-text index (Bluge)
	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing index...")
		_ = indexWriter.Close()
	}()

	// 4. Moderation
	censored, err := moderation.LoadCensored()
	if err != nil {
		return fmt.Errorf("loading censored words failed: %w", err)
	}
	moderator, err := moderation.NewModerator(censored.Words, config.ModerationCharReplacement)
	if err != nil {
		return fmt.Errorf("building moderator failed: %w", err)
	}
	log.Info("Moderation enabled", "words", len(censored.Words), "languages", censored.Languages)

	// 5. Repositories & Services
	conversationRepository := repositories.NewConversationRepository(db, log)
	messageRepository := repositories.NewMessageRepository(db, log)
	searchRepository := repositories.NewSearchRepository(indexWriter, log)

	registry := runtime.NewRegistry()
	fanout := workers.NewEventFanout(log, registry, config.BufferSize, config.SinkTimeout)
	health := workers.NewHealthMonitoringWorker(log, config.MetricInterval)

	chatService := services.NewChatService(
		log, conversationRepository, messageRepository,
		searchRepository, &moderator, fanout,
	)

	fileStore, err := storage.NewFileStore(log, config.UploadDir, config.UploadBaseURL)
	if err != nil {
		return fmt.Errorf("file store setup failed: %w", err)
	}

	// 6. Supervision
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(fanout, health)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supDone := make(chan struct{})
	go func() {
		sup.Run(ctx)
		close(supDone)
	}()

	// 7. HTTP Server & Gateway
	gw := gateway.NewGateway(log, registry, chatService)
	handler := httpapi.NewHandler(log, chatService, fileStore)
	router := httpapi.NewRouter(handler, gw)
	router.Static(config.UploadBaseURL, config.UploadDir)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown did not finish cleanly", "error", err)
	}
	sup.Stop()
	<-supDone
	log.Info("Program stopped cleanly")

	return nil
}
