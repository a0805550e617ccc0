package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/docpal/docpal/internal/config"
	"github.com/docpal/docpal/internal/handler"
	"github.com/docpal/docpal/internal/handler/webhook"
	"github.com/docpal/docpal/internal/service/answer"
	"github.com/docpal/docpal/internal/service/delivery"
	"github.com/docpal/docpal/internal/service/index"
	"github.com/docpal/docpal/internal/service/ingest"
	"github.com/docpal/docpal/internal/service/messaging"
	sessionstore "github.com/docpal/docpal/internal/service/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	log.Printf("environment check passed: twilio account=%s ark chat model=%s embedding model=%s",
		cfg.Twilio.AccountSID, cfg.AI.ChatModel, cfg.AI.EmbeddingModel)

	if err := cfg.Storage.EnsureDirs(); err != nil {
		log.Fatalf("failed to provision storage directories: %v", err)
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		log.Fatalf("failed to initialize chat model: %v", err)
	}

	embedder, err := cfg.AI.NewEmbedder(ctx)
	if err != nil {
		log.Fatalf("failed to initialize embedding model: %v", err)
	}

	sessions := sessionstore.NewFileStore(cfg.Storage.SessionFile)
	log.Printf("loaded %d existing sessions from %s", len(sessions.Load()), cfg.Storage.SessionFile)

	indexes := index.NewStore(embedder, cfg.Storage.IndexDir)
	chunker := ingest.NewChunker(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	ingestor := ingest.NewService(ingest.PDFExtractor{}, chunker, indexes, sessions)

	answerer, err := answer.NewService(ctx, chatModel, sessions, indexes, cfg.Answer.TopK)
	if err != nil {
		log.Fatalf("failed to initialize answer service: %v", err)
	}

	sender := messaging.NewTwilioSender(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.WhatsAppNumber)
	downloader := messaging.NewBasicAuthDownloader(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.DownloadTimeout)
	deliverer := delivery.NewCoordinator(sender, cfg.Delivery.MaxMessageLength, cfg.Delivery.PartDelay)

	webhookHandler := webhook.New(sessions, ingestor, answerer, deliverer, sender, downloader, webhook.Config{
		TempDir:         cfg.Storage.TempDir,
		SelfNumber:      cfg.Twilio.BareNumber(),
		DownloadTimeout: cfg.Twilio.DownloadTimeout,
		IngestTimeout:   cfg.Ingest.Timeout,
		AnswerTimeout:   cfg.Answer.Timeout,
	})

	router := handler.NewRouter(webhookHandler)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("docpal webhook listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
