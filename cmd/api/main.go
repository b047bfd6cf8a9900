package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/your-org/safety/internal/api"
	"github.com/your-org/safety/internal/api/handlers"
	"github.com/your-org/safety/internal/api/ws"
	"github.com/your-org/safety/internal/config"
	"github.com/your-org/safety/internal/enrollment"
	"github.com/your-org/safety/internal/models"
	"github.com/your-org/safety/internal/observability"
	"github.com/your-org/safety/internal/queue"
	"github.com/your-org/safety/internal/recognition"
	"github.com/your-org/safety/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting safety API service", "port", cfg.Server.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Connect to Postgres
	db, err := storage.NewPostgresStore(ctx, cfg.Database, cfg.Recognition.VectorDim)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	images, err := openImageStore(ctx, cfg)
	if err != nil {
		slog.Error("open image store", "error", err, "backend", cfg.Storage.Backend)
		os.Exit(1)
	}

	recognizer := recognition.New(cfg.Recognition)
	coordinator := enrollment.NewCoordinator(db, images, recognizer, cfg.Enrollment.BulkConcurrency)

	bus := ws.NewBus(ws.NewRegistry[*ws.Subscriber](), cfg.Server.AllowedOrigins)

	checks := []handlers.Check{
		{Name: "postgres", Ping: db.Ping},
		{Name: "images", Ping: images.Ping},
	}

	// Report channel: NATS when configured, otherwise straight into the bus.
	var publisher handlers.RecognitionPublisher = bus
	if cfg.NATS.URL != "" {
		producer, err := queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()

		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}

		consumer, err := queue.NewConsumer(cfg.NATS.URL)
		if err != nil {
			slog.Error("create recognition consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()

		err = consumer.ConsumeRecognitions(ctx, cfg.NATS.Consumer, func(_ context.Context, result models.RecognitionResult) error {
			bus.Publish(result)
			return nil
		})
		if err != nil {
			slog.Warn("start recognition consumer", "error", err)
		}

		publisher = producer
		checks = append(checks,
			handlers.Check{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }},
			handlers.Check{Name: "recognition_consumer", Ping: consumer.Ready},
		)
	} else {
		slog.Info("nats disabled, recognition reports go directly to subscribers")
	}

	relay := ws.NewRelay(recognizer, publisher, ws.NewRegistry[*ws.Session](), ws.RelayConfig{
		MaxFrameBytes:  cfg.Server.MaxFrameBytes,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Source:         "gate",
	})

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:         cfg.Server.APIKey,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ImageURLPrefix: cfg.Storage.URLPrefix,
		MaxImageBytes:  cfg.Server.MaxFrameBytes,
		Workers:        coordinator,
		Config:         db,
		Defaults: models.SystemConfig{
			AdminPassword:       cfg.Defaults.AdminPassword,
			WarningDelaySeconds: cfg.Defaults.WarningDelaySeconds,
			RequiredEquipment:   cfg.Defaults.RequiredEquipment,
		},
		Images:    images,
		Publisher: publisher,
		Relay:     relay,
		Bus:       bus,
		Checks:    checks,
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

func openImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageMinIO:
		store, err := storage.NewMinIOImageStore(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		return store, nil
	default:
		return storage.NewFileImageStore(cfg.Storage.ImageDir)
	}
}
