package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/safety/internal/config"
	"github.com/your-org/safety/internal/enrollment"
	"github.com/your-org/safety/internal/observability"
	"github.com/your-org/safety/internal/recognition"
	"github.com/your-org/safety/internal/storage"
)

var (
	configPath string

	db          *storage.PostgresStore
	coordinator *enrollment.Coordinator
)

var rootCmd = &cobra.Command{
	Use:          "enrollctl",
	Short:        "Operator tool for the worker enrollment registry",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load()

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// Keep the terminal readable; the progress bar owns stderr.
		observability.SetupLogger("error", "text")

		db, err = storage.NewPostgresStore(cmd.Context(), cfg.Database, cfg.Recognition.VectorDim)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}

		images, err := openImageStore(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open image store: %w", err)
		}

		coordinator = enrollment.NewCoordinator(db, images, recognition.New(cfg.Recognition), cfg.Enrollment.BulkConcurrency)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if db != nil {
			db.Close()
		}
	},
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "path to config file")
}

func openImageStore(ctx context.Context, cfg *config.Config) (storage.ImageStore, error) {
	if cfg.Storage.Backend == config.StorageMinIO {
		store, err := storage.NewMinIOImageStore(cfg.MinIO)
		if err != nil {
			return nil, err
		}
		return store, store.EnsureBucket(ctx)
	}
	return storage.NewFileImageStore(cfg.Storage.ImageDir)
}
