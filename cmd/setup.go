package cmd

import (
	"context"
	"time"

	"githubevents/pkg/storage"
	"githubevents/pkg/storage/events"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedSamples bool

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create the events table and indexes, optionally seeding sample events",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd.Context())
	},
}

func init() {
	setupCmd.Flags().BoolVar(&seedSamples, "seed", true, "insert sample events when the table is empty")
	RootCmd.AddCommand(setupCmd)
}

func runSetup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, logger, err := loadRuntime("setup")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := events.Open(storageConfig(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return err
	}
	if err := store.Migrate(); err != nil {
		return err
	}
	logger.Info("events table ready")

	if !seedSamples {
		return nil
	}
	written, err := storage.SeedIfEmpty(ctx, store, time.Now())
	if err != nil {
		return err
	}
	if written == 0 {
		logger.Info("events table not empty, skipping sample data")
		return nil
	}
	logger.Info("sample events inserted", zap.Int("count", written))
	return nil
}
