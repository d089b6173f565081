package cmd

import (
	"errors"

	"github.com/plantops/equipment-health/internal/config"
	"github.com/plantops/equipment-health/internal/db"
	"github.com/plantops/equipment-health/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !cfg.Postgres.Enabled() {
		return errors.New("postgres is not configured: set DATABASE_URL or PGUSER/PGDATABASE")
	}
	ctx := cmd.Context()
	pool, err := db.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.NewPostgres(pool).EnsureSchema(ctx); err != nil {
		log.Error("schema migration failed", zap.Error(err))
		return err
	}
	log.Info("schema is up to date")
	return nil
}
