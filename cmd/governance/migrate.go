package main

import (
	"github.com/spf13/cobra"
	"github.com/upb/governance-engine/config"
	"github.com/upb/governance-engine/internal/observability"
	"github.com/upb/governance-engine/repositories/postgres"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.New(cmd.Context())
			if err != nil {
				return err
			}

			logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			factory, err := postgres.NewRepositoryFactory(cfg, logger)
			if err != nil {
				return err
			}
			defer factory.Close()

			if err := factory.Migrate(); err != nil {
				logger.Error("migration failed", zap.Error(err))
				return err
			}
			return nil
		},
	}
}
