package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"poolindexer/internal/config"
	"poolindexer/internal/store/postgres"
)

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.PGDSN == "" {
		return fmt.Errorf("pg dsn is required")
	}
	return postgres.Migrate(cfg.PGDSN, logger)
}
