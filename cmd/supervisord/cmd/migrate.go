package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/config"
	"github.com/yianzhang14/cybergis-compute-core-refactor/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the supervisor's postgres schema",
	Long:  `Create (or update, idempotently) every table the relational store's queries assume.`,
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := store.Migrate(cmd.Context(), cfg.Settings.PostgresDSN); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}

	fmt.Println("schema applied")
	return nil
}
