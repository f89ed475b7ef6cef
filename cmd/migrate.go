package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database/postgres"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long:  `Connects to DATABASE_URL and applies every embedded migration that has not run yet.`,
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}

	pool, err := postgres.Open(context.Background(), &cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	fmt.Println("Database is up to date.")
	return nil
}
