package cmd

import (
	"context"
	"fmt"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Session maintenance commands",
}

var sessionsSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete expired sessions",
	Long: `Deletes every session whose expiry has passed. Expired sessions are
already rejected on read; this only reclaims storage.`,
	Args: cobra.NoArgs,
	RunE: runSessionsSweep,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsSweepCmd)
}

func runSessionsSweep(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := session.NewManager(store, cfg.Matching.SessionTTL).Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d expired session(s).\n", n)
	return nil
}
