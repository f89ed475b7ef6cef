package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/facegate/internal/auth"
	"github.com/kozaktomas/facegate/internal/blob"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/enrollment"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/files"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Facegate API server.
Serves enrollment, face login, session check and logout, profile and
file endpoints under /api/v1 and Prometheus metrics under /metrics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8080, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session-secret", "", "Secret for signing session cookies (overrides WEB_SESSION_SECRET)")
	serveCmd.Flags().Bool("in-memory", false, "Keep identities and sessions in memory instead of PostgreSQL")
}

// applyServeFlags lets explicitly set flags win over the environment.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
	if cmd.Flags().Changed("session-secret") {
		cfg.Web.SessionSecret = mustGetString(cmd, "session-secret")
	}
	if cfg.Web.SessionSecret == "" {
		log.Warn().Msg("WEB_SESSION_SECRET not set, using the development secret")
	}
}

// saveIndex persists the descriptor index when a path is configured.
func saveIndex(index *database.DescriptorIndex, path string) {
	if index == nil || path == "" {
		return
	}
	if err := index.Save(path); err != nil {
		log.Error().Err(err).Str("path", path).Msg("failed to save descriptor index")
		return
	}
	log.Info().Str("path", path).Int("descriptors", index.Count()).Msg("descriptor index saved")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, mustGetBool(cmd, "in-memory"))
	if err != nil {
		return err
	}
	defer store.Close()

	blobs, err := blob.New(ctx, cfg.Blob)
	if err != nil {
		return fmt.Errorf("failed to initialize blob store: %w", err)
	}

	m := metrics.New()
	validator := facematch.NewValidator(cfg.Matching.DescriptorDim)
	scorer := facematch.NewScorer(cfg.Matching.Threshold, cfg.Matching.Normalize)

	sessions := session.NewManager(store, cfg.Matching.SessionTTL, session.WithMetrics(m))
	sessions.StartSweeper(ctx, cfg.Matching.SweepInterval)
	defer sessions.Stop()

	matcher, indexed, index, err := buildMatcher(ctx, cfg, store, scorer, validator)
	if err != nil {
		return err
	}

	enrollOpts := []enrollment.Option{enrollment.WithMetrics(m)}
	if indexed != nil {
		enrollOpts = append(enrollOpts, enrollment.WithIndexer(indexed))
	}

	server := web.NewServer(cfg, web.Services{
		Coordinator: enrollment.NewCoordinator(store, sessions, validator, cfg.Matching.EnrollmentSteps, enrollOpts...),
		Gateway:     auth.NewGateway(sessions, store, matcher, m),
		Identities:  store,
		Files:       files.NewService(store, blobs),
		Validator:   validator,
		Metrics:     m,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("error during shutdown")
		}
	}()

	log.Info().
		Str("index", cfg.Matching.Index).
		Float64("threshold", cfg.Matching.Threshold).
		Bool("normalize", cfg.Matching.Normalize).
		Int("steps", cfg.Matching.EnrollmentSteps).
		Msgf("facegate listening on http://%s:%d", cfg.Web.Host, cfg.Web.Port)

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	// Start returns once Shutdown has stopped accepting requests.
	saveIndex(index, cfg.Database.HNSWIndexPath)
	return nil
}
