package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/database"
	"github.com/kozaktomas/facegate/internal/facematch"
	"github.com/kozaktomas/facegate/internal/profile"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var identitiesCmd = &cobra.Command{
	Use:   "identities",
	Short: "Inspect and maintain enrolled identities",
}

var identitiesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled identities",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesList,
}

var identitiesReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the HNSW descriptor index and save it to HNSW_INDEX_PATH",
	Args:  cobra.NoArgs,
	RunE:  runIdentitiesReindex,
}

var identitiesDeleteCmd = &cobra.Command{
	Use:   "delete <identity-id>",
	Short: "Delete an identity with its descriptors and file metadata",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentitiesDelete,
}

func init() {
	rootCmd.AddCommand(identitiesCmd)
	identitiesCmd.AddCommand(identitiesListCmd)
	identitiesCmd.AddCommand(identitiesReindexCmd)
	identitiesCmd.AddCommand(identitiesDeleteCmd)

	identitiesListCmd.Flags().String("name", "", "Only list identities whose display name contains this text")
}

func runIdentitiesList(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	query := mustGetString(cmd, "name")

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	identities, err := store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTORS\tCREATED")
	shown := 0
	for _, identity := range identities {
		if query != "" && !profile.NameMatches(identity.DisplayName, query) {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n",
			identity.ID, identity.DisplayName, len(identity.Descriptors),
			identity.CreatedAt.Format("2006-01-02 15:04"))
		shown++
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\n%d of %d identities\n", shown, len(identities))
	return nil
}

func runIdentitiesReindex(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if cfg.Database.HNSWIndexPath == "" {
		return errors.New("HNSW_INDEX_PATH environment variable is required")
	}
	ctx := context.Background()

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	identities, err := store.ListIdentities(ctx)
	if err != nil {
		return fmt.Errorf("failed to list identities: %w", err)
	}

	bar := progressbar.NewOptions(descriptorCount(identities),
		progressbar.OptionSetDescription("Indexing descriptors"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("descriptors"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	index := database.NewDescriptorIndex(cfg.Matching.DescriptorDim)
	scorer := facematch.NewScorer(cfg.Matching.Threshold, cfg.Matching.Normalize)
	validator := facematch.NewValidator(cfg.Matching.DescriptorDim)
	indexed := facematch.NewIndexedMatcher(index, store, scorer, validator, 0)

	n, err := indexed.Rebuild(ctx, func() { _ = bar.Add(1) })
	if err != nil {
		return err
	}
	_ = bar.Finish()
	fmt.Println()

	if err := index.Save(cfg.Database.HNSWIndexPath); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	fmt.Printf("Indexed %d descriptors, saved to %s\n", n, cfg.Database.HNSWIndexPath)
	return nil
}

func runIdentitiesDelete(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()
	identityID := args[0]

	store, err := openStore(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DeleteIdentity(ctx, identityID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("identity %s not found", identityID)
		}
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	fmt.Printf("Deleted identity %s\n", identityID)

	return pruneSavedIndex(cfg, identityID)
}

// pruneSavedIndex drops a deleted identity from the saved index so a running
// server does not treat the file as stale on its next start.
func pruneSavedIndex(cfg *config.Config, identityID string) error {
	path := cfg.Database.HNSWIndexPath
	if path == "" {
		return nil
	}
	index := database.NewDescriptorIndex(cfg.Matching.DescriptorDim)
	if err := index.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load index: %w", err)
	}
	before := index.Count()
	index.RemoveIdentity(identityID)
	if index.Count() == before {
		return nil
	}
	if err := index.Save(path); err != nil {
		return fmt.Errorf("failed to save index: %w", err)
	}
	fmt.Printf("Removed %d descriptor(s) from %s\n", before-index.Count(), path)
	return nil
}
