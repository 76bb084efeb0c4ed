package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"

	"brandhub.dev/demodata/internal/audit"
	"brandhub.dev/demodata/internal/config"
	"brandhub.dev/demodata/internal/demodata"
)

var (
	seedOperator     string
	seedManagerID    string
	seedStaffIDs     []string
	seedProgress     bool
	seedPosts        bool
	resetOperator    string
	resetCollections []string
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Provision the demo dataset",
	Long: `Run preflight checks, provision demo identities and write every stage of
the demo dataset. The JSON report is printed even when the run fails.

Requires a persistent store (DEMODATA_STORE_DRIVER=postgres or sqlite) that
holds the operator's users document. The memory driver starts empty on every
invocation, so it is only useful with "serve".`,
	RunE: runSeed,
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every tagged demo document",
	Long: `Delete documents carrying demoTag=true from the managed collections.
Untagged documents are never touched. Like seed, it needs a persistent store.`,
	RunE: runReset,
}

func init() {
	seedCmd.Flags().StringVar(&seedOperator, "operator", "", "operator user id (must hold an elevated role)")
	seedCmd.Flags().StringVar(&seedManagerID, "brand-manager", "", "adopt an existing user as brand manager")
	seedCmd.Flags().StringSliceVar(&seedStaffIDs, "staff", nil, "adopt existing users as staff, by fixture position")
	seedCmd.Flags().BoolVar(&seedProgress, "training-progress", false, "force the training progress stage on")
	seedCmd.Flags().BoolVar(&seedPosts, "community-posts", false, "force the community posts stages on")
	_ = seedCmd.MarkFlagRequired("operator")

	resetCmd.Flags().StringVar(&resetOperator, "operator", "", "operator user id (must hold an elevated role)")
	resetCmd.Flags().StringSliceVar(&resetCollections, "collections", nil, "limit teardown to these collections")
	_ = resetCmd.MarkFlagRequired("operator")
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	if err := requirePersistentStore(a.cfg); err != nil {
		return err
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}
	opts := demodata.SeedOptions{BrandManagerID: seedManagerID, StaffIDs: seedStaffIDs}
	if cmd.Flags().Changed("training-progress") || cmd.Flags().Changed("community-posts") {
		opts.Features = &demodata.Features{
			TrainingProgress: seedProgress || a.cfg.FeatureTrainingProgress,
			CommunityPosts:   seedPosts || a.cfg.FeatureCommunityPosts,
		}
	}

	ctx = audit.WithOperator(ctx, seedOperator)
	rep, runErr := mgr.Seed(ctx, seedOperator, opts)
	if rep != nil {
		if err := printJSON(rep); err != nil {
			return err
		}
	}
	return runErr
}

func runReset(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := loadApp(ctx, false)
	if err != nil {
		return err
	}
	defer a.close()
	if err := requirePersistentStore(a.cfg); err != nil {
		return err
	}

	mgr, err := a.manager()
	if err != nil {
		return err
	}

	ctx = audit.WithOperator(ctx, resetOperator)
	var rep *demodata.ResetReport
	if len(resetCollections) > 0 {
		rep, err = mgr.ResetCollections(ctx, resetOperator, resetCollections...)
	} else {
		rep, err = mgr.Reset(ctx, resetOperator)
	}
	if rep != nil {
		if perr := printJSON(rep); perr != nil {
			return perr
		}
	}
	return err
}

// errMemoryStore: a one-shot CLI run on an empty in-process store has no operator to authorize.
var errMemoryStore = errors.New("seed and reset need DEMODATA_STORE_DRIVER=postgres or sqlite; the memory store is empty on every run")

func requirePersistentStore(cfg config.Config) error {
	if cfg.StoreDriver == config.DriverMemory {
		return errMemoryStore
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
