package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/localfirst/mediaengine/internal/config"
	"github.com/localfirst/mediaengine/internal/logging"
	"github.com/localfirst/mediaengine/internal/reconcile"
	"github.com/localfirst/mediaengine/internal/store"
)

var inhaleDebug bool

var inhaleCmd = &cobra.Command{
	Use:   "inhale",
	Short: "Rebuild the catalogue from on-disk sidecars (the Great Inhale)",
	Long: `inhale walks the configured data root, reads every sidecar
descriptor, and replays it back into the catalogue for any content hash
not already present — the disaster-recovery rebuild spec §6 names the
"great inhale". It also runs the orphan reconciler first, so assets whose
files already vanished are marked rather than silently left stale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return doInhale(cmd.Context())
	},
}

func init() {
	inhaleCmd.Flags().BoolVar(&inhaleDebug, "debug", false, "enable debug-level log lines")
}

func doInhale(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	notifier := logging.NewStderrNotifier(inhaleDebug)

	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer st.Close()

	orphanResult, err := reconcile.ReconcileOrphans(ctx, st, notifier)
	if err != nil {
		return fmt.Errorf("orphan reconciliation: %w", err)
	}
	fmt.Printf("orphan check: %d assets checked, %d newly orphaned\n", orphanResult.Checked, orphanResult.Orphaned)

	inhaleResult, err := reconcile.Inhale(ctx, st, cfg.DataRoot, notifier)
	if err != nil {
		return fmt.Errorf("inhale: %w", err)
	}
	fmt.Printf("inhale: %d sidecars visited, %d assets restored, %d skipped (already present)\n",
		inhaleResult.SidecarsVisited, inhaleResult.AssetsRestored, inhaleResult.AssetsSkipped)
	return nil
}
