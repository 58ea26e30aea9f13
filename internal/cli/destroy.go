package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-io/quarry/internal/apply"
	"github.com/quarry-io/quarry/internal/config"
	"github.com/quarry-io/quarry/internal/plan"
)

var (
	destroyAutoApprove bool
	destroyLockTimeout time.Duration
)

var destroyCmd = &cobra.Command{
	Use:   "destroy [path]",
	Short: "Destroy all managed infrastructure",
	Long: `Destroys every resource tracked in the current workspace's state,
in reverse dependency order. This is the inverse of 'quarry apply'.`,
	RunE: runDestroy,
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyAutoApprove, "auto-approve", false, "Skip interactive approval before destroying")
	destroyCmd.Flags().DurationVar(&destroyLockTimeout, "lock-timeout", 0, "Time to wait for the state lock (0 fails immediately)")
}

func runDestroy(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	scope := currentWorkspace()

	lock, err := proj.store.AcquireLock(ctx, scope, destroyLockTimeout)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	snap, err := proj.store.Read(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}
	if len(snap.Records) == 0 {
		fmt.Println("Nothing to destroy. State is empty.")
		return nil
	}

	if err := proj.loadProviders(nil, snap); err != nil {
		return err
	}

	// Planning against an empty model turns every record into a delete.
	empty, err := config.Load(&config.Document{})
	if err != nil {
		return err
	}
	p, err := plan.Compute(empty, snap, proj.schemas(nil, snap))
	if err != nil {
		return fmt.Errorf("destroy plan generation failed: %w", err)
	}

	fmt.Println("Quarry will destroy the following resources:")
	renderPlanChanges(p)
	renderPlanSummary(p)

	if !destroyAutoApprove {
		if !confirm("Do you really want to destroy all resources?") {
			fmt.Println("Destroy cancelled.")
			return nil
		}
	}

	fmt.Printf("\nDestroying %d resources...\n", len(p.Changes()))

	applier := apply.NewApplier(proj.registry)
	result, applyErr := applier.Apply(ctx, p, snap, func(e apply.Event) {
		if e.Status == "completed" {
			fmt.Printf("  %s: destroyed\n", e.Address)
		} else if e.Status == "failed" {
			fmt.Printf("  %s: destroy FAILED: %v\n", e.Address, e.Err)
		}
	})

	if err := proj.store.Write(ctx, scope, result, snap.Serial); err != nil {
		if applyErr != nil {
			return fmt.Errorf("destroy failed (%v) and state write failed: %w", applyErr, err)
		}
		return fmt.Errorf("failed to write state: %w", err)
	}
	if applyErr != nil {
		return fmt.Errorf("destroy failed: %w", applyErr)
	}

	fmt.Printf("\nDestroy complete! %d resources destroyed.\n", p.Summary.Delete)
	return nil
}
