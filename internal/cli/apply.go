package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/quarry-io/quarry/internal/apply"
	"github.com/quarry-io/quarry/internal/plan"
)

var (
	applyOverlays        []string
	applyProperties      map[string]string
	applyAutoApprove     bool
	applyLockTimeout     time.Duration
	applyParallelism     int
	applyContinueOnError bool
)

var applyCmd = &cobra.Command{
	Use:   "apply [path]",
	Short: "Apply a configuration",
	Long: `Builds or changes infrastructure according to the configuration.

Apply locks the workspace, computes a plan, asks for approval, executes
it through providers, and writes the resulting state. Partial progress is
persisted even when individual resources fail.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringSliceVarP(&applyOverlays, "overlay", "o", nil, "Overlay files, later files win on conflict")
	applyCmd.Flags().StringToStringVarP(&applyProperties, "prop", "D", nil, "Set external properties (format: key=value)")
	applyCmd.Flags().BoolVar(&applyAutoApprove, "auto-approve", false, "Skip interactive approval of plan before applying")
	applyCmd.Flags().DurationVar(&applyLockTimeout, "lock-timeout", 0, "Time to wait for the state lock (0 fails immediately)")
	applyCmd.Flags().IntVar(&applyParallelism, "parallelism", 10, "Maximum concurrent resource operations")
	applyCmd.Flags().BoolVar(&applyContinueOnError, "continue-on-error", false, "Keep applying independent resources after a failure")
}

func runApply(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	scope := currentWorkspace()

	lock, err := proj.store.AcquireLock(ctx, scope, applyLockTimeout)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	fmt.Print("Loading configuration... ")
	model, err := proj.loadModel(ctx, applyOverlays, applyProperties)
	if err != nil {
		fmt.Println("FAILED")
		return err
	}
	fmt.Println("OK")

	snap, err := proj.store.Read(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if err := proj.loadProviders(model, snap); err != nil {
		return err
	}

	fmt.Print("Calculating plan... ")
	p, err := plan.Compute(model, snap, proj.schemas(model, snap))
	if err != nil {
		fmt.Println("FAILED")
		return fmt.Errorf("plan generation failed: %w", err)
	}
	fmt.Println("OK")

	changes := p.Changes()
	if len(changes) == 0 {
		fmt.Println("No changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nQuarry will perform the following actions:")
	renderPlanChanges(p)
	renderPlanSummary(p)

	if !applyAutoApprove {
		if !confirm("Do you want to perform these actions?") {
			fmt.Println("Apply cancelled.")
			return nil
		}
	}

	fmt.Printf("\nApplying %d changes...\n", len(changes))

	applier := apply.NewApplier(proj.registry)
	applier.Parallelism = applyParallelism
	applier.ContinueOnError = applyContinueOnError

	result, applyErr := applier.Apply(ctx, p, snap, func(e apply.Event) {
		switch e.Status {
		case "completed":
			fmt.Printf("  %s: %s complete (%s)\n", e.Address, e.Action, e.Duration.Round(time.Millisecond))
		case "failed":
			fmt.Printf("  %s: %s FAILED: %v\n", e.Address, e.Action, e.Err)
		}
	})

	// Persist whatever succeeded, even on failure, so completed changes
	// aren't orphaned from state.
	if err := proj.store.Write(ctx, scope, result, snap.Serial); err != nil {
		if applyErr != nil {
			return fmt.Errorf("apply failed (%v) and state write failed: %w", applyErr, err)
		}
		return fmt.Errorf("failed to write state: %w", err)
	}
	if applyErr != nil {
		return fmt.Errorf("apply failed: %w", applyErr)
	}

	fmt.Printf("\nApply complete! Resources: %d added, %d changed, %d destroyed.\n",
		p.Summary.Create, p.Summary.Update+p.Summary.Replace, p.Summary.Delete)

	return nil
}
