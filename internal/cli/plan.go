package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/quarry-io/quarry/internal/plan"
)

var (
	planOverlays   []string
	planProperties map[string]string
)

var planCmd = &cobra.Command{
	Use:   "plan [path]",
	Short: "Generate an execution plan",
	Long: `Generates an execution plan showing what actions Quarry would take
to reach the desired configuration.

The plan shows:
  • Resources to be created
  • Resources to be updated or replaced (with diff)
  • Resources to be deleted`,
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringSliceVarP(&planOverlays, "overlay", "o", nil, "Overlay files, later files win on conflict")
	planCmd.Flags().StringToStringVarP(&planProperties, "prop", "D", nil, "Set external properties (format: key=value)")
}

func runPlan(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(args)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	scope := currentWorkspace()

	fmt.Print("Loading configuration... ")
	model, err := proj.loadModel(ctx, planOverlays, planProperties)
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

	if len(p.Changes()) == 0 {
		fmt.Println("\nNo changes. Infrastructure is up-to-date.")
		return nil
	}

	fmt.Println("\nQuarry will perform the following actions:")
	renderPlanChanges(p)
	renderPlanSummary(p)

	return nil
}
