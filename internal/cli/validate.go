package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var validateOverlays []string

var validateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Validate the configuration",
	Long: `Evaluates the configuration and resolves variables, locals, and count
expansion without touching state or providers. Fails on unresolved
variables, type mismatches, cyclic locals, and duplicate addresses.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringSliceVarP(&validateOverlays, "overlay", "o", nil, "Overlay files, later files win on conflict")
}

func runValidate(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(args)
	if err != nil {
		return err
	}

	model, err := proj.loadModel(cmd.Context(), validateOverlays, nil)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid.")
	fmt.Printf("  Variables: %d\n", len(model.Variables))
	fmt.Printf("  Locals:    %d\n", len(model.Locals))
	fmt.Printf("  Instances: %d\n", len(model.Instances))
	return nil
}
