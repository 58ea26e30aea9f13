package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var showJSON bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current state",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output state as JSON")
}

func runShow(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}
	scope := currentWorkspace()

	snap, err := proj.store.Read(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if showJSON {
		raw, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(raw))
		return nil
	}

	fmt.Printf("Workspace: %s\n", scope)
	fmt.Printf("State version: %d, serial: %d, lineage: %s\n", snap.Version, snap.Serial, snap.Lineage)

	if len(snap.Records) == 0 {
		fmt.Println("\nNo resources in state.")
		return nil
	}

	for _, addr := range sortedKeys(snap.Records) {
		rec := snap.Records[addr]
		fmt.Printf("\n# %s\n", addr)
		fmt.Printf("  provider = %s\n", rec.Provider)
		for _, k := range sortedKeys(rec.Attrs) {
			fmt.Printf("  %s = %s\n", k, formatValue(rec.Attrs[k]))
		}
		if len(rec.Outputs) > 0 {
			fmt.Println("\n  Outputs:")
			for _, k := range sortedKeys(rec.Outputs) {
				fmt.Printf("    %s = %s\n", k, formatValue(rec.Outputs[k]))
			}
		}
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(snap.Records))
	return nil
}
