package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var stateLockTimeout time.Duration

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Manage Quarry state",
	Long:  `Commands for inspecting and modifying the current workspace's state.`,
}

var stateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List resources in state",
	RunE:  runStateList,
}

var stateShowCmd = &cobra.Command{
	Use:   "show <address>",
	Short: "Show attributes of a single resource",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateShow,
}

var stateRmCmd = &cobra.Command{
	Use:   "rm <address>",
	Short: "Remove a resource from state (does not destroy)",
	Args:  cobra.ExactArgs(1),
	RunE:  runStateRm,
}

var statePullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Print the raw state snapshot as JSON",
	RunE:  runStatePull,
}

func init() {
	stateCmd.PersistentFlags().DurationVar(&stateLockTimeout, "lock-timeout", 0, "Time to wait for the state lock (0 fails immediately)")
	stateCmd.AddCommand(stateListCmd)
	stateCmd.AddCommand(stateShowCmd)
	stateCmd.AddCommand(stateRmCmd)
	stateCmd.AddCommand(statePullCmd)
}

func runStateList(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}
	scope := currentWorkspace()

	snap, err := proj.store.Read(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	if len(snap.Records) == 0 {
		fmt.Println("No resources in state.")
		return nil
	}

	fmt.Printf("State version: %d, serial: %d, lineage: %s\n\n", snap.Version, snap.Serial, snap.Lineage)
	for _, addr := range sortedKeys(snap.Records) {
		fmt.Printf("  %s (provider: %s)\n", addr, snap.Records[addr].Provider)
	}
	fmt.Printf("\nTotal: %d resource(s)\n", len(snap.Records))
	return nil
}

func runStateShow(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}
	scope := currentWorkspace()

	snap, err := proj.store.Read(cmd.Context(), scope)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	rec, ok := snap.Records[target]
	if !ok {
		return fmt.Errorf("resource %s not found in state", target)
	}

	fmt.Printf("# %s\n", target)
	fmt.Printf("  provider = %s\n", rec.Provider)
	fmt.Printf("  type     = %s\n", rec.Type)
	fmt.Printf("  name     = %s\n", rec.Name)

	if len(rec.Attrs) > 0 {
		fmt.Println("\n  Attributes:")
		for _, k := range sortedKeys(rec.Attrs) {
			fmt.Printf("    %s = %s\n", k, formatValue(rec.Attrs[k]))
		}
	}
	if len(rec.Outputs) > 0 {
		fmt.Println("\n  Outputs:")
		for _, k := range sortedKeys(rec.Outputs) {
			fmt.Printf("    %s = %s\n", k, formatValue(rec.Outputs[k]))
		}
	}
	if len(rec.Dependencies) > 0 {
		fmt.Println("\n  Dependencies:")
		for _, dep := range rec.Dependencies {
			fmt.Printf("    %s\n", dep)
		}
	}
	return nil
}

func runStateRm(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	scope := currentWorkspace()

	lock, err := proj.store.AcquireLock(ctx, scope, stateLockTimeout)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	snap, err := proj.store.Read(ctx, scope)
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	target := args[0]
	if _, ok := snap.Records[target]; !ok {
		return fmt.Errorf("resource %s not found in state", target)
	}
	delete(snap.Records, target)

	if err := proj.store.Write(ctx, scope, snap, snap.Serial); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}

	fmt.Printf("Removed %s from state (resource was NOT destroyed)\n", target)
	return nil
}

func runStatePull(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}

	snap, err := proj.store.Read(cmd.Context(), currentWorkspace())
	if err != nil {
		return fmt.Errorf("failed to read state: %w", err)
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
