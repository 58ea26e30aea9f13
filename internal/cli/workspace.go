package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

// Workspaces map one-to-one onto state scopes: each workspace has its own
// snapshot, serial, and lock, all under the same configuration.

const defaultWorkspace = "default"

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage workspaces",
	Long: `Workspaces allow you to manage multiple distinct sets of infrastructure
resources with the same configuration. Each workspace has its own state
scope, with independent locking and serial numbering.

The default workspace is called "default".`,
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE:  runWorkspaceList,
}

var workspaceNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Create a new workspace and switch to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceNew,
}

var workspaceSelectCmd = &cobra.Command{
	Use:   "select <name>",
	Short: "Switch to another workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceSelect,
}

var workspaceDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a workspace",
	Args:  cobra.ExactArgs(1),
	RunE:  runWorkspaceDelete,
}

var workspaceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current workspace name",
	RunE:  runWorkspaceShow,
}

var workspaceDeleteForce bool

func init() {
	workspaceDeleteCmd.Flags().BoolVar(&workspaceDeleteForce, "force", false, "Delete even if the workspace still tracks resources")
	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceNewCmd)
	workspaceCmd.AddCommand(workspaceSelectCmd)
	workspaceCmd.AddCommand(workspaceDeleteCmd)
	workspaceCmd.AddCommand(workspaceShowCmd)
}

func workspaceFile() string {
	return filepath.Join(quarryDirName, "workspace")
}

func currentWorkspace() string {
	data, err := os.ReadFile(workspaceFile())
	if err != nil {
		return defaultWorkspace
	}
	ws := strings.TrimSpace(string(data))
	if ws == "" {
		return defaultWorkspace
	}
	return ws
}

func switchWorkspace(name string) error {
	if err := os.MkdirAll(quarryDirName, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", quarryDirName, err)
	}
	if err := os.WriteFile(workspaceFile(), []byte(name), 0o644); err != nil {
		return fmt.Errorf("failed to switch workspace: %w", err)
	}
	return nil
}

func runWorkspaceList(cmd *cobra.Command, args []string) error {
	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}

	scopes, err := proj.store.Scopes(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}

	seen := map[string]bool{defaultWorkspace: true}
	workspaces := []string{defaultWorkspace}
	for _, scope := range scopes {
		if !seen[scope] {
			seen[scope] = true
			workspaces = append(workspaces, scope)
		}
	}

	current := currentWorkspace()
	if !seen[current] {
		workspaces = append(workspaces, current)
	}

	for _, ws := range workspaces {
		if ws == current {
			fmt.Printf("* %s\n", ws)
		} else {
			fmt.Printf("  %s\n", ws)
		}
	}
	return nil
}

func runWorkspaceNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == defaultWorkspace {
		return fmt.Errorf("cannot create a workspace named %q - it already exists", defaultWorkspace)
	}

	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}
	scopes, err := proj.store.Scopes(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list workspaces: %w", err)
	}
	for _, scope := range scopes {
		if scope == name {
			return fmt.Errorf("workspace %q already exists", name)
		}
	}

	if err := switchWorkspace(name); err != nil {
		return err
	}
	fmt.Printf("Created and switched to workspace %q\n", name)
	return nil
}

func runWorkspaceSelect(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := switchWorkspace(name); err != nil {
		return err
	}
	fmt.Printf("Switched to workspace %q\n", name)
	return nil
}

func runWorkspaceDelete(cmd *cobra.Command, args []string) error {
	name := args[0]
	if name == defaultWorkspace {
		return fmt.Errorf("cannot delete the default workspace")
	}
	if currentWorkspace() == name {
		return fmt.Errorf("cannot delete the currently active workspace %q - switch to another workspace first", name)
	}

	proj, err := resolveProject(nil)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	lock, err := proj.store.AcquireLock(ctx, name, 0)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	if err := proj.store.DeleteScope(ctx, name, workspaceDeleteForce); err != nil {
		return err
	}

	fmt.Printf("Deleted workspace %q\n", name)
	return nil
}

func runWorkspaceShow(cmd *cobra.Command, args []string) error {
	fmt.Println(currentWorkspace())
	return nil
}
