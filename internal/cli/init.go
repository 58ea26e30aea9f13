package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new Quarry project",
	Long:  `Creates a new Quarry project with default configuration files.`,
	RunE:  runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(quarryDirName, 0o755); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", quarryDirName, err)
	}

	mainPkl := "main.pkl"
	if _, err := os.Stat(mainPkl); os.IsNotExist(err) {
		content := `// Quarry configuration
// See: https://github.com/quarry-io/quarry

amends "quarry:Config"

variables {
  // Declare typed inputs here. Variables without defaults must be
  // supplied by an overlay.
}

locals {
  // Computed values, may reference ${var.*} and other ${local.*}.
}

resources {
  // Declare your resources here.
}
`
		if err := os.WriteFile(mainPkl, []byte(content), 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", mainPkl, err)
		}
		fmt.Printf("Created %s\n", mainPkl)
	}

	fmt.Println("\nQuarry initialized successfully!")
	fmt.Println("Next steps:")
	fmt.Println("  1. Edit main.pkl to declare your infrastructure")
	fmt.Println("  2. Run 'quarry plan' to see what would change")
	fmt.Println("  3. Run 'quarry apply' to make it so")

	return nil
}
