package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and Commit are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = ""
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(versionString())
	},
}

func versionString() string {
	s := fmt.Sprintf("quarry version %s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
	if Commit != "" {
		s += fmt.Sprintf(" commit %s", Commit)
	}
	return s
}
