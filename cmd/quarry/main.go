package main

import (
	"fmt"
	"os"

	"github.com/quarry-io/quarry/internal/cli"
	_ "github.com/quarry-io/quarry/providers/file"
	_ "github.com/quarry-io/quarry/providers/null"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
