package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var root = &cobra.Command{
		Use:   "planview",
		Short: "Operator console engine for orchestrator plan graphs",
	}

	root.AddCommand(watchCMD(), plansCMD(), lintCMD(), saveCMD(), executeCMD())
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
