package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/planview/internal/graph"
)

func lintCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <plan.json>",
		Short: "Check a plan document against the schema and graph invariants",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlanFile(args[0])
			if err != nil {
				return err
			}
			if err := graph.Validate(plan); err != nil {
				return err
			}
			fmt.Printf("ok: %d nodes, %d edges\n", len(plan.Nodes), len(plan.Edges))
			return nil
		},
	}
}
