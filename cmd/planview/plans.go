package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/planview/config"
	"github.com/mohammad-safakhou/planview/internal/gateway"
	"github.com/mohammad-safakhou/planview/internal/graph"
	"github.com/mohammad-safakhou/planview/internal/remote"
)

func clientFromConfig(cfgPath string) (*remote.Client, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, err
	}
	return remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout), nil
}

func plansCMD() *cobra.Command {
	var cfgPath string
	var plans = &cobra.Command{
		Use:   "plans",
		Short: "List stored plans",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			list, err := client.ListPlans(context.Background())
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Println("no stored plans")
				return nil
			}
			for _, p := range list {
				status := p.Status
				if status == "" {
					status = "draft"
				}
				fmt.Printf("%s\t%s\t%d nodes\t%s\n", p.ID, status, p.NodeCount, p.Name)
			}
			return nil
		},
	}
	plans.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return plans
}

func saveCMD() *cobra.Command {
	var cfgPath string
	var save = &cobra.Command{
		Use:   "save <plan.json>",
		Short: "Validate and persist a plan document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := loadPlanFile(args[0])
			if err != nil {
				return err
			}
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			gw := gateway.New(client, log.New(os.Stderr, "[GATEWAY] ", log.LstdFlags))
			id, err := gw.Save(context.Background(), plan)
			if err != nil {
				return err
			}
			fmt.Println(id)
			return nil
		},
	}
	save.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return save
}

func executeCMD() *cobra.Command {
	var cfgPath string
	var execute = &cobra.Command{
		Use:   "execute <plan-id>",
		Short: "Start execution of a saved plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFromConfig(cfgPath)
			if err != nil {
				return err
			}
			gw := gateway.New(client, log.New(os.Stderr, "[GATEWAY] ", log.LstdFlags))
			if err := gw.Execute(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("execution started: %s\n", args[0])
			return nil
		},
	}
	execute.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return execute
}

func loadPlanFile(path string) (*graph.Plan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return graph.ParsePlanDocument(raw)
}
