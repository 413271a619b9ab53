package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/planview/config"
	"github.com/mohammad-safakhou/planview/internal/graph"
	"github.com/mohammad-safakhou/planview/internal/live"
	"github.com/mohammad-safakhou/planview/internal/remote"
	"github.com/mohammad-safakhou/planview/internal/session"
)

func watchCMD() *cobra.Command {
	var cfgPath string
	var watch = &cobra.Command{
		Use:   "watch",
		Short: "Follow the live agent graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			return runWatch(cfg)
		},
	}
	watch.Flags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return watch
}

func runWatch(cfg *config.Config) error {
	logger := log.New(os.Stderr, "[PLANVIEW] ", log.LstdFlags)
	client := remote.NewClient(cfg.Remote.BaseURL, cfg.Remote.Token, cfg.Remote.Timeout)

	opts := session.Options{
		FastInterval: cfg.Poll.FastInterval,
		SlowInterval: cfg.Poll.SlowInterval,
		Reconnect:    cfg.Events.Reconnect,
		Logger:       logger,
		Notify: func(n session.Notice) {
			fmt.Printf("[%s] %s\n", n.Level, n.Message)
		},
	}
	if cfg.Events.Source == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Events.Redis.Addr,
			Password: cfg.Events.Redis.Password,
			DB:       cfg.Events.Redis.DB,
		})
		defer rdb.Close()
		opts.Events = live.NewStreamSource(rdb, cfg.Events.Redis.Stream, cfg.Events.Redis.Group, cfg.Events.Redis.Consumer, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Telemetry.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server: %v", err)
			}
		}()
		defer metricsSrv.Close()
		logger.Printf("metrics on :%d/metrics", cfg.Telemetry.MetricsPort)
	}

	s := session.New(client, opts)
	s.Start(ctx)
	defer s.Close()
	logger.Printf("watching %s (%s events)", cfg.Remote.BaseURL, cfg.Events.Source)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	last := ""
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if line := summarize(s.CurrentPlan(), s.NodeCount()); line != last {
				fmt.Println(line)
				last = line
			}
		}
	}
}

func summarize(p *graph.Plan, nodeCount int) string {
	if nodeCount == remote.UnknownNodeCount {
		return "graph: not authorized"
	}
	if p == nil || len(p.Nodes) == 0 {
		return "graph: no plan running"
	}
	counts := make(map[graph.Status]int)
	for _, n := range p.Nodes {
		counts[n.Status]++
	}
	line := fmt.Sprintf("graph: %d nodes, %d edges", len(p.Nodes), len(p.Edges))
	for _, st := range []graph.Status{graph.StatusRunning, graph.StatusDone, graph.StatusFailed, graph.StatusError, graph.StatusPending} {
		if counts[st] > 0 {
			line += fmt.Sprintf(", %d %s", counts[st], st)
		}
	}
	return line
}
