package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/netpulse/internal/app"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "netpulse-node",
	Short:   "NetPulse node supervisor: runs pinned and FIFO workers against device queues",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("netpulse-node %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Register this node and run its workers until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.NewNodeApp()
	if err != nil {
		return fmt.Errorf("initialize node: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		return fmt.Errorf("start node: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	a.Drain()
	return nil
}
