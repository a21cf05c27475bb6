package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	Use:     "netpulse-server",
	Short:   "NetPulse API server: accepts device jobs and exposes job/worker status",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("netpulse-server %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := app.NewServerApp()
	if err != nil {
		return fmt.Errorf("initialize server: %w", err)
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case <-sigCh:
		a.Log.Info("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
