// Command monolith runs the supervisor process: it spawns the worker
// pool, exposes health and metrics over HTTP, and blocks until an
// interrupt or termination signal triggers a graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/config"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/obslog"
	"github.com/IAmSoThirsty/Thirstys-Monolith/internal/supervisor"
)

const stopTimeout = 10 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "monolith",
		Short: "Task-execution runtime: supervisor + cooperative worker pool",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the supervisor and block until terminated",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg := config.Load()
	obslog.Configure(cfg.LogLevel)
	log := obslog.Get("cmd")

	sup := supervisor.New(cfg)
	if err := sup.Start(); err != nil {
		return fmt.Errorf("start supervisor: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case <-ctx.Done():
	}

	sup.Stop(stopTimeout)
	return nil
}
