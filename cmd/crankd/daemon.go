package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/daemon"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the event dispatch daemon (foreground)",
	Long: `Run the daemon: resolve every configured handler, watch the
configured paths, poll the dynamic store, listen for workspace
notifications, and dispatch events to handlers as they arrive.

The daemon runs in the foreground; use a service manager to keep it up.
It restarts its own worker, in-process, when the configuration file or
the daemon binary changes on disk, or on SIGHUP. A restart is a cold
start from a fresh configuration read, so config edits take effect
without touching the process.

Example usage:
  crankd daemon                          # standard config lookup
  crankd daemon --config ./crankd.yaml
  crankd daemon --listen 127.0.0.1:9218 --log-level debug

Signals:
  SIGHUP    restart the worker (fresh config read)
  SIGINT    stop and exit 0
  SIGTERM   stop and exit 0`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, _, err := config.Load(cfgFile)
		if err != nil {
			if errors.Is(err, config.ErrNoConfig) {
				fmt.Fprintf(os.Stderr, "Error: %v\nRun 'crankd init' to create one.\n", err)
			} else {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			os.Exit(1)
		}
		cfg.Daemon.ApplyOverrides(overrides)
		logger := buildLogger(cfg.Daemon)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		sup := daemon.NewSupervisor(daemon.Options{
			ConfigPath: cfgFile,
			Overrides:  overrides,
			Logger:     logger,
		})
		if err := sup.Run(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if ctx.Err() != nil {
			logger.Infof("interrupt received, exiting")
		}
	},
}

func init() {
	daemonCmd.Flags().String("listen", "", "workspace listener address (default from config)")
	daemonCmd.Flags().String("pid-file", "", "pid file path (default from config)")
	daemonCmd.Flags().String("store-path", "", "dynamic-store snapshot file (default from config)")
	daemonCmd.Flags().Duration("store-poll-interval", 0, "store polling interval (default from config)")
	daemonCmd.Flags().Duration("debounce-interval", 0, "filesystem coalescing window (default from config)")
	daemonCmd.Flags().Duration("keepalive-interval", 0, "run loop wakeup tick (default from config)")

	bindFlag("listen", "listen", daemonCmd)
	bindFlag("pid_file", "pid-file", daemonCmd)
	bindFlag("store_path", "store-path", daemonCmd)
	bindFlag("store_poll_interval", "store-poll-interval", daemonCmd)
	bindFlag("debounce_interval", "debounce-interval", daemonCmd)
	bindFlag("keepalive_interval", "keepalive-interval", daemonCmd)

	rootCmd.AddCommand(daemonCmd)
}
