package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/stress"
	"github.com/unixorn/crankd/internal/ui"
)

var stressCmd = &cobra.Command{
	Use:   "stress",
	Short: "Storm a running daemon with filesystem events and measure latency",
	Long: `Write a burst of uniquely named files into a watched directory while
subscribed to the daemon's event feed, and report how long each change
took to come back out: kernel event, coalescing window, dispatch,
handler, broadcast.

The coalescing window (debounce_interval) puts a floor under every
number; what matters is how far past the floor the daemon falls as
--interval shrinks. Use it to size the window for a config's real
handler cost.

Every write fires the handlers configured for the directory's watch
root. Point --dir at a scratch directory routed to builtin.ignore
unless firing the real handlers is the point.

Example usage:
  crankd stress --dir /tmp/crankd-scratch
  crankd stress --dir /tmp/crankd-scratch --count 500 --interval 5ms`,
	Run: func(cmd *cobra.Command, args []string) {
		dir, _ := cmd.Flags().GetString("dir")
		listen, _ := cmd.Flags().GetString("listen")
		count, _ := cmd.Flags().GetInt("count")
		interval, _ := cmd.Flags().GetDuration("interval")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if dir == "" {
			fmt.Fprintf(os.Stderr, "Error: --dir is required\n")
			os.Exit(1)
		}
		addr := listenAddr(listen)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Fprintf(os.Stderr, "storming %s via %s: %d writes every %s\n", dir, addr, count, interval)
		stats, err := stress.Run(ctx, stress.Options{
			Addr:     addr,
			Dir:      dir,
			Count:    count,
			Interval: interval,
			Timeout:  timeout,
			Logger:   logging.New(os.Stderr, logging.LevelWarn),
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			if stats != nil {
				fmt.Print(stats.Format())
			}
			os.Exit(1)
		}

		fmt.Print(stats.Format())
		if stats.Lost > 0 {
			fmt.Printf("%s %d writes were never observed; the daemon may be overloaded or the watcher overflowed\n",
				ui.RenderWarn("⚠"), stats.Lost)
		}
	},
}

func init() {
	stressCmd.Flags().String("dir", "", "directory to write into (must be under a watch root)")
	stressCmd.Flags().String("listen", "", "daemon address (default from config)")
	stressCmd.Flags().Int("count", 100, "number of files to write")
	stressCmd.Flags().Duration("interval", 50*time.Millisecond, "pacing between writes")
	stressCmd.Flags().Duration("timeout", 10*time.Second, "wait for stragglers after the last write")

	rootCmd.AddCommand(stressCmd)
}
