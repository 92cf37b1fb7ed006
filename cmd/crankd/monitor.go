package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/ui"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream the running daemon's event feed",
	Long: `Connect to a running daemon's event feed and print every dispatch as
it happens: workspace notifications, store key changes, filesystem
batches, and the periodic keepalive.

The feed is the daemon's own broadcast channel, so what monitor shows
is exactly what was dispatched, in order.

Example usage:
  crankd monitor                       # address from the config file
  crankd monitor --listen 127.0.0.1:9218
  crankd monitor --raw | jq .source    # undecoded JSON lines

Press Ctrl+C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		listen, _ := cmd.Flags().GetString("listen")
		raw, _ := cmd.Flags().GetBool("raw")
		addr := listenAddr(listen)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		conn, _, err := websocket.Dial(ctx, "ws://"+addr+"/events", nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: connecting to %s: %v\nIs the daemon running?\n", addr, err)
			os.Exit(1)
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		styles := ui.NewStyles(raw)
		fmt.Fprintf(os.Stderr, "connected to %s, watching the feed\n", addr)

		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				fmt.Fprintf(os.Stderr, "Error: feed closed: %v\n", err)
				os.Exit(1)
			}

			if raw {
				fmt.Println(string(data))
				continue
			}
			var msg map[string]any
			if err := json.Unmarshal(data, &msg); err != nil {
				fmt.Println(string(data))
				continue
			}
			fmt.Println(styles.FeedLine(msg))
		}
	},
}

func init() {
	monitorCmd.Flags().String("listen", "", "daemon address (default from config)")
	monitorCmd.Flags().Bool("raw", false, "print undecoded JSON lines")

	rootCmd.AddCommand(monitorCmd)
}
