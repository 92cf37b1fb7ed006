package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/dispatch"
	"github.com/unixorn/crankd/internal/handler"
	"github.com/unixorn/crankd/internal/logging"
	"github.com/unixorn/crankd/internal/ui"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration without starting the daemon",
	Long: `Load the configuration and perform daemon startup dry: resolve every
handler against the registration tables and register every watch path,
then report instead of running.

Anything that would abort daemon startup fails validation the same way:
unparseable YAML, an entry naming no handler or two, an unregistered
function or class, a missing handler method, a watch path that does not
exist, an import of an empty namespace.

Exit status 0 means the daemon would start.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, path, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderError("✗"), err)
			os.Exit(1)
		}
		cfg.Daemon.ApplyOverrides(overrides)

		d, err := dispatch.New(cfg, handler.NewRegistry(logging.Discard()), logging.Discard())
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %s: %v\n", ui.RenderError("✗"), path, err)
			os.Exit(1)
		}

		styles := ui.NewStyles(false)
		fmt.Printf("%s %s\n", ui.RenderOK("✓"), path)
		fmt.Println(styles.Entry("workspace", fmt.Sprintf("%d events", len(cfg.Workspace))))
		fmt.Println(styles.Entry("store", fmt.Sprintf("%d keys", len(cfg.Store))))
		fmt.Println(styles.Entry("paths", fmt.Sprintf("%d entries, %d watch roots", len(cfg.Paths), len(d.Index().Roots()))))
		if len(cfg.Imports) > 0 {
			fmt.Println(styles.Entry("imports", fmt.Sprintf("%v", cfg.Imports)))
		}
		if !cfg.HasEvents() {
			fmt.Printf("%s configuration is valid but routes no events; the daemon will refuse to start\n", ui.RenderWarn("⚠"))
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
