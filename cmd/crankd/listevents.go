package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/handler"
	"github.com/unixorn/crankd/internal/ui"
)

var listEventsCmd = &cobra.Command{
	Use:   "list-events",
	Short: "List registered handlers and known event names",
	Long: `List what this build of crankd can react to and with what:

  - the workspace notification names the daemon understands out of the
    box (any other name can still be posted and routed; these are the
    ones with portable aliases)
  - the handler functions compiled into the binary
  - the handler classes compiled into the binary

Use the names verbatim in the configuration's event sections.`,
	Run: func(cmd *cobra.Command, args []string) {
		styles := ui.NewStyles(false)

		fmt.Println(styles.Heading("Workspace events"))
		for _, name := range config.WellKnownWorkspaceEvents() {
			fmt.Println("  " + styles.Key.Render(name))
		}

		fmt.Println()
		fmt.Println(styles.Heading("Registered functions"))
		funcs := handler.RegisteredFunctions()
		if len(funcs) == 0 {
			fmt.Println(styles.Muted.Render("  (none)"))
		}
		for _, name := range funcs {
			fmt.Println("  " + styles.Key.Render(name))
		}

		fmt.Println()
		fmt.Println(styles.Heading("Registered classes"))
		classes := handler.RegisteredClasses()
		if len(classes) == 0 {
			fmt.Println(styles.Muted.Render("  (none)"))
		}
		for _, name := range classes {
			fmt.Println("  " + styles.Key.Render(name))
		}
	},
}

func init() {
	rootCmd.AddCommand(listEventsCmd)
}
