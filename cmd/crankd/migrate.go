package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <plist-file>",
	Short: "Convert an original property-list configuration to YAML",
	Long: `Read a configuration in the original tool's property-list format and
write it back out as YAML.

Section names are translated (NSWorkspace -> workspace,
SystemConfiguration -> store, FSEvents -> paths), and the NSWorkspace
notification identifiers become their portable names, so
NSWorkspaceDidWakeNotification turns into system.wake. Handlers carry
over unchanged.

The daemon reads property lists directly, so migrating is optional; it
exists for moving a config onto the documented names.

Example usage:
  crankd migrate ~/Library/Preferences/com.googlecode.pymacadmin.crankd.plist
  crankd migrate old.plist -o ./crankd.yaml`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		source := args[0]
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		if !strings.EqualFold(filepath.Ext(source), ".plist") {
			fmt.Fprintf(os.Stderr, "Error: %s is not a .plist file\n", source)
			os.Exit(1)
		}
		if output == "" {
			output = config.DefaultPath()
		}

		cfg, err := config.Read(source)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.SetDefaults()

		if !force {
			if _, err := os.Stat(output); err == nil {
				fmt.Fprintf(os.Stderr, "Error: %s already exists (use --force to overwrite)\n", output)
				os.Exit(1)
			}
		}

		if err := config.Write(output, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing %s: %v\n", output, err)
			os.Exit(1)
		}

		styles := ui.NewStyles(false)
		fmt.Printf("%s migrated %s to %s\n", ui.RenderOK("✓"), source, output)
		fmt.Println(styles.Entry("workspace", fmt.Sprintf("%d events", len(cfg.Workspace))))
		fmt.Println(styles.Entry("store", fmt.Sprintf("%d keys", len(cfg.Store))))
		fmt.Println(styles.Entry("paths", fmt.Sprintf("%d entries", len(cfg.Paths))))
		fmt.Println("Run 'crankd validate' to check the result.")
	},
}

func init() {
	migrateCmd.Flags().StringP("output", "o", "", "destination file (default: the standard user location)")
	migrateCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	rootCmd.AddCommand(migrateCmd)
}
