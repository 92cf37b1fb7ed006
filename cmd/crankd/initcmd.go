package main

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/ui"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter configuration",
	Long: `Write a starter configuration with echo handlers for the common
workspace events and the global IPv4 store key, plus the builtin
handler namespace.

With --interactive, prompt for the destination, the listener address,
and which workspace events to seed instead of taking the defaults.

Example usage:
  crankd init                          # write to the default location
  crankd init --output ./crankd.yaml
  crankd init --interactive`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		interactive, _ := cmd.Flags().GetBool("interactive")
		force, _ := cmd.Flags().GetBool("force")

		if output == "" {
			output = config.DefaultPath()
		}
		cfg := config.Starter()

		if interactive {
			var err error
			output, cfg, err = runInitForm(output, cfg)
			if err != nil {
				if errors.Is(err, huh.ErrUserAborted) {
					fmt.Fprintln(os.Stderr, "init canceled")
					os.Exit(1)
				}
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}

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

		fmt.Printf("%s wrote %s\n", ui.RenderOK("✓"), output)
		fmt.Println("Run 'crankd validate' to check it and 'crankd daemon' to start.")
	},
}

// runInitForm collects the starter's knobs interactively. The selected
// workspace events each get an echo command the user is expected to
// replace.
func runInitForm(defaultOutput string, starter *config.Config) (string, *config.Config, error) {
	output := defaultOutput
	listen := starter.Daemon.Listen

	selected := make([]string, 0, len(starter.Workspace))
	for name := range starter.Workspace {
		selected = append(selected, name)
	}
	sort.Strings(selected)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Configuration file").
				Value(&output),
			huh.NewInput().
				Title("Listen address").
				Description("Loopback ingress for notifications and the event feed").
				Value(&listen),
			huh.NewMultiSelect[string]().
				Title("Seed handlers for").
				Options(huh.NewOptions(config.WellKnownWorkspaceEvents()...)...).
				Value(&selected),
		),
	)
	if err := form.Run(); err != nil {
		return "", nil, err
	}

	cfg := &config.Config{
		Workspace: make(map[string]config.EventSpec, len(selected)),
		Store:     starter.Store,
		Imports:   starter.Imports,
		Daemon:    starter.Daemon,
	}
	for _, name := range selected {
		cfg.Workspace[name] = config.EventSpec{
			Command: fmt.Sprintf(`/bin/echo "crankd: %s"`, name),
		}
	}
	cfg.Daemon.Listen = listen
	return output, cfg, nil
}

func init() {
	initCmd.Flags().StringP("output", "o", "", "destination file (default: the standard user location)")
	initCmd.Flags().BoolP("interactive", "i", false, "prompt for the starter's settings")
	initCmd.Flags().BoolP("force", "f", false, "overwrite an existing file")

	rootCmd.AddCommand(initCmd)
}
