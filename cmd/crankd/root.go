package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/unixorn/crankd/internal/config"
	"github.com/unixorn/crankd/internal/logging"
)

var (
	cfgFile string

	// overrides carries flag and CRANKD_* environment settings that win
	// over the config file's daemon section.
	overrides = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "crankd",
	Short: "React to OS events with configured handlers",
	Long: `crankd watches three kinds of OS events and runs the handlers your
configuration maps to them:

  workspace   application-level notifications posted to the daemon's
              loopback listener (volume.mounted, system.wake, ...)
  store       keys in the dynamic-store snapshot file (network state)
  paths       filesystem changes under watched directories

Handlers are shell commands, or functions and classes compiled into the
binary and registered under a namespace. See 'crankd list-events' for
what this build provides.

Configuration is YAML, found via --config, $CRANKD_CONFIG, or the
standard locations ('crankd init' writes a starter). The original
tool's property-list format is still read; 'crankd migrate' converts
it.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $CRANKD_CONFIG, then the standard locations)")
	rootCmd.PersistentFlags().String("log-level", "", "debug, info, warning, or error")
	rootCmd.PersistentFlags().String("log-file", "", "rotating log file (in addition to stderr)")

	overrides.SetEnvPrefix("CRANKD")
	overrides.AutomaticEnv()
	for _, key := range []string{
		"log_level", "log_file", "pid_file", "listen",
		"store_path", "store_poll_interval", "debounce_interval", "keepalive_interval",
	} {
		if err := overrides.BindEnv(key); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s: %v\n", key, err)
			os.Exit(1)
		}
	}
	bindFlag("log_level", "log-level", rootCmd)
	bindFlag("log_file", "log-file", rootCmd)
}

// bindFlag maps a dash-named cobra flag onto its underscore viper key.
func bindFlag(key, flag string, cmd *cobra.Command) {
	f := cmd.PersistentFlags().Lookup(flag)
	if f == nil {
		f = cmd.Flags().Lookup(flag)
	}
	if err := overrides.BindPFlag(key, f); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding --%s: %v\n", flag, err)
		os.Exit(1)
	}
}

// buildLogger constructs the daemon logger from the merged settings.
// Sink and level are fixed for the process lifetime; changing them in
// the config file takes effect on the next full start, not on a worker
// restart.
func buildLogger(s config.Settings) *logging.Logger {
	level := logging.DefaultLevel()
	if s.LogLevel != "" {
		parsed, err := logging.ParseLevel(s.LogLevel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v, using %s\n", err, level)
		} else {
			level = parsed
		}
	}

	out := io.Writer(os.Stderr)
	if s.LogFile != "" {
		out = io.MultiWriter(os.Stderr, logging.FileSink(s.LogFile))
	}
	return logging.New(out, level)
}

// listenAddr resolves the daemon address for the client commands:
// explicit flag first, then the config file, then the default.
func listenAddr(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if cfg, _, err := config.Load(cfgFile); err == nil {
		cfg.Daemon.ApplyOverrides(overrides)
		if cfg.Daemon.Listen != "" {
			return cfg.Daemon.Listen
		}
	}
	return config.DefaultSettings().Listen
}
