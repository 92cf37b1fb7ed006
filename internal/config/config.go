package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrNoConfig is returned when no configuration file exists at the
// explicit path or in any of the search locations.
var ErrNoConfig = errors.New("no configuration file found")

// Duration is a time.Duration that (un)marshals as a duration string
// ("500ms", "2s") in YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", value.Line, s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration string form.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Settings holds the daemon tunables from the config file's daemon:
// section. Flags and CRANKD_* environment variables override them.
type Settings struct {
	// LogFile is a rotating log sink path. Empty logs to stderr only.
	LogFile string `yaml:"log_file,omitempty"`

	// LogLevel is debug/info/warning/error. Empty picks debug on a
	// terminal and info otherwise.
	LogLevel string `yaml:"log_level,omitempty"`

	// PidFile guards against a second daemon on the same config.
	PidFile string `yaml:"pid_file,omitempty"`

	// Listen is the loopback address for the workspace-notification
	// ingress and the event feed.
	Listen string `yaml:"listen,omitempty"`

	// StorePath is the dynamic-store snapshot file. Empty disables the
	// store source even when store: entries exist.
	StorePath string `yaml:"store_path,omitempty"`

	// StorePollInterval is how often the store snapshot is re-read.
	StorePollInterval Duration `yaml:"store_poll_interval,omitempty"`

	// DebounceInterval is the filesystem coalescing window.
	DebounceInterval Duration `yaml:"debounce_interval,omitempty"`

	// KeepaliveInterval is the run loop's wakeup tick.
	KeepaliveInterval Duration `yaml:"keepalive_interval,omitempty"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	return Settings{
		Listen:            "127.0.0.1:8818",
		StorePollInterval: Duration(2 * time.Second),
		DebounceInterval:  Duration(500 * time.Millisecond),
		KeepaliveInterval: Duration(5 * time.Second),
	}
}

// ApplyOverrides layers flag/environment values from v over the file
// settings. Keys match the yaml names (CRANKD_LISTEN, --listen, etc).
func (s *Settings) ApplyOverrides(v *viper.Viper) {
	if v == nil {
		return
	}

	if v.IsSet("log_file") && v.GetString("log_file") != "" {
		s.LogFile = v.GetString("log_file")
	}
	if v.IsSet("log_level") && v.GetString("log_level") != "" {
		s.LogLevel = v.GetString("log_level")
	}
	if v.IsSet("pid_file") && v.GetString("pid_file") != "" {
		s.PidFile = v.GetString("pid_file")
	}
	if v.IsSet("listen") && v.GetString("listen") != "" {
		s.Listen = v.GetString("listen")
	}
	if v.IsSet("store_path") && v.GetString("store_path") != "" {
		s.StorePath = v.GetString("store_path")
	}
	if v.IsSet("store_poll_interval") && v.GetDuration("store_poll_interval") > 0 {
		s.StorePollInterval = Duration(v.GetDuration("store_poll_interval"))
	}
	if v.IsSet("debounce_interval") && v.GetDuration("debounce_interval") > 0 {
		s.DebounceInterval = Duration(v.GetDuration("debounce_interval"))
	}
	if v.IsSet("keepalive_interval") && v.GetDuration("keepalive_interval") > 0 {
		s.KeepaliveInterval = Duration(v.GetDuration("keepalive_interval"))
	}
}

// Config is the daemon's configuration: three event-routing sections,
// the import preload list, and the daemon tunables.
type Config struct {
	// Workspace maps notification names to handlers.
	Workspace map[string]EventSpec `yaml:"workspace,omitempty" plist:"workspace,omitempty"`

	// Store maps dynamic-store keys to handlers.
	Store map[string]EventSpec `yaml:"store,omitempty" plist:"store,omitempty"`

	// Paths maps filesystem paths to handlers.
	Paths map[string]EventSpec `yaml:"paths,omitempty" plist:"paths,omitempty"`

	// Imports lists handler namespaces that must be compiled in.
	Imports []string `yaml:"imports,omitempty" plist:"imports,omitempty"`

	// Daemon holds the tunables.
	Daemon Settings `yaml:"daemon,omitempty" plist:"daemon,omitempty"`
}

// SetDefaults fills unset tunables with the documented defaults.
func (c *Config) SetDefaults() {
	def := DefaultSettings()

	if c.Daemon.Listen == "" {
		c.Daemon.Listen = def.Listen
	}
	if c.Daemon.StorePollInterval == 0 {
		c.Daemon.StorePollInterval = def.StorePollInterval
	}
	if c.Daemon.DebounceInterval == 0 {
		c.Daemon.DebounceInterval = def.DebounceInterval
	}
	if c.Daemon.KeepaliveInterval == 0 {
		c.Daemon.KeepaliveInterval = def.KeepaliveInterval
	}
}

// Validate checks every routing entry. It does not require any section
// to be populated; the daemon separately refuses to start with nothing
// to watch.
func (c *Config) Validate() error {
	sections := []struct {
		name    string
		entries map[string]EventSpec
	}{
		{"workspace", c.Workspace},
		{"store", c.Store},
		{"paths", c.Paths},
	}

	for _, sec := range sections {
		for key, spec := range sec.entries {
			if key == "" {
				return fmt.Errorf("%s: empty event key", sec.name)
			}
			if err := spec.Validate(); err != nil {
				return fmt.Errorf("%s.%s: %w", sec.name, key, err)
			}
		}
	}

	for _, imp := range c.Imports {
		if strings.TrimSpace(imp) == "" {
			return fmt.Errorf("imports: empty entry")
		}
	}

	return nil
}

// HasEvents reports whether any routing section has entries.
func (c *Config) HasEvents() bool {
	return len(c.Workspace)+len(c.Store)+len(c.Paths) > 0
}

// EventCount returns the total number of routing entries.
func (c *Config) EventCount() int {
	return len(c.Workspace) + len(c.Store) + len(c.Paths)
}

// Read loads a config file. Property-list files (the original tool's
// format) are detected by extension; everything else parses as YAML
// with unknown fields rejected.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".plist") {
		return readLegacyPlist(data)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return &cfg, nil
}

// Load finds, reads, validates, and defaults the configuration.
// Returns the config and the path it came from.
func Load(explicit string) (*Config, string, error) {
	path, err := FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := Read(path)
	if err != nil {
		return nil, path, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, path, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, path, nil
}

// FindConfig resolves the config path. Order: the explicit path, then
// $CRANKD_CONFIG, then the user and system search locations, then the
// original tool's property-list locations.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv("CRANKD_CONFIG"); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("CRANKD_CONFIG %s: %w", env, err)
		}
		return env, nil
	}

	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	return "", ErrNoConfig
}

// SearchPaths returns the candidate config locations in precedence
// order.
func SearchPaths() []string {
	var paths []string

	configDir := os.Getenv("XDG_CONFIG_HOME")
	home, _ := os.UserHomeDir()
	if configDir == "" && home != "" {
		configDir = filepath.Join(home, ".config")
	}
	if configDir != "" {
		paths = append(paths, filepath.Join(configDir, "crankd", "crankd.yaml"))
	}

	paths = append(paths, "/etc/crankd/crankd.yaml")

	// Where the original tool kept its property list.
	if home != "" {
		paths = append(paths, filepath.Join(home, "Library", "Preferences", legacyPlistName))
	}
	paths = append(paths, filepath.Join("/Library", "Preferences", legacyPlistName))

	return paths
}

// DefaultPath is where init writes a fresh config.
func DefaultPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join("/etc", "crankd", "crankd.yaml")
		}
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "crankd", "crankd.yaml")
}

// Write marshals cfg to path as YAML, creating parent directories.
func Write(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# crankd configuration\n")
	buf.WriteString("# Event routing: workspace (notifications), store (dynamic-store keys), paths (filesystem).\n")
	buf.WriteString("# Run `crankd list-events` to see registered handlers and known event names.\n\n")
	buf.Write(data)

	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}
