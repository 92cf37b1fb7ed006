package config

// Starter returns the example configuration written by `crankd init`.
// It mirrors the default the original tool generated on first run:
// echo commands for the common workspace events and the global IPv4
// store key, plus the built-in handler namespace.
func Starter() *Config {
	cfg := &Config{
		Workspace: map[string]EventSpec{
			"volume.mounted": {
				Command: `/bin/echo "A new volume was mounted!"`,
			},
			"system.wake": {
				Command: `/bin/echo "The system woke from sleep!"`,
			},
			"system.will-sleep": {
				Command: `/bin/echo "The system is about to go to sleep!"`,
			},
		},
		Store: map[string]EventSpec{
			"network.global.ipv4": {
				Command: `/bin/echo "Global IPv4 config changed"`,
			},
		},
		Imports: []string{"builtin"},
	}

	cfg.SetDefaults()
	return cfg
}
