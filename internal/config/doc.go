// Package config defines the daemon's configuration: three routing
// sections mapping event identifiers to handler specs, an import
// preload list, and the daemon tunables.
//
// # File format
//
// The canonical format is YAML:
//
//	workspace:
//	  volume.mounted:
//	    command: '/bin/echo "volume mounted"'
//	  system.wake:
//	    function: builtin.LogEvent
//	store:
//	  network.global.ipv4:
//	    method: [builtin.EventLogger, Log]
//	paths:
//	  /etc/hosts:
//	    function: builtin.LogEvent
//	imports:
//	  - builtin
//	daemon:
//	  listen: "127.0.0.1:8818"
//	  debounce_interval: 500ms
//
// Each routing entry is an EventSpec setting exactly one of command,
// function, class, or method. Specs are validated while decoding, so a
// malformed entry fails the load with its line number.
//
// # Legacy property lists
//
// The original tool stored its configuration as an Apple property list
// with NSWorkspace, SystemConfiguration, and FSEvents sections. Files
// with a .plist extension still load: sections map onto workspace,
// store, and paths, and NSWorkspace notification identifiers translate
// to their portable names (NSWorkspaceDidMountNotification becomes
// volume.mounted). `crankd migrate` uses the same translation to write
// a YAML copy.
//
// # Lookup order
//
// Load checks the explicit --config path, then $CRANKD_CONFIG, then
// ~/.config/crankd/crankd.yaml, /etc/crankd/crankd.yaml, and finally
// the original tool's property-list locations under Library/Preferences.
//
// Daemon tunables merge one more layer: flags and CRANKD_* environment
// variables (via viper) override the file's daemon: section.
package config
