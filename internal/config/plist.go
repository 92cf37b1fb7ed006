package config

import (
	"fmt"
	"sort"

	"howett.net/plist"
)

// legacyPlistName is the property-list filename the original Python
// tool used under ~/Library/Preferences.
const legacyPlistName = "com.googlecode.pymacadmin.crankd.plist"

// legacyConfig matches the original tool's section names.
type legacyConfig struct {
	NSWorkspace         map[string]EventSpec `plist:"NSWorkspace"`
	SystemConfiguration map[string]EventSpec `plist:"SystemConfiguration"`
	FSEvents            map[string]EventSpec `plist:"FSEvents"`
	Imports             []string             `plist:"imports"`
}

// legacyWorkspaceNames maps the NSWorkspace notification identifiers the
// original tool listened for to the portable names used here.
var legacyWorkspaceNames = map[string]string{
	"NSWorkspaceDidLaunchApplicationNotification":    "app.launched",
	"NSWorkspaceDidMountNotification":                "volume.mounted",
	"NSWorkspaceDidPerformFileOperationNotification": "file.operation",
	"NSWorkspaceDidTerminateApplicationNotification": "app.terminated",
	"NSWorkspaceDidUnmountNotification":              "volume.unmounted",
	"NSWorkspaceDidWakeNotification":                 "system.wake",
	"NSWorkspaceSessionDidBecomeActiveNotification":  "session.active",
	"NSWorkspaceSessionDidResignActiveNotification":  "session.inactive",
	"NSWorkspaceWillLaunchApplicationNotification":   "app.will-launch",
	"NSWorkspaceWillPowerOffNotification":            "system.will-poweroff",
	"NSWorkspaceWillSleepNotification":               "system.will-sleep",
	"NSWorkspaceWillUnmountNotification":             "volume.will-unmount",
}

// WellKnownWorkspaceEvents returns the portable workspace notification
// names publishers are expected to use, sorted.
func WellKnownWorkspaceEvents() []string {
	names := make([]string, 0, len(legacyWorkspaceNames))
	for _, portable := range legacyWorkspaceNames {
		names = append(names, portable)
	}
	sort.Strings(names)
	return names
}

// PortableEventName translates a legacy NSWorkspace notification
// identifier; unknown names pass through unchanged.
func PortableEventName(name string) string {
	if portable, ok := legacyWorkspaceNames[name]; ok {
		return portable
	}
	return name
}

// readLegacyPlist converts an original-format property list into a
// Config: NSWorkspace -> workspace (with notification names translated),
// SystemConfiguration -> store, FSEvents -> paths.
func readLegacyPlist(data []byte) (*Config, error) {
	var legacy legacyConfig
	if _, err := plist.Unmarshal(data, &legacy); err != nil {
		return nil, fmt.Errorf("failed to parse property list: %w", err)
	}

	cfg := &Config{
		Store:   legacy.SystemConfiguration,
		Paths:   legacy.FSEvents,
		Imports: legacy.Imports,
	}

	if len(legacy.NSWorkspace) > 0 {
		cfg.Workspace = make(map[string]EventSpec, len(legacy.NSWorkspace))
		for name, spec := range legacy.NSWorkspace {
			cfg.Workspace[PortableEventName(name)] = spec
		}
	}

	return cfg, nil
}
