package handler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/unixorn/crankd/internal/logging"
)

// envPrefix namespaces the injected context variables.
const envPrefix = "CRANKD"

// commandAction wraps a shell command as a Func. The command runs under
// /bin/sh -c and blocks the dispatch loop until it exits; handlers are
// expected to be quick one-liners.
func commandAction(command string, logger *logging.Logger) Func {
	return func(ctx context.Context, inv Invocation) error {
		logger.Infof("%s: executing %s", inv.Context, command)

		cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
		cmd.Env = buildEnv(os.Environ(), inv, logger)

		output, err := cmd.CombinedOutput()
		if out := strings.TrimSpace(string(output)); out != "" {
			logger.Debugf("`%s` output: %s", command, out)
		}

		if err == nil {
			logger.Debugf("`%s` returned 0", command)
			return nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if code := exitErr.ExitCode(); code >= 0 {
				return fmt.Errorf("%w: `%s` returned %d", ErrHandlerFailed, command, code)
			}
			return fmt.Errorf("%w: `%s` terminated by %v", ErrHandlerFailed, command, exitErr)
		}
		return fmt.Errorf("%w: `%s` could not be started: %v", ErrHandlerFailed, command, err)
	}
}

// buildEnv merges the invocation context into the parent environment.
//
// The child inherits everything from the parent; CRANKD_* variables are
// then overlaid and win any name collision. Payload maps flatten to
// CRANKD_INFO_<KEY> (nested maps join with underscores); keys are
// uppercased with non-alphanumerics mapped to underscores, applied in
// sorted order with last-write-wins, so a collision inside the payload
// is deterministic and logged.
func buildEnv(parent []string, inv Invocation, logger *logging.Logger) []string {
	overlay := make(map[string]string)
	setEnv(overlay, envPrefix+"_CONTEXT", inv.Context, logger)
	setEnv(overlay, envPrefix+"_KEY", inv.Key, logger)

	if inv.Path != "" {
		setEnv(overlay, envPrefix+"_PATH", inv.Path, logger)
		setEnv(overlay, envPrefix+"_RECURSIVE", strconv.FormatBool(inv.Recursive), logger)
	}

	flattenInfo(overlay, envPrefix+"_INFO", inv.Info, logger)

	env := make([]string, 0, len(parent)+len(overlay))
	for _, kv := range parent {
		name, _, _ := strings.Cut(kv, "=")
		if _, shadowed := overlay[name]; shadowed {
			continue
		}
		env = append(env, kv)
	}

	names := make([]string, 0, len(overlay))
	for name := range overlay {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		env = append(env, name+"="+overlay[name])
	}

	return env
}

func flattenInfo(overlay map[string]string, prefix string, info map[string]any, logger *logging.Logger) {
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := prefix + "_" + envToken(k)
		if nested, ok := info[k].(map[string]any); ok {
			flattenInfo(overlay, name, nested, logger)
			continue
		}
		setEnv(overlay, name, fmt.Sprint(info[k]), logger)
	}
}

func setEnv(overlay map[string]string, name, value string, logger *logging.Logger) {
	if old, exists := overlay[name]; exists && old != value {
		logger.Debugf("env %s: %q overwritten by %q", name, old, value)
	}
	overlay[name] = value
}

// envToken maps an arbitrary payload key to an environment-safe token.
func envToken(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
