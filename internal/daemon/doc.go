// Package daemon runs the event dispatch loop and the supervisor that
// keeps it current with its own configuration.
//
// # Architecture
//
// Two layers share the package:
//
//   - worker: one daemon generation. It resolves every configured
//     handler, registers the filesystem watches, starts the event
//     sources, and drains their shared sink on a single goroutine.
//   - Supervisor: the relaunch loop around workers. It re-reads the
//     configuration for each generation and replaces the worker when a
//     restart is requested.
//
// # Lifecycle
//
// A worker moves through idle → starting → running → stopping →
// terminated. Everything fallible happens in starting: an entry that
// does not resolve, a watch target that does not exist, a listener that
// cannot bind, or an unreadable store snapshot all fail the run before
// any event is dispatched, and the process exits nonzero. Once running,
// per-event failures are logged and swallowed; nothing stops the loop
// except cancellation or a restart request.
//
// # Restarts
//
// The restart baseline records modification times for the live
// configuration file and the daemon binary at startup. Any filesystem
// event in a tracked file's directory re-stats it; a diverged time, or
// a stat failure, requests a restart. SIGHUP requests one too:
//
//	kill -HUP $(cat /var/run/crankd.pid)
//
// A restart tears the worker down and builds a fresh one from a fresh
// configuration read in the same process. Nothing waits for an
// in-flight handler command; it keeps running on its own while the new
// worker starts cold. Generations that die quickly are paced: each
// rapid relaunch waits twice as long as the last, up to a cap, so a
// file touched in a tight loop cannot turn the daemon into one. Note
// that a changed binary on disk still restarts only the worker; the
// running process keeps executing the old code until it is fully
// restarted.
//
// # Dispatch model
//
// Event sources each run a goroutine, but they only feed one shared
// channel. The worker's loop is the sole consumer, so handlers never
// run concurrently: a slow handler delays later events instead of
// racing them. A keepalive tick (default 5s) logs at debug level and
// pings connected monitors so an idle loop is observably alive.
//
// # Single instance
//
// When a pid file is configured the supervisor takes an advisory lock
// on it before the first generation and holds it until exit. The lock,
// not the file's existence, is the truth: a crash leaves no stale-file
// problem behind.
package daemon
