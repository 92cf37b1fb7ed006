// Package source adapts the three kinds of OS-level event feeds to one
// delivery contract.
//
// # Adapters
//
//   - Workspace: an HTTP/WebSocket ingress for application-posted
//     notifications, plus the daemon's outbound event feed.
//   - DynStore: a polling reader over the dynamic-store snapshot file,
//     reporting value changes for watched keys.
//   - FSWatch: a filesystem watcher over the registered roots, with a
//     coalescing window so a burst of writes arrives as one batch.
//
// # Delivery
//
// Each adapter runs its own goroutine and pushes events into a shared
// sink channel; the dispatch loop drains that channel alone:
//
//	Workspace ─┐
//	DynStore  ─┼─> sink ─> dispatch loop ─> handlers (sequential)
//	FSWatch   ─┘
//
// One slow handler therefore delays later events instead of racing
// them, which is the delivery model handlers are written against.
//
// # Construction
//
// Constructors perform the fallible setup (binding the listener, the
// first snapshot read, registering watch roots) so a broken
// configuration fails daemon startup before any event is dispatched;
// Run only pumps events until its context is canceled.
//
// Minimal use without the daemon around it:
//
//	ws, err := source.NewWorkspace("127.0.0.1:0", []string{"system.wake"}, logger)
//	if err != nil {
//		return err
//	}
//	sink := make(chan source.Event, 64)
//	go ws.Run(ctx, sink)
//	for ev := range sink {
//		// dispatch ev
//	}
package source
