// Package crash intercepts unhandled panics, persists a crash log and hands the
// finished report to an out-of-process delivery collaborator.
//
// The package implements four pieces:
//
//   - The process-wide interceptor slot. Go has no runtime hook for goroutines
//     that die from a panic, so goroutines opt in with Guard (or are started
//     with Go). A recovered panic is dispatched to the active Interceptor.
//
//   - Handler: the interceptor state machine. On a failure it writes a crash
//     log through a LogWriter, composes the report from collected metadata
//     and hands it to a Deliverer. It then either delegates to the interceptor
//     that was active before it, or waits a grace period and terminates.
//
//   - Worker: the single-flight lane. At most one crash-handling job runs per
//     Handler; concurrent failures queue in submission order.
//
//   - Registry: exactly one Handler per tag.
//
// Typical wiring:
//
//	reg, err := crash.NewRegistry(settings, newWriter, deliverer)
//	if err != nil {
//	    return err
//	}
//	if err := reg.GetOrCreate("api").Install(platform.Current("api", version, commit)); err != nil {
//	    return err
//	}
//	defer crash.Guard("main")
package crash
