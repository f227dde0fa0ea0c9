// Package preflight checks that the host and data directory can run a
// shadowfinder server: writable data directory with free space, a usable
// snapshot driver, a readable snapshot, and enough file descriptors for
// client connections.
//
//	checker := preflight.New(preflight.WithOutput(os.Stdout))
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // refuse to start
//	}
package preflight
