// Package preflight checks that autowriter can build and serve an index
// before it is asked to.
//
// The checker validates:
//   - free disk space and write access in the data directory
//   - the file descriptor limit
//   - that the embedding backend answers a probe
//   - that the generation backend is reachable (optional, listings fall
//     back to rule-based copy without it)
//   - that the index exists, completed, and matches the embedding model
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Targets{DataDir: "data", Embedder: e})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
