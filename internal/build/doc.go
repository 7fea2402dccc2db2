// Package build writes generated artifacts to disk.
//
// This package handles:
//   - Writing artifacts whose content changed, atomically
//   - Removing stale artifacts of types that lost their properties
//   - Drift checks for CI (check mode writes nothing)
//
// # Usage
//
//	builder := build.New(cfg, build.Options{})
//	result, err := builder.Apply(ctx, artifacts, loaded.Generated)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Wrote %d file(s) in %s\n", len(result.Written), result.Duration)
//
// # Ownership
//
// Only files whose first line is the propgen header are considered owned.
// A hand-written file that happens to use the artifact suffix is never
// removed.
package build
