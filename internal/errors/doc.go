// Package errors provides structured, actionable errors and diagnostics for propgen.
//
// Every error carries a code that maps to a registered template:
//   - A short message describing the problem
//   - A detailed explanation
//   - A documentation URL
//
// # Error Categories
//
// Errors are organized into categories:
//   - marker: problems with property markers (missing default, conflicts)
//   - declaration: unsupported declaration shapes
//   - config: propgen.yaml problems
//   - snapshot: malformed declaration snapshots
//   - load: Go package loading failures
//   - cli: command-line usage errors
//
// # Diagnostics
//
// Diagnostics are errors with a severity and a subject (usually
// "Owner.Property"). They are local to one property or one type and never
// abort a generation pass:
//
//	d := errors.New("P001").
//	    WithSubject("Gadget.Ratio").
//	    WithLocation("gadget.go", 12, 2)
//
//	fmt.Println(d.FormatCompact())
//	// Output:
//	// gadget.go:12:2: P001: Gadget.Ratio: Parameterized marker without default
package errors
