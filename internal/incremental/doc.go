// Package incremental runs the propgen pipeline repeatedly over changing
// declaration sets and recomputes only what changed.
//
// The controller keeps two tables between passes:
//
//   - a member memo keyed by member identity (owner type + member name) that
//     stores the scan result together with the digest of the member's
//     content. A member whose digest is unchanged is not scanned again.
//   - a group cache keyed by owner type that stores the digest of the
//     resolved group and the artifact it produced. A group whose digest is
//     unchanged returns the cached artifact, byte-identical, flagged Reused.
//
// Digests are SHA-256 over the RFC 8785 canonical JSON encoding of their
// input, so they do not depend on field order or map iteration.
//
// A pass stages everything it computes and commits to the tables only after
// it finished. A cancelled pass returns the context error and leaves the
// tables as they were. Output of an incremental pass is identical to the
// output of propgen.Generate over the same set.
package incremental
