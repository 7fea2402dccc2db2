// Package remotecache stores generated artifacts in S3 so machines that
// generate for the same declarations share the work.
//
// Objects are keyed by the digest of the resolved group that produced them:
//
//	<prefix>sha256/<hex>
//
// Each object carries the digest of its content in metadata; objects whose
// content does not match are treated as misses.
package remotecache
