// Package decl defines the declaration set consumed by the propgen pipeline.
//
// A declaration set is a language-neutral snapshot of owning types and their
// members. Members carry zero or more markers; a marker is identified by its
// fully-qualified name and the arity of its type-argument list distinguishes
// the bare form (no default) from the parameterized form (explicit default).
//
// Declaration sets are produced by the Go source frontend (internal/source)
// or decoded from a YAML/JSON snapshot file:
//
//	version: 1
//	types:
//	  - package: example.com/widgets
//	    packageName: widgets
//	    name: Widget
//	    members:
//	      - name: IsValid
//	        type: bool
//	        kind: property
//	        getter: true
//	        setter: true
//	        access: public
//	        markers:
//	          - name: propgen:property
//	            typeArgs: [bool]
//	            args:
//	              - {name: default, value: "true"}
//
// Snapshots are validated against an embedded JSON schema before decoding.
// Scalars follow YAML 1.1, so a member named Y, N, On, Off, Yes or No must be
// quoted or it decodes as a boolean and fails validation.
package decl
