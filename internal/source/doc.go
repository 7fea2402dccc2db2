// Package source builds a declaration set from Go packages.
//
// Properties are declared on unexported struct fields with comment
// directives:
//
//	type Widget struct {
//		store.Values
//
//		//propgen:property[bool] default=true
//		isValid bool
//
//		//propgen:property
//		label string
//
//		//propgen:property default=3
//		//propgen:access internal
//		retries int
//	}
//
// A field generates accessors named after the field with its first letter
// upper-cased (IsValid, SetIsValid). The accessibility defaults to public
// for exported types and internal otherwise; only public accessors are
// exported.
//
// Markers on exported fields, embedded fields, methods or package-level
// declarations are reported as unsupported declarations.
package source
