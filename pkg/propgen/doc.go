// Package propgen generates keyed-property accessors for annotated declarations.
//
// The generator runs as a pipeline over a declaration set (see package decl):
//
//	Scan        find members carrying the property marker, one descriptor per marker
//	Merge       concatenate the parameterized and bare descriptor streams
//	Dedupe      keep the first descriptor per member, report conflicts
//	GroupByOwner partition descriptors by owning type identity
//	Resolve     resolve accessibility, declared type and default expression
//	Emit        render one Go source artifact per owning type
//
// Generate runs the whole pipeline from scratch. The incremental controller in
// internal/incremental runs the same stages but memoizes them by declaration
// identity and content digest; both produce identical artifacts.
//
// # Markers
//
// A member carries the bare marker to register its property with the zero
// value of its type as default:
//
//	//propgen:property
//	label string
//
// The parameterized marker fixes the value type and supplies the default:
//
//	//propgen:property[bool] default=true
//	isValid bool
//
// # Generated Code
//
// For every property the emitter writes a registration and an accessor pair
// that delegate to an external keyed store:
//
//	var WidgetIsValidProperty = propstore.Register[bool]("IsValid", reflect.TypeFor[Widget](), true)
//
//	func (w *Widget) IsValid() bool {
//		val, _ := w.GetValue(WidgetIsValidProperty).(bool)
//		return val
//	}
//
//	func (w *Widget) SetIsValid(value bool) {
//		w.SetValue(WidgetIsValidProperty, value)
//	}
//
// The store itself is not part of this package.
package propgen
