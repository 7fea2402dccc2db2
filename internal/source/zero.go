package source

import (
	"go/types"
)

// zeroValue returns the zero-value expression of t written as expr, or ""
// when the type is unknown.
func zeroValue(t types.Type, expr string) string {
	if t == nil {
		return ""
	}
	if _, ok := t.(*types.TypeParam); ok {
		return "*new(" + expr + ")"
	}
	switch u := t.Underlying().(type) {
	case *types.Basic:
		switch {
		case u.Kind() == types.Invalid:
			return ""
		case u.Info()&types.IsBoolean != 0:
			return "false"
		case u.Info()&types.IsString != 0:
			return `""`
		case u.Info()&types.IsNumeric != 0:
			return "0"
		case u.Kind() == types.UnsafePointer:
			return "nil"
		}
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Signature, *types.Interface:
		return "nil"
	case *types.Array, *types.Struct:
		return expr + "{}"
	}
	return "*new(" + expr + ")"
}
