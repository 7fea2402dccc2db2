package propgen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// accessibilityLiterals maps accessibility from most to least restrictive.
var accessibilityLiterals = map[decl.Accessibility]string{
	decl.AccessPrivate:              "private",
	decl.AccessProtectedAndInternal: "protected internal",
	decl.AccessProtected:            "protected",
	decl.AccessInternal:             "internal",
	decl.AccessPublic:               "public",
}

// AccessibilityLiteral returns the modifier for an accessibility.
// Unknown and unspecified accessibility map to "", no explicit modifier.
func AccessibilityLiteral(a decl.Accessibility) string {
	return accessibilityLiterals[a]
}

var numericTypes = map[string]bool{
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"uintptr": true, "byte": true, "rune": true,
	"float32": true, "float64": true, "complex64": true, "complex128": true,
}

// ZeroValue returns the canonical zero-value expression of a Go type expression.
// Types it cannot classify yield *new(T), which is the zero value of any T.
func ZeroValue(typ string) string {
	t := strings.TrimSpace(typ)
	switch {
	case t == "bool":
		return "false"
	case t == "string":
		return `""`
	case numericTypes[t]:
		return "0"
	case t == "error" || t == "any":
		return "nil"
	case hasAnyPrefix(t, "*", "[]", "map[", "chan ", "chan<-", "<-chan", "func(", "func (", "interface{", "interface {"):
		return "nil"
	case strings.HasPrefix(t, "["), hasAnyPrefix(t, "struct{", "struct {"):
		return t + "{}"
	}
	return "*new(" + t + ")"
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// Resolve turns a descriptor into an emittable property.
// A parameterized marker without a default is an error, never a zero-value fallback.
func Resolve(d Descriptor) (Property, *errors.Error) {
	subject := d.Subject()

	typ, err := parser.ParseExpr(d.Type)
	if err != nil {
		return Property{}, diagAt("P004", subject, d.Pos).
			WithDetail(fmt.Sprintf("The declared type %q is not a valid Go type expression.", d.Type)).
			Wrap(err)
	}
	if !isTypeExpr(typ) {
		return Property{}, diagAt("P004", subject, d.Pos).
			WithDetail(fmt.Sprintf("The declared type %q is an expression, not a type.", d.Type))
	}

	p := Property{Descriptor: d}
	switch d.Marker {
	case MarkerParameterized:
		if !d.Default.Explicit {
			return Property{}, diagAt("P001", subject, d.Pos).
				WithSuggestion(fmt.Sprintf("Add the default, e.g. //%s[%s] default=%s", decl.MarkerName, d.Type, zeroHint(d)))
		}
		if d.TypeArg != "" && normalizeType(d.TypeArg) != normalizeType(d.Type) {
			return Property{}, diagAt("P005", subject, d.Pos).
				WithDetail(fmt.Sprintf("The marker type is %s but %s is declared as %s.", d.TypeArg, d.Name, d.Type))
		}
		if _, err := parser.ParseExpr(d.Default.Literal); err != nil {
			return Property{}, diagAt("P002", subject, d.Pos).
				WithDetail(fmt.Sprintf("default=%s does not parse as a Go expression.", d.Default.Literal)).
				Wrap(err)
		}
		p.DefaultExpr = d.Default.Literal
	default:
		p.DefaultExpr = zeroHint(d)
	}

	p.Modifier = AccessibilityLiteral(d.Access)
	p.Exported = p.Modifier == "public"

	name := upperFirst(d.Name)
	if p.Exported {
		p.GetterName = name
		p.SetterName = "Set" + name
	} else {
		p.GetterName = "get" + name
		p.SetterName = "set" + name
	}
	p.KeyName = KeyName(d)
	return p, nil
}

// KeyName returns the package-level variable that holds the key of d.
func KeyName(d Descriptor) string {
	if AccessibilityLiteral(d.Access) == "public" {
		return upperFirst(d.Owner.Name) + upperFirst(d.Name) + "Property"
	}
	return lowerFirst(d.Owner.Name) + upperFirst(d.Name) + "Property"
}

// isTypeExpr reports whether e has the shape of a type. Identifiers and
// qualified identifiers pass; the type checker settles what they denote.
func isTypeExpr(e ast.Expr) bool {
	switch t := e.(type) {
	case *ast.Ident:
		return true
	case *ast.SelectorExpr:
		_, ok := t.X.(*ast.Ident)
		return ok
	case *ast.ParenExpr:
		return isTypeExpr(t.X)
	case *ast.StarExpr:
		return isTypeExpr(t.X)
	case *ast.ArrayType:
		return isTypeExpr(t.Elt)
	case *ast.MapType:
		return isTypeExpr(t.Key) && isTypeExpr(t.Value)
	case *ast.ChanType:
		return isTypeExpr(t.Value)
	case *ast.FuncType, *ast.InterfaceType, *ast.StructType:
		return true
	case *ast.IndexExpr:
		return isTypeExpr(t.X) && isTypeExpr(t.Index)
	case *ast.IndexListExpr:
		if !isTypeExpr(t.X) {
			return false
		}
		for _, idx := range t.Indices {
			if !isTypeExpr(idx) {
				return false
			}
		}
		return true
	}
	return false
}

// ResolveGroup resolves every descriptor of a group. Descriptors that fail
// are reported and dropped; the others keep their order.
func ResolveGroup(g Group, owner Owner) (ResolvedGroup, []*errors.Error) {
	rg := ResolvedGroup{Owner: owner}
	var diags []*errors.Error
	for _, d := range g.Descriptors {
		p, diag := Resolve(d)
		if diag != nil {
			diags = append(diags, diag)
			continue
		}
		rg.Properties = append(rg.Properties, p)
	}
	return rg, diags
}

func zeroHint(d Descriptor) string {
	if d.Zero != "" {
		return d.Zero
	}
	return ZeroValue(d.Type)
}

func normalizeType(t string) string {
	return strings.Join(strings.Fields(t), "")
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToLower(r)) + s[n:]
}
