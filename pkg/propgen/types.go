package propgen

import (
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/opencontainers/go-digest"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// MarkerKind tells which marker produced a descriptor.
type MarkerKind int

const (
	// MarkerBare is the marker without type arguments.
	MarkerBare MarkerKind = iota

	// MarkerParameterized is the marker with one type argument and a default.
	MarkerParameterized
)

func (k MarkerKind) String() string {
	switch k {
	case MarkerBare:
		return "bare"
	case MarkerParameterized:
		return "parameterized"
	default:
		return "unknown"
	}
}

// Default is the default-value variant of a descriptor: either no default
// or an explicit default expression.
// Literal is non-empty if and only if Explicit is true.
type Default struct {
	Explicit bool   `json:"explicit"`
	Literal  string `json:"literal,omitempty"`
}

// NoDefault returns the variant without an explicit default.
func NoDefault() Default {
	return Default{}
}

// ExplicitDefault returns the variant carrying expr.
// An empty expression yields NoDefault.
func ExplicitDefault(expr string) Default {
	if expr == "" {
		return NoDefault()
	}
	return Default{Explicit: true, Literal: expr}
}

// Descriptor is one marker match on one member.
type Descriptor struct {
	Owner  decl.TypeID        `json:"owner"`
	Name   string             `json:"name"`
	Type   string             `json:"type"`
	Access decl.Accessibility `json:"access,omitempty"`

	Marker MarkerKind `json:"marker"`

	// TypeArg is the type argument of a parameterized marker.
	TypeArg string `json:"typeArg,omitempty"`

	Default Default `json:"default"`

	// Zero is the frontend-provided zero-value expression, if any.
	Zero string `json:"zero,omitempty"`

	// Imports are the imports the type and default expressions need.
	Imports []decl.Import `json:"imports,omitempty"`

	Pos decl.Position `json:"pos,omitzero"`
}

// ID returns the member identity of the descriptor.
func (d Descriptor) ID() decl.MemberID {
	return decl.MemberID{Owner: d.Owner, Name: d.Name}
}

// Subject returns "Owner.Name" for diagnostics.
func (d Descriptor) Subject() string {
	return d.Owner.Name + "." + d.Name
}

// Group is the set of descriptors of one owning type in discovery order.
type Group struct {
	Owner       decl.TypeID
	Descriptors []Descriptor
}

// Property is a resolved descriptor ready for emission.
type Property struct {
	Descriptor

	// Modifier is the accessibility literal; empty means no explicit modifier.
	Modifier string

	// Exported reports whether generated identifiers are exported.
	Exported bool

	// DefaultExpr is the registered default expression.
	DefaultExpr string

	KeyName    string
	GetterName string
	SetterName string
}

// Owner describes the type an artifact reopens.
type Owner struct {
	ID          decl.TypeID
	PackageName string
	Dir         string
}

// OwnerOf returns the Owner view of a type declaration.
func OwnerOf(t decl.Type) Owner {
	return Owner{ID: t.ID(), PackageName: t.Clause(), Dir: t.Dir}
}

// ResolvedGroup is a group whose descriptors resolved without error.
type ResolvedGroup struct {
	Owner      Owner
	Properties []Property
}

// Artifact is one generated source file.
type Artifact struct {
	Owner    decl.TypeID
	Dir      string
	FileName string
	Source   []byte
	Digest   digest.Digest
}

// Key returns the deterministic artifact key, the owner's fully-qualified name.
func (a Artifact) Key() string {
	return a.Owner.String()
}

// Path returns the artifact path below its directory.
func (a Artifact) Path() string {
	return filepath.Join(a.Dir, a.FileName)
}

// FileName returns the artifact file name for an owning type.
func FileName(id decl.TypeID) string {
	return id.Name + "_props_gen.go"
}

// QualifiedFileName prefixes FileName with the package path, every rune
// other than a letter or digit replaced by '_'. It is used when owners of
// the same simple name share a directory.
func QualifiedFileName(id decl.TypeID) string {
	if id.Package == "" {
		return FileName(id)
	}
	pkg := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, id.Package)
	return pkg + "_" + FileName(id)
}

// SortDiagnostics orders diagnostics by location, subject and code.
func SortDiagnostics(diags []*errors.Error) {
	sort.SliceStable(diags, func(i, j int) bool {
		a, b := diags[i], diags[j]
		al, bl := locKey(a), locKey(b)
		if al.File != bl.File {
			return al.File < bl.File
		}
		if al.Line != bl.Line {
			return al.Line < bl.Line
		}
		if al.Column != bl.Column {
			return al.Column < bl.Column
		}
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Code < b.Code
	})
}

func locKey(e *errors.Error) errors.Location {
	if e.Location == nil {
		return errors.Location{}
	}
	return *e.Location
}

// HasErrors reports whether any diagnostic has error severity.
func HasErrors(diags []*errors.Error) bool {
	for _, d := range diags {
		if !d.IsWarning() {
			return true
		}
	}
	return false
}

func diagAt(code string, subject string, pos decl.Position) *errors.Error {
	return errors.New(code).
		WithSubject(subject).
		WithPosition(pos.File, pos.Line, pos.Column)
}
