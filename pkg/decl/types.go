package decl

import (
	"fmt"
	"strings"
)

// MarkerName is the fully-qualified name of the property marker.
const MarkerName = "propgen:property"

// DefaultArg is the named marker argument that supplies an explicit default.
const DefaultArg = "default"

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// TypeID identifies an owning type by package path and name.
// Two types with the same simple name in different packages are distinct.
type TypeID struct {
	Package string `json:"package"`
	Name    string `json:"name"`
}

// String returns the fully-qualified type name.
func (id TypeID) String() string {
	if id.Package == "" {
		return id.Name
	}
	return id.Package + "." + id.Name
}

// Accessibility is the declared visibility of a member.
type Accessibility string

const (
	AccessUnspecified          Accessibility = ""
	AccessPrivate              Accessibility = "private"
	AccessProtectedAndInternal Accessibility = "protected-internal"
	AccessProtected            Accessibility = "protected"
	AccessInternal             Accessibility = "internal"
	AccessPublic               Accessibility = "public"
)

// MemberKind classifies a member declaration.
type MemberKind string

const (
	KindProperty MemberKind = "property"
	KindField    MemberKind = "field"
	KindMethod   MemberKind = "method"
	KindIndexer  MemberKind = "indexer"
	KindEmbedded MemberKind = "embedded"
)

// Position is a source position. Zero values mean unknown.
type Position struct {
	File   string `json:"file,omitempty"`
	Line   int    `json:"line,omitempty"`
	Column int    `json:"column,omitempty"`
}

// IsValid reports whether the position names a file.
func (p Position) IsValid() bool {
	return p.File != ""
}

func (p Position) String() string {
	if !p.IsValid() {
		return "-"
	}
	if p.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	}
	return fmt.Sprintf("%s:%d", p.File, p.Line)
}

// Arg is a named marker argument. Value is the literal source text.
type Arg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Marker is an annotation attached to a member.
type Marker struct {
	// Name is the fully-qualified marker name.
	Name string `json:"name"`

	// TypeArgs are the marker's type arguments.
	TypeArgs []string `json:"typeArgs,omitempty"`

	// Args are the marker's named arguments in source order.
	Args []Arg `json:"args,omitempty"`

	// Pos is where the marker appears.
	Pos Position `json:"pos,omitzero"`
}

// Arg returns the value of the named argument.
func (m Marker) Arg(name string) (string, bool) {
	for _, a := range m.Args {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Import is an import a member's type or default expression depends on.
type Import struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path"`
}

// Member is a declaration inside an owning type.
type Member struct {
	Name   string        `json:"name"`
	Type   string        `json:"type,omitempty"`
	Kind   MemberKind    `json:"kind"`
	Access Accessibility `json:"access,omitempty"`

	// Getter and Setter report whether the member exposes the accessor.
	Getter bool `json:"getter,omitempty"`
	Setter bool `json:"setter,omitempty"`

	// Static marks members that belong to the type rather than to instances.
	Static bool `json:"static,omitempty"`

	// Zero is the zero-value expression of Type when the frontend knows it.
	Zero string `json:"zero,omitempty"`

	// Imports lists the imports Type, Zero and marker defaults refer to.
	Imports []Import `json:"imports,omitempty"`

	Markers []Marker `json:"markers,omitempty"`
	Pos     Position `json:"pos,omitzero"`
}

// Type is an owning type declaration.
type Type struct {
	Package string `json:"package"`
	Name    string `json:"name"`

	// PackageName is the package clause name used in generated files.
	// Defaults to the last element of Package.
	PackageName string `json:"packageName,omitempty"`

	// Dir is the directory that generated artifacts for this type belong to.
	Dir string `json:"dir,omitempty"`

	// Generic marks parameterized types.
	Generic bool `json:"generic,omitempty"`

	Members []Member `json:"members,omitempty"`
	Pos     Position `json:"pos,omitzero"`
}

// ID returns the identity of the type.
func (t Type) ID() TypeID {
	return TypeID{Package: t.Package, Name: t.Name}
}

// Clause returns the package clause name for generated files.
func (t Type) Clause() string {
	if t.PackageName != "" {
		return t.PackageName
	}
	p := t.Package
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[i+1:]
	}
	return p
}

// MemberID is the stable identity of a member: owner identity plus member name.
type MemberID struct {
	Owner TypeID
	Name  string
}

func (id MemberID) String() string {
	return id.Owner.String() + "." + id.Name
}

// Set is a declaration set.
type Set struct {
	Version int    `json:"version"`
	Types   []Type `json:"types"`
}

// Len returns the number of members across all types.
func (s *Set) Len() int {
	n := 0
	for _, t := range s.Types {
		n += len(t.Members)
	}
	return n
}

// Lookup returns the first type declaration with the given identity.
func (s *Set) Lookup(id TypeID) (Type, bool) {
	for _, t := range s.Types {
		if t.ID() == id {
			return t, true
		}
	}
	return Type{}, false
}
