package propgen

import (
	"fmt"
	"strings"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// DirectivePrefix is the prefix shared by all propgen markers.
const DirectivePrefix = "propgen:"

// Streams holds the descriptors of one scan, one stream per marker kind.
// Each stream is in discovery order.
type Streams struct {
	Parameterized []Descriptor
	Bare          []Descriptor
}

// Append adds the descriptors of other to s, keeping stream order.
func (s *Streams) Append(other Streams) {
	s.Parameterized = append(s.Parameterized, other.Parameterized...)
	s.Bare = append(s.Bare, other.Bare...)
}

// Len returns the number of descriptors in both streams.
func (s Streams) Len() int {
	return len(s.Parameterized) + len(s.Bare)
}

// ScanResult is the output of Scan.
type ScanResult struct {
	Streams     Streams
	Diagnostics []*errors.Error
}

// Scan walks every member of the declaration set and returns one descriptor
// per property marker. Unsupported members and owners are reported and left
// out of the streams.
func Scan(set *decl.Set) ScanResult {
	var res ScanResult
	reported := make(map[decl.TypeID]bool)
	for _, t := range set.Types {
		if d := CheckOwner(t); d != nil {
			if !reported[t.ID()] {
				reported[t.ID()] = true
				res.Diagnostics = append(res.Diagnostics, d)
			}
			continue
		}
		for _, m := range t.Members {
			ms := ScanMember(t.ID(), m)
			res.Streams.Append(ms.Streams)
			res.Diagnostics = append(res.Diagnostics, ms.Diagnostics...)
		}
	}
	return res
}

// CheckOwner reports owning types accessors cannot be generated for.
// It returns nil for supported owners and for owners without markers.
func CheckOwner(t decl.Type) *errors.Error {
	if !t.Generic || !hasPropertyMarker(t) {
		return nil
	}
	return diagAt("P006", t.Name, t.Pos).
		WithDetail(fmt.Sprintf("%s is a generic type; methods of generic types cannot be generated per instantiation.", t.Name)).
		WithSuggestion("Move the properties to a non-generic type")
}

func hasPropertyMarker(t decl.Type) bool {
	for _, m := range t.Members {
		for _, mk := range m.Markers {
			if mk.Name == decl.MarkerName {
				return true
			}
		}
	}
	return false
}

// ScanMember scans one member of the owner identified by owner.
// The result depends only on its arguments, which makes it safe to memoize
// by member identity and content.
func ScanMember(owner decl.TypeID, m decl.Member) ScanResult {
	var res ScanResult
	subject := owner.Name + "." + m.Name

	var markers []decl.Marker
	for _, mk := range m.Markers {
		switch {
		case mk.Name == decl.MarkerName:
			markers = append(markers, mk)
		case strings.HasPrefix(mk.Name, DirectivePrefix):
			res.Diagnostics = append(res.Diagnostics, diagAt("P007", subject, markerPos(mk, m)).
				WithDetail(fmt.Sprintf("%q is not a propgen directive.", mk.Name)))
		}
	}
	if len(markers) == 0 {
		return res
	}

	if reason := unsupported(m); reason != "" {
		res.Diagnostics = append(res.Diagnostics, diagAt("P004", subject, m.Pos).
			WithDetail(reason).
			WithSuggestion("Declare the property as an unexported field of a struct type"))
		return res
	}

	for _, mk := range markers {
		d := Descriptor{
			Owner:   owner,
			Name:    m.Name,
			Type:    m.Type,
			Access:  m.Access,
			Zero:    m.Zero,
			Imports: m.Imports,
			Pos:     markerPos(mk, m),
		}
		switch len(mk.TypeArgs) {
		case 0:
			d.Marker = MarkerBare
			res.Streams.Bare = append(res.Streams.Bare, d)
		case 1:
			d.Marker = MarkerParameterized
			d.TypeArg = mk.TypeArgs[0]
			if lit, ok := mk.Arg(decl.DefaultArg); ok {
				d.Default = ExplicitDefault(strings.TrimSpace(lit))
			}
			res.Streams.Parameterized = append(res.Streams.Parameterized, d)
		default:
			res.Diagnostics = append(res.Diagnostics, diagAt("P007", subject, markerPos(mk, m)).
				WithDetail(fmt.Sprintf("The property marker takes at most one type argument, got %d.", len(mk.TypeArgs))))
		}
	}
	return res
}

// unsupported returns why a marked member cannot become a property, or "".
func unsupported(m decl.Member) string {
	switch {
	case m.Kind == decl.KindIndexer:
		return "Indexers cannot be generated as properties."
	case m.Kind == decl.KindEmbedded:
		return "Embedded fields cannot be generated as properties."
	case m.Kind == decl.KindMethod:
		return "Methods cannot be generated as properties."
	case m.Kind == decl.KindField:
		return "Exported fields store their value directly; only unexported fields can declare a property."
	case m.Kind != decl.KindProperty:
		return fmt.Sprintf("Members of kind %q cannot be generated as properties.", m.Kind)
	case m.Static:
		return "Static members cannot be generated as properties."
	case !m.Getter || !m.Setter:
		return "The property must expose both a getter and a setter."
	case m.Name == "" || m.Name == "_":
		return "Blank members cannot be generated as properties."
	case m.Type == "":
		return "The property has no declared type."
	}
	return ""
}

func markerPos(mk decl.Marker, m decl.Member) decl.Position {
	if mk.Pos.IsValid() {
		return mk.Pos
	}
	return m.Pos
}
