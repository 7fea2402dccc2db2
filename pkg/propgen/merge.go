package propgen

import (
	"fmt"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// Merge concatenates two descriptor streams: first, then second, each in its
// own order. It is a structural union; a member carrying both markers
// appears twice. Use Dedupe to settle conflicts.
func Merge(first, second []Descriptor) []Descriptor {
	merged := make([]Descriptor, 0, len(first)+len(second))
	merged = append(merged, first...)
	merged = append(merged, second...)
	return merged
}

// MergeStreams merges the parameterized stream ahead of the bare stream.
func MergeStreams(s Streams) []Descriptor {
	return Merge(s.Parameterized, s.Bare)
}

// Dedupe keeps the first descriptor of every member in merge order and
// reports a conflict for each later descriptor of the same member.
func Dedupe(merged []Descriptor) ([]Descriptor, []*errors.Error) {
	var diags []*errors.Error
	first := make(map[decl.MemberID]Descriptor, len(merged))
	kept := make([]Descriptor, 0, len(merged))
	for _, d := range merged {
		if prev, dup := first[d.ID()]; dup {
			diags = append(diags, diagAt("P003", d.Subject(), d.Pos).
				WithDetail(fmt.Sprintf("The %s marker at %s is used; the %s marker is ignored.", prev.Marker, prev.Pos, d.Marker)).
				WithSuggestion("Keep a single property marker on the member"))
			continue
		}
		first[d.ID()] = d
		kept = append(kept, d)
	}
	return kept, diags
}

// CheckKeyNames drops descriptors whose key variable is already declared in
// the same package by an earlier descriptor. Owner and member names are
// concatenated, so Foo.barBaz and FooBar.baz would both declare
// FooBarBazProperty.
func CheckKeyNames(descs []Descriptor) ([]Descriptor, []*errors.Error) {
	type scoped struct {
		pkg  string
		name string
	}
	var diags []*errors.Error
	first := make(map[scoped]Descriptor, len(descs))
	kept := make([]Descriptor, 0, len(descs))
	for _, d := range descs {
		k := scoped{pkg: d.Owner.Package, name: KeyName(d)}
		if prev, dup := first[k]; dup {
			diags = append(diags, diagAt("P008", d.Subject(), d.Pos).
				WithDetail(fmt.Sprintf("%s and %s (%s) both declare %s.", d.Subject(), prev.Subject(), prev.Pos, k.name)).
				WithSuggestion("Rename one of the properties"))
			continue
		}
		first[k] = d
		kept = append(kept, d)
	}
	return kept, diags
}
