package propgen

import (
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// Result is the output of one generation pass.
type Result struct {
	// Artifacts are in group order, one per owning type with at least one
	// resolved property.
	Artifacts []Artifact

	// Diagnostics are sorted with SortDiagnostics.
	Diagnostics []*errors.Error
}

// Artifact returns the artifact with the given key.
func (r *Result) Artifact(key string) (Artifact, bool) {
	for _, a := range r.Artifacts {
		if a.Key() == key {
			return a, true
		}
	}
	return Artifact{}, false
}

// Prepare runs the scan, merge and grouping stages. It returns the groups
// in first-seen order and the diagnostics of those stages.
func Prepare(set *decl.Set) ([]Group, []*errors.Error) {
	scan := Scan(set)
	merged, conflicts := Dedupe(MergeStreams(scan.Streams))
	named, clashes := CheckKeyNames(merged)
	diags := append(scan.Diagnostics, conflicts...)
	diags = append(diags, clashes...)
	return GroupByOwner(named), diags
}

// EmitGroup resolves and emits one group. The artifact is nil when no
// property of the group resolved.
func EmitGroup(e *Emitter, g Group, owner Owner) (*Artifact, []*errors.Error) {
	rg, diags := ResolveGroup(g, owner)
	if len(rg.Properties) == 0 {
		return nil, diags
	}
	a, emitDiags := EmitResolved(e, rg)
	return a, append(diags, emitDiags...)
}

// EmitResolved emits rg. When the group as a whole does not emit, every
// property is emitted alone; those that fail are reported with P009 and
// dropped, and the artifact is emitted from the rest.
func EmitResolved(e *Emitter, rg ResolvedGroup) (*Artifact, []*errors.Error) {
	a, err := e.Emit(rg)
	if err == nil {
		return &a, nil
	}

	var diags []*errors.Error
	kept := rg
	kept.Properties = nil
	for _, p := range rg.Properties {
		single := rg
		single.Properties = []Property{p}
		if _, err := e.Emit(single); err != nil {
			diags = append(diags, diagAt("P009", p.Subject(), p.Pos).Wrap(err))
			continue
		}
		kept.Properties = append(kept.Properties, p)
	}
	if len(diags) == 0 {
		// No single property is at fault.
		return nil, []*errors.Error{errors.FromError(err, "P009")}
	}
	if len(kept.Properties) == 0 {
		return nil, diags
	}
	a, err = e.Emit(kept)
	if err != nil {
		return nil, append(diags, errors.FromError(err, "P009"))
	}
	return &a, diags
}

// Generate runs every stage over the set from scratch.
func Generate(set *decl.Set, e *Emitter) Result {
	groups, diags := Prepare(set)
	owners := Owners(set)

	var res Result
	for _, g := range groups {
		a, gd := EmitGroup(e, g, OwnerFor(owners, g.Owner))
		diags = append(diags, gd...)
		if a != nil {
			res.Artifacts = append(res.Artifacts, *a)
		}
	}
	SortDiagnostics(diags)
	res.Diagnostics = diags
	return res
}

// OwnerFor returns the owner metadata of id, or a bare owner when the set
// does not declare it.
func OwnerFor(owners map[decl.TypeID]Owner, id decl.TypeID) Owner {
	if o, ok := owners[id]; ok {
		return o
	}
	return OwnerOf(decl.Type{Package: id.Package, Name: id.Name})
}
