package propgen

import "github.com/vango-dev/propgen/pkg/decl"

// GroupByOwner partitions descriptors by owning type identity.
// Groups appear in the order their first descriptor was seen and keep the
// relative order of their descriptors.
func GroupByOwner(descs []Descriptor) []Group {
	index := make(map[decl.TypeID]int)
	var groups []Group
	for _, d := range descs {
		i, ok := index[d.Owner]
		if !ok {
			i = len(groups)
			index[d.Owner] = i
			groups = append(groups, Group{Owner: d.Owner})
		}
		groups[i].Descriptors = append(groups[i].Descriptors, d)
	}
	return groups
}

// Owners indexes the owner metadata of a declaration set.
// When a type is declared more than once the first declaration wins.
func Owners(set *decl.Set) map[decl.TypeID]Owner {
	owners := make(map[decl.TypeID]Owner, len(set.Types))
	for _, t := range set.Types {
		if _, ok := owners[t.ID()]; !ok {
			owners[t.ID()] = OwnerOf(t)
		}
	}
	return owners
}
