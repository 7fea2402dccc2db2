package propgen

import "github.com/vango-dev/propgen/pkg/decl"

func bare() decl.Marker {
	return decl.Marker{Name: decl.MarkerName}
}

func param(typ, def string) decl.Marker {
	m := decl.Marker{Name: decl.MarkerName, TypeArgs: []string{typ}}
	if def != "" {
		m.Args = []decl.Arg{{Name: decl.DefaultArg, Value: def}}
	}
	return m
}

func prop(name, typ string, markers ...decl.Marker) decl.Member {
	return decl.Member{
		Name:    name,
		Type:    typ,
		Kind:    decl.KindProperty,
		Access:  decl.AccessPublic,
		Getter:  true,
		Setter:  true,
		Markers: markers,
	}
}

func widget() decl.Type {
	return decl.Type{
		Package: "example.com/app/ui",
		Name:    "Widget",
		Dir:     "ui",
		Members: []decl.Member{
			prop("IsValid", "bool", param("bool", "true")),
			prop("Label", "string", bare()),
		},
	}
}

func gadget() decl.Type {
	return decl.Type{
		Package: "example.com/app/ui",
		Name:    "Gadget",
		Dir:     "ui",
		Members: []decl.Member{
			prop("Ratio", "float64", param("float64", "")),
			prop("Count", "int", bare()),
		},
	}
}

func setOf(types ...decl.Type) *decl.Set {
	return &decl.Set{Version: decl.SnapshotVersion, Types: types}
}
