package propgen

import (
	"bytes"
	"fmt"
	"path"
	"sort"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/opencontainers/go-digest"
	"golang.org/x/tools/imports"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// EmitConfig names the keyed storage API the generated code calls into.
type EmitConfig struct {
	// StoreImport is the import path of the store package.
	StoreImport string

	// StoreAlias is the name the store package is imported as.
	StoreAlias string

	// Register is the generic key constructor: Register[T](name, owner, default).
	Register string

	// GetValue and SetValue are the methods of the owning type that read and
	// write a value by key.
	GetValue string
	SetValue string
}

// DefaultEmitConfig returns the conventional store API names.
func DefaultEmitConfig() EmitConfig {
	return EmitConfig{
		StoreImport: "github.com/vango-dev/propstore",
		StoreAlias:  "propstore",
		Register:    "Register",
		GetValue:    "GetValue",
		SetValue:    "SetValue",
	}
}

// Emitter renders resolved groups to Go source.
type Emitter struct {
	config EmitConfig
	tmpl   *template.Template
}

// NewEmitter creates an emitter. Empty config fields take their defaults.
func NewEmitter(config EmitConfig) *Emitter {
	def := DefaultEmitConfig()
	if config.StoreImport == "" {
		config.StoreImport = def.StoreImport
	}
	if config.StoreAlias == "" {
		config.StoreAlias = path.Base(config.StoreImport)
	}
	if config.Register == "" {
		config.Register = def.Register
	}
	if config.GetValue == "" {
		config.GetValue = def.GetValue
	}
	if config.SetValue == "" {
		config.SetValue = def.SetValue
	}
	return &Emitter{
		config: config,
		tmpl:   template.Must(template.New("artifact").Parse(artifactTemplate)),
	}
}

// Config returns the emitter's configuration.
func (e *Emitter) Config() EmitConfig {
	return e.config
}

// Header is the first line of every artifact. Files starting with it are
// owned by propgen and may be overwritten or removed.
const Header = "// Code generated by propgen. DO NOT EDIT."

const artifactTemplate = Header + `
// Source: {{.Owner}}

package {{.Package}}

import (
{{- range .Imports}}
	{{if .Name}}{{.Name}} {{end}}{{printf "%q" .Path}}
{{- end}}
)
{{range .Properties}}
// {{.KeyName}} is the storage key of the {{.Name}} property.
var {{.KeyName}} = {{$.Store}}.{{$.Register}}[{{.Type}}]({{printf "%q" .Name}}, reflect.TypeFor[{{$.TypeName}}](), {{.DefaultExpr}})

// {{.GetterName}} returns the {{.Name}} property.
func ({{$.Recv}} *{{$.TypeName}}) {{.GetterName}}() {{.Type}} {
	val, _ := {{$.Recv}}.{{$.GetValue}}({{.KeyName}}).({{.Type}})
	return val
}

// {{.SetterName}} sets the {{.Name}} property.
func ({{$.Recv}} *{{$.TypeName}}) {{.SetterName}}(value {{.Type}}) {
	{{$.Recv}}.{{$.SetValue}}({{.KeyName}}, value)
}
{{end}}`

type artifactData struct {
	Owner      string
	Package    string
	TypeName   string
	Recv       string
	Store      string
	Register   string
	GetValue   string
	SetValue   string
	Imports    []decl.Import
	Properties []Property
}

// Emit renders the artifact of one resolved group. The output depends only
// on the group: identical groups yield byte-identical artifacts.
func (e *Emitter) Emit(rg ResolvedGroup) (Artifact, error) {
	data := artifactData{
		Owner:      rg.Owner.ID.String(),
		Package:    rg.Owner.PackageName,
		TypeName:   rg.Owner.ID.Name,
		Recv:       receiverName(rg.Owner.ID.Name),
		Store:      e.config.StoreAlias,
		Register:   e.config.Register,
		GetValue:   e.config.GetValue,
		SetValue:   e.config.SetValue,
		Imports:    e.imports(rg),
		Properties: rg.Properties,
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return Artifact{}, errors.New("P009").
			WithSubject(rg.Owner.ID.Name).
			WithDetail("Failed to render the artifact.").
			Wrap(err)
	}

	name := FileName(rg.Owner.ID)
	src, err := imports.Process(name, buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return Artifact{}, errors.New("P009").
			WithSubject(rg.Owner.ID.Name).
			WithDetail("The generated source does not parse; check the declared types and defaults.").
			Wrap(err)
	}

	return Artifact{
		Owner:    rg.Owner.ID,
		Dir:      rg.Owner.Dir,
		FileName: name,
		Source:   src,
		Digest:   digest.FromBytes(src),
	}, nil
}

// imports returns the sorted, de-duplicated imports of the artifact. Imports
// are keyed by local name so one path may be imported under two names.
func (e *Emitter) imports(rg ResolvedGroup) []decl.Import {
	store := storeImport(e.config)
	seen := map[string]decl.Import{
		"reflect":        {Path: "reflect"},
		localName(store): store,
	}
	for _, p := range rg.Properties {
		for _, imp := range p.Imports {
			if imp.Path == "" || imp.Path == rg.Owner.ID.Package {
				continue
			}
			if imp.Name == path.Base(imp.Path) {
				imp.Name = ""
			}
			if _, ok := seen[localName(imp)]; !ok {
				seen[localName(imp)] = imp
			}
		}
	}
	out := make([]decl.Import, 0, len(seen))
	for _, imp := range seen {
		out = append(out, imp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func localName(imp decl.Import) string {
	if imp.Name != "" {
		return imp.Name
	}
	return path.Base(imp.Path)
}

func storeImport(c EmitConfig) decl.Import {
	imp := decl.Import{Path: c.StoreImport}
	if c.StoreAlias != path.Base(c.StoreImport) {
		imp.Name = c.StoreAlias
	}
	return imp
}

// receiverName returns the conventional one-letter receiver of a type.
func receiverName(typeName string) string {
	r, _ := utf8.DecodeRuneInString(typeName)
	if r == utf8.RuneError || !unicode.IsLetter(r) {
		return "x"
	}
	return string(unicode.ToLower(r))
}

func (a Artifact) String() string {
	return fmt.Sprintf("%s (%s)", a.Key(), a.Digest.Encoded()[:12])
}

// ArtifactFormat versions the layout of generated files. Bump it when the
// emitted code changes so cached artifacts are re-emitted.
const ArtifactFormat = 1
