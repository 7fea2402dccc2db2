package source

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"log/slog"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gobwas/glob"
	"golang.org/x/tools/go/packages"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
)

// GeneratedSuffix is the file suffix of generated artifacts. These files are
// never scanned.
const GeneratedSuffix = "_props_gen.go"

// Options configures a Loader.
type Options struct {
	// Dir is the directory patterns are resolved in (default: ".").
	Dir string

	// Patterns are go/packages patterns (default: "./...").
	Patterns []string

	// Exclude are file globs, relative to Dir with forward slashes, whose
	// declarations are skipped. "**" matches across directories.
	Exclude []string

	// BuildFlags are passed to the go command.
	BuildFlags []string

	// Logger receives load warnings (default: slog.Default()).
	Logger *slog.Logger
}

// Loader builds declaration sets from Go packages.
type Loader struct {
	opts    Options
	exclude []glob.Glob
	logger  *slog.Logger
}

// NewLoader validates the options and returns a loader.
func NewLoader(opts Options) (*Loader, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if len(opts.Patterns) == 0 {
		opts.Patterns = []string{"./..."}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	l := &Loader{opts: opts, logger: opts.Logger}
	for _, pattern := range opts.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.New("E102").
				WithDetail(fmt.Sprintf("exclude pattern %q is not a valid glob.", pattern)).
				Wrap(err)
		}
		l.exclude = append(l.exclude, g)
	}
	return l, nil
}

// Result is a loaded declaration set plus the declarations the frontend
// could already tell are unsupported.
type Result struct {
	Set         *decl.Set
	Diagnostics []*errors.Error
	Files       []string

	// Generated are the existing artifacts found in the loaded packages.
	Generated []string
}

const loadMode = packages.NeedName |
	packages.NeedFiles |
	packages.NeedSyntax |
	packages.NeedTypes |
	packages.NeedTypesInfo

// Load loads the configured packages and returns their declaration set.
// Type errors are logged and tolerated; packages that fail to list or parse
// are an error.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	cfg := &packages.Config{
		Context:    ctx,
		Mode:       loadMode,
		Dir:        l.opts.Dir,
		BuildFlags: l.opts.BuildFlags,
		Fset:       token.NewFileSet(),
	}

	pkgs, err := packages.Load(cfg, l.opts.Patterns...)
	if err != nil {
		return nil, errors.New("E300").
			WithDetail(fmt.Sprintf("go/packages could not load %s.", strings.Join(l.opts.Patterns, " "))).
			Wrap(err)
	}

	res := &Result{Set: &decl.Set{Version: decl.SnapshotVersion}}
	for _, pkg := range pkgs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := l.checkErrors(pkg); err != nil {
			return nil, err
		}
		l.scanPackage(cfg.Fset, pkg, res)
	}

	sort.Strings(res.Files)
	sort.Strings(res.Generated)
	return res, nil
}

func (l *Loader) checkErrors(pkg *packages.Package) error {
	for _, e := range pkg.Errors {
		switch e.Kind {
		case packages.TypeError:
			l.logger.Debug("type error", "package", pkg.PkgPath, "error", e.Msg)
		default:
			return errors.New("E301").
				WithSubject(pkg.PkgPath).
				WithDetail(e.Error())
		}
	}
	return nil
}

// typeScan accumulates one package's owner types in declaration order.
type typeScan struct {
	order []string
	types map[string]*decl.Type
}

func (l *Loader) scanPackage(fset *token.FileSet, pkg *packages.Package, res *Result) {
	ts := &typeScan{types: make(map[string]*decl.Type)}
	var methods []*ast.FuncDecl
	var methodFiles []*fileScope

	for _, f := range pkg.Syntax {
		filename := fset.Position(f.Package).Filename
		if strings.HasSuffix(filename, GeneratedSuffix) {
			res.Generated = append(res.Generated, filename)
			continue
		}
		if l.excluded(filename) {
			continue
		}
		res.Files = append(res.Files, filename)
		fs := newFileScope(fset, pkg, f, filename)

		for _, d := range f.Decls {
			switch d := d.(type) {
			case *ast.GenDecl:
				switch d.Tok {
				case token.TYPE:
					for _, spec := range d.Specs {
						if s, ok := spec.(*ast.TypeSpec); ok {
							l.scanTypeSpec(fs, s, ts)
						}
					}
				case token.VAR, token.CONST:
					res.Diagnostics = append(res.Diagnostics, fs.staticDiagnostics(d)...)
				}
			case *ast.FuncDecl:
				res.Diagnostics = append(res.Diagnostics, fs.localTypeDiagnostics(d.Body)...)
				if d.Recv != nil && len(d.Recv.List) == 1 {
					methods = append(methods, d)
					methodFiles = append(methodFiles, fs)
					continue
				}
				res.Diagnostics = append(res.Diagnostics, fs.funcDiagnostics(d)...)
			}
		}
	}

	for i, m := range methods {
		methodFiles[i].scanMethod(m, ts, res)
	}

	for _, name := range ts.order {
		res.Set.Types = append(res.Set.Types, *ts.types[name])
	}
}

func (l *Loader) excluded(filename string) bool {
	if len(l.exclude) == 0 {
		return false
	}
	dir, err := filepath.Abs(l.opts.Dir)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(dir, filename)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, g := range l.exclude {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func (l *Loader) scanTypeSpec(fs *fileScope, s *ast.TypeSpec, ts *typeScan) {
	st, ok := s.Type.(*ast.StructType)
	if !ok {
		return
	}

	t := &decl.Type{
		Package:     fs.pkg.PkgPath,
		Name:        s.Name.Name,
		PackageName: fs.pkg.Name,
		Dir:         filepath.Dir(fs.filename),
		Generic:     s.TypeParams != nil && len(s.TypeParams.List) > 0,
		Pos:         fs.position(s.Name.Pos()),
	}
	defaultAccess := decl.AccessInternal
	if s.Name.IsExported() {
		defaultAccess = decl.AccessPublic
	}

	for _, field := range st.Fields.List {
		t.Members = append(t.Members, fs.fieldMembers(field, defaultAccess)...)
	}

	if _, dup := ts.types[t.Name]; !dup {
		ts.order = append(ts.order, t.Name)
	}
	ts.types[t.Name] = t
}

// fileScope resolves positions, types and imports within one file.
type fileScope struct {
	fset     *token.FileSet
	pkg      *packages.Package
	file     *ast.File
	filename string
	imports  map[string]decl.Import
}

func newFileScope(fset *token.FileSet, pkg *packages.Package, f *ast.File, filename string) *fileScope {
	fs := &fileScope{
		fset:     fset,
		pkg:      pkg,
		file:     f,
		filename: filename,
		imports:  make(map[string]decl.Import),
	}
	for _, spec := range f.Imports {
		p := strings.Trim(spec.Path.Value, "\"`")
		name := fs.importName(spec, p)
		if name == "_" || name == "." {
			continue
		}
		fs.imports[name] = decl.Import{Name: name, Path: p}
	}
	return fs
}

func (fs *fileScope) importName(spec *ast.ImportSpec, p string) string {
	if spec.Name != nil {
		return spec.Name.Name
	}
	if fs.pkg.TypesInfo != nil {
		if pn := fs.pkg.TypesInfo.PkgNameOf(spec); pn != nil {
			return pn.Name()
		}
	}
	return path.Base(p)
}

func (fs *fileScope) position(p token.Pos) decl.Position {
	pos := fs.fset.Position(p)
	return decl.Position{File: pos.Filename, Line: pos.Line, Column: pos.Column}
}

func (fs *fileScope) typeOf(e ast.Expr) types.Type {
	if fs.pkg.TypesInfo == nil {
		return nil
	}
	return fs.pkg.TypesInfo.TypeOf(e)
}

// fieldMembers returns one member per name of a struct field.
func (fs *fileScope) fieldMembers(field *ast.Field, defaultAccess decl.Accessibility) []decl.Member {
	dirs := directives(field.Doc)
	typ := types.ExprString(field.Type)

	markers, access := fs.markers(dirs, typ)
	if access == "" {
		access = defaultAccess
	}
	imports := fs.exprImports(field.Type)
	for _, mk := range markers {
		if def, ok := mk.Arg(decl.DefaultArg); ok {
			imports = fs.mergeImports(imports, fs.sourceImports(def))
		}
	}

	if len(field.Names) == 0 {
		return []decl.Member{{
			Name:    embeddedName(field.Type),
			Type:    typ,
			Kind:    decl.KindEmbedded,
			Access:  access,
			Markers: markers,
			Pos:     fs.position(field.Type.Pos()),
		}}
	}

	zero := zeroValue(fs.typeOf(field.Type), typ)
	members := make([]decl.Member, 0, len(field.Names))
	for _, ident := range field.Names {
		m := decl.Member{
			Type:    typ,
			Access:  access,
			Zero:    zero,
			Imports: imports,
			Markers: markers,
			Pos:     fs.position(ident.Pos()),
		}
		switch {
		case ident.Name == "_":
			m.Name = "_"
			m.Kind = decl.KindProperty
			m.Getter, m.Setter = true, true
		case ident.IsExported():
			m.Name = ident.Name
			m.Kind = decl.KindField
		default:
			m.Name = upperFirst(ident.Name)
			m.Kind = decl.KindProperty
			m.Getter, m.Setter = true, true
		}
		members = append(members, m)
	}
	return members
}

// markers converts directives to markers. The accessibility directive is
// returned separately; "default=" without a type list takes the field type.
func (fs *fileScope) markers(dirs []directive, typ string) ([]decl.Marker, decl.Accessibility) {
	var markers []decl.Marker
	var access decl.Accessibility
	for _, d := range dirs {
		if d.isAccess {
			access = decl.Accessibility(d.access)
			continue
		}
		mk := d.marker
		mk.Pos = fs.position(d.pos)
		if mk.Name == decl.MarkerName && len(mk.TypeArgs) == 0 {
			if _, ok := mk.Arg(decl.DefaultArg); ok {
				mk.TypeArgs = []string{typ}
			}
		}
		markers = append(markers, mk)
	}
	return markers, access
}

// exprImports returns the imports referenced by selector expressions in e.
func (fs *fileScope) exprImports(e ast.Expr) []decl.Import {
	var out []decl.Import
	ast.Inspect(e, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		if id, ok := sel.X.(*ast.Ident); ok {
			if imp, ok := fs.imports[id.Name]; ok {
				out = fs.mergeImports(out, []decl.Import{imp})
			}
		}
		return true
	})
	return out
}

// sourceImports returns the imports referenced by a default expression.
func (fs *fileScope) sourceImports(src string) []decl.Import {
	e, err := parser.ParseExpr(src)
	if err != nil {
		return nil
	}
	return fs.exprImports(e)
}

func (fs *fileScope) mergeImports(a, b []decl.Import) []decl.Import {
	for _, imp := range b {
		dup := false
		for _, have := range a {
			if have == imp {
				dup = true
				break
			}
		}
		if !dup {
			a = append(a, imp)
		}
	}
	return a
}

// staticDiagnostics reports markers on package-level variables and constants.
func (fs *fileScope) staticDiagnostics(gd *ast.GenDecl) []*errors.Error {
	var diags []*errors.Error
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		doc := vs.Doc
		if doc == nil && len(gd.Specs) == 1 {
			doc = gd.Doc
		}
		if !hasMarker(directives(doc)) {
			continue
		}
		for _, ident := range vs.Names {
			diags = append(diags, fs.unsupported(fs.pkg.Name+"."+ident.Name, ident.Pos(),
				"Package-level declarations are static; only struct fields can declare a property."))
		}
	}
	return diags
}

// funcDiagnostics reports markers on package-level functions.
func (fs *fileScope) funcDiagnostics(fd *ast.FuncDecl) []*errors.Error {
	if !hasMarker(directives(fd.Doc)) {
		return nil
	}
	return []*errors.Error{fs.unsupported(fs.pkg.Name+"."+fd.Name.Name, fd.Name.Pos(),
		"Functions cannot be generated as properties.")}
}

// localTypeDiagnostics reports marked fields of struct types declared
// inside a function body. Methods cannot be declared on local types.
func (fs *fileScope) localTypeDiagnostics(body *ast.BlockStmt) []*errors.Error {
	if body == nil {
		return nil
	}
	var diags []*errors.Error
	ast.Inspect(body, func(n ast.Node) bool {
		s, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := s.Type.(*ast.StructType)
		if !ok {
			return true
		}
		for _, field := range st.Fields.List {
			if !hasMarker(directives(field.Doc)) {
				continue
			}
			for _, name := range field.Names {
				diags = append(diags, fs.unsupported(s.Name.Name+"."+name.Name, name.Pos(),
					s.Name.Name+" is declared inside a function; accessors can only be generated for package-level types."))
			}
			if len(field.Names) == 0 {
				diags = append(diags, fs.unsupported(s.Name.Name+"."+embeddedName(field.Type), field.Type.Pos(),
					s.Name.Name+" is declared inside a function; accessors can only be generated for package-level types."))
			}
		}
		return true
	})
	return diags
}

// scanMethod records a marked method as a member of its receiver type so
// the scanner reports it against the owner.
func (fs *fileScope) scanMethod(fd *ast.FuncDecl, ts *typeScan, res *Result) {
	dirs := directives(fd.Doc)
	if !hasMarker(dirs) {
		return
	}
	recv := receiverType(fd.Recv.List[0].Type)
	t, ok := ts.types[recv]
	if !ok {
		res.Diagnostics = append(res.Diagnostics, fs.unsupported(recv+"."+fd.Name.Name, fd.Name.Pos(),
			"Methods cannot be generated as properties."))
		return
	}
	markers, access := fs.markers(dirs, "")
	t.Members = append(t.Members, decl.Member{
		Name:    fd.Name.Name,
		Type:    types.ExprString(fd.Type),
		Kind:    decl.KindMethod,
		Access:  access,
		Markers: markers,
		Pos:     fs.position(fd.Name.Pos()),
	})
}

func (fs *fileScope) unsupported(subject string, p token.Pos, detail string) *errors.Error {
	pos := fs.position(p)
	return errors.New("P004").
		WithSubject(subject).
		WithPosition(pos.File, pos.Line, pos.Column).
		WithDetail(detail).
		WithSuggestion("Declare the property as an unexported field of a struct type")
}

func hasMarker(dirs []directive) bool {
	for _, d := range dirs {
		if !d.isAccess && d.marker.Name == decl.MarkerName {
			return true
		}
	}
	return false
}

func receiverType(e ast.Expr) string {
	for {
		switch t := e.(type) {
		case *ast.StarExpr:
			e = t.X
		case *ast.IndexExpr:
			e = t.X
		case *ast.IndexListExpr:
			e = t.X
		case *ast.ParenExpr:
			e = t.X
		case *ast.Ident:
			return t.Name
		default:
			return types.ExprString(e)
		}
	}
}

func embeddedName(e ast.Expr) string {
	switch t := e.(type) {
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	}
	return types.ExprString(e)
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if n == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
