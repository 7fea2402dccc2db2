package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/vango-dev/propgen/internal/build"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/incremental"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

func member(name, typ string, markers ...decl.Marker) decl.Member {
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

func marker(typ, def string) decl.Marker {
	m := decl.Marker{Name: decl.MarkerName}
	if typ != "" {
		m.TypeArgs = []string{typ}
	}
	if def != "" {
		m.Args = []decl.Arg{{Name: decl.DefaultArg, Value: def}}
	}
	return m
}

func snapshotSet(isValidDefault string) *decl.Set {
	return &decl.Set{
		Version: decl.SnapshotVersion,
		Types: []decl.Type{
			{
				Package: "example.com/app/ui",
				Name:    "Widget",
				Dir:     "ui",
				Members: []decl.Member{
					member("IsValid", "bool", marker("bool", isValidDefault)),
					member("Label", "string", marker("", "")),
				},
			},
			{
				Package: "example.com/app/ui",
				Name:    "Gadget",
				Dir:     "ui",
				Members: []decl.Member{
					member("Count", "int", marker("", "")),
				},
			},
		},
	}
}

// setupProject writes a propgen.yaml and a snapshot into a temp directory.
func setupProject(t *testing.T, set *decl.Set) (root, snapshot string) {
	t.Helper()
	root = t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "propgen.yaml"), []byte("patterns: [./...]\nlog:\n  level: error\n"), 0644); err != nil {
		t.Fatal(err)
	}
	snapshot = filepath.Join(root, "decls.yaml")
	if err := decl.SaveFile(snapshot, set); err != nil {
		t.Fatal(err)
	}
	return root, snapshot
}

func codeOf(err error) string {
	var perr *errors.Error
	if errors.As(err, &perr) {
		return perr.Code
	}
	return ""
}

func TestRunGenFromSnapshot(t *testing.T) {
	root, snapshot := setupProject(t, snapshotSet("true"))
	flags := &globalFlags{config: root}
	ctx := context.Background()

	if err := runGen(ctx, flags, &genOptions{snapshot: snapshot, format: formatText}, nil); err != nil {
		t.Fatalf("runGen() error = %v", err)
	}

	widget, err := os.ReadFile(filepath.Join(root, "ui", "Widget_props_gen.go"))
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		propgen.Header,
		`var WidgetIsValidProperty = propstore.Register[bool]("IsValid", reflect.TypeFor[Widget](), true)`,
		`var WidgetLabelProperty = propstore.Register[string]("Label", reflect.TypeFor[Widget](), "")`,
	} {
		if !strings.Contains(string(widget), want) {
			t.Errorf("Widget artifact missing %q:\n%s", want, widget)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "ui", "Gadget_props_gen.go")); err != nil {
		t.Errorf("Gadget artifact not written: %v", err)
	}

	// Up to date: check passes.
	if err := runGen(ctx, flags, &genOptions{snapshot: snapshot, format: formatText, check: true}, nil); err != nil {
		t.Errorf("runGen(check) on fresh output error = %v", err)
	}

	// Changed default: check reports drift and does not write.
	if err := decl.SaveFile(snapshot, snapshotSet("false")); err != nil {
		t.Fatal(err)
	}
	err = runGen(ctx, flags, &genOptions{snapshot: snapshot, format: formatText, check: true}, nil)
	if codeOf(err) != "E400" {
		t.Errorf("runGen(check) on drifted output error = %v, want E400", err)
	}
	after, _ := os.ReadFile(filepath.Join(root, "ui", "Widget_props_gen.go"))
	if !bytes.Equal(after, widget) {
		t.Error("check mode must not rewrite artifacts")
	}
}

func TestRunGenRemovesStaleFromOutDir(t *testing.T) {
	root, snapshot := setupProject(t, snapshotSet("true"))
	flags := &globalFlags{config: root}
	out := filepath.Join(root, "gen")

	if err := runGen(context.Background(), flags, &genOptions{snapshot: snapshot, format: formatText, out: out}, nil); err != nil {
		t.Fatal(err)
	}

	set := snapshotSet("true")
	set.Types = set.Types[:1]
	if err := decl.SaveFile(snapshot, set); err != nil {
		t.Fatal(err)
	}
	if err := runGen(context.Background(), flags, &genOptions{snapshot: snapshot, format: formatText, out: out}, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(out, "Gadget_props_gen.go")); !os.IsNotExist(err) {
		t.Error("Gadget artifact should be removed once Gadget has no properties")
	}
	if _, err := os.Stat(filepath.Join(out, "Widget_props_gen.go")); err != nil {
		t.Errorf("Widget artifact missing: %v", err)
	}
}

func TestRunGenDiagnosticsFail(t *testing.T) {
	set := snapshotSet("true")
	// Parameterized marker without a default.
	set.Types[1].Members = append(set.Types[1].Members, member("Ratio", "float64", marker("float64", "")))
	root, snapshot := setupProject(t, set)

	err := runGen(context.Background(), &globalFlags{config: root}, &genOptions{snapshot: snapshot, format: formatText}, nil)
	if codeOf(err) != "E401" {
		t.Fatalf("runGen() error = %v, want E401", err)
	}

	// The valid properties of the same type are still generated.
	gadget, err := os.ReadFile(filepath.Join(root, "ui", "Gadget_props_gen.go"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(gadget), "GadgetCountProperty") {
		t.Errorf("Gadget artifact missing Count:\n%s", gadget)
	}
	if strings.Contains(string(gadget), "Ratio") {
		t.Errorf("Gadget artifact must not contain Ratio:\n%s", gadget)
	}
}

func TestRunGenFlagErrors(t *testing.T) {
	ctx := context.Background()
	flags := &globalFlags{config: t.TempDir()}

	if err := runGen(ctx, flags, &genOptions{format: "yaml"}, nil); codeOf(err) != "E403" {
		t.Errorf("runGen(--format yaml) error = %v, want E403", err)
	}
	if err := runGen(ctx, flags, &genOptions{format: formatText, snapshot: "x.yaml"}, []string{"./..."}); codeOf(err) != "E403" {
		t.Errorf("runGen(--snapshot with patterns) error = %v, want E403", err)
	}
}

func TestRunGenClean(t *testing.T) {
	root, snapshot := setupProject(t, snapshotSet("true"))
	flags := &globalFlags{config: root}
	ctx := context.Background()

	if err := runGen(ctx, flags, &genOptions{snapshot: snapshot, format: formatText}, nil); err != nil {
		t.Fatal(err)
	}
	handwritten := filepath.Join(root, "ui", "widget.go")
	if err := os.WriteFile(handwritten, []byte("package ui\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := runGen(ctx, flags, &genOptions{snapshot: snapshot, format: formatText, clean: true, check: true}, nil); codeOf(err) != "E403" {
		t.Errorf("runGen(--clean --check) error = %v, want E403", err)
	}
	if err := runGen(ctx, flags, &genOptions{snapshot: snapshot, format: formatText, clean: true}, nil); err != nil {
		t.Fatalf("runGen(--clean) error = %v", err)
	}

	for _, name := range []string{"Widget_props_gen.go", "Gadget_props_gen.go"} {
		if _, err := os.Stat(filepath.Join(root, "ui", name)); !os.IsNotExist(err) {
			t.Errorf("%s should be removed", name)
		}
	}
	if _, err := os.Stat(handwritten); err != nil {
		t.Errorf("hand-written file must be kept: %v", err)
	}
}

func TestPrintErrorJSON(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.New("E403").WithSubject("--clean"), "json")

	var rec errors.Record
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec.Code != "E403" || rec.Subject != "--clean" {
		t.Errorf("record = %+v, want E403 --clean", rec)
	}

	buf.Reset()
	printError(&buf, context.Canceled, "json")
	rec = errors.Record{}
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, buf.String())
	}
	if rec.Message != context.Canceled.Error() {
		t.Errorf("Message = %q, want %q", rec.Message, context.Canceled.Error())
	}

	buf.Reset()
	printError(&buf, errors.New("E403"), "text")
	if !strings.Contains(buf.String(), "E403") {
		t.Errorf("text output = %q, want the code", buf.String())
	}
}

func TestNewLogger(t *testing.T) {
	root, _ := setupProject(t, snapshotSet("true"))
	cfg, err := loadConfig(root)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := newLogger(cfg, &globalFlags{logFormat: "json"}); err != nil {
		t.Errorf("newLogger(json) error = %v", err)
	}
	if _, err := newLogger(cfg, &globalFlags{logFormat: "xml"}); codeOf(err) != "E403" {
		t.Errorf("newLogger(xml) error = %v, want E403", err)
	}
}

func TestReport(t *testing.T) {
	widget := propgen.Artifact{Owner: decl.TypeID{Package: "example.com/app/ui", Name: "Widget"}, FileName: "Widget_props_gen.go"}
	res := &incremental.Result{
		Pass:      1,
		Artifacts: []incremental.Output{{Artifact: widget}},
		Diagnostics: []*errors.Error{
			errors.New("P003").WithSubject("Widget.Label").WithPosition("ui/widget.go", 9, 2),
		},
		Stats:    incremental.Stats{Groups: 1, Emitted: 1},
		Duration: time.Millisecond,
	}
	built := &build.Result{
		Written: []string{"/p/ui/Widget_props_gen.go"},
		Removed: []string{"/p/ui/Old_props_gen.go"},
	}
	rep := newReport(res, built, func(incremental.Output) string { return "/p/ui/Widget_props_gen.go" })

	if len(rep.Artifacts) != 2 {
		t.Fatalf("Artifacts = %+v", rep.Artifacts)
	}
	if rep.Artifacts[0].Status != statusWritten || rep.Artifacts[1].Status != statusRemoved {
		t.Errorf("statuses = %q, %q", rep.Artifacts[0].Status, rep.Artifacts[1].Status)
	}

	var buf bytes.Buffer
	if err := writeJSONReport(&buf, rep); err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Artifacts []struct {
			Key    string `json:"key"`
			Status string `json:"status"`
		} `json:"artifacts"`
		Diagnostics []struct {
			Code string `json:"code"`
			Line int    `json:"line"`
		} `json:"diagnostics"`
		Stats struct {
			Emitted int `json:"emitted"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json report does not decode: %v\n%s", err, buf.String())
	}
	if decoded.Artifacts[0].Key != "example.com/app/ui.Widget" || decoded.Stats.Emitted != 1 {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(decoded.Diagnostics) != 1 || decoded.Diagnostics[0].Code != "P003" || decoded.Diagnostics[0].Line != 9 {
		t.Errorf("diagnostics = %+v", decoded.Diagnostics)
	}

	buf.Reset()
	writeTableReport(&buf, rep)
	for _, want := range []string{"TYPE", "example.com/app/ui.Widget", statusWritten, "P003", "ui/widget.go:9"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("table report missing %q:\n%s", want, buf.String())
		}
	}
}

func TestRelativize(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "src", "app")
	set := &decl.Set{Types: []decl.Type{{
		Name: "Widget",
		Dir:  filepath.Join(root, "ui"),
		Pos:  decl.Position{File: filepath.Join(root, "ui", "widget.go"), Line: 3},
		Members: []decl.Member{{
			Name:    "label",
			Pos:     decl.Position{File: filepath.Join(root, "ui", "widget.go"), Line: 5},
			Markers: []decl.Marker{{Name: decl.MarkerName, Pos: decl.Position{File: filepath.Join(string(filepath.Separator), "elsewhere", "x.go")}}},
		}},
	}}}

	relativize(set, root)

	tp := set.Types[0]
	if tp.Dir != "ui" {
		t.Errorf("Dir = %q, want %q", tp.Dir, "ui")
	}
	if tp.Pos.File != "ui/widget.go" || tp.Members[0].Pos.File != "ui/widget.go" {
		t.Errorf("positions = %q, %q", tp.Pos.File, tp.Members[0].Pos.File)
	}
	if got := tp.Members[0].Markers[0].Pos.File; !filepath.IsAbs(got) {
		t.Errorf("path outside root should stay absolute, got %q", got)
	}
}

func TestShortDigest(t *testing.T) {
	d := "sha256:0123456789abcdef0123"
	if got := shortDigest(d); got != "0123456789ab" {
		t.Errorf("shortDigest() = %q, want %q", got, "0123456789ab")
	}
	if got := shortDigest(""); got != "" {
		t.Errorf("shortDigest(\"\") = %q", got)
	}
}
