package build

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/opencontainers/go-digest"

	"github.com/vango-dev/propgen/internal/config"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

func artifact(dir, name, body string) propgen.Artifact {
	src := []byte(propgen.Header + "\n\npackage ui\n" + body)
	return propgen.Artifact{
		Owner:    decl.TypeID{Package: "example.com/app/ui", Name: name},
		Dir:      dir,
		FileName: propgen.FileName(decl.TypeID{Name: name}),
		Source:   src,
		Digest:   digest.FromBytes(src),
	}
}

func TestNew(t *testing.T) {
	cfg := config.New()
	cfg.Out = "gen"

	builder := New(cfg, Options{Root: "/project"})

	if builder.options.Root != "/project" {
		t.Errorf("Root = %q, want %q", builder.options.Root, "/project")
	}
	if builder.options.Out != "gen" {
		t.Errorf("Out = %q, want %q", builder.options.Out, "gen")
	}
}

func TestPath(t *testing.T) {
	a := artifact("ui", "Widget", "")

	b := New(nil, Options{Root: "/project"})
	if got, want := b.Path(a), filepath.Join("/project", "ui", "Widget_props_gen.go"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}

	b = New(nil, Options{Root: "/project", Out: "/out"})
	if got, want := b.Path(a), filepath.Join("/out", "Widget_props_gen.go"); got != want {
		t.Errorf("Path() with Out = %q, want %q", got, want)
	}
}

func TestApply(t *testing.T) {
	root := t.TempDir()
	widget := artifact("ui", "Widget", "// v1\n")
	gadget := artifact("ui", "Gadget", "// v1\n")

	var steps []string
	b := New(nil, Options{Root: root, OnProgress: func(s string) { steps = append(steps, s) }})

	res, err := b.Apply(context.Background(), []propgen.Artifact{widget, gadget}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(res.Written) != 2 {
		t.Fatalf("Written = %v, want 2 files", res.Written)
	}
	if len(steps) != 2 {
		t.Errorf("progress steps = %v, want 2", steps)
	}

	got, err := os.ReadFile(filepath.Join(root, "ui", "Widget_props_gen.go"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(widget.Source) {
		t.Errorf("Widget artifact = %q, want %q", got, widget.Source)
	}

	// Second apply with one change: only the changed file is written.
	widget = artifact("ui", "Widget", "// v2\n")
	res, err = b.Apply(context.Background(), []propgen.Artifact{widget, gadget}, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if len(res.Written) != 1 || filepath.Base(res.Written[0]) != "Widget_props_gen.go" {
		t.Errorf("Written = %v, want only Widget", res.Written)
	}
	if len(res.Unchanged) != 1 {
		t.Errorf("Unchanged = %v, want only Gadget", res.Unchanged)
	}

	entries, err := os.ReadDir(filepath.Join(root, "ui"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("ui has %d entries, want 2 (no temp files left behind)", len(entries))
	}
}

func TestApplyRemovesStale(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "ui")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}

	stale := filepath.Join(dir, "Old_props_gen.go")
	if err := os.WriteFile(stale, []byte(propgen.Header+"\n\npackage ui\n"), 0644); err != nil {
		t.Fatal(err)
	}
	foreign := filepath.Join(dir, "Hand_props_gen.go")
	if err := os.WriteFile(foreign, []byte("package ui\n"), 0644); err != nil {
		t.Fatal(err)
	}

	b := New(nil, Options{Root: root})
	res, err := b.Apply(context.Background(), []propgen.Artifact{artifact("ui", "Widget", "")}, []string{stale, foreign})
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if len(res.Removed) != 1 || res.Removed[0] != stale {
		t.Errorf("Removed = %v, want [%s]", res.Removed, stale)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale artifact should be removed")
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Error("file without the propgen header must be kept")
	}
}

func TestApplyCheck(t *testing.T) {
	root := t.TempDir()
	widget := artifact("ui", "Widget", "// v1\n")

	writer := New(nil, Options{Root: root})
	if _, err := writer.Apply(context.Background(), []propgen.Artifact{widget}, nil); err != nil {
		t.Fatal(err)
	}

	checker := New(nil, Options{Root: root, Check: true})
	res, err := checker.Apply(context.Background(), []propgen.Artifact{widget}, nil)
	if err != nil {
		t.Fatalf("Apply(check) on up-to-date tree error = %v", err)
	}
	if len(res.Drifted) != 0 {
		t.Errorf("Drifted = %v, want none", res.Drifted)
	}

	changed := artifact("ui", "Widget", "// v2\n")
	res, err = checker.Apply(context.Background(), []propgen.Artifact{changed}, nil)
	if err == nil {
		t.Fatal("Apply(check) on drifted tree should fail")
	}
	var perr *errors.Error
	if !errors.As(err, &perr) || perr.Code != "E400" {
		t.Errorf("error = %v, want E400", err)
	}
	if len(res.Drifted) != 1 {
		t.Errorf("Drifted = %v, want 1 file", res.Drifted)
	}

	got, _ := os.ReadFile(checker.Path(widget))
	if string(got) != string(widget.Source) {
		t.Error("check mode must not write")
	}
}

func TestApplyOutDir(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "gen")
	b := New(nil, Options{Root: root, Out: out})

	if _, err := b.Apply(context.Background(), []propgen.Artifact{artifact("ui", "Widget", ""), artifact("ui", "Gadget", "")}, nil); err != nil {
		t.Fatal(err)
	}

	// Gadget no longer has properties; the output directory is listed for
	// stale artifacts.
	res, err := b.Apply(context.Background(), []propgen.Artifact{artifact("ui", "Widget", "")}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Removed) != 1 || filepath.Base(res.Removed[0]) != "Gadget_props_gen.go" {
		t.Errorf("Removed = %v, want Gadget", res.Removed)
	}
}

func TestApplySameNameOwners(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "gen")
	b := New(nil, Options{Root: root, Out: out})

	a := artifact("a", "Widget", "// a\n")
	a.Owner.Package = "example.com/a"
	other := artifact("b", "Widget", "// b\n")
	other.Owner.Package = "example.com/b"
	gadget := artifact("a", "Gadget", "")

	res, err := b.Apply(context.Background(), []propgen.Artifact{a, other, gadget}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Written) != 3 {
		t.Fatalf("Written = %v, want 3 files", res.Written)
	}

	want := map[string]string{
		"example.com/a.Widget":      filepath.Join(out, "example_com_a_Widget_props_gen.go"),
		"example.com/b.Widget":      filepath.Join(out, "example_com_b_Widget_props_gen.go"),
		"example.com/app/ui.Gadget": filepath.Join(out, "Gadget_props_gen.go"),
	}
	for key, path := range want {
		if res.Targets[key] != path {
			t.Errorf("Targets[%s] = %q, want %q", key, res.Targets[key], path)
		}
	}
	for _, src := range []propgen.Artifact{a, other} {
		got, err := os.ReadFile(res.Targets[src.Key()])
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(src.Source) {
			t.Errorf("%s content = %q, want %q", src.Key(), got, src.Source)
		}
	}
}

func TestTargetsCollision(t *testing.T) {
	b := New(nil, Options{Root: "/project", Out: "/out"})
	a := artifact("a", "Widget", "")
	a.Owner.Package = "example.com/a-b"
	other := artifact("b", "Widget", "")
	other.Owner.Package = "example.com/a_b"

	_, err := b.Targets([]propgen.Artifact{a, other})
	var perr *errors.Error
	if !errors.As(err, &perr) || perr.Code != "E404" {
		t.Fatalf("Targets() error = %v, want E404", err)
	}

	targets, err := b.Targets([]propgen.Artifact{a})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := targets[a.Key()], filepath.Join("/out", "Widget_props_gen.go"); got != want {
		t.Errorf("Targets() = %q, want %q", got, want)
	}
}

func TestClean(t *testing.T) {
	root := t.TempDir()
	b := New(nil, Options{Root: root})
	a := artifact("ui", "Widget", "")
	if _, err := b.Apply(context.Background(), []propgen.Artifact{a}, nil); err != nil {
		t.Fatal(err)
	}

	removed, err := b.Clean([]string{b.Path(a)})
	if err != nil {
		t.Fatalf("Clean() error = %v", err)
	}
	if len(removed) != 1 {
		t.Errorf("Clean() removed %v, want 1 file", removed)
	}
}

func TestApplyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(nil, Options{Root: t.TempDir()})
	if _, err := b.Apply(ctx, []propgen.Artifact{artifact("ui", "Widget", "")}, nil); err != context.Canceled {
		t.Errorf("Apply() error = %v, want context.Canceled", err)
	}
}
