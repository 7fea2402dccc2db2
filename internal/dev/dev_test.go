package dev

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"
	"github.com/opencontainers/go-digest"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/propgen/internal/build"
	"github.com/vango-dev/propgen/internal/config"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/incremental"
	"github.com/vango-dev/propgen/internal/source"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

func touch(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	// Push mtime forward so coarse file system clocks still see a change.
	future := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, future, future); err != nil {
		t.Fatal(err)
	}
}

func startWatcher(t *testing.T, cfg WatcherConfig) (*Watcher, chan []Change) {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = 20 * time.Millisecond
	}
	watcher, err := NewWatcher(cfg)
	if err != nil {
		t.Fatal(err)
	}

	changes := make(chan []Change, 10)
	watcher.OnChange(func(c []Change) {
		changes <- c
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go watcher.Start(ctx)

	// Wait for initial scan
	time.Sleep(100 * time.Millisecond)
	return watcher, changes
}

func waitChanges(t *testing.T, changes chan []Change) []Change {
	t.Helper()
	select {
	case batch := <-changes:
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for change")
		return nil
	}
}

func TestWatcher_Basic(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "widget.go")
	touch(t, testFile, "package ui")

	watcher, changes := startWatcher(t, WatcherConfig{Root: tmpDir})

	touch(t, testFile, "package ui\n\ntype Widget struct{}")

	batch := waitChanges(t, changes)
	if len(batch) != 1 {
		t.Fatalf("batch = %v, want one change", batch)
	}
	if batch[0].Type != ChangeGo {
		t.Errorf("Type = %v, want %v", batch[0].Type, ChangeGo)
	}
	if batch[0].Path != testFile {
		t.Errorf("Path = %q, want %q", batch[0].Path, testFile)
	}

	watcher.Stop()
	if watcher.IsRunning() {
		t.Error("Watcher should not be running after Stop")
	}
}

func TestWatcher_BatchesAndRemoval(t *testing.T) {
	tmpDir := t.TempDir()
	a := filepath.Join(tmpDir, "a.go")
	b := filepath.Join(tmpDir, "pkg", "b.go")
	touch(t, a, "package ui")

	_, changes := startWatcher(t, WatcherConfig{Root: tmpDir, Interval: 200 * time.Millisecond})

	touch(t, b, "package pkg")
	if err := os.Remove(a); err != nil {
		t.Fatal(err)
	}

	var got []Change
	for len(got) < 2 {
		got = append(got, waitChanges(t, changes)...)
	}
	sort.Slice(got, func(i, j int) bool { return got[i].Path < got[j].Path })
	if got[0].Path != a || !got[0].Removed {
		t.Errorf("first change = %+v, want removal of %s", got[0], a)
	}
	if got[1].Path != b || got[1].Removed {
		t.Errorf("second change = %+v, want creation of %s", got[1], b)
	}
}

func TestWatcher_IgnoresGenerated(t *testing.T) {
	tmpDir := t.TempDir()
	_, changes := startWatcher(t, WatcherConfig{Root: tmpDir})

	touch(t, filepath.Join(tmpDir, "Widget"+source.GeneratedSuffix), "package ui")
	touch(t, filepath.Join(tmpDir, "notes.txt"), "hello")
	touch(t, filepath.Join(tmpDir, "widget.go"), "package ui")

	batch := waitChanges(t, changes)
	for _, c := range batch {
		if filepath.Base(c.Path) != "widget.go" {
			t.Errorf("unexpected change %q", c.Path)
		}
	}
}

func TestWatcher_Ignore(t *testing.T) {
	tmpDir := t.TempDir()

	watcher, err := NewWatcher(WatcherConfig{
		Root:   tmpDir,
		Ignore: []string{"internal/legacy/**", "mocks", "*_mock.go"},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"foo_test.go", true},
		{"Widget_props_gen.go", true},
		{filepath.Join("vendor", "lib.go"), true},
		{filepath.Join("internal", "legacy", "deep", "old.go"), true},
		{filepath.Join("internal", "current", "new.go"), false},
		{filepath.Join("ui", "mocks", "m.go"), true},
		{"store_mock.go", true},
		{"main.go", false},
	}
	for _, tt := range tests {
		if got := watcher.shouldIgnore(filepath.Join(tmpDir, tt.path)); got != tt.want {
			t.Errorf("shouldIgnore(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestWatcher_IgnoreSegments(t *testing.T) {
	watcher, err := NewWatcher(WatcherConfig{
		Paths:  []string{"."},
		Ignore: []string{"tmp"},
	})
	if err != nil {
		t.Fatal(err)
	}

	if !watcher.shouldIgnore(filepath.Join("foo", "tmp", "bar.go")) {
		t.Error("Should ignore tmp directory segment")
	}
	if watcher.shouldIgnore(filepath.Join("foo", "attempt.go")) {
		t.Error("Should not ignore substring match")
	}
}

func TestNewWatcher_InvalidGlob(t *testing.T) {
	_, err := NewWatcher(WatcherConfig{Paths: []string{"."}, Ignore: []string{"[unclosed"}})
	if err == nil {
		t.Fatal("NewWatcher() should reject an invalid glob")
	}
	var perr *errors.Error
	if !errors.As(err, &perr) || perr.Code != "E102" {
		t.Errorf("error = %v, want E102", err)
	}
}

func TestWatcher_IsRunning(t *testing.T) {
	watcher, err := NewWatcher(WatcherConfig{Paths: []string{"."}})
	if err != nil {
		t.Fatal(err)
	}

	if watcher.IsRunning() {
		t.Error("Watcher should not be running initially")
	}
}

func TestClassifyChange(t *testing.T) {
	tests := []struct {
		path string
		want ChangeType
	}{
		{"main.go", ChangeGo},
		{filepath.Join("ui", "widget.go"), ChangeGo},
		{"propgen.yaml", ChangeConfig},
		{"propgen.json", ChangeConfig},
		{"go.mod", ChangeModule},
		{"go.sum", ChangeModule},
		{"README.md", ChangeOther},
		{"data.json", ChangeOther},
	}

	for _, tt := range tests {
		got := classifyChange(tt.path)
		if got != tt.want {
			t.Errorf("classifyChange(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestCollectWatchPaths(t *testing.T) {
	root := t.TempDir()
	cfgPath := filepath.Join(root, config.ConfigFileName)
	if err := os.WriteFile(cfgPath, []byte("patterns: [./ui/..., ./ui/forms, ./api]\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.LoadFile(cfgPath)
	if err != nil {
		t.Fatal(err)
	}

	got := CollectWatchPaths(cfg)
	want := []string{filepath.Join(root, "ui"), filepath.Join(root, "api")}
	if len(got) != len(want) {
		t.Fatalf("CollectWatchPaths() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("CollectWatchPaths()[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	cfg.Patterns = []string{"example.com/app/..."}
	if got := CollectWatchPaths(cfg); len(got) != 1 || got[0] != root {
		t.Errorf("CollectWatchPaths() with import path = %v, want [%s]", got, root)
	}
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func waitClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("Unmarshal(%s) error = %v", data, err)
	}
	return ev
}

func TestHub(t *testing.T) {
	hub := NewHub(nil)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer ts.Close()
	defer hub.Close()

	first, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	waitClients(t, hub, 1)

	hub.Publish(Event{Type: EventPass, Pass: 2, Changed: []string{"example.com/app/ui.Widget"}})

	ev := readEvent(t, first)
	if ev.Type != EventPass || ev.Pass != 2 {
		t.Errorf("event = %+v, want pass 2", ev)
	}
	if len(ev.Changed) != 1 || ev.Changed[0] != "example.com/app/ui.Widget" {
		t.Errorf("Changed = %v", ev.Changed)
	}

	// A late subscriber receives the retained event.
	second, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/"), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()

	if ev := readEvent(t, second); ev.Pass != 2 {
		t.Errorf("retained event pass = %d, want 2", ev.Pass)
	}
}

func TestHubPublishEncodeError(t *testing.T) {
	var logs strings.Builder
	hub := NewHub(slog.New(slog.NewTextHandler(&logs, nil)))

	hub.Publish(Event{Type: EventPass, Pass: 1})
	// Invalid UTF-8 does not encode.
	hub.Publish(Event{Type: EventError, Error: "load failed: \xff"})

	if !strings.Contains(logs.String(), "encode watch event") {
		t.Errorf("encode error not logged:\n%s", logs.String())
	}
	var ev Event
	if err := json.Unmarshal(hub.last, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Type != EventPass || ev.Pass != 1 {
		t.Errorf("retained event = %+v, want the last event that encoded", ev)
	}
}

func TestPassEvent(t *testing.T) {
	w := propgen.Artifact{Owner: decl.TypeID{Package: "example.com/app/ui", Name: "Widget"}}
	g := propgen.Artifact{Owner: decl.TypeID{Package: "example.com/app/ui", Name: "Gadget"}}
	res := &incremental.Result{
		Pass: 4,
		Artifacts: []incremental.Output{
			{Artifact: w},
			{Artifact: g, Reused: true},
		},
		Diagnostics: []*errors.Error{
			errors.New("P001").WithSubject("Gadget.Ratio").WithPosition("ui/gadget.go", 7, 2),
		},
		Duration: 1500 * time.Microsecond,
	}

	ev := PassEvent(res)
	if ev.Type != EventPass || ev.Pass != 4 {
		t.Errorf("event = %+v", ev)
	}
	if len(ev.Changed) != 1 || ev.Changed[0] != w.Key() {
		t.Errorf("Changed = %v, want only the re-emitted artifact", ev.Changed)
	}
	if len(ev.Diagnostics) != 1 {
		t.Fatalf("Diagnostics = %v", ev.Diagnostics)
	}
	d := ev.Diagnostics[0]
	if d.Code != "P001" || d.Subject != "Gadget.Ratio" || d.Line != 7 {
		t.Errorf("diagnostic = %+v", d)
	}
	if ev.Duration != "2ms" {
		t.Errorf("Duration = %q, want %q", ev.Duration, "2ms")
	}
}

type fakeArtifacts struct {
	artifacts []propgen.Artifact
}

func (f fakeArtifacts) Artifacts() []propgen.Artifact { return f.artifacts }
func (f fakeArtifacts) Passes() int64                 { return 3 }

func TestServer(t *testing.T) {
	src := []byte(propgen.Header + "\n\npackage ui\n")
	widget := propgen.Artifact{
		Owner:    decl.TypeID{Package: "example.com/app/ui", Name: "Widget"},
		Dir:      "ui",
		FileName: "Widget_props_gen.go",
		Source:   src,
		Digest:   digest.FromBytes(src),
	}

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "propgen_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	srv := NewServer(ServerOptions{
		Artifacts: fakeArtifacts{artifacts: []propgen.Artifact{widget}},
		Gatherer:  reg,
		Hub:       NewHub(nil),
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	t.Run("healthz", func(t *testing.T) {
		code, body := get("/healthz")
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		var h health
		if err := json.Unmarshal([]byte(body), &h); err != nil {
			t.Fatal(err)
		}
		if h.Status != "ok" || h.Passes != 3 || h.Artifacts != 1 {
			t.Errorf("health = %+v", h)
		}
	})

	t.Run("artifacts", func(t *testing.T) {
		code, body := get("/artifacts")
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		var list []artifactInfo
		if err := json.Unmarshal([]byte(body), &list); err != nil {
			t.Fatal(err)
		}
		if len(list) != 1 || list[0].Key != "example.com/app/ui.Widget" || list[0].Digest != widget.Digest.String() {
			t.Errorf("artifacts = %+v", list)
		}
	})

	t.Run("artifact source", func(t *testing.T) {
		code, body := get("/artifacts/example.com/app/ui.Widget")
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if body != string(src) {
			t.Errorf("body = %q, want %q", body, src)
		}
		if code, _ := get("/artifacts/example.com/app/ui.Missing"); code != http.StatusNotFound {
			t.Errorf("missing artifact status = %d, want 404", code)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		code, body := get("/metrics")
		if code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
		if !strings.Contains(body, "propgen_test_total 1") {
			t.Errorf("metrics output missing counter:\n%s", body)
		}
	})

	t.Run("events", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/events"), nil)
		if err != nil {
			t.Fatalf("Dial(/events) error = %v", err)
		}
		conn.Close()
	})
}

type fakeLoader struct {
	mu  sync.Mutex
	set *decl.Set
}

func (l *fakeLoader) Load(ctx context.Context) (*source.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &source.Result{Set: l.set}, nil
}

func (l *fakeLoader) update(set *decl.Set) {
	l.mu.Lock()
	l.set = set
	l.mu.Unlock()
}

func widgetSet(def string) *decl.Set {
	return &decl.Set{
		Version: decl.SnapshotVersion,
		Types: []decl.Type{{
			Package: "example.com/app/ui",
			Name:    "Widget",
			Dir:     "ui",
			Members: []decl.Member{{
				Name:   "IsValid",
				Type:   "bool",
				Kind:   decl.KindProperty,
				Access: decl.AccessPublic,
				Getter: true,
				Setter: true,
				Markers: []decl.Marker{{
					Name:     decl.MarkerName,
					TypeArgs: []string{"bool"},
					Args:     []decl.Arg{{Name: decl.DefaultArg, Value: def}},
				}},
			}},
		}},
	}
}

func TestSession(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "ui", "widget.go"), "package ui")

	watcher, err := NewWatcher(WatcherConfig{Root: root, Interval: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	loader := &fakeLoader{set: widgetSet("true")}
	reports := make(chan PassReport, 10)
	session := NewSession(SessionOptions{
		Watcher:    watcher,
		Loader:     loader,
		Controller: incremental.New(propgen.NewEmitter(propgen.DefaultEmitConfig())),
		Builder:    build.New(nil, build.Options{Root: root}),
		OnPass:     func(r PassReport) { reports <- r },
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	next := func() PassReport {
		t.Helper()
		select {
		case r := <-reports:
			if r.Err != nil {
				t.Fatalf("pass error = %v", r.Err)
			}
			return r
		case <-time.After(3 * time.Second):
			t.Fatal("Timeout waiting for pass")
			return PassReport{}
		}
	}

	artifactPath := filepath.Join(root, "ui", "Widget_props_gen.go")

	initial := next()
	if len(initial.Changes) != 0 || len(initial.Build.Written) != 1 {
		t.Fatalf("initial pass = %+v", initial)
	}
	got, err := os.ReadFile(artifactPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), `Register[bool]("IsValid", reflect.TypeFor[Widget](), true)`) {
		t.Errorf("artifact missing registration:\n%s", got)
	}

	// Let the watcher take its initial scan before editing.
	time.Sleep(100 * time.Millisecond)
	loader.update(widgetSet("false"))
	touch(t, filepath.Join(root, "ui", "widget.go"), "package ui\n")

	second := next()
	if len(second.Changes) == 0 {
		t.Error("second pass should carry its triggering changes")
	}
	if second.Result.Pass != 2 || len(second.Build.Written) != 1 {
		t.Errorf("second pass = %+v", second)
	}
	got, _ = os.ReadFile(artifactPath)
	if !strings.Contains(string(got), "reflect.TypeFor[Widget](), false)") {
		t.Errorf("artifact not regenerated:\n%s", got)
	}

	touch(t, filepath.Join(root, config.ConfigFileName), "patterns: [./...]\n")
	select {
	case err := <-done:
		if err != ErrConfigChanged {
			t.Errorf("Run() error = %v, want ErrConfigChanged", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run() did not stop on configuration change")
	}
}
