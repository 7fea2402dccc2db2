package dev

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/vango-dev/propgen/internal/config"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/source"
)

// ChangeType represents the type of file change.
type ChangeType int

const (
	// ChangeGo is a Go source file that may declare properties.
	ChangeGo ChangeType = iota
	// ChangeConfig is the propgen configuration file.
	ChangeConfig
	// ChangeModule is go.mod or go.sum.
	ChangeModule
	// ChangeOther is any other file. Other files never trigger a pass.
	ChangeOther
)

func (t ChangeType) String() string {
	switch t {
	case ChangeGo:
		return "go"
	case ChangeConfig:
		return "config"
	case ChangeModule:
		return "module"
	default:
		return "other"
	}
}

// Change represents a detected file change.
type Change struct {
	Path    string
	Type    ChangeType
	Removed bool
}

// WatcherConfig configures the file watcher.
type WatcherConfig struct {
	// Root is the project root. Ignore globs containing a slash are matched
	// against paths relative to it.
	Root string

	// Paths are the directories to watch. Defaults to Root.
	Paths []string

	// Ignore patterns to skip (globs).
	Ignore []string

	// Interval is the polling interval.
	Interval time.Duration
}

// DefaultIgnore contains default patterns to ignore.
// Generated artifacts are always ignored so that writing them does not
// trigger another pass.
var DefaultIgnore = []string{
	"*" + source.GeneratedSuffix,
	"*_test.go",
	".git",
	"vendor",
	"testdata",
	"node_modules",
	"*.tmp",
	"*.swp",
	"*~",
}

type ignoreRule struct {
	pattern string
	glob    glob.Glob
	segment bool
	path    bool
}

// Watcher polls the project for changes to Go sources.
type Watcher struct {
	config      WatcherConfig
	rules       []ignoreRule
	onChange    func([]Change)
	mu          sync.Mutex
	running     bool
	initialized bool
	stopCh      chan struct{}
	timestamps  map[string]time.Time
}

// NewWatcher creates a new file watcher. Invalid ignore globs are reported
// as E102.
func NewWatcher(cfg WatcherConfig) (*Watcher, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = config.DefaultWatchInterval
	}
	if len(cfg.Paths) == 0 && cfg.Root != "" {
		cfg.Paths = []string{cfg.Root}
	}

	patterns := append(append([]string(nil), DefaultIgnore...), cfg.Ignore...)
	rules := make([]ignoreRule, 0, len(patterns))
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		rule := ignoreRule{
			pattern: pattern,
			path:    strings.Contains(pattern, "/"),
		}
		if strings.ContainsAny(pattern, "*?[{") {
			g, err := glob.Compile(pattern, '/')
			if err != nil {
				return nil, errors.New("E102").
					WithDetail("Invalid watch.ignore glob " + pattern + ": " + err.Error()).
					WithSubject("watch.ignore").
					Wrap(err)
			}
			rule.glob = g
		} else {
			rule.segment = true
		}
		rules = append(rules, rule)
	}

	return &Watcher{
		config:     cfg,
		rules:      rules,
		timestamps: make(map[string]time.Time),
	}, nil
}

// OnChange sets the callback for file changes. The callback receives every
// relevant change found by one poll, sorted by path.
func (w *Watcher) OnChange(fn func([]Change)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = fn
}

// Start begins watching for file changes. It blocks until ctx is done or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.stopCh = make(chan struct{})
	stopCh := w.stopCh
	w.mu.Unlock()

	w.scanInitial()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return ctx.Err()
		case <-stopCh:
			return nil
		case <-ticker.C:
			w.checkForChanges()
		}
	}
}

// Stop stops the watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		close(w.stopCh)
		w.running = false
	}
}

// IsRunning returns whether the watcher is running.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) walk(fn func(p string, info os.FileInfo)) {
	for _, root := range w.config.Paths {
		filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if info.IsDir() {
				if p != root && w.shouldIgnore(p) {
					return filepath.SkipDir
				}
				return nil
			}
			if w.shouldIgnore(p) || classifyChange(p) == ChangeOther {
				return nil
			}
			fn(p, info)
			return nil
		})
	}
}

// scanInitial builds the initial timestamp map.
func (w *Watcher) scanInitial() {
	w.walk(func(p string, info os.FileInfo) {
		w.mu.Lock()
		w.timestamps[p] = info.ModTime()
		w.mu.Unlock()
	})

	w.mu.Lock()
	w.initialized = true
	w.mu.Unlock()
}

// checkForChanges scans for modified, created and removed files.
func (w *Watcher) checkForChanges() {
	w.mu.Lock()
	callback := w.onChange
	initialized := w.initialized
	w.mu.Unlock()

	if callback == nil {
		return
	}

	var changes []Change
	seen := make(map[string]struct{})

	w.walk(func(p string, info os.FileInfo) {
		seen[p] = struct{}{}

		w.mu.Lock()
		lastMod, exists := w.timestamps[p]
		modTime := info.ModTime()
		if !exists || !modTime.Equal(lastMod) {
			w.timestamps[p] = modTime
		}
		w.mu.Unlock()

		if (exists && !modTime.Equal(lastMod)) || (!exists && initialized) {
			changes = append(changes, Change{Path: p, Type: classifyChange(p)})
		}
	})

	w.mu.Lock()
	for p := range w.timestamps {
		if _, ok := seen[p]; !ok {
			delete(w.timestamps, p)
			changes = append(changes, Change{Path: p, Type: classifyChange(p), Removed: true})
		}
	}
	w.mu.Unlock()

	if len(changes) == 0 {
		return
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	callback(changes)
}

// shouldIgnore checks if a path should be ignored.
func (w *Watcher) shouldIgnore(fullPath string) bool {
	name := filepath.Base(fullPath)
	normalized := filepath.ToSlash(fullPath)
	rel := normalized
	if w.config.Root != "" {
		if r, err := filepath.Rel(w.config.Root, fullPath); err == nil && !strings.HasPrefix(r, "..") {
			rel = filepath.ToSlash(r)
		}
	}

	for _, rule := range w.rules {
		switch {
		case rule.glob != nil && rule.path:
			if rule.glob.Match(rel) {
				return true
			}
		case rule.glob != nil:
			if rule.glob.Match(name) {
				return true
			}
		case rule.path:
			if pathMatchesSegments(rel, rule.pattern) {
				return true
			}
		case rule.segment:
			if name == rule.pattern || pathHasSegment(rel, rule.pattern) {
				return true
			}
		}
	}

	return false
}

func pathHasSegment(path, segment string) bool {
	if segment == "" {
		return false
	}
	for _, part := range splitPathSegments(path) {
		if part == segment {
			return true
		}
	}
	return false
}

func pathMatchesSegments(path, pattern string) bool {
	pathParts := splitPathSegments(path)
	patternParts := splitPathSegments(pattern)
	if len(patternParts) == 0 || len(patternParts) > len(pathParts) {
		return false
	}

	for i := 0; i <= len(pathParts)-len(patternParts); i++ {
		match := true
		for j := range patternParts {
			if pathParts[i+j] != patternParts[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}

	return false
}

func splitPathSegments(path string) []string {
	if path == "" {
		return nil
	}
	parts := strings.Split(path, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" && part != "." {
			result = append(result, part)
		}
	}
	return result
}

// classifyChange determines the type of change based on the file name.
func classifyChange(p string) ChangeType {
	name := filepath.Base(p)
	for _, cfgName := range config.ConfigFileNames {
		if name == cfgName {
			return ChangeConfig
		}
	}
	switch {
	case name == "go.mod" || name == "go.sum":
		return ChangeModule
	case strings.EqualFold(filepath.Ext(name), ".go"):
		return ChangeGo
	default:
		return ChangeOther
	}
}
