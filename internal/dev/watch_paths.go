package dev

import (
	"path/filepath"
	"strings"

	"github.com/vango-dev/propgen/internal/config"
)

// CollectWatchPaths returns a normalized list of watch paths for the project.
// Relative package patterns map to their directory; import path patterns
// cannot be mapped without loading, so they widen the watch to the root.
func CollectWatchPaths(cfg *config.Config) []string {
	projectDir := cfg.Dir()
	paths := []string{}

	for _, pattern := range cfg.Patterns {
		dir, ok := patternDir(pattern)
		if !ok {
			return []string{filepath.Clean(projectDir)}
		}
		paths = append(paths, resolvePath(projectDir, dir))
	}
	if len(paths) == 0 {
		return []string{filepath.Clean(projectDir)}
	}

	unique := make([]string, 0, len(paths))
	seen := make(map[string]struct{}, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		unique = append(unique, clean)
	}

	return pruneNested(unique)
}

// patternDir returns the directory named by a relative package pattern.
func patternDir(pattern string) (string, bool) {
	pattern = filepath.ToSlash(strings.TrimSpace(pattern))
	if pattern != "." && pattern != ".." && !strings.HasPrefix(pattern, "./") && !strings.HasPrefix(pattern, "../") && !filepath.IsAbs(pattern) {
		return "", false
	}
	pattern = strings.TrimSuffix(pattern, "/...")
	if pattern == "..." {
		pattern = "."
	}
	if strings.Contains(pattern, "...") {
		return "", false
	}
	return filepath.FromSlash(pattern), true
}

// pruneNested drops paths contained in another watched path.
func pruneNested(paths []string) []string {
	result := paths[:0]
	for i, p := range paths {
		nested := false
		for j, q := range paths {
			if i != j && q != p && isWithin(q, p) {
				nested = true
				break
			}
		}
		if !nested {
			result = append(result, p)
		}
	}
	return result
}

func isWithin(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func resolvePath(projectDir, path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}
