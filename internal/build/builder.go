package build

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vango-dev/propgen/internal/config"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/source"
	"github.com/vango-dev/propgen/pkg/propgen"
)

// Result describes what Apply did on disk.
type Result struct {
	// Duration is how long the apply took.
	Duration time.Duration

	// Written are the artifact paths whose content changed.
	Written []string

	// Unchanged are the artifact paths already up to date.
	Unchanged []string

	// Removed are stale artifact paths that were deleted.
	Removed []string

	// Drifted are the paths that differ from the generated output. Only set
	// in check mode, where nothing is written.
	Drifted []string

	// Targets maps artifact keys to the files they were written to.
	Targets map[string]string
}

// Options configures the builder.
type Options struct {
	// Root resolves relative artifact directories. It is the project root.
	Root string

	// Out redirects every artifact into one directory.
	Out string

	// Check compares instead of writing.
	Check bool

	// Logger receives one debug record per file. Defaults to slog.Default().
	Logger *slog.Logger

	// OnProgress is called with progress updates.
	OnProgress func(step string)
}

// Builder writes artifacts to disk.
type Builder struct {
	options Options
	logger  *slog.Logger
}

// New creates a new builder. Unset options take their values from cfg.
func New(cfg *config.Config, options Options) *Builder {
	if cfg != nil {
		if options.Root == "" {
			options.Root = cfg.Dir()
		}
		if options.Out == "" {
			options.Out = cfg.OutPath()
		}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		options: options,
		logger:  logger,
	}
}

// Path returns the file an artifact is written to when no other artifact
// shares its directory and simple name. Targets settles collisions.
func (b *Builder) Path(a propgen.Artifact) string {
	return filepath.Join(b.dir(a), a.FileName)
}

func (b *Builder) dir(a propgen.Artifact) string {
	if b.options.Out != "" {
		return b.options.Out
	}
	dir := a.Dir
	if !filepath.IsAbs(dir) && b.options.Root != "" {
		dir = filepath.Join(b.options.Root, dir)
	}
	return dir
}

// Targets returns the file of every artifact keyed by artifact key.
// Artifacts whose Path collides, such as a.Widget and b.Widget in one output
// directory, are written under propgen.QualifiedFileName instead. A
// collision that survives qualification is an E404 error.
func (b *Builder) Targets(artifacts []propgen.Artifact) (map[string]string, error) {
	plain := make(map[string]int, len(artifacts))
	for _, a := range artifacts {
		plain[filepath.Clean(b.Path(a))]++
	}

	targets := make(map[string]string, len(artifacts))
	owners := make(map[string]string, len(artifacts))
	for _, a := range artifacts {
		target := filepath.Clean(b.Path(a))
		if plain[target] > 1 {
			target = filepath.Join(b.dir(a), propgen.QualifiedFileName(a.Owner))
		}
		if prev, dup := owners[target]; dup {
			return nil, errors.New("E404").
				WithDetail(fmt.Sprintf("%s and %s both resolve to %s.", prev, a.Key(), target)).
				WithLocation(target, 0, 0).
				WithSuggestion("Give the types distinct directories or drop --out")
		}
		owners[target] = a.Key()
		targets[a.Key()] = target
	}
	return targets, nil
}

// Apply makes the disk match artifacts. Existing lists artifact files found
// by the loader; those without a current artifact are stale and removed
// when they carry the propgen header. In check mode a non-empty Drifted
// list is returned together with an E400 error.
func (b *Builder) Apply(ctx context.Context, artifacts []propgen.Artifact, existing []string) (*Result, error) {
	start := time.Now()
	targets, err := b.Targets(artifacts)
	if err != nil {
		return nil, err
	}
	result := &Result{Targets: targets}

	b.progress("Writing artifacts...")
	wanted := make(map[string]struct{}, len(artifacts))
	for _, a := range artifacts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		target := targets[a.Key()]
		wanted[target] = struct{}{}

		current, err := os.ReadFile(target)
		switch {
		case err == nil && bytes.Equal(current, a.Source):
			result.Unchanged = append(result.Unchanged, target)
			continue
		case err != nil && !os.IsNotExist(err):
			return nil, errors.New("E402").WithLocation(target, 0, 0).Wrap(err)
		}

		if b.options.Check {
			result.Drifted = append(result.Drifted, target)
			continue
		}
		if err := writeFile(target, a.Source); err != nil {
			return nil, errors.New("E402").WithLocation(target, 0, 0).Wrap(err)
		}
		b.logger.Debug("artifact written", "path", target, "digest", a.Digest.String())
		result.Written = append(result.Written, target)
	}

	b.progress("Removing stale artifacts...")
	stale, err := b.stale(existing, wanted)
	if err != nil {
		return nil, err
	}
	for _, p := range stale {
		if b.options.Check {
			result.Drifted = append(result.Drifted, p)
			continue
		}
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, errors.New("E402").
				WithDetail("A stale artifact could not be removed.").
				WithLocation(p, 0, 0).
				Wrap(err)
		}
		b.logger.Debug("stale artifact removed", "path", p)
		result.Removed = append(result.Removed, p)
	}

	sort.Strings(result.Drifted)
	result.Duration = time.Since(start)

	if len(result.Drifted) > 0 {
		return result, errors.New("E400").
			WithDetail(fmt.Sprintf("%d file(s) differ: %s", len(result.Drifted), strings.Join(result.Drifted, ", "))).
			WithSuggestion("Run 'propgen gen' and commit the result")
	}
	return result, nil
}

// stale returns the owned artifact files that are not wanted. The output
// directory is listed as well because the loader never sees it.
func (b *Builder) stale(existing []string, wanted map[string]struct{}) ([]string, error) {
	candidates := append([]string(nil), existing...)
	if b.options.Out != "" {
		matches, err := filepath.Glob(filepath.Join(b.options.Out, "*"+source.GeneratedSuffix))
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, matches...)
	}

	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, p := range candidates {
		p = filepath.Clean(p)
		if _, ok := wanted[p]; ok {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		owned, err := isOwned(p)
		if err != nil {
			return nil, err
		}
		if owned {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// isOwned reports whether the file starts with the propgen header.
func isOwned(path string) (bool, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	line, err := bufio.NewReader(f).ReadString('\n')
	if err != nil && line == "" {
		return false, nil
	}
	return strings.TrimRight(line, "\r\n") == propgen.Header, nil
}

// writeFile replaces path atomically so a concurrent build never sees a
// partial artifact.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".propgen-*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0644); err != nil {
		os.Remove(name)
		return err
	}
	return os.Rename(name, path)
}

// Clean removes every owned artifact in existing and the output directory.
func (b *Builder) Clean(existing []string) ([]string, error) {
	stale, err := b.stale(existing, nil)
	if err != nil {
		return nil, err
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return nil, errors.New("E402").WithLocation(p, 0, 0).Wrap(err)
		}
	}
	return stale, nil
}

// progress reports build progress.
func (b *Builder) progress(step string) {
	if b.options.OnProgress != nil {
		b.options.OnProgress(step)
	}
}
