package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vango-dev/propgen/internal/build"
	"github.com/vango-dev/propgen/internal/config"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/incremental"
	"github.com/vango-dev/propgen/internal/remotecache"
	"github.com/vango-dev/propgen/internal/source"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

// project is a loaded configuration plus the logger configured from it.
type project struct {
	cfg    *config.Config
	logger *slog.Logger
}

func loadProject(flags *globalFlags) (*project, error) {
	cfg, err := loadConfig(flags.config)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, flags)
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, logger: logger}, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		return config.LoadFromDir(wd)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return nil, errors.New("E103").WithDetail("Cannot read " + path).Wrap(err)
	}
	if fi.IsDir() {
		return config.Load(path)
	}
	return config.LoadFile(path)
}

func newLogger(cfg *config.Config, flags *globalFlags) (*slog.Logger, error) {
	level, err := cfg.LogLevel()
	if err != nil {
		return nil, errors.New("E102").WithSubject("log.level").Wrap(err)
	}
	if flags.verbose {
		level = slog.LevelDebug
	}

	format := cfg.Log.Format
	if flags.logFormat != "" {
		format = flags.logFormat
	}

	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, errors.New("E403").
			WithSubject("--log-format").
			WithDetail("Unsupported log format " + format + ".").
			WithSuggestion("Use text or json")
	}
}

// loader creates a loader. Patterns from the command line are relative to
// the working directory, configured ones to the project root.
func (p *project) loader(patterns []string) (*source.Loader, error) {
	dir := p.cfg.Dir()
	if len(patterns) == 0 {
		patterns = p.cfg.Patterns
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = wd
	}
	return source.NewLoader(source.Options{
		Dir:        dir,
		Patterns:   patterns,
		Exclude:    p.cfg.Exclude,
		BuildFlags: p.cfg.BuildFlags,
		Logger:     p.logger,
	})
}

// controller creates the incremental controller. A nil registerer disables
// metrics.
func (p *project) controller(reg prometheus.Registerer) (*incremental.Controller, error) {
	opts := []incremental.Option{
		incremental.WithConcurrency(p.cfg.Concurrency),
		incremental.WithLogger(p.logger),
	}
	if reg != nil {
		opts = append(opts, incremental.WithMetrics(incremental.NewMetrics(incremental.WithRegistry(reg))))
	}
	if p.cfg.HasRemoteCache() {
		s3 := p.cfg.Cache.S3
		client, err := remotecache.NewClient(s3)
		if err != nil {
			return nil, err
		}
		p.logger.Debug("remote artifact cache enabled", "bucket", s3.Bucket, "prefix", s3.Prefix)
		opts = append(opts, incremental.WithRemoteCache(remotecache.NewS3(client, s3.Bucket, s3.Prefix, p.logger)))
	}
	return incremental.New(propgen.NewEmitter(p.cfg.EmitConfig()), opts...), nil
}

func (p *project) builder(check bool) *build.Builder {
	return build.New(p.cfg, build.Options{
		Check:  check,
		Logger: p.logger,
		OnProgress: func(step string) {
			p.logger.Debug(step)
		},
	})
}

// input is the declaration set of one invocation.
type input struct {
	set         *decl.Set
	diagnostics []*errors.Error
	generated   []string
}

// loadInput reads the declaration set from a snapshot file or, when
// snapshot is empty, from the Go packages matching patterns.
func (p *project) loadInput(ctx context.Context, snapshot string, patterns []string) (*input, error) {
	if snapshot != "" {
		set, err := decl.LoadFile(snapshot)
		if err != nil {
			return nil, err
		}
		return &input{set: set}, nil
	}

	loader, err := p.loader(patterns)
	if err != nil {
		return nil, err
	}
	res, err := loader.Load(ctx)
	if err != nil {
		return nil, err
	}
	return &input{set: res.Set, diagnostics: res.Diagnostics, generated: res.Generated}, nil
}
