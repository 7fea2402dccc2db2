package dev

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"github.com/vango-dev/propgen/internal/build"
	"github.com/vango-dev/propgen/internal/incremental"
	"github.com/vango-dev/propgen/internal/source"
	"github.com/vango-dev/propgen/pkg/propgen"
)

// ErrConfigChanged is returned by Session.Run when the configuration file
// changed. The caller reloads the configuration and starts a new session.
var ErrConfigChanged = stderrors.New("configuration changed")

// Loader loads the declaration set of the watched packages.
type Loader interface {
	Load(ctx context.Context) (*source.Result, error)
}

// PassReport describes one watch pass.
type PassReport struct {
	// Changes that triggered the pass. Empty for the initial pass.
	Changes []Change

	// Result is nil when loading failed.
	Result *incremental.Result

	// Build is nil when loading or generation failed.
	Build *build.Result

	// Err is the operational error of the pass, if any.
	Err error
}

// SessionOptions configures a watch session.
type SessionOptions struct {
	Watcher    *Watcher
	Loader     Loader
	Controller *incremental.Controller
	Builder    *build.Builder

	// Hub is notified after every pass. Optional.
	Hub *Hub

	// OnPass is called after every pass. Optional.
	OnPass func(PassReport)

	Logger *slog.Logger
}

// Session runs a pass for every batch of changes the watcher reports.
type Session struct {
	options  SessionOptions
	logger   *slog.Logger
	changeCh chan []Change
}

// NewSession creates a new watch session.
func NewSession(options SessionOptions) *Session {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		options:  options,
		logger:   logger,
		changeCh: make(chan []Change, 16),
	}
}

// Run performs the initial pass and then one pass per change batch until
// ctx is done or the configuration file changes.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.pass(ctx, nil)

	s.options.Watcher.OnChange(func(changes []Change) {
		select {
		case s.changeCh <- changes:
		case <-ctx.Done():
		}
	})

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- s.options.Watcher.Start(ctx)
	}()
	defer s.options.Watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-watchErr:
			if err != nil && !stderrors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case changes := <-s.changeCh:
			changes = s.drain(changes)
			if hasType(changes, ChangeConfig) {
				s.logger.Info("configuration changed, restarting")
				return ErrConfigChanged
			}
			s.pass(ctx, changes)
		}
	}
}

// drain coalesces queued batches into one.
func (s *Session) drain(changes []Change) []Change {
	for {
		select {
		case next := <-s.changeCh:
			changes = append(changes, next...)
		default:
			return changes
		}
	}
}

func hasType(changes []Change, t ChangeType) bool {
	for _, c := range changes {
		if c.Type == t {
			return true
		}
	}
	return false
}

func (s *Session) pass(ctx context.Context, changes []Change) {
	start := time.Now()
	for _, c := range changes {
		s.logger.Debug("changed", "path", c.Path, "type", c.Type.String(), "removed", c.Removed)
	}

	report := PassReport{Changes: changes}
	defer func() {
		if s.options.OnPass != nil && ctx.Err() == nil {
			s.options.OnPass(report)
		}
	}()

	loaded, err := s.options.Loader.Load(ctx)
	if err != nil {
		report.Err = err
		s.fail(ctx, err)
		return
	}

	res, err := s.options.Controller.Run(ctx, loaded.Set)
	if err != nil {
		report.Err = err
		s.fail(ctx, err)
		return
	}
	res.Diagnostics = append(append(res.Diagnostics[:0:0], loaded.Diagnostics...), res.Diagnostics...)
	propgen.SortDiagnostics(res.Diagnostics)
	report.Result = res

	current := make([]propgen.Artifact, 0, len(res.Artifacts))
	for _, o := range res.Artifacts {
		current = append(current, o.Artifact)
	}
	built, err := s.options.Builder.Apply(ctx, current, loaded.Generated)
	if err != nil {
		report.Err = err
		s.fail(ctx, err)
		return
	}
	report.Build = built

	if s.options.Hub != nil {
		s.options.Hub.NotifyPass(res)
	}
	s.logger.Debug("watch pass done",
		"pass", res.Pass,
		"written", len(built.Written),
		"removed", len(built.Removed),
		"duration", time.Since(start))
}

func (s *Session) fail(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	s.logger.Error("watch pass failed", "error", err)
	if s.options.Hub != nil {
		s.options.Hub.NotifyError(err)
	}
}
