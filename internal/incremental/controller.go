package incremental

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opencontainers/go-digest"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

const defaultTracerName = "propgen"

// RemoteCache shares emitted artifacts between machines. Keys are group
// digests, values are artifact sources.
type RemoteCache interface {
	Fetch(ctx context.Context, key digest.Digest) ([]byte, bool, error)
	Store(ctx context.Context, key digest.Digest, src []byte) error
}

// Options configures a Controller.
type Options struct {
	// Concurrency bounds the groups processed at once (default: 4).
	Concurrency int

	// Logger receives pass and group events (default: slog.Default()).
	Logger *slog.Logger

	// Metrics records pass metrics. Nil disables metrics.
	Metrics *Metrics

	// Tracer creates pass and emission spans (default: otel.Tracer("propgen")).
	Tracer trace.Tracer

	// Remote is an optional shared artifact cache.
	Remote RemoteCache
}

// Option configures a Controller.
type Option func(*Options)

// WithConcurrency sets the group concurrency limit.
func WithConcurrency(n int) Option {
	return func(o *Options) {
		o.Concurrency = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithMetrics sets the metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) {
		o.Metrics = m
	}
}

// WithTracer sets the tracer.
func WithTracer(t trace.Tracer) Option {
	return func(o *Options) {
		o.Tracer = t
	}
}

// WithRemoteCache sets the remote artifact cache.
func WithRemoteCache(r RemoteCache) Option {
	return func(o *Options) {
		o.Remote = r
	}
}

// Output is one artifact of a pass.
type Output struct {
	propgen.Artifact

	// Reused is set when the artifact was taken unchanged from the previous pass.
	Reused bool

	// Remote is set when the artifact was fetched from the remote cache.
	Remote bool
}

// Stats counts the work of one pass.
type Stats struct {
	Members  int `json:"members"`  // members visited
	Scanned  int `json:"scanned"`  // members scanned because they changed
	Memoized int `json:"memoized"` // members whose scan was reused
	Groups   int `json:"groups"`   // groups resolved
	Emitted  int `json:"emitted"`  // artifacts emitted this pass
	Reused   int `json:"reused"`   // artifacts reused from the group cache
	Remote   int `json:"remote"`   // artifacts taken from the remote cache
	Removed  int `json:"removed"`  // artifacts of the previous pass that no longer exist
}

// Result is the output of one pass.
type Result struct {
	Pass int64

	// Artifacts are in group order.
	Artifacts []Output

	// Removed are artifacts of the previous pass whose owner no longer
	// produces one.
	Removed []propgen.Artifact

	// Diagnostics are sorted with propgen.SortDiagnostics.
	Diagnostics []*errors.Error

	Stats    Stats
	Duration time.Duration
}

// Changed returns the artifacts that differ from the previous pass.
func (r *Result) Changed() []propgen.Artifact {
	var out []propgen.Artifact
	for _, o := range r.Artifacts {
		if !o.Reused {
			out = append(out, o.Artifact)
		}
	}
	return out
}

// Controller runs generation passes and reuses the work of previous passes.
type Controller struct {
	emitter *propgen.Emitter
	opts    Options
	logger  *slog.Logger
	tracer  trace.Tracer

	passMu  sync.Mutex
	passes  atomic.Int64
	members table[decl.MemberID, memberEntry]
	groups  table[decl.TypeID, groupEntry]
	flight  singleflight.Group
}

// New creates a controller that emits with e.
func New(e *propgen.Emitter, opts ...Option) *Controller {
	o := Options{Concurrency: 4}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Tracer == nil {
		o.Tracer = otel.Tracer(defaultTracerName)
	}
	return &Controller{
		emitter: e,
		opts:    o,
		logger:  o.Logger,
		tracer:  o.Tracer,
	}
}

// Artifacts returns the artifacts of the last committed pass sorted by key.
func (c *Controller) Artifacts() []propgen.Artifact {
	var out []propgen.Artifact
	c.groups.rangeAll(func(_ decl.TypeID, g groupEntry) bool {
		if g.artifact != nil {
			out = append(out, *g.artifact)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Passes returns the number of committed passes.
func (c *Controller) Passes() int64 {
	return c.passes.Load()
}

// Reset drops all memoized state.
func (c *Controller) Reset() {
	c.passMu.Lock()
	defer c.passMu.Unlock()
	commit(&c.members, nil)
	commit(&c.groups, nil)
}

type groupOutcome struct {
	entry  groupEntry
	diags  []*errors.Error
	reused bool
	remote bool
}

// Run executes one pass over set. Passes are serialized. On cancellation
// Run returns ctx.Err() and the memoized state is unchanged.
func (c *Controller) Run(ctx context.Context, set *decl.Set) (*Result, error) {
	c.passMu.Lock()
	defer c.passMu.Unlock()

	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "propgen.pass",
		trace.WithAttributes(
			attribute.Int("propgen.types", len(set.Types)),
			attribute.Int("propgen.members", set.Len()),
		),
	)
	defer span.End()

	res, stage, err := c.run(ctx, set)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "pass cancelled")
		c.opts.Metrics.recordCancel()
		c.logger.Debug("pass cancelled", "error", err)
		return nil, err
	}

	res.Removed = c.removed(stage)
	res.Stats.Removed = len(res.Removed)

	commit(&c.members, stage.members)
	commit(&c.groups, stage.groups)
	res.Pass = c.passes.Add(1)
	res.Duration = time.Since(start)

	span.SetAttributes(
		attribute.Int64("propgen.pass", res.Pass),
		attribute.Int("propgen.scanned", res.Stats.Scanned),
		attribute.Int("propgen.emitted", res.Stats.Emitted),
		attribute.Int("propgen.reused", res.Stats.Reused),
		attribute.Int("propgen.removed", res.Stats.Removed),
		attribute.Int("propgen.diagnostics", len(res.Diagnostics)),
	)
	c.opts.Metrics.recordPass(res, res.Duration)
	c.logger.Info("pass complete",
		"pass", res.Pass,
		"artifacts", len(res.Artifacts),
		"scanned", res.Stats.Scanned,
		"emitted", res.Stats.Emitted,
		"reused", res.Stats.Reused+res.Stats.Remote,
		"removed", res.Stats.Removed,
		"diagnostics", len(res.Diagnostics),
		"duration", res.Duration,
	)
	return res, nil
}

func (c *Controller) run(ctx context.Context, set *decl.Set) (*Result, *staged, error) {
	stage := newStaged()
	res := &Result{}

	var streams propgen.Streams
	var diags []*errors.Error
	reported := make(map[decl.TypeID]bool)
	for _, t := range set.Types {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if d := propgen.CheckOwner(t); d != nil {
			if !reported[t.ID()] {
				reported[t.ID()] = true
				diags = append(diags, d)
			}
			continue
		}
		for _, m := range t.Members {
			scan, err := c.scanMember(stage, t.ID(), m, &res.Stats)
			if err != nil {
				return nil, nil, err
			}
			streams.Append(scan.Streams)
			diags = append(diags, scan.Diagnostics...)
		}
	}

	merged, conflicts := propgen.Dedupe(propgen.MergeStreams(streams))
	diags = append(diags, conflicts...)
	named, clashes := propgen.CheckKeyNames(merged)
	diags = append(diags, clashes...)
	groups := propgen.GroupByOwner(named)
	owners := propgen.Owners(set)
	res.Stats.Groups = len(groups)

	outcomes := make([]groupOutcome, len(groups))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(c.opts.Concurrency)
	for i, g := range groups {
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := c.group(gctx, g, propgen.OwnerFor(owners, g.Owner))
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, nil, err
	}

	for i, g := range groups {
		out := outcomes[i]
		stage.groups[g.Owner] = out.entry
		diags = append(diags, out.diags...)
		if out.entry.artifact == nil {
			continue
		}
		res.Artifacts = append(res.Artifacts, Output{Artifact: *out.entry.artifact, Reused: out.reused, Remote: out.remote})
		switch {
		case out.remote:
			res.Stats.Remote++
		case out.reused:
			res.Stats.Reused++
		default:
			res.Stats.Emitted++
		}
	}

	propgen.SortDiagnostics(diags)
	res.Diagnostics = diags
	return res, stage, nil
}

// scanMember returns the memoized scan of m, scanning it when its content
// changed since the last committed pass.
func (c *Controller) scanMember(stage *staged, owner decl.TypeID, m decl.Member, stats *Stats) (propgen.ScanResult, error) {
	stats.Members++
	id := decl.MemberID{Owner: owner, Name: m.Name}
	d, err := MemberDigest(owner, m)
	if err != nil {
		return propgen.ScanResult{}, err
	}

	if e, ok := stage.members[id]; ok && e.digest == d {
		stats.Memoized++
		return e.scan, nil
	}
	if e, ok := c.members.load(id); ok && e.digest == d {
		stats.Memoized++
		stage.members[id] = e
		return e.scan, nil
	}

	stats.Scanned++
	scan := propgen.ScanMember(owner, m)
	stage.members[id] = memberEntry{digest: d, scan: scan}
	return scan, nil
}

// group resolves a group and returns its artifact, reusing the cached one
// when the resolved content is unchanged.
func (c *Controller) group(ctx context.Context, g propgen.Group, owner propgen.Owner) (groupOutcome, error) {
	rg, diags := propgen.ResolveGroup(g, owner)
	if len(rg.Properties) == 0 {
		return groupOutcome{diags: diags}, nil
	}

	d, err := GroupDigest(c.emitter.Config(), rg)
	if err != nil {
		return groupOutcome{}, err
	}

	if prev, ok := c.groups.load(g.Owner); ok && prev.digest == d && prev.artifact != nil {
		// The digest leaves out Dir, so a moved checkout reuses the source.
		if prev.artifact.Dir != owner.Dir {
			moved := *prev.artifact
			moved.Dir = owner.Dir
			prev.artifact = &moved
		}
		return groupOutcome{
			entry:  prev,
			diags:  append(diags, prev.diags...),
			reused: true,
		}, nil
	}

	// Passes hold passMu and owners are unique within a pass, so every key
	// is requested once per pass; the flight only merges emissions of equal
	// groups if Run is ever made concurrent.
	key := g.Owner.String() + "@" + d.String()
	v, err, _ := c.flight.Do(key, func() (any, error) {
		return c.produce(ctx, rg, d)
	})
	if err != nil {
		return groupOutcome{}, err
	}
	p := v.(produced)
	return groupOutcome{
		entry:  groupEntry{digest: d, artifact: p.artifact, diags: p.diags},
		diags:  append(diags, p.diags...),
		remote: p.remote,
	}, nil
}

type produced struct {
	artifact *propgen.Artifact
	diags    []*errors.Error
	remote   bool
}

func (c *Controller) produce(ctx context.Context, rg propgen.ResolvedGroup, d digest.Digest) (produced, error) {
	ctx, span := c.tracer.Start(ctx, "propgen.emit",
		trace.WithAttributes(
			attribute.String("propgen.owner", rg.Owner.ID.String()),
			attribute.Int("propgen.properties", len(rg.Properties)),
		),
	)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return produced{}, err
	}

	if c.opts.Remote != nil {
		src, ok, err := c.opts.Remote.Fetch(ctx, d)
		switch {
		case err != nil:
			c.logger.Warn("remote cache fetch failed", "owner", rg.Owner.ID.String(), "error", err)
		case ok:
			span.SetAttributes(attribute.Bool("propgen.remote", true))
			a := artifactFor(rg, src)
			return produced{artifact: &a, remote: true}, nil
		}
	}

	a, diags := propgen.EmitResolved(c.emitter, rg)
	if len(diags) > 0 {
		span.RecordError(diags[0])
		span.SetStatus(codes.Error, "emit failed")
	}
	if a == nil {
		return produced{diags: diags}, nil
	}
	c.logger.Debug("emitted artifact", "owner", a.Key(), "digest", a.Digest.String())

	// A fetched artifact carries no diagnostics, so partial artifacts stay local.
	if c.opts.Remote != nil && len(diags) == 0 {
		if err := c.opts.Remote.Store(ctx, d, a.Source); err != nil {
			c.logger.Warn("remote cache store failed", "owner", a.Key(), "error", err)
		}
	}
	return produced{artifact: a, diags: diags}, nil
}

func artifactFor(rg propgen.ResolvedGroup, src []byte) propgen.Artifact {
	return propgen.Artifact{
		Owner:    rg.Owner.ID,
		Dir:      rg.Owner.Dir,
		FileName: propgen.FileName(rg.Owner.ID),
		Source:   src,
		Digest:   digest.FromBytes(src),
	}
}

// removed returns the committed artifacts the staged pass no longer produces.
func (c *Controller) removed(stage *staged) []propgen.Artifact {
	var out []propgen.Artifact
	c.groups.rangeAll(func(id decl.TypeID, prev groupEntry) bool {
		if prev.artifact == nil {
			return true
		}
		if next, ok := stage.groups[id]; !ok || next.artifact == nil {
			out = append(out, *prev.artifact)
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}
