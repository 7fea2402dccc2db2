package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/propgen/internal/build"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/incremental"
	"github.com/vango-dev/propgen/pkg/decl"
	"github.com/vango-dev/propgen/pkg/propgen"
)

type genOptions struct {
	snapshot string
	format   string
	out      string
	check    bool
	clean    bool
}

func genCmd(flags *globalFlags) *cobra.Command {
	opts := &genOptions{}

	cmd := &cobra.Command{
		Use:   "gen [packages]",
		Short: "Generate property accessors",
		Long: `Load the Go packages, generate one <Type>_props_gen.go per owning type
and remove artifacts of types that no longer declare properties.

Packages default to the patterns in propgen.yaml (./... when unset).
Diagnostics never stop generation: types without problems are always
written. The command fails when any diagnostic is an error.

The output is deterministic - running it multiple times produces identical
output unless the declarations change.

Examples:
  propgen gen                          # Generate for ./...
  propgen gen ./ui/...                 # Only the ui packages
  propgen gen --check                  # Fail if generated files are stale (CI)
  propgen gen --snapshot decls.yaml    # Generate from a declaration snapshot
  propgen gen --format table           # Print a summary table
  propgen gen --clean                  # Remove every generated artifact`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runGen(ctx, flags, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Generate from a declaration snapshot (YAML or JSON) instead of Go packages")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatText, "Output format: text, json or table")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Write all artifacts into this directory")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Compare instead of writing; fail if anything is out of date")
	cmd.Flags().BoolVar(&opts.clean, "clean", false, "Remove every generated artifact instead of generating")

	return cmd
}

func runGen(ctx context.Context, flags *globalFlags, opts *genOptions, patterns []string) error {
	if err := checkFormat(opts.format); err != nil {
		return err
	}
	if opts.snapshot != "" && len(patterns) > 0 {
		return errors.New("E403").
			WithSubject("--snapshot").
			WithDetail("Package patterns cannot be combined with --snapshot.")
	}
	if opts.clean && opts.check {
		return errors.New("E403").
			WithSubject("--clean").
			WithDetail("--clean cannot be combined with --check.")
	}

	p, err := loadProject(flags)
	if err != nil {
		return err
	}
	if opts.out != "" {
		out, err := filepath.Abs(opts.out)
		if err != nil {
			return err
		}
		p.cfg.Out = out
	}

	in, err := p.loadInput(ctx, opts.snapshot, patterns)
	if err != nil {
		return err
	}
	if opts.clean {
		builder := p.builder(false)
		removed, err := builder.Clean(append(in.generated, plannedPaths(builder, in.set)...))
		if err != nil {
			return err
		}
		for _, path := range removed {
			info("Removed %s", path)
		}
		success("Removed %d artifact(s)", len(removed))
		return nil
	}

	ctrl, err := p.controller(nil)
	if err != nil {
		return err
	}
	res, err := ctrl.Run(ctx, in.set)
	if err != nil {
		return err
	}
	res.Diagnostics = mergeDiagnostics(in.diagnostics, res.Diagnostics)

	builder := p.builder(opts.check)
	artifacts := make([]propgen.Artifact, 0, len(res.Artifacts))
	for _, o := range res.Artifacts {
		artifacts = append(artifacts, o.Artifact)
	}
	built, applyErr := builder.Apply(ctx, artifacts, in.generated)
	if applyErr != nil && built == nil {
		return applyErr
	}

	rep := newReport(res, built, func(o incremental.Output) string { return built.Targets[o.Artifact.Key()] })
	switch opts.format {
	case formatJSON:
		if err := writeJSONReport(os.Stdout, rep); err != nil {
			return err
		}
		fmt.Println()
	case formatTable:
		writeTableReport(os.Stdout, rep)
	default:
		writeTextReport(os.Stdout, rep, res.Diagnostics)
	}

	if applyErr != nil {
		return applyErr
	}
	if n := countErrors(res.Diagnostics); n > 0 {
		return errors.New("E401").
			WithDetail(fmt.Sprintf("%d property diagnostic(s) with error severity.", n)).
			WithSuggestion("Fix the reported declarations; the other types were generated")
	}
	return nil
}

// mergeDiagnostics combines frontend and pipeline diagnostics in report order.
func mergeDiagnostics(frontend, pipeline []*errors.Error) []*errors.Error {
	out := make([]*errors.Error, 0, len(frontend)+len(pipeline))
	out = append(out, frontend...)
	out = append(out, pipeline...)
	propgen.SortDiagnostics(out)
	return out
}

func countErrors(diags []*errors.Error) int {
	n := 0
	for _, d := range diags {
		if !d.IsWarning() {
			n++
		}
	}
	return n
}

// plannedPaths lists the paths artifacts of the set's types are written to,
// in both the plain and the qualified form.
func plannedPaths(b *build.Builder, set *decl.Set) []string {
	var paths []string
	for _, t := range set.Types {
		a := propgen.Artifact{Owner: t.ID(), Dir: t.Dir, FileName: propgen.FileName(t.ID())}
		paths = append(paths, b.Path(a))
		a.FileName = propgen.QualifiedFileName(t.ID())
		paths = append(paths, b.Path(a))
	}
	return paths
}
