package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/propgen/pkg/decl"
)

func snapshotCmd(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "snapshot [packages]",
		Short: "Dump the declaration set as YAML",
		Long: `Load the Go packages and write their declaration set as a YAML snapshot.

A snapshot is a language-independent description of the owning types and
their marked members. 'propgen gen --snapshot' generates from it without
loading any Go code. Paths in the snapshot are relative to the project root.

Examples:
  propgen snapshot                     # Print the snapshot of ./...
  propgen snapshot -o decls.yaml       # Write it to a file
  propgen snapshot ./ui/...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSnapshot(ctx, flags, output, args)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runSnapshot(ctx context.Context, flags *globalFlags, output string, patterns []string) error {
	p, err := loadProject(flags)
	if err != nil {
		return err
	}
	in, err := p.loadInput(ctx, "", patterns)
	if err != nil {
		return err
	}
	for _, d := range in.diagnostics {
		warn("%s", d.FormatCompact())
	}

	relativize(in.set, p.cfg.Dir())

	if output != "" {
		if err := decl.SaveFile(output, in.set); err != nil {
			return err
		}
		success("Wrote %d type(s) to %s", len(in.set.Types), output)
		return nil
	}

	data, err := decl.Encode(in.set)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

// relativize rewrites directories and positions below root to relative
// slash paths so snapshots are portable between checkouts.
func relativize(set *decl.Set, root string) {
	rel := func(p string) string {
		if p == "" || root == "" || !filepath.IsAbs(p) {
			return p
		}
		r, err := filepath.Rel(root, p)
		if err != nil || strings.HasPrefix(r, "..") {
			return p
		}
		return filepath.ToSlash(r)
	}
	for i := range set.Types {
		t := &set.Types[i]
		t.Dir = rel(t.Dir)
		t.Pos.File = rel(t.Pos.File)
		for j := range t.Members {
			m := &t.Members[j]
			m.Pos.File = rel(m.Pos.File)
			for k := range m.Markers {
				m.Markers[k].Pos.File = rel(m.Markers[k].Pos.File)
			}
		}
	}
}
