package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/vango-dev/propgen/internal/build"
	"github.com/vango-dev/propgen/internal/dev"
	"github.com/vango-dev/propgen/internal/errors"
	"github.com/vango-dev/propgen/internal/incremental"
)

// Output formats of gen.
const (
	formatText  = "text"
	formatJSON  = "json"
	formatTable = "table"
)

func checkFormat(format string) error {
	switch format {
	case formatText, formatJSON, formatTable:
		return nil
	}
	return errors.New("E403").
		WithSubject("--format").
		WithDetail("Unsupported output format " + format + ".").
		WithSuggestion("Use text, json or table")
}

// Artifact statuses in reports.
const (
	statusWritten   = "written"
	statusUnchanged = "unchanged"
	statusDrifted   = "drifted"
	statusRemoved   = "removed"
)

type artifactReport struct {
	Key    string `json:"key"`
	File   string `json:"file"`
	Digest string `json:"digest,omitempty"`
	Status string `json:"status"`
	Remote bool   `json:"remote,omitzero"`
}

type report struct {
	Artifacts   []artifactReport  `json:"artifacts"`
	Diagnostics []dev.Diagnostic  `json:"diagnostics"`
	Stats       incremental.Stats `json:"stats"`
	Duration    string            `json:"duration"`
}

func newReport(res *incremental.Result, built *build.Result, paths func(incremental.Output) string) report {
	status := make(map[string]string)
	if built != nil {
		for _, p := range built.Written {
			status[p] = statusWritten
		}
		for _, p := range built.Unchanged {
			status[p] = statusUnchanged
		}
		for _, p := range built.Drifted {
			status[p] = statusDrifted
		}
	}

	rep := report{
		Artifacts:   []artifactReport{},
		Diagnostics: []dev.Diagnostic{},
		Stats:       res.Stats,
		Duration:    res.Duration.String(),
	}
	seen := make(map[string]bool, len(res.Artifacts))
	for _, o := range res.Artifacts {
		p := paths(o)
		seen[p] = true
		rep.Artifacts = append(rep.Artifacts, artifactReport{
			Key:    o.Key(),
			File:   p,
			Digest: o.Digest.String(),
			Status: status[p],
			Remote: o.Remote,
		})
	}
	if built != nil {
		// Stale files have no artifact; check mode reports them as drifted.
		for _, p := range built.Drifted {
			if !seen[p] {
				rep.Artifacts = append(rep.Artifacts, artifactReport{Key: filepath.Base(p), File: p, Status: statusDrifted})
			}
		}
		for _, p := range built.Removed {
			rep.Artifacts = append(rep.Artifacts, artifactReport{Key: filepath.Base(p), File: p, Status: statusRemoved})
		}
	}
	for _, d := range res.Diagnostics {
		rep.Diagnostics = append(rep.Diagnostics, dev.DiagnosticOf(d))
	}
	return rep
}

func writeJSONReport(w io.Writer, rep report) error {
	return json.MarshalWrite(w, rep, json.Deterministic(true), jsontext.WithIndent("  "))
}

func writeTableReport(w io.Writer, rep report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Type", "File", "Status", "Digest"})
	for _, a := range rep.Artifacts {
		t.AppendRow(table.Row{a.Key, a.File, a.Status, shortDigest(a.Digest)})
	}
	style := table.StyleLight
	style.Options.DrawBorder = false
	t.SetStyle(style)
	t.Render()

	if len(rep.Diagnostics) == 0 {
		return
	}
	fmt.Fprintln(w)

	d := table.NewWriter()
	d.SetOutputMirror(w)
	d.AppendHeader(table.Row{"Code", "Severity", "Location", "Subject", "Message"})
	for _, diag := range rep.Diagnostics {
		loc := diag.File
		if diag.Line > 0 {
			loc = fmt.Sprintf("%s:%d", diag.File, diag.Line)
		}
		d.AppendRow(table.Row{diag.Code, diag.Severity, loc, diag.Subject, diag.Message})
	}
	d.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
	})
	d.SetStyle(style)
	d.Render()
}

func writeTextReport(w io.Writer, rep report, diags []*errors.Error) {
	for _, d := range diags {
		if d.IsWarning() {
			warn("%s", d.FormatCompact())
		} else {
			errorMsg("%s", d.FormatCompact())
		}
	}
	for _, a := range rep.Artifacts {
		switch a.Status {
		case statusWritten:
			success("Generated %s", a.File)
		case statusRemoved:
			info("Removed %s", a.File)
		case statusDrifted:
			warn("Out of date: %s", a.File)
		}
	}
	s := rep.Stats
	fmt.Fprintf(w, "  %d type(s), %d artifact(s): %d emitted, %d from remote cache in %s\n",
		s.Groups, s.Emitted+s.Reused+s.Remote, s.Emitted, s.Remote, rep.Duration)
}

func shortDigest(d string) string {
	if i := len("sha256:"); len(d) > i+12 {
		return d[i : i+12]
	}
	return d
}
