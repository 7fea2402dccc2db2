package errors

import (
	"fmt"
	"strings"
)

// ANSI color codes for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var colorEnabled = true

// DisableColors disables ANSI color output.
func DisableColors() {
	colorEnabled = false
}

// EnableColors enables ANSI color output.
func EnableColors() {
	colorEnabled = true
}

func color(code, text string) string {
	if !colorEnabled {
		return text
	}
	return code + text + colorReset
}

func red(text string) string    { return color(colorRed, text) }
func yellow(text string) string { return color(colorYellow, text) }
func blue(text string) string   { return color(colorBlue, text) }
func cyan(text string) string   { return color(colorCyan, text) }
func white(text string) string  { return color(colorWhite, text) }
func gray(text string) string   { return color(colorGray, text) }
func bold(text string) string   { return color(colorBold, text) }

// Format renders the error for a terminal: a headline, the source excerpt
// around the location, then cause, detail, hint and documentation link.
func (e *Error) Format() string {
	var b strings.Builder
	b.WriteString("\n")
	e.writeHeadline(&b)
	if e.Location != nil {
		fmt.Fprintf(&b, "  %s\n\n", cyan(e.Location.String()))
		e.writeExcerpt(&b)
	}
	if e.Wrapped != nil {
		fmt.Fprintf(&b, "  %s%s\n\n", gray("Cause: "), e.Wrapped.Error())
	}
	if lines := wrapText(e.Detail, 70); len(lines) > 0 {
		for _, line := range lines {
			fmt.Fprintf(&b, "  %s\n", line)
		}
		b.WriteString("\n")
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "  %s%s\n\n", cyan("Hint: "), e.Suggestion)
	}
	if e.DocURL != "" {
		fmt.Fprintf(&b, "  %s%s\n", gray("Learn more: "), blue(e.DocURL))
	}
	return b.String()
}

func (e *Error) writeHeadline(b *strings.Builder) {
	label := red(bold("ERROR"))
	if e.IsWarning() {
		label = yellow(bold("WARNING"))
	}
	b.WriteString(label)
	b.WriteString(" ")

	var head strings.Builder
	for _, part := range []string{e.Code, e.Subject} {
		if part != "" {
			head.WriteString(part)
			head.WriteString(": ")
		}
	}
	b.WriteString(white(bold(head.String())))
	b.WriteString(white(e.Message))
	b.WriteString("\n\n")
}

// writeExcerpt prints the context lines with the error line marked and, when
// the column is known, a caret under it.
func (e *Error) writeExcerpt(b *strings.Builder) {
	if len(e.Context) == 0 {
		return
	}
	first := e.Location.Line - len(e.Context)/2
	for i, line := range e.Context {
		n := first + i
		if n != e.Location.Line {
			fmt.Fprintf(b, "    %4d%s%s\n", n, gray(" │ "), line)
			continue
		}
		fmt.Fprintf(b, "  %s%4d%s%s\n", red("→ "), n, gray(" │ "), line)
		if e.Location.Column > 0 {
			fmt.Fprintf(b, "       %s%s%s\n", gray("│ "), strings.Repeat(" ", e.Location.Column-1), red("^"))
		}
	}
	b.WriteString("\n")
}

// FormatCompact returns the single-line "file:line:col: CODE: subject: message" form.
func (e *Error) FormatCompact() string {
	var b strings.Builder
	if e.Location != nil {
		b.WriteString(e.Location.String())
		b.WriteString(": ")
	}
	if e.IsWarning() {
		b.WriteString("warning: ")
	}
	b.WriteString(e.Error())
	return b.String()
}

// wrapText breaks text into lines of at most width characters at word boundaries.
func wrapText(text string, width int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > width {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
