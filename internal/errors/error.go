package errors

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
)

// Category represents the type of error.
type Category string

const (
	CategoryMarker      Category = "marker"
	CategoryDeclaration Category = "declaration"
	CategoryConfig      Category = "config"
	CategorySnapshot    Category = "snapshot"
	CategoryLoad        Category = "load"
	CategoryCLI         Category = "cli"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// Location represents a source code location.
type Location struct {
	File   string
	Line   int
	Column int
}

// String returns the location as a formatted string.
func (l *Location) String() string {
	if l == nil {
		return ""
	}
	switch {
	case l.Line == 0:
		return l.File
	case l.Column > 0:
		return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// Error is a structured error with source location, suggestions, and documentation.
type Error struct {
	// Code is a unique error identifier (e.g., "P001").
	Code string

	// Category is the error type (marker, config, etc.).
	Category Category

	// Severity is the diagnostic severity. Operational errors are always SeverityError.
	Severity Severity

	// Subject names what the error is about, e.g. "Gadget.Ratio".
	Subject string

	// Message is a short description of the error.
	Message string

	// Detail is a longer explanation of the error.
	Detail string

	// Location is the source code location where the error occurred.
	Location *Location

	// Context contains surrounding source code lines.
	Context []string

	// Suggestion is a hint on how to fix the error.
	Suggestion string

	// DocURL is a link to documentation about this error.
	DocURL string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != "" {
		b.WriteString(e.Code)
		b.WriteString(": ")
	}
	if e.Subject != "" {
		b.WriteString(e.Subject)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Wrapped != nil {
		b.WriteString(": ")
		b.WriteString(e.Wrapped.Error())
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// WithLocation adds source location to the error.
// Context lines are read from the file when it exists on disk.
func (e *Error) WithLocation(file string, line, column int) *Error {
	if file == "" {
		return e
	}
	e.Location = &Location{File: file, Line: line, Column: column}
	e.Context = readContextLines(file, line, 5)
	return e
}

// WithPosition sets the location without reading source context.
func (e *Error) WithPosition(file string, line, column int) *Error {
	if file == "" {
		return e
	}
	e.Location = &Location{File: file, Line: line, Column: column}
	return e
}

// LoadContext reads the source lines around the location, if any.
func (e *Error) LoadContext() *Error {
	if e.Location != nil && len(e.Context) == 0 {
		e.Context = readContextLines(e.Location.File, e.Location.Line, 5)
	}
	return e
}

// WithSubject sets what the error is about.
func (e *Error) WithSubject(s string) *Error {
	e.Subject = s
	return e
}

// WithSeverity overrides the registered severity.
func (e *Error) WithSeverity(s Severity) *Error {
	e.Severity = s
	return e
}

// WithSuggestion adds a fix suggestion to the error.
func (e *Error) WithSuggestion(s string) *Error {
	e.Suggestion = s
	return e
}

// WithDetail adds a detailed explanation to the error.
func (e *Error) WithDetail(d string) *Error {
	e.Detail = d
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// IsWarning reports whether the error is a non-blocking warning.
func (e *Error) IsWarning() bool {
	return e.Severity == SeverityWarning
}

// readContextLines reads lines around the specified line number from a file.
func readContextLines(filename string, targetLine, contextSize int) []string {
	if targetLine <= 0 {
		return nil
	}
	file, err := os.Open(filename)
	if err != nil {
		return nil
	}
	defer file.Close()

	var lines []string
	scanner := bufio.NewScanner(file)
	lineNum := 0
	startLine := targetLine - contextSize/2
	endLine := targetLine + contextSize/2

	for scanner.Scan() {
		lineNum++
		if lineNum >= startLine && lineNum <= endLine {
			lines = append(lines, scanner.Text())
		}
		if lineNum > endLine {
			break
		}
	}

	return lines
}

// New creates an Error from a registered error code.
func New(code string) *Error {
	template, ok := registry[code]
	if !ok {
		return &Error{
			Code:    code,
			Message: "Unknown error",
		}
	}
	return &Error{
		Code:     code,
		Category: template.Category,
		Severity: template.Severity,
		Message:  template.Message,
		Detail:   template.Detail,
		DocURL:   template.DocURL,
	}
}

// Newf creates a new Error with a formatted message (no code).
func Newf(category Category, format string, args ...any) *Error {
	return &Error{
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	}
}

// FromError wraps a standard error in an Error.
func FromError(err error, code string) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if stderrors.As(err, &pe) {
		return pe
	}
	return New(code).Wrap(err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}
