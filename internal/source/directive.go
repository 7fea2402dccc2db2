package source

import (
	"go/ast"
	"go/token"
	"strings"

	"github.com/vango-dev/propgen/pkg/decl"
)

// AccessDirective sets the accessibility of the property it annotates.
const AccessDirective = "propgen:access"

// directive is one parsed //propgen: comment line.
type directive struct {
	marker   decl.Marker
	access   string
	isAccess bool
	pos      token.Pos
}

// parseDirective parses a comment of the form
//
//	//propgen:NAME[TYPE, ...] ARG=VALUE
//
// The value of the last argument extends to the end of the line so default
// expressions may contain spaces. It reports false for comments that are
// not propgen directives.
func parseDirective(text string) (directive, bool) {
	line, ok := strings.CutPrefix(text, "//")
	if !ok || !strings.HasPrefix(line, "propgen:") {
		return directive{}, false
	}
	line = strings.TrimRight(line, " \t")

	end := strings.IndexAny(line, "[ \t")
	if end < 0 {
		end = len(line)
	}
	name, rest := line[:end], line[end:]

	if name == AccessDirective {
		return directive{access: strings.TrimSpace(rest), isAccess: true}, true
	}

	var d directive
	d.marker.Name = name
	if strings.HasPrefix(rest, "[") {
		end := matchBracket(rest)
		if end < 0 {
			// Unterminated type list; keep the raw text so it is reported.
			d.marker.Name = line
			return d, true
		}
		d.marker.TypeArgs = splitTopLevel(rest[1:end])
		rest = rest[end+1:]
	}
	d.marker.Args = parseArgs(strings.TrimSpace(rest))
	return d, true
}

// matchBracket returns the index of the bracket closing s[0], or -1.
func matchBracket(s string) int {
	depth := 0
	for i, r := range s {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
			if depth == 0 {
				if r != ']' {
					return -1
				}
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s on commas outside brackets.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				out = appendNonEmpty(out, s[start:i])
				start = i + 1
			}
		}
	}
	return appendNonEmpty(out, s[start:])
}

func appendNonEmpty(out []string, s string) []string {
	if s = strings.TrimSpace(s); s != "" {
		out = append(out, s)
	}
	return out
}

// parseArgs parses name=value pairs. Every pair but the last is a single
// word; the last value runs to the end of the line.
func parseArgs(s string) []decl.Arg {
	var args []decl.Arg
	for s != "" {
		eq := strings.IndexByte(s, '=')
		if eq <= 0 {
			return args
		}
		name := strings.TrimSpace(s[:eq])
		if strings.ContainsAny(name, " \t") {
			return args
		}
		value := s[eq+1:]

		next := nextArg(value)
		if next < 0 {
			args = append(args, decl.Arg{Name: name, Value: strings.TrimSpace(value)})
			return args
		}
		args = append(args, decl.Arg{Name: name, Value: strings.TrimSpace(value[:next])})
		s = strings.TrimSpace(value[next:])
	}
	return args
}

// nextArg returns the offset of the next "word=" in s that follows
// whitespace outside quotes and brackets, or -1.
func nextArg(s string) int {
	depth := 0
	var quote rune
	for i, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '"' || r == '`' || r == '\'':
			quote = r
		case r == '[' || r == '(' || r == '{':
			depth++
		case r == ']' || r == ')' || r == '}':
			depth--
		case (r == ' ' || r == '\t') && depth == 0:
			word := strings.TrimLeft(s[i:], " \t")
			if j := strings.IndexByte(word, '='); j > 0 && isIdent(word[:j]) && !strings.HasPrefix(word[j:], "==") {
				return i
			}
		}
	}
	return -1
}

func isIdent(s string) bool {
	for i, r := range s {
		if r == '_' || 'a' <= r && r <= 'z' || 'A' <= r && r <= 'Z' || i > 0 && '0' <= r && r <= '9' {
			continue
		}
		return false
	}
	return s != ""
}

// directives returns the propgen directives in a comment group.
func directives(doc *ast.CommentGroup) []directive {
	if doc == nil {
		return nil
	}
	var out []directive
	for _, c := range doc.List {
		if d, ok := parseDirective(c.Text); ok {
			d.pos = c.Slash
			out = append(out, d)
		}
	}
	return out
}
