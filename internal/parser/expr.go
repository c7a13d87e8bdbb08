package parser

import (
	"strings"
)

// ExprKind classifies one @{...} reference.
type ExprKind int

const (
	// ExprParam is a parameter reference: @{title}
	ExprParam ExprKind = iota
	// ExprYield is the default slot insertion point: @{yield}
	ExprYield
	// ExprNamedYield is a named slot insertion point: @{yield("header")}
	ExprNamedYield
	// ExprVar is a site variable lookup: @{var("site_name")}
	ExprVar
	// ExprDefault declares a parameter default: @{default("title", "Untitled")}
	ExprDefault
)

// Expr is one recognized @{...} expression inside a text span. Start and End
// are byte offsets of the whole expression within the span. Text that looks
// like an expression but matches no known form is left alone.
type Expr struct {
	Kind  ExprKind
	Name  string
	Value string
	Start int
	End   int
}

// Expressions scans a text span for @{...} references in order. Malformed or
// unrecognized bodies are skipped, leaving the literal text in place.
func Expressions(text string) []Expr {
	var exprs []Expr
	i := 0
	for {
		rel := strings.Index(text[i:], "@{")
		if rel < 0 {
			return exprs
		}
		start := i + rel
		closeRel := strings.IndexByte(text[start+2:], '}')
		if closeRel < 0 {
			return exprs
		}
		end := start + 2 + closeRel + 1
		body := text[start+2 : end-1]

		if e, ok := classify(body); ok {
			e.Start = start
			e.End = end
			exprs = append(exprs, e)
			i = end
		} else {
			i = start + 2
		}
	}
}

func classify(body string) (Expr, bool) {
	body = strings.TrimSpace(body)

	switch {
	case body == "yield":
		return Expr{Kind: ExprYield}, true

	case strings.HasPrefix(body, "yield(") && strings.HasSuffix(body, ")"):
		args, ok := parseArgs(body[len("yield(") : len(body)-1])
		if !ok || len(args) != 1 || args[0] == "" {
			return Expr{}, false
		}
		return Expr{Kind: ExprNamedYield, Name: args[0]}, true

	case strings.HasPrefix(body, "var(") && strings.HasSuffix(body, ")"):
		args, ok := parseArgs(body[len("var(") : len(body)-1])
		if !ok || len(args) != 1 || args[0] == "" {
			return Expr{}, false
		}
		return Expr{Kind: ExprVar, Name: args[0]}, true

	case strings.HasPrefix(body, "default(") && strings.HasSuffix(body, ")"):
		args, ok := parseArgs(body[len("default(") : len(body)-1])
		if !ok || len(args) != 2 || args[0] == "" {
			return Expr{}, false
		}
		return Expr{Kind: ExprDefault, Name: args[0], Value: args[1]}, true

	case isIdent(body):
		return Expr{Kind: ExprParam, Name: body}, true
	}

	return Expr{}, false
}

// parseArgs splits a comma-separated list of quoted strings. Both quote
// styles are accepted; quotes cannot be nested or escaped.
func parseArgs(s string) ([]string, bool) {
	var args []string
	i := 0
	for {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			return nil, false
		}
		quote := s[i]
		if quote != '"' && quote != '\'' {
			return nil, false
		}
		i++
		start := i
		for i < len(s) && s[i] != quote {
			i++
		}
		if i >= len(s) {
			return nil, false
		}
		args = append(args, s[start:i])
		i++
		for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
			i++
		}
		if i >= len(s) {
			return args, true
		}
		if s[i] != ',' {
			return nil, false
		}
		i++
	}
}

// isIdent reports whether s is a plain parameter name: a letter or
// underscore followed by letters, digits, underscores, dots, or dashes.
func isIdent(s string) bool {
	if s == "" {
		return false
	}
	c := s[0]
	if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_') {
		return false
	}
	for i := 1; i < len(s); i++ {
		c := s[i]
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
			c >= '0' && c <= '9' || c == '_' || c == '.' || c == '-') {
			return false
		}
	}
	return true
}
