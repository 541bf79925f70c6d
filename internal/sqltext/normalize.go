// Package sqltext turns raw DDL text into a canonical form and a list of typed
// statements. It recognizes only the statement shapes needed for dependency
// tracking; anything else is kept as an Unrecognized statement.
package sqltext

import (
	"regexp"
	"strings"
)

var (
	// One pass over comments and literals: a quote inside a comment does not
	// open a literal and "--" inside a literal is not a comment.
	commentOrLiteralRegex = regexp.MustCompile(`(?s)/\*.*?\*/|--[^\n]*|'(?:[^'\\]|\\.|'')*'`)
	quoteRegex            = regexp.MustCompile("[\"'`]")
	openParenRegex        = regexp.MustCompile(`\s*\(\s*`)
	closeParenRegex       = regexp.MustCompile(`\s*\)\s*`)
	commaRegex            = regexp.MustCompile(`\s*,\s*`)
	whitespaceRegex       = regexp.MustCompile(`\s+`)
	tightCloseRegex       = regexp.MustCompile(`\) ([),;])`)
	tightOpenRegex        = regexp.MustCompile(`\( \(`)
)

// Normalize lowercases the DDL, drops comments and quoting characters,
// empties string literals, flattens it to a single line and makes
// parenthesis spacing uniform:
// "(" is preceded by a space and followed by none, ")" is preceded by none.
// The result always ends with a statement terminator.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	s = commentOrLiteralRegex.ReplaceAllStringFunc(s, func(m string) string {
		if m[0] == '\'' {
			return "''"
		}
		return " "
	})
	s = quoteRegex.ReplaceAllString(s, "")
	s = openParenRegex.ReplaceAllString(s, " (")
	s = closeParenRegex.ReplaceAllString(s, ") ")
	s = commaRegex.ReplaceAllString(s, ", ")
	s = whitespaceRegex.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, " ;", ";")
	s = collapse(s, tightCloseRegex, ")$1")
	s = collapse(s, tightOpenRegex, "((")
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, ";") {
		s += ";"
	}
	return s
}

// collapse applies re until the text stops changing, so that runs such as
// ") ) )" shrink completely.
func collapse(s string, re *regexp.Regexp, repl string) string {
	for {
		next := re.ReplaceAllString(s, repl)
		if next == s {
			return s
		}
		s = next
	}
}
