package sqltext

import "strings"

// TokenKind classifies a lexical token of normalized DDL.
type TokenKind int

const (
	TokenWord TokenKind = iota
	TokenLParen
	TokenRParen
	TokenComma
	TokenSemicolon
)

// Token is a single lexical unit. Words keep dots and operators, so a
// qualified name such as db.users is one token.
type Token struct {
	Kind TokenKind
	Text string
}

func (t Token) is(word string) bool {
	return t.Kind == TokenWord && t.Text == word
}

// Tokenize splits normalized text into tokens.
func Tokenize(s string) []Token {
	var tokens []Token
	start := -1
	flush := func(end int) {
		if start >= 0 {
			tokens = append(tokens, Token{Kind: TokenWord, Text: s[start:end]})
			start = -1
		}
	}

	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ' ', '\t', '\n', '\r':
			flush(i)
		case '(':
			flush(i)
			tokens = append(tokens, Token{Kind: TokenLParen, Text: "("})
		case ')':
			flush(i)
			tokens = append(tokens, Token{Kind: TokenRParen, Text: ")"})
		case ',':
			flush(i)
			tokens = append(tokens, Token{Kind: TokenComma, Text: ","})
		case ';':
			flush(i)
			tokens = append(tokens, Token{Kind: TokenSemicolon, Text: ";"})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	flush(len(s))
	return tokens
}

// joinTokens renders tokens back to normalized text.
func joinTokens(tokens []Token) string {
	var b strings.Builder
	for i, t := range tokens {
		if i > 0 {
			prev := tokens[i-1]
			switch {
			case t.Kind == TokenRParen, t.Kind == TokenComma, t.Kind == TokenSemicolon:
			case prev.Kind == TokenLParen:
			default:
				b.WriteByte(' ')
			}
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// routineKeywords mark statements whose bodies may contain their own ";"
// terminators inside BEGIN ... END blocks.
var routineKeywords = map[string]bool{
	"trigger":   true,
	"procedure": true,
	"function":  true,
	"event":     true,
}

// splitStatements splits tokens at top-level semicolons. Semicolons nested in
// parentheses, or inside the BEGIN ... END body of a trigger or routine, do
// not end a statement.
func splitStatements(tokens []Token) [][]Token {
	var (
		statements [][]Token
		current    []Token
		depth      int
		block      int
	)

	for i := 0; i < len(tokens); i++ {
		t := tokens[i]
		switch t.Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			if depth > 0 {
				depth--
			}
		case TokenSemicolon:
			if depth == 0 && block == 0 {
				if len(current) > 0 {
					statements = append(statements, current)
				}
				current = nil
				continue
			}
		case TokenWord:
			if isRoutine(current) {
				switch t.Text {
				case "begin":
					block++
				case "case":
					block++
				case "end":
					closes := true
					if i+1 < len(tokens) && tokens[i+1].Kind == TokenWord {
						switch tokens[i+1].Text {
						case "if", "loop", "while", "repeat":
							closes = false
							fallthrough
						case "case":
							current = append(current, t, tokens[i+1])
							i++
							if closes && block > 0 {
								block--
							}
							continue
						}
					}
					if block > 0 {
						block--
					}
				}
			}
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		statements = append(statements, current)
	}
	return statements
}

// isRoutine reports whether stmt creates a trigger or routine. Only the
// object kind right after "create [or replace] [definer=...] [aggregate]"
// counts, so a table named event is not a routine.
func isRoutine(stmt []Token) bool {
	if len(stmt) == 0 || !stmt[0].is("create") {
		return false
	}
	i := 1
	if i+1 < len(stmt) && stmt[i].is("or") && stmt[i+1].is("replace") {
		i += 2
	}
	i += definerLength(stmt, i)
	if i < len(stmt) && stmt[i].is("aggregate") {
		i++
	}
	return i < len(stmt) && stmt[i].Kind == TokenWord && routineKeywords[stmt[i].Text]
}

// definerLength returns the number of tokens of a DEFINER clause starting at
// stmt[i], or 0 when there is none. The clause may be written
// "definer=user", "definer= user", "definer =user" or "definer = user".
func definerLength(stmt []Token, i int) int {
	if i >= len(stmt) || stmt[i].Kind != TokenWord {
		return 0
	}
	switch w := stmt[i].Text; {
	case w == "definer":
		if i+1 < len(stmt) && stmt[i+1].is("=") {
			return 3
		}
		return 2
	case w == "definer=":
		return 2
	case strings.HasPrefix(w, "definer="):
		return 1
	}
	return 0
}
