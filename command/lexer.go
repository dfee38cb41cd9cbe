package command

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenIdent
	tokenNumber
	tokenString
	tokenDot
	tokenComma
	tokenEquals
	tokenLParen
	tokenRParen
	tokenLBracket
	tokenRBracket
	tokenLBrace
	tokenRBrace
	tokenIllegal
)

func (k tokenKind) String() string {
	switch k {
	case tokenEOF:
		return "end of line"
	case tokenIdent:
		return "identifier"
	case tokenNumber:
		return "number"
	case tokenString:
		return "string"
	case tokenDot:
		return "'.'"
	case tokenComma:
		return "','"
	case tokenEquals:
		return "'='"
	case tokenLParen:
		return "'('"
	case tokenRParen:
		return "')'"
	case tokenLBracket:
		return "'['"
	case tokenRBracket:
		return "']'"
	case tokenLBrace:
		return "'{'"
	case tokenRBrace:
		return "'}'"
	default:
		return "illegal character"
	}
}

type token struct {
	kind   tokenKind
	text   string
	column int // 1-based
}

// lexLine tokenizes one line. An unterminated string is reported through the
// second return value; the lexer itself never fails otherwise, emitting
// tokenIllegal for characters outside the grammar.
func lexLine(line string, lineNo int) ([]token, *ParseError) {
	var tokens []token
	runes := []rune(line)
	i := 0
	for i < len(runes) {
		c := runes[i]
		col := i + 1
		switch {
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '.':
			tokens = append(tokens, token{tokenDot, ".", col})
			i++
		case c == ',':
			tokens = append(tokens, token{tokenComma, ",", col})
			i++
		case c == '=':
			tokens = append(tokens, token{tokenEquals, "=", col})
			i++
		case c == '(':
			tokens = append(tokens, token{tokenLParen, "(", col})
			i++
		case c == ')':
			tokens = append(tokens, token{tokenRParen, ")", col})
			i++
		case c == '[':
			tokens = append(tokens, token{tokenLBracket, "[", col})
			i++
		case c == ']':
			tokens = append(tokens, token{tokenRBracket, "]", col})
			i++
		case c == '{':
			tokens = append(tokens, token{tokenLBrace, "{", col})
			i++
		case c == '}':
			tokens = append(tokens, token{tokenRBrace, "}", col})
			i++
		case c == '"':
			var b strings.Builder
			i++
			closed := false
			for i < len(runes) {
				if runes[i] == '\\' && i+1 < len(runes) {
					b.WriteRune(runes[i+1])
					i += 2
					continue
				}
				if runes[i] == '"' {
					closed = true
					i++
					break
				}
				b.WriteRune(runes[i])
				i++
			}
			if !closed {
				return tokens, &ParseError{
					Code:    CodeUnterminatedValue,
					Message: "unterminated string literal",
					Line:    lineNo,
					Column:  col,
				}
			}
			tokens = append(tokens, token{tokenString, b.String(), col})
		case c == '-' || unicode.IsDigit(c):
			// Integer digits only: a dot always separates segments at the
			// token level, so tile coordinates lex cleanly. The parser
			// rejoins NUMBER '.' NUMBER into a float in value position.
			start := i
			i++
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			tokens = append(tokens, token{tokenNumber, string(runes[start:i]), col})
		case unicode.IsLetter(c) || c == '_':
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{tokenIdent, string(runes[start:i]), col})
		default:
			tokens = append(tokens, token{tokenIllegal, string(c), col})
			i++
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(runes) + 1})
	return tokens, nil
}

func unexpected(tok token, lineNo int, want string) *ParseError {
	msg := fmt.Sprintf("unexpected %s", tok.kind)
	if tok.kind == tokenIdent || tok.kind == tokenNumber || tok.kind == tokenIllegal {
		msg = fmt.Sprintf("unexpected %s %q", tok.kind, tok.text)
	}
	if want != "" {
		msg += ", expected " + want
	}
	return &ParseError{
		Code:    CodeUnexpectedToken,
		Message: msg,
		Line:    lineNo,
		Column:  tok.column,
	}
}
