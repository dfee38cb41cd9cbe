package command

import (
	"fmt"
	"strings"
)

// Result is the parser output for one block of text.
type Result struct {
	Commands []CommandNode
	Errors   []ParseError
	Warnings []ParseWarning
}

// OK reports whether parsing produced no errors.
func (r Result) OK() bool {
	return len(r.Errors) == 0
}

// Parse parses one command per non-blank line. A failed line contributes an
// error and is skipped; the remaining lines still parse, so one bad command
// never hides the rest. Input with no non-blank line at all is an error:
// there is nothing to forward.
func Parse(text string) Result {
	var result Result
	blank := true
	for lineIdx, raw := range strings.Split(text, "\n") {
		lineNo := lineIdx + 1
		if strings.TrimSpace(raw) == "" {
			continue
		}
		blank = false
		tokens, lexErr := lexLine(raw, lineNo)
		if lexErr != nil {
			result.Errors = append(result.Errors, *lexErr)
			continue
		}
		p := &lineParser{tokens: tokens, line: lineNo}
		node, perr := p.parseCommand()
		if perr != nil {
			result.Errors = append(result.Errors, *perr)
			continue
		}
		result.Warnings = append(result.Warnings, p.warnings...)
		result.Commands = append(result.Commands, *node)
	}
	if blank {
		result.Errors = append(result.Errors, ParseError{
			Code:    CodeEmptyLine,
			Message: "no command text",
			Line:    1,
			Column:  1,
		})
	}
	return result
}

type lineParser struct {
	tokens   []token
	pos      int
	line     int
	warnings []ParseWarning
}

func (p *lineParser) peek() token {
	return p.tokens[p.pos]
}

func (p *lineParser) peekAt(offset int) token {
	idx := p.pos + offset
	if idx >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}
	return p.tokens[idx]
}

func (p *lineParser) next() token {
	tok := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return tok
}

func (p *lineParser) expect(kind tokenKind, want string) (token, *ParseError) {
	tok := p.peek()
	if tok.kind != kind {
		return token{}, unexpected(tok, p.line, want)
	}
	return p.next(), nil
}

// parseCommand parses subject "." verb "(" arglist ")".
func (p *lineParser) parseCommand() (*CommandNode, *ParseError) {
	subject, verb, perr := p.parseSubjectVerb()
	if perr != nil {
		return nil, perr
	}
	if _, perr := p.expect(tokenLParen, "'('"); perr != nil {
		perr.Code = CodeMissingParen
		return nil, perr
	}
	args, perr := p.parseArgList(tokenRParen)
	if perr != nil {
		return nil, perr
	}
	if _, perr := p.expect(tokenRParen, "')'"); perr != nil {
		return nil, perr
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, &ParseError{
			Code:    CodeTrailingInput,
			Message: fmt.Sprintf("unexpected input after ')': %s", tok.kind),
			Line:    p.line,
			Column:  tok.column,
		}
	}
	return &CommandNode{Subject: subject, Verb: verb, Args: args, Line: p.line}, nil
}

// parseSubjectVerb consumes the dotted chain up to the '(' and splits it
// into subject and verb. The verb is the final segment; SYSTEM subjects
// fold into the SYSTEM.<ACTION> verb form.
func (p *lineParser) parseSubjectVerb() (string, string, *ParseError) {
	first := p.peek()
	if first.kind != tokenIdent {
		return "", "", unexpected(first, p.line, "a subject reference")
	}

	var segments []string
	var columns []int
	for {
		tok := p.peek()
		if tok.kind != tokenIdent && tok.kind != tokenNumber {
			return "", "", unexpected(tok, p.line, "a subject segment")
		}
		p.next()
		segments = append(segments, tok.text)
		columns = append(columns, tok.column)
		if p.peek().kind == tokenDot {
			p.next()
			continue
		}
		break
	}

	if len(segments) < 2 {
		return "", "", &ParseError{
			Code:    CodeBadSubject,
			Message: fmt.Sprintf("command %q has no verb", segments[0]),
			Line:    p.line,
			Column:  first.column,
		}
	}

	verb := segments[len(segments)-1]
	verbCol := columns[len(columns)-1]
	subject := strings.Join(segments[:len(segments)-1], ".")

	if !isUpperVerb(verb) {
		return "", "", &ParseError{
			Code:    CodeVerbNotUppercase,
			Message: fmt.Sprintf("verb %q must be an upper-case action name", verb),
			Line:    p.line,
			Column:  verbCol,
		}
	}
	head, _, _ := strings.Cut(subject, ".")
	if head == "SYSTEM" {
		if subject != "SYSTEM" {
			return "", "", &ParseError{
				Code:    CodeBadSubject,
				Message: fmt.Sprintf("SYSTEM subject must be bare, got %q", subject),
				Line:    p.line,
				Column:  first.column,
			}
		}
		return "SYSTEM", "SYSTEM." + verb, nil
	}
	if !referenceKinds[head] {
		return "", "", &ParseError{
			Code:    CodeBadSubject,
			Message: fmt.Sprintf("unknown subject kind %q in %q", head, subject),
			Line:    p.line,
			Column:  first.column,
		}
	}
	return subject, verb, nil
}

func isUpperVerb(verb string) bool {
	if verb == "" {
		return false
	}
	for i, c := range verb {
		switch {
		case c >= 'A' && c <= 'Z':
		case c == '_' && i > 0:
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return verb[0] >= 'A' && verb[0] <= 'Z'
}

// parseArgList parses comma-separated arguments until the closing token.
// Purely named pairs are the grammar; a bare value is preserved with an
// empty name so the lint pass can flag positional use.
func (p *lineParser) parseArgList(closing tokenKind) ([]Arg, *ParseError) {
	args := []Arg{}
	if p.peek().kind == closing {
		return args, nil
	}
	seen := make(map[string]bool)
	for {
		var arg Arg
		if p.peek().kind == tokenIdent && p.peekAt(1).kind == tokenEquals {
			nameTok := p.next()
			p.next() // '='
			value, perr := p.parseValue()
			if perr != nil {
				return nil, perr
			}
			arg = Arg{Name: nameTok.text, Value: value}
			if seen[nameTok.text] {
				p.warnings = append(p.warnings, ParseWarning{
					Code:    CodeDuplicateArgument,
					Message: fmt.Sprintf("argument %q given more than once", nameTok.text),
					Line:    p.line,
					Column:  nameTok.column,
				})
			}
			seen[nameTok.text] = true
		} else {
			value, perr := p.parseValue()
			if perr != nil {
				return nil, perr
			}
			arg = Arg{Value: value}
		}
		args = append(args, arg)
		if p.peek().kind == tokenComma {
			p.next()
			// Tolerate a trailing comma before the closing token; the
			// normalizer usually strips it but parse order is not guaranteed.
			if p.peek().kind == closing {
				break
			}
			continue
		}
		break
	}
	return args, nil
}

// parseValue parses a scalar, reference, list or object value.
func (p *lineParser) parseValue() (Value, *ParseError) {
	tok := p.peek()
	switch tok.kind {
	case tokenString:
		p.next()
		return Value{Kind: ValueString, Text: tok.text}, nil

	case tokenNumber:
		p.next()
		text := tok.text
		// Rejoin NUMBER '.' NUMBER into a float literal.
		if p.peek().kind == tokenDot && p.peekAt(1).kind == tokenNumber {
			p.next()
			frac := p.next()
			text = text + "." + frac.text
		}
		return Value{Kind: ValueNumber, Text: text}, nil

	case tokenIdent:
		return p.parseReferenceOrSymbol()

	case tokenLBracket:
		p.next()
		list := Value{Kind: ValueList, List: []Value{}}
		if p.peek().kind == tokenRBracket {
			p.next()
			return list, nil
		}
		for {
			item, perr := p.parseValue()
			if perr != nil {
				return Value{}, perr
			}
			list.List = append(list.List, item)
			if p.peek().kind == tokenComma {
				p.next()
				if p.peek().kind == tokenRBracket {
					break
				}
				continue
			}
			break
		}
		if _, perr := p.expect(tokenRBracket, "']'"); perr != nil {
			return Value{}, perr
		}
		return list, nil

	case tokenLBrace:
		p.next()
		obj := Value{Kind: ValueObject, Object: []Arg{}}
		if p.peek().kind == tokenRBrace {
			p.next()
			return obj, nil
		}
		for {
			nameTok, perr := p.expect(tokenIdent, "a field name")
			if perr != nil {
				return Value{}, perr
			}
			if _, perr := p.expect(tokenEquals, "'='"); perr != nil {
				return Value{}, perr
			}
			value, perr := p.parseValue()
			if perr != nil {
				return Value{}, perr
			}
			obj.Object = append(obj.Object, Arg{Name: nameTok.text, Value: value})
			if p.peek().kind == tokenComma {
				p.next()
				if p.peek().kind == tokenRBrace {
					break
				}
				continue
			}
			break
		}
		if _, perr := p.expect(tokenRBrace, "'}'"); perr != nil {
			return Value{}, perr
		}
		return obj, nil

	default:
		return Value{}, unexpected(tok, p.line, "a value")
	}
}

// parseReferenceOrSymbol parses a dotted identifier chain. Chains headed by
// a known entity kind are references; everything else is a symbol scalar.
func (p *lineParser) parseReferenceOrSymbol() (Value, *ParseError) {
	var segments []string
	for {
		tok := p.peek()
		if tok.kind != tokenIdent && tok.kind != tokenNumber {
			return Value{}, unexpected(tok, p.line, "a reference segment")
		}
		p.next()
		segments = append(segments, tok.text)
		if p.peek().kind == tokenDot && (p.peekAt(1).kind == tokenIdent || p.peekAt(1).kind == tokenNumber) {
			p.next()
			continue
		}
		break
	}
	text := strings.Join(segments, ".")
	if referenceKinds[segments[0]] {
		return Value{Kind: ValueReference, Text: text}, nil
	}
	return Value{Kind: ValueSymbol, Text: text}, nil
}
