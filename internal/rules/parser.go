// internal/rules/parser.go
package rules

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokPath           // @request.auth.id
	tokString         // 'abc' or "abc"
	tokNumber         // 42, 3.14, -1
	tokTrue
	tokFalse
	tokNull
	tokAnd    // &&
	tokOr     // ||
	tokNot    // !
	tokLParen // (
	tokRParen // )
	tokOp     // = != > >= < <= ?=
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case c == '(':
		l.pos++
		return token{tokLParen, "(", start}, nil
	case c == ')':
		l.pos++
		return token{tokRParen, ")", start}, nil
	case c == '&':
		if l.peekAt(1) != '&' {
			return token{}, fmt.Errorf("unexpected '&' at position %d (did you mean '&&'?)", start)
		}
		l.pos += 2
		return token{tokAnd, "&&", start}, nil
	case c == '|':
		if l.peekAt(1) != '|' {
			return token{}, fmt.Errorf("unexpected '|' at position %d (did you mean '||'?)", start)
		}
		l.pos += 2
		return token{tokOr, "||", start}, nil
	case c == '!':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{tokOp, "!=", start}, nil
		}
		l.pos++
		return token{tokNot, "!", start}, nil
	case c == '=':
		l.pos++
		return token{tokOp, "=", start}, nil
	case c == '>':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{tokOp, ">=", start}, nil
		}
		l.pos++
		return token{tokOp, ">", start}, nil
	case c == '<':
		if l.peekAt(1) == '=' {
			l.pos += 2
			return token{tokOp, "<=", start}, nil
		}
		l.pos++
		return token{tokOp, "<", start}, nil
	case c == '?':
		if l.peekAt(1) != '=' {
			return token{}, fmt.Errorf("unexpected '?' at position %d (did you mean '?='?)", start)
		}
		l.pos += 2
		return token{tokOp, "?=", start}, nil
	case c == '\'' || c == '"':
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) && l.input[l.pos] != quote {
			if l.input[l.pos] == '\\' && l.pos+1 < len(l.input) {
				l.pos++
			}
			sb.WriteByte(l.input[l.pos])
			l.pos++
		}
		if l.pos >= len(l.input) {
			return token{}, fmt.Errorf("unterminated string starting at position %d", start)
		}
		l.pos++ // closing quote
		return token{tokString, sb.String(), start}, nil
	case c == '@':
		l.pos++
		for l.pos < len(l.input) && isPathChar(l.input[l.pos]) {
			l.pos++
		}
		return token{tokPath, l.input[start:l.pos], start}, nil
	case c == '-' || unicode.IsDigit(rune(c)):
		l.pos++
		for l.pos < len(l.input) && (unicode.IsDigit(rune(l.input[l.pos])) || l.input[l.pos] == '.') {
			l.pos++
		}
		text := l.input[start:l.pos]
		if _, err := strconv.ParseFloat(text, 64); err != nil {
			return token{}, fmt.Errorf("invalid number %q at position %d", text, start)
		}
		return token{tokNumber, text, start}, nil
	case unicode.IsLetter(rune(c)):
		for l.pos < len(l.input) && isIdentChar(l.input[l.pos]) {
			l.pos++
		}
		word := l.input[start:l.pos]
		switch word {
		case "true":
			return token{tokTrue, word, start}, nil
		case "false":
			return token{tokFalse, word, start}, nil
		case "null":
			return token{tokNull, word, start}, nil
		}
		return token{}, fmt.Errorf("unexpected identifier %q at position %d", word, start)
	}
	return token{}, fmt.Errorf("unexpected character %q at position %d", string(c), start)
}

func (l *lexer) peekAt(offset int) byte {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func isIdentChar(c byte) bool {
	return c == '_' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

func isPathChar(c byte) bool {
	return c == '.' || isIdentChar(c)
}

// parser is a plain recursive-descent parser with one token of lookahead.
//
// Grammar:
//
//	expr       -> orExpr
//	orExpr     -> andExpr { '||' andExpr }
//	andExpr    -> unaryExpr { '&&' unaryExpr }
//	unaryExpr  -> '!' unaryExpr | '(' expr ')' | comparison
//	comparison -> operand op operand
//	operand    -> string | number | true | false | null | path
type parser struct {
	lex lexer
	cur token
}

func parse(input string) (expr, error) {
	p := &parser{lex: lexer{input: input}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at position %d", p.cur.text, p.cur.pos)
	}
	return root, nil
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parseOr() (expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &orExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.cur.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &andExpr{left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (expr, error) {
	switch p.cur.kind {
	case tokNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &notExpr{inner: inner}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur.kind != tokRParen {
			return nil, fmt.Errorf("expected ')' at position %d", p.cur.pos)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (expr, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.cur.kind != tokOp {
		return nil, fmt.Errorf("expected comparison operator at position %d, got %q", p.cur.pos, p.cur.text)
	}
	op := p.cur.text
	if err := p.advance(); err != nil {
		return nil, err
	}
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &compareExpr{op: op, left: left, right: right}, nil
}

func (p *parser) parseOperand() (operand, error) {
	var op operand
	switch p.cur.kind {
	case tokString:
		op = literal{value: p.cur.text}
	case tokNumber:
		n, _ := strconv.ParseFloat(p.cur.text, 64)
		op = literal{value: n}
	case tokTrue:
		op = literal{value: true}
	case tokFalse:
		op = literal{value: false}
	case tokNull:
		op = literal{value: nil}
	case tokPath:
		pth, err := newPath(p.cur.text)
		if err != nil {
			return nil, fmt.Errorf("%v at position %d", err, p.cur.pos)
		}
		op = pth
	default:
		return nil, fmt.Errorf("expected value or context path at position %d, got %q", p.cur.pos, p.cur.text)
	}
	if err := p.advance(); err != nil {
		return nil, err
	}
	return op, nil
}
