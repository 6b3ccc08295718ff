package ai

import (
	"errors"
	"math"
	"strconv"
)

var (
	ErrInvalidExpression = errors.New("Invalid expression")
	ErrDivisionByZero    = errors.New("division by zero")
)

// Evaluate computes an arithmetic expression over numbers, + - * /, unary minus
// and parentheses. Any other character makes the whole expression invalid.
func Evaluate(expr string) (float64, error) {
	for _, c := range expr {
		if !allowedChar(c) {
			return 0, ErrInvalidExpression
		}
	}
	p := &exprParser{src: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, ErrInvalidExpression
	}
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return 0, ErrInvalidExpression
	}
	return v, nil
}

func allowedChar(c rune) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case c == '+', c == '-', c == '*', c == '/', c == '(', c == ')', c == '.':
		return true
	case c == ' ', c == '\t', c == '\n', c == '\r':
		return true
	}
	return false
}

// maxDepth bounds parenthesis and unary nesting.
const maxDepth = 64

type exprParser struct {
	src   string
	pos   int
	depth int
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		default:
			return
		}
	}
}

func (p *exprParser) peek() byte {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

// expr := term (('+' | '-') term)*
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

// term := unary (('*' | '/') unary)*
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			left *= right
			continue
		}
		if right == 0 {
			return 0, ErrDivisionByZero
		}
		left /= right
	}
}

// unary := ('-' | '+') unary | primary
func (p *exprParser) parseUnary() (float64, error) {
	switch p.peek() {
	case '-', '+':
		op := p.src[p.pos]
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		v, err := p.parseUnary()
		p.depth--
		if err != nil {
			return 0, err
		}
		if op == '-' {
			return -v, nil
		}
		return v, nil
	}
	return p.parsePrimary()
}

// primary := number | '(' expr ')'
func (p *exprParser) parsePrimary() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		v, err := p.parseExpr()
		p.depth--
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, ErrInvalidExpression
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	dots := 0
	for p.pos < len(p.src) {
		ch := p.src[p.pos]
		if ch == '.' {
			dots++
		} else if ch < '0' || ch > '9' {
			break
		}
		p.pos++
	}
	if p.pos == start || dots > 1 {
		return 0, ErrInvalidExpression
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, ErrInvalidExpression
	}
	return v, nil
}

func (p *exprParser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return ErrInvalidExpression
	}
	return nil
}
