package parser

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

type nodeKind int

const (
	kindLiteral nodeKind = iota
	kindBinary
	kindUnary
	kindGroup
)

type node interface {
	kind() nodeKind
}

type literal struct{ text string }

type binary struct {
	op          byte
	left, right node
}

type unary struct {
	op      byte
	operand node
}

type group struct{ inner node }

func (literal) kind() nodeKind { return kindLiteral }
func (binary) kind() nodeKind  { return kindBinary }
func (unary) kind() nodeKind   { return kindUnary }
func (group) kind() nodeKind   { return kindGroup }

// Only these node kinds and operators may appear in an amount expression.
var (
	allowedKinds = map[nodeKind]bool{
		kindLiteral: true,
		kindBinary:  true,
		kindUnary:   true,
	}
	allowedBinary = map[byte]bool{'+': true, '-': true, '*': true, '/': true}
	allowedUnary  = map[byte]bool{'-': true}
)

// Evaluate computes an integer arithmetic expression such as "1500/3+20".
// Intermediate results are exact rationals; the final value must be an integer.
func Evaluate(expr string) (int64, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return 0, err
	}
	p := &exprParser{toks: toks}
	tree, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.toks) {
		return 0, fmt.Errorf("%w: unexpected %q", ErrInvalidExpression, p.toks[p.pos])
	}
	if err := checkAllowed(tree); err != nil {
		return 0, err
	}
	v, err := eval(tree)
	if err != nil {
		return 0, err
	}
	if !v.IsInt() {
		return 0, ErrNotIntegral
	}
	if !v.Num().IsInt64() {
		return 0, fmt.Errorf("%w: value out of range", ErrInvalidExpression)
	}
	return v.Num().Int64(), nil
}

// ToCents converts a major-unit value into minor units rounding half-up:
// floor(value*100 + 0.5).
func ToCents(value decimal.Decimal) (int64, error) {
	cents := value.Mul(decimal.NewFromInt(100)).Add(decimal.New(5, -1)).Floor()
	if cents.GreaterThan(decimal.NewFromInt(math.MaxInt64)) || cents.LessThan(decimal.NewFromInt(math.MinInt64)) {
		return 0, fmt.Errorf("%w: value out of range", ErrInvalidExpression)
	}
	return cents.IntPart(), nil
}

func tokenize(expr string) ([]string, error) {
	var toks []string
	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(expr) && expr[j] >= '0' && expr[j] <= '9' {
				j++
			}
			toks = append(toks, expr[i:j])
			i = j
		case strings.IndexByte("+-*/()", c) >= 0:
			toks = append(toks, expr[i:i+1])
			i++
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrInvalidExpression, c)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	return toks, nil
}

type exprParser struct {
	toks []string
	pos  int
}

func (p *exprParser) peek() string {
	if p.pos < len(p.toks) {
		return p.toks[p.pos]
	}
	return ""
}

func (p *exprParser) parseExpr() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t == "+" || t == "-"; t = p.peek() {
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binary{op: t[0], left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t == "*" || t == "/"; t = p.peek() {
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binary{op: t[0], left: left, right: right}
	}
	return left, nil
}

func (p *exprParser) parseUnary() (node, error) {
	if t := p.peek(); t == "-" || t == "+" {
		p.pos++
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unary{op: t[0], operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *exprParser) parsePrimary() (node, error) {
	t := p.peek()
	switch {
	case t == "":
		return nil, fmt.Errorf("%w: unexpected end", ErrInvalidExpression)
	case t == "(":
		p.pos++
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("%w: missing ')'", ErrInvalidExpression)
		}
		p.pos++
		return group{inner: inner}, nil
	case t[0] >= '0' && t[0] <= '9':
		// "007" is ambiguous and rejected; "0" and "00" are fine.
		if len(t) > 1 && t[0] == '0' && strings.Trim(t, "0") != "" {
			return nil, fmt.Errorf("%w: leading zeros in %q", ErrInvalidExpression, t)
		}
		p.pos++
		return literal{text: t}, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidExpression, t)
	}
}

func checkAllowed(n node) error {
	if !allowedKinds[n.kind()] {
		return fmt.Errorf("%w: unsupported construct", ErrInvalidExpression)
	}
	switch n := n.(type) {
	case binary:
		if !allowedBinary[n.op] {
			return fmt.Errorf("%w: operator %q", ErrInvalidExpression, n.op)
		}
		if err := checkAllowed(n.left); err != nil {
			return err
		}
		return checkAllowed(n.right)
	case unary:
		if !allowedUnary[n.op] {
			return fmt.Errorf("%w: unary %q", ErrInvalidExpression, n.op)
		}
		return checkAllowed(n.operand)
	case literal:
		return nil
	}
	return fmt.Errorf("%w: unsupported construct", ErrInvalidExpression)
}

func eval(n node) (*big.Rat, error) {
	switch n := n.(type) {
	case literal:
		v, ok := new(big.Rat).SetString(n.text)
		if !ok {
			return nil, fmt.Errorf("%w: bad literal %q", ErrInvalidExpression, n.text)
		}
		return v, nil
	case unary:
		v, err := eval(n.operand)
		if err != nil {
			return nil, err
		}
		return v.Neg(v), nil
	case binary:
		l, err := eval(n.left)
		if err != nil {
			return nil, err
		}
		r, err := eval(n.right)
		if err != nil {
			return nil, err
		}
		switch n.op {
		case '+':
			return l.Add(l, r), nil
		case '-':
			return l.Sub(l, r), nil
		case '*':
			return l.Mul(l, r), nil
		case '/':
			if r.Sign() == 0 {
				return nil, ErrDivisionByZero
			}
			return l.Quo(l, r), nil
		}
	}
	return nil, fmt.Errorf("%w: unsupported construct", ErrInvalidExpression)
}
