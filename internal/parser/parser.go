// Package parser turns free-text IOU messages like "@alice 500 for lunch" into
// per-debtor amounts.
//
// Each non-blank line is: one or more names (@handle or the self-marker "я"),
// an amount expression, and an optional comment.
package parser

import (
	"math"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// SelfMarker is accepted in the name list but does not produce a debtor.
const SelfMarker = "я"

var (
	reHandle     = regexp.MustCompile(`^@?[A-Za-z0-9_]{5,32}$`)
	reAmountPart = regexp.MustCompile(`^[0-9+\-*/]+$`)
)

// Debt is the aggregated amount one debtor owes the message author.
type Debt struct {
	Debtor      string
	AmountCents int64
	Comments    []string
}

// Comment joins the collected comments in first-seen order.
func (d Debt) Comment() string { return strings.Join(d.Comments, ", ") }

func (d *Debt) add(cents int64, comment string) error {
	if d.AmountCents > math.MaxInt64-cents {
		return ErrInvalidExpression
	}
	d.AmountCents += cents
	if comment == "" {
		return nil
	}
	for _, c := range d.Comments {
		if c == comment {
			return nil
		}
	}
	d.Comments = append(d.Comments, comment)
	return nil
}

// NormalizeHandle lower-cases a handle and strips a leading '@'.
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// ValidHandle reports whether h (with or without '@') is a well-formed handle.
func ValidHandle(h string) bool { return reHandle.MatchString(h) }

// Parse splits message into lines and aggregates the debts of every line.
// The author never owes themselves; the result keeps first-appearance order.
func Parse(message, authorHandle string) ([]Debt, error) {
	var lines []string
	for _, l := range strings.FieldsFunc(message, func(r rune) bool { return r == '\n' || r == '\r' }) {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, &ParseError{Err: ErrEmptyMessage}
	}

	agg := &aggregate{index: make(map[string]int)}
	author := NormalizeHandle(authorHandle)

	if len(lines) == 1 {
		if err := parseLine(lines[0], author, agg); err != nil {
			return nil, err
		}
		return agg.debts, nil
	}
	for i, line := range lines {
		if err := parseLine(line, author, agg); err != nil {
			if pe, ok := err.(*ParseError); ok {
				pe.Line = i + 1
				return nil, pe
			}
			return nil, &ParseError{Line: i + 1, Err: err}
		}
	}
	return agg.debts, nil
}

type aggregate struct {
	debts []Debt
	index map[string]int
}

func (a *aggregate) add(debtor string, cents int64, comment string) error {
	if i, ok := a.index[debtor]; ok {
		return a.debts[i].add(cents, comment)
	}
	d := Debt{Debtor: debtor}
	if err := d.add(cents, comment); err != nil {
		return err
	}
	a.index[debtor] = len(a.debts)
	a.debts = append(a.debts, d)
	return nil
}

func parseLine(line, author string, agg *aggregate) error {
	tokens := strings.Fields(line)

	i := 0
	var names []string
	for ; i < len(tokens); i++ {
		tok := tokens[i]
		if strings.ToLower(tok) != SelfMarker && !strings.HasPrefix(tok, "@") {
			break
		}
		names = append(names, tok)
	}
	if len(names) == 0 {
		return &ParseError{Err: ErrNoMentions}
	}

	seen := make(map[string]bool, len(names))
	var mentions []string
	for _, tok := range names {
		if strings.ToLower(tok) == SelfMarker {
			if seen[SelfMarker] {
				return &ParseError{Err: ErrDuplicateMention, Token: tok}
			}
			seen[SelfMarker] = true
			continue
		}
		if !ValidHandle(tok) {
			return &ParseError{Err: ErrInvalidHandle, Token: tok}
		}
		h := NormalizeHandle(tok)
		if seen[h] {
			return &ParseError{Err: ErrDuplicateMention, Token: tok}
		}
		seen[h] = true
		mentions = append(mentions, h)
	}

	var expr strings.Builder
	for ; i < len(tokens) && reAmountPart.MatchString(tokens[i]); i++ {
		expr.WriteString(tokens[i])
	}
	if expr.Len() == 0 {
		return &ParseError{Err: ErrAmountNotFound}
	}

	value, err := Evaluate(expr.String())
	if err != nil {
		return &ParseError{Err: err, Token: expr.String()}
	}
	if value <= 0 {
		return &ParseError{Err: ErrNonPositiveAmount, Token: expr.String()}
	}
	cents, err := ToCents(decimal.NewFromInt(value))
	if err != nil {
		return &ParseError{Err: err, Token: expr.String()}
	}

	comment := strings.TrimSpace(strings.Join(tokens[i:], " "))

	var debtors []string
	for _, m := range mentions {
		if m != author {
			debtors = append(debtors, m)
		}
	}
	if len(debtors) == 0 {
		return &ParseError{Err: ErrNoMentions}
	}

	for _, d := range debtors {
		if err := agg.add(d, cents, comment); err != nil {
			return &ParseError{Err: err}
		}
	}
	return nil
}
