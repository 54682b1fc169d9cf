package parser

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyMessage      = errors.New("empty message")
	ErrNoMentions        = errors.New("no mentions found")
	ErrInvalidHandle     = errors.New("invalid handle format")
	ErrDuplicateMention  = errors.New("duplicate mention")
	ErrAmountNotFound    = errors.New("amount not found")
	ErrDivisionByZero    = errors.New("division by zero")
	ErrNotIntegral       = errors.New("expression result is not an integer")
	ErrInvalidExpression = errors.New("invalid amount expression")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// ParseError describes why a message could not be turned into debts.
// Line is 1-based and only set for multi-line messages.
type ParseError struct {
	Line  int
	Token string
	Err   error
}

func (e *ParseError) Error() string {
	msg := e.Err.Error()
	if e.Token != "" {
		msg = fmt.Sprintf("%s: %q", msg, e.Token)
	}
	if e.Line > 0 {
		return fmt.Sprintf("failed to parse line %d: %s", e.Line, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Err }
