package parser

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		expr string
		want int64
	}{
		{"500", 500},
		{"100+50", 150},
		{"1500/3", 500},
		{"2*3+4", 10},
		{"2+3*4", 14},
		{"10-2-3", 5},
		{"100/4*2", 50},
		{"10/3*3", 10},
		{"-5", -5},
		{"5--2", 7},
		{"2*-3", -6},
		{"0", 0},
		{"00", 0},
		{" 1 + 2 ", 3},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			got, err := Evaluate(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluateRejects(t *testing.T) {
	cases := []struct {
		expr string
		want error
	}{
		{"100/0", ErrDivisionByZero},
		{"5/(3-3)", ErrInvalidExpression}, // grouping is parsed but not allowed
		{"10/3", ErrNotIntegral},
		{"7/2", ErrNotIntegral},
		{"", ErrInvalidExpression},
		{"1+", ErrInvalidExpression},
		{"*2", ErrInvalidExpression},
		{"2**3", ErrInvalidExpression},
		{"7//2", ErrInvalidExpression},
		{"+5", ErrInvalidExpression},
		{"(5)", ErrInvalidExpression},
		{"007", ErrInvalidExpression},
		{"1e3", ErrInvalidExpression},
		{"1.5", ErrInvalidExpression},
		{"__import__('os')", ErrInvalidExpression},
		{"len(x)", ErrInvalidExpression},
		{"99999999999999999999", ErrInvalidExpression},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			_, err := Evaluate(tc.expr)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestToCentsRoundsHalfUp(t *testing.T) {
	cases := map[string]int64{
		"5":       500,
		"0.125":   13,
		"0.124":   12,
		"12.345":  1235,
		"33.3333": 3333,
		"0.005":   1,
	}
	for in, want := range cases {
		got, err := ToCents(decimal.RequireFromString(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
