package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSingleLine(t *testing.T) {
	got, err := Parse("@alice_1 500 for lunch", "bob_author")
	require.NoError(t, err)

	want := []Debt{{Debtor: "alice_1", AmountCents: 50000, Comments: []string{"for lunch"}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAggregatesAcrossLines(t *testing.T) {
	got, err := Parse("@aaaaa 100 lunch\n@aaaaa 50 tea\n@aaaaa 10 lunch", "xxxxx")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "aaaaa", got[0].Debtor)
	assert.Equal(t, int64(16000), got[0].AmountCents)
	assert.Equal(t, "lunch, tea", got[0].Comment())
}

func TestParseMultipleDebtorsGetSameAmount(t *testing.T) {
	got, err := Parse("@Alice_1 @bob_22 я 300 pizza\n@carol 20*5", "author")
	require.NoError(t, err)

	want := []Debt{
		{Debtor: "alice_1", AmountCents: 30000, Comments: []string{"pizza"}},
		{Debtor: "bob_22", AmountCents: 30000, Comments: []string{"pizza"}},
		{Debtor: "carol", AmountCents: 10000},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse mismatch (-want +got):\n%s", diff)
	}
}

func TestParseAmountTokensJoinAcrossSpaces(t *testing.T) {
	got, err := Parse("@alice_1 100 + 50 * 2 taxi home", "author")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(20000), got[0].AmountCents)
	assert.Equal(t, "taxi home", got[0].Comment())
}

func TestParseStripsAuthor(t *testing.T) {
	got, err := Parse("@Author @alice_1 200", "@author")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "alice_1", got[0].Debtor)
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		msg  string
		want error
	}{
		{"empty", "  \n \n", ErrEmptyMessage},
		{"no mentions", "500 lunch", ErrNoMentions},
		{"only author", "@author 500", ErrNoMentions},
		{"only self marker", "я 500", ErrNoMentions},
		{"short handle", "@usr 100", ErrInvalidHandle},
		{"bad handle chars", "@user-name 100", ErrInvalidHandle},
		{"duplicate", "@user1 @USER1 100", ErrDuplicateMention},
		{"duplicate self marker", "я Я @user1 100", ErrDuplicateMention},
		{"no amount", "@user1 lunch", ErrAmountNotFound},
		{"mentions only", "@user1", ErrAmountNotFound},
		{"division by zero", "@user1 100/0", ErrDivisionByZero},
		{"not integral", "@user1 10/3", ErrNotIntegral},
		{"malformed", "@user1 1+", ErrInvalidExpression},
		{"zero", "@user1 0", ErrNonPositiveAmount},
		{"negative", "@user1 -50", ErrNonPositiveAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.msg, "author")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Zero(t, pe.Line)
		})
	}
}

func TestParseMultiLineReportsFailingLine(t *testing.T) {
	_, err := Parse("@user1 100\n@user2 100/0", "author")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDivisionByZero)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Contains(t, err.Error(), "failed to parse line 2")
}

func TestNormalizeHandle(t *testing.T) {
	assert.Equal(t, "alice_1", NormalizeHandle(" @Alice_1 "))
	assert.True(t, ValidHandle("@alice"))
	assert.False(t, ValidHandle("@alic"))
}
