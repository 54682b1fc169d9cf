package bot

import (
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/parser"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "12.5 ₽", formatMoney(1250))
	assert.Equal(t, "12 ₽", formatMoney(1200))
	assert.Equal(t, "0.05 ₽", formatMoney(5))
	assert.Equal(t, "-3 ₽", formatMoney(-300))
}

func TestParseMoney(t *testing.T) {
	for in, want := range map[string]int64{"12": 1200, "12.5": 1250, "12,50": 1250, "12.500": 1250, "0.01": 1} {
		got, err := parseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := parseMoney("0")
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)
	_, err = parseMoney("abc")
	assert.ErrorIs(t, err, parser.ErrInvalidExpression)

	for _, in := range []string{"12.345", "0,005", "1.001"} {
		_, err = parseMoney(in)
		assert.ErrorIs(t, err, errSubCent, in)
		assert.Equal(t, "❌ Не больше двух знаков после запятой", errorText(err), in)
	}
}

func TestErrorText(t *testing.T) {
	assert.Equal(t, "❌ Долг не найден", errorText(fmt.Errorf("load: %w", domain.ErrDebtNotFound)))
	assert.Equal(t, "❌ Строка 3: Деление на ноль",
		errorText(&parser.ParseError{Line: 3, Err: parser.ErrDivisionByZero}))
	assert.Equal(t, "❌ Что-то пошло не так, попробуй позже", errorText(errors.New("connection reset")))
	assert.False(t, isUserError(errors.New("connection reset")))
}

func TestParseCommand(t *testing.T) {
	for _, c := range []Command{
		{ActionConfirm, 1},
		{ActionDecline, 42},
		{ActionApprovePayment, 7},
		{ActionRejectPayment, 8},
		{ActionUntrust, 9},
	} {
		got, err := ParseCommand(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	for _, bad := range []string{"", "confirm", "confirm:", "confirm:0", "confirm:-1", "confirm:x", "contact:5", `{"action":"debt_agree"}`} {
		_, err := ParseCommand(bad)
		assert.ErrorIs(t, err, ErrUnknownCommand, bad)
	}
}

func TestCommandSplit(t *testing.T) {
	name, args := command("/Pay@dolgi_bot 12  250")
	assert.Equal(t, "pay", name)
	assert.Equal(t, []string{"12", "250"}, args)
}

func TestHelpTextSelfMarker(t *testing.T) {
	assert.Contains(t, helpText, "«я» в списке можно писать, на запись оно не влияет")
}
