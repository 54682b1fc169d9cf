package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/parser"
)

// formatMoney renders cents without trailing zeros: 1250 -> "12.5 ₽".
func formatMoney(cents int64) string {
	return decimal.New(cents, -2).String() + " ₽"
}

var errSubCent = errors.New("amount has more than two decimal places")

// parseMoney reads "12", "12.5" or "12,50" as cents. Fractions of a cent are
// an error rather than rounded.
func parseMoney(s string) (int64, error) {
	v, err := decimal.NewFromString(strings.ReplaceAll(strings.TrimSpace(s), ",", "."))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", parser.ErrInvalidExpression, s)
	}
	if !v.Shift(2).IsInteger() {
		return 0, fmt.Errorf("%w: %q", errSubCent, s)
	}
	cents, err := parser.ToCents(v)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, domain.ErrNonPositiveAmount
	}
	return cents, nil
}

func statusEmoji(s domain.DebtStatus) string {
	switch s {
	case domain.DebtPending:
		return "⏳"
	case domain.DebtActive, domain.DebtPaid:
		return "✅"
	case domain.DebtRejected:
		return "❌"
	}
	return "❓"
}

var errorTexts = []struct {
	err  error
	text string
}{
	{parser.ErrEmptyMessage, "Пустое сообщение"},
	{parser.ErrNoMentions, "Не понял, кому записать долг. Пример: @username 500 пицца"},
	{parser.ErrInvalidHandle, "Неверный @username"},
	{parser.ErrDuplicateMention, "Один и тот же человек указан дважды"},
	{parser.ErrAmountNotFound, "Не нашёл сумму"},
	{parser.ErrDivisionByZero, "Деление на ноль"},
	{parser.ErrNotIntegral, "Сумма должна получиться целой"},
	{parser.ErrInvalidExpression, "Не понял сумму"},
	{parser.ErrNonPositiveAmount, "Сумма должна быть больше нуля"},
	{errSubCent, "Не больше двух знаков после запятой"},
	{domain.ErrNonPositiveAmount, "Сумма должна быть больше нуля"},
	{domain.ErrUserNotFound, "Я не знаю этого пользователя"},
	{domain.ErrDebtNotFound, "Долг не найден"},
	{domain.ErrPaymentNotFound, "Оплата не найдена"},
	{domain.ErrNotTheDebtor, "Это может сделать только должник"},
	{domain.ErrNotTheCreditor, "Это может сделать только кредитор"},
	{domain.ErrDebtNotPending, "Долг уже обработан"},
	{domain.ErrDebtNotActive, "Долг не активен"},
	{domain.ErrExceedsRemaining, "Сумма больше остатка долга"},
	{domain.ErrPaymentConfirmed, "Оплата уже подтверждена"},
}

// errorText turns an error into a message for the user. Unknown errors get a
// generic text; their details only go to the log.
func errorText(err error) string {
	text := "Что-то пошло не так, попробуй позже"
	for _, e := range errorTexts {
		if errors.Is(err, e.err) {
			text = e.text
			break
		}
	}
	var pe *parser.ParseError
	if errors.As(err, &pe) && pe.Line > 0 {
		text = fmt.Sprintf("Строка %d: %s", pe.Line, text)
	}
	return "❌ " + text
}

func isUserError(err error) bool {
	for _, e := range errorTexts {
		if errors.Is(err, e.err) {
			return true
		}
	}
	return false
}

// escapeMD escapes the characters legacy Markdown treats specially.
func escapeMD(s string) string {
	repl := strings.NewReplacer(
		"_", "\\_",
		"*", "\\*",
		"[", "\\[",
		"`", "\\`",
	)
	return repl.Replace(s)
}
