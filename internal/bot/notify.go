package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// Notifier sends direct messages to users by their ledger id. Telegram caps
// how fast a bot may send, so every message waits for the limiter. Users who
// have never started the bot cannot be messaged and are skipped.
type Notifier struct {
	api     Sender
	users   UserLookup
	ledger  Summarizer
	limiter *rate.Limiter
}

func NewNotifier(api Sender, users UserLookup, ledger Summarizer, perSecond float64) *Notifier {
	return &Notifier{
		api:     api,
		users:   users,
		ledger:  ledger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

func (n *Notifier) send(ctx context.Context, userID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	u, err := n.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("find user %d: %w", userID, err)
	}
	if !u.Registered() {
		log.Ctx(ctx).Debug().Int64("user_id", userID).Msg("user has not started the bot, skipping notification")
		return nil
	}
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(*u.TelegramID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send to user %d: %w", userID, err)
	}
	return nil
}

func (n *Notifier) mention(ctx context.Context, userID int64) string {
	u, err := n.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Sprintf("user#%d", userID)
	}
	return escapeMD(u.Mention())
}

func debtLine(d domain.Debt) string {
	line := fmt.Sprintf("#%d %s", d.ID, formatMoney(d.AmountCents))
	if d.Description != "" {
		line += " за «" + escapeMD(d.Description) + "»"
	}
	return line
}

// DebtCreated asks the debtor to confirm a pending debt, or tells them it was
// accepted on their behalf because they trust the creditor.
func (n *Notifier) DebtCreated(ctx context.Context, d domain.Debt) error {
	creditor := n.mention(ctx, d.CreditorID)
	if d.Status != domain.DebtPending {
		return n.send(ctx, d.DebtorID, fmt.Sprintf(
			"📌 %s записал тебе долг %s\nТы доверяешь этому пользователю, поэтому долг принят автоматически.",
			creditor, debtLine(d)), nil)
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Согласен", Command{ActionConfirm, d.ID}.String()),
		tgbotapi.NewInlineKeyboardButtonData("❌ Отклонить", Command{ActionDecline, d.ID}.String()),
	))
	return n.send(ctx, d.DebtorID, fmt.Sprintf(
		"📌 %s говорит, что ты должен %s\nПодтверди или отклони:", creditor, debtLine(d)), &kb)
}

func (n *Notifier) DebtConfirmed(ctx context.Context, d domain.Debt) error {
	return n.send(ctx, d.CreditorID, fmt.Sprintf("✅ %s подтвердил долг %s",
		n.mention(ctx, d.DebtorID), debtLine(d)), nil)
}

func (n *Notifier) DebtDeclined(ctx context.Context, d domain.Debt) error {
	return n.send(ctx, d.CreditorID, fmt.Sprintf("❌ %s отклонил долг %s",
		n.mention(ctx, d.DebtorID), debtLine(d)), nil)
}

func (n *Notifier) DebtExpired(ctx context.Context, d domain.Debt) error {
	return n.send(ctx, d.CreditorID, fmt.Sprintf("⌛ %s не подтвердил долг %s вовремя, запись отменена",
		n.mention(ctx, d.DebtorID), debtLine(d)), nil)
}

// PaymentRecorded asks the creditor whether the money arrived.
func (n *Notifier) PaymentRecorded(ctx context.Context, d domain.Debt, p domain.Payment) error {
	kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("✅ Получил", Command{ActionApprovePayment, p.ID}.String()),
		tgbotapi.NewInlineKeyboardButtonData("❌ Не получал", Command{ActionRejectPayment, p.ID}.String()),
	))
	return n.send(ctx, d.CreditorID, fmt.Sprintf("💸 %s отметил оплату %s по долгу %s",
		n.mention(ctx, d.DebtorID), formatMoney(p.AmountCents), debtLine(d)), &kb)
}

func (n *Notifier) PaymentApproved(ctx context.Context, d domain.Debt, p domain.Payment) error {
	text := fmt.Sprintf("✅ %s подтвердил оплату %s по долгу #%d",
		n.mention(ctx, d.CreditorID), formatMoney(p.AmountCents), d.ID)
	if d.Status == domain.DebtPaid {
		text += "\nДолг полностью погашен 🎉"
	}
	return n.send(ctx, d.DebtorID, text, nil)
}

func (n *Notifier) PaymentRejected(ctx context.Context, d domain.Debt, p domain.Payment) error {
	return n.send(ctx, d.DebtorID, fmt.Sprintf("❌ %s не подтвердил оплату %s по долгу #%d",
		n.mention(ctx, d.CreditorID), formatMoney(p.AmountCents), d.ID), nil)
}

// SendSummary sends the weekly overview. Users without active debts get nothing.
func (n *Notifier) SendSummary(ctx context.Context, u domain.User) error {
	sum, err := n.ledger.Summary(ctx, u.ID)
	if err != nil {
		return err
	}
	if len(sum.Balances) == 0 {
		return nil
	}
	return n.send(ctx, u.ID, "🗓 *Итоги недели*\n\n"+n.renderBalances(ctx, sum), nil)
}

func (n *Notifier) renderBalances(ctx context.Context, sum domain.Summary) string {
	var b strings.Builder
	for _, bal := range sum.Balances {
		who := n.mention(ctx, bal.CounterpartyID)
		switch {
		case bal.NetCents > 0:
			fmt.Fprintf(&b, "📥 %s должен тебе %s\n", who, formatMoney(bal.NetCents))
		case bal.NetCents < 0:
			fmt.Fprintf(&b, "📤 ты должен %s %s\n", who, formatMoney(-bal.NetCents))
		}
	}
	fmt.Fprintf(&b, "\nТебе должны: %s\nТы должен: %s\n", formatMoney(sum.LentCents), formatMoney(sum.OweCents))
	sign := "+"
	net := sum.NetCents
	if net < 0 {
		sign = "-"
		net = -net
	}
	fmt.Fprintf(&b, "Баланс: %s%s", sign, formatMoney(net))
	return b.String()
}
