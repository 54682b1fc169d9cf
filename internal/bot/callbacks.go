package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
)

func (h *Handler) HandleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	answer := tgbotapi.NewCallback(q.ID, "")
	// обязательно отвечаем Telegram
	defer func() { _, _ = h.api.Request(answer) }()

	cmd, err := ParseCommand(q.Data)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("bad callback data")
		answer = tgbotapi.NewCallbackWithAlert(q.ID, "Кнопка устарела")
		return
	}
	ctx = log.Ctx(ctx).With().Str("action", string(cmd.Action)).Int64("target_id", cmd.ID).Logger().WithContext(ctx)

	me, err := h.register(ctx, q.From)
	if err != nil {
		logError(ctx, err)
		answer = tgbotapi.NewCallbackWithAlert(q.ID, strings.TrimPrefix(errorText(err), "❌ "))
		return
	}

	var text string
	switch cmd.Action {
	case ActionConfirm:
		text, err = h.confirmDebt(ctx, me, cmd.ID)
	case ActionDecline:
		text, err = h.declineDebt(ctx, me, cmd.ID)
	case ActionApprovePayment:
		text, err = h.approvePayment(ctx, me, cmd.ID)
	case ActionRejectPayment:
		text, err = h.rejectPayment(ctx, me, cmd.ID)
	case ActionUntrust:
		err = h.untrustFromMenu(ctx, q, me, cmd.ID)
	}
	if err != nil {
		logError(ctx, err)
		answer = tgbotapi.NewCallbackWithAlert(q.ID, strings.TrimPrefix(errorText(err), "❌ "))
		return
	}
	if text != "" {
		h.edit(q, text, nil)
	}
}

// edit replaces the text of the message carrying the pressed button and drops
// its keyboard unless kb is given.
func (h *Handler) edit(q *tgbotapi.CallbackQuery, text string, kb *tgbotapi.InlineKeyboardMarkup) {
	var cfg tgbotapi.EditMessageTextConfig
	if q.Message != nil {
		cfg = tgbotapi.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, text)
	} else {
		cfg = tgbotapi.EditMessageTextConfig{
			BaseEdit: tgbotapi.BaseEdit{InlineMessageID: q.InlineMessageID},
			Text:     text,
		}
	}
	cfg.ParseMode = tgbotapi.ModeMarkdown
	cfg.ReplyMarkup = kb
	_, _ = h.api.Send(cfg)
}

func (h *Handler) confirmDebt(ctx context.Context, me domain.User, debtID int64) (string, error) {
	orig, err := h.ledger.Debt(ctx, debtID)
	if err != nil {
		return "", err
	}
	if me.Username == "" {
		return "", domain.ErrNotTheDebtor
	}
	result, err := h.ledger.Confirm(ctx, debtID, me.Username)
	if err != nil {
		return "", err
	}
	if err := h.notify.DebtConfirmed(ctx, orig); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("confirm notification failed")
	}

	text := "✅ Ты подтвердил долг " + debtLine(orig)
	if result.ID != orig.ID || result.Status != domain.DebtActive {
		text += "\n" + h.pairOutcome(ctx, result)
	}
	return text, nil
}

// pairOutcome describes what is left between two users after reconciliation.
func (h *Handler) pairOutcome(ctx context.Context, d domain.Debt) string {
	if d.Status == domain.DebtPaid {
		return "Взаимозачёт: долгов между вами не осталось"
	}
	return fmt.Sprintf("С учётом других долгов: %s должен %s %s (долг #%d)",
		h.notify.mention(ctx, d.DebtorID), h.notify.mention(ctx, d.CreditorID), formatMoney(d.AmountCents), d.ID)
}

func (h *Handler) declineDebt(ctx context.Context, me domain.User, debtID int64) (string, error) {
	if me.Username == "" {
		return "", domain.ErrNotTheDebtor
	}
	d, err := h.ledger.Decline(ctx, debtID, me.Username)
	if err != nil {
		return "", err
	}
	if err := h.notify.DebtDeclined(ctx, d); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("decline notification failed")
	}
	return "❌ Ты отклонил долг " + debtLine(d), nil
}

// paymentForCreditor loads a payment and its debt, checking that me is the
// creditor who may approve or reject it.
func (h *Handler) paymentForCreditor(ctx context.Context, me domain.User, paymentID int64) (domain.Payment, domain.Debt, error) {
	p, err := h.payments.Payment(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, domain.Debt{}, err
	}
	d, err := h.ledger.Debt(ctx, p.DebtID)
	if err != nil {
		return domain.Payment{}, domain.Debt{}, err
	}
	if d.CreditorID != me.ID {
		return domain.Payment{}, domain.Debt{}, domain.ErrNotTheCreditor
	}
	return p, d, nil
}

func (h *Handler) approvePayment(ctx context.Context, me domain.User, paymentID int64) (string, error) {
	if _, _, err := h.paymentForCreditor(ctx, me, paymentID); err != nil {
		return "", err
	}
	p, err := h.payments.ConfirmPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	d, err := h.ledger.Debt(ctx, p.DebtID)
	if err != nil {
		return "", err
	}
	if err := h.notify.PaymentApproved(ctx, d, p); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("payment notification failed")
	}

	text := fmt.Sprintf("✅ Оплата %s по долгу #%d подтверждена", formatMoney(p.AmountCents), d.ID)
	if d.Status == domain.DebtPaid {
		return text + "\nДолг полностью погашен 🎉", nil
	}
	remaining, err := h.payments.Remaining(ctx, d.ID)
	if err != nil {
		return "", err
	}
	return text + "\nОсталось: " + formatMoney(remaining), nil
}

func (h *Handler) rejectPayment(ctx context.Context, me domain.User, paymentID int64) (string, error) {
	_, d, err := h.paymentForCreditor(ctx, me, paymentID)
	if err != nil {
		return "", err
	}
	p, err := h.payments.RejectPayment(ctx, paymentID)
	if err != nil {
		return "", err
	}
	if err := h.notify.PaymentRejected(ctx, d, p); err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("payment notification failed")
	}
	return fmt.Sprintf("❌ Оплата %s по долгу #%d отклонена", formatMoney(p.AmountCents), d.ID), nil
}

func (h *Handler) untrustFromMenu(ctx context.Context, q *tgbotapi.CallbackQuery, me domain.User, userID int64) error {
	if _, err := h.trust.RemoveTrust(ctx, me.ID, userID); err != nil {
		return err
	}
	text, kb, err := h.trustedKeyboard(ctx, me)
	if err != nil {
		return err
	}
	h.edit(q, text, kb)
	return nil
}
