package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/parser"
)

const helpText = `Привет! Я записываю, кто кому сколько должен.

Записать долг, просто напиши:
` + "`@username 500 пицца`" + `
Можно несколько человек и выражения:
` + "`@anna @boris 1500/3 такси`" + `
Каждая строка это отдельная запись. «я» в списке можно писать, на запись оно не влияет.

Должник получит кнопки, чтобы подтвердить или отклонить долг. Неподтверждённые долги отменяются через сутки.

Команды:
/debts — мои долги и баланс
/pay <id> <сумма> — отметить оплату долга
/history <id> — оплаты по долгу
/trust @username — принимать долги от него без подтверждения
/untrust @username — перестать доверять
/trusted — кому я доверяю`

// command splits "/cmd@botname args" into "cmd" and its arguments.
func command(text string) (string, []string) {
	fields := strings.Fields(text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name), fields[1:]
}

func (h *Handler) handleCommand(ctx context.Context, chatID int64, me domain.User, text string) {
	name, args := command(text)
	switch name {
	case "start", "help":
		h.reply(chatID, helpText, true)
	case "debts":
		h.handleDebts(ctx, chatID, me)
	case "pay":
		h.handlePay(ctx, chatID, me, args)
	case "history":
		h.handleHistory(ctx, chatID, me, args)
	case "trust":
		h.handleTrust(ctx, chatID, me, args)
	case "untrust":
		h.handleUntrust(ctx, chatID, me, args)
	case "trusted":
		h.handleTrustedInline(ctx, chatID, me)
	default:
		h.reply(chatID, "Не знаю такой команды. /help", false)
	}
}

func (h *Handler) handleDebts(ctx context.Context, chatID int64, me domain.User) {
	debts, err := h.ledger.Active(ctx, me.ID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if len(debts) == 0 {
		h.reply(chatID, "📊 Активных долгов нет 👍", false)
		return
	}
	sum, err := h.ledger.Summary(ctx, me.ID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	var lent, owe strings.Builder
	for _, d := range debts {
		if d.CreditorID == me.ID {
			fmt.Fprintf(&lent, "%s — %s\n", debtLine(d), h.notify.mention(ctx, d.DebtorID))
		} else {
			fmt.Fprintf(&owe, "%s — %s\n", debtLine(d), h.notify.mention(ctx, d.CreditorID))
		}
	}

	var b strings.Builder
	if lent.Len() > 0 {
		b.WriteString("📥 *Тебе должны:*\n")
		b.WriteString(lent.String())
		b.WriteString("\n")
	}
	if owe.Len() > 0 {
		b.WriteString("📤 *Ты должен:*\n")
		b.WriteString(owe.String())
		b.WriteString("\n")
	}
	b.WriteString("📊 *Баланс:*\n")
	b.WriteString(h.notify.renderBalances(ctx, sum))
	b.WriteString("\n\nОтметить оплату: `/pay <id> <сумма>`")
	h.reply(chatID, b.String(), true)
}

func parseDebtID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) handlePay(ctx context.Context, chatID int64, me domain.User, args []string) {
	if len(args) != 2 {
		h.reply(chatID, "Используй: /pay <id> <сумма>\nПример: /pay 12 250", false)
		return
	}
	id, ok := parseDebtID(args[0])
	if !ok {
		h.reply(chatID, "❌ Неверный id долга. Пример: /pay 12 250", false)
		return
	}
	cents, err := parseMoney(args[1])
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	d, err := h.ledger.Debt(ctx, id)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if d.DebtorID != me.ID {
		h.replyError(ctx, chatID, domain.ErrNotTheDebtor)
		return
	}

	p, err := h.payments.RecordPayment(ctx, d.ID, cents)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	h.reply(chatID, fmt.Sprintf("💸 Оплата %s по долгу #%d отправлена на подтверждение %s",
		formatMoney(p.AmountCents), d.ID, h.notify.mention(ctx, d.CreditorID)), true)
	if err := h.notify.PaymentRecorded(ctx, d, p); err != nil {
		log.Ctx(ctx).Warn().Err(err).Int64("payment_id", p.ID).Msg("payment notification failed")
	}
}

func (h *Handler) handleHistory(ctx context.Context, chatID int64, me domain.User, args []string) {
	if len(args) != 1 {
		h.reply(chatID, "Используй: /history <id>", false)
		return
	}
	id, ok := parseDebtID(args[0])
	if !ok {
		h.reply(chatID, "❌ Неверный id долга. Пример: /history 12", false)
		return
	}
	d, err := h.ledger.Debt(ctx, id)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	// чужие долги не показываем
	if d.CreditorID != me.ID && d.DebtorID != me.ID {
		h.replyError(ctx, chatID, domain.ErrDebtNotFound)
		return
	}

	list, err := h.payments.History(ctx, d.ID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	remaining, err := h.payments.Remaining(ctx, d.ID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Долг %s\n", statusEmoji(d.Status), debtLine(d))
	if len(list) == 0 {
		b.WriteString("Оплат пока не было\n")
	}
	for _, p := range list {
		mark := "⏳"
		if p.Status == domain.PaymentConfirmed {
			mark = "✅"
		}
		fmt.Fprintf(&b, "%s %s — %s\n", mark, p.CreatedAt.Format("02.01.2006"), formatMoney(p.AmountCents))
	}
	fmt.Fprintf(&b, "Осталось: %s", formatMoney(remaining))
	h.reply(chatID, b.String(), true)
}

func handleArg(args []string) (string, bool) {
	if len(args) != 1 {
		return "", false
	}
	handle := parser.NormalizeHandle(args[0])
	return handle, parser.ValidHandle(handle)
}

func (h *Handler) handleTrust(ctx context.Context, chatID int64, me domain.User, args []string) {
	handle, ok := handleArg(args)
	if !ok {
		h.reply(chatID, "Используй: /trust @username", false)
		return
	}
	if handle == me.Username {
		h.reply(chatID, "❌ Себе доверять не нужно 🙂", false)
		return
	}

	// Доверять можно и тому, кто ещё не писал боту: долги от него сразу станут активными.
	target, err := h.users.FindByHandle(ctx, handle)
	if errors.Is(err, domain.ErrUserNotFound) {
		target, err = h.users.Create(ctx, handle)
	}
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if err := h.trust.AddTrust(ctx, me.ID, target.ID); err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	log.Ctx(ctx).Info().Int64("trusted_id", target.ID).Msg("trust added")
	h.reply(chatID, fmt.Sprintf("✅ Теперь долги от @%s записываются без подтверждения.\nОтменить: /untrust @%s", handle, handle), false)
}

func (h *Handler) handleUntrust(ctx context.Context, chatID int64, me domain.User, args []string) {
	handle, ok := handleArg(args)
	if !ok {
		h.reply(chatID, "Используй: /untrust @username", false)
		return
	}
	target, err := h.users.FindByHandle(ctx, handle)
	if errors.Is(err, domain.ErrUserNotFound) {
		h.reply(chatID, fmt.Sprintf("@%s нет в списке доверенных", handle), false)
		return
	}
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	removed, err := h.trust.RemoveTrust(ctx, me.ID, target.ID)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	if !removed {
		h.reply(chatID, fmt.Sprintf("@%s нет в списке доверенных", handle), false)
		return
	}
	h.reply(chatID, fmt.Sprintf("✅ Больше не доверяю @%s", handle), false)
}

func (h *Handler) trustedKeyboard(ctx context.Context, me domain.User) (string, *tgbotapi.InlineKeyboardMarkup, error) {
	list, err := h.trust.ListTrusted(ctx, me.ID)
	if err != nil {
		return "", nil, err
	}
	if len(list) == 0 {
		return "🤝 Ты пока никому не доверяешь.\nДобавь: /trust @username", nil, nil
	}

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(list))
	for _, u := range list {
		btn := tgbotapi.NewInlineKeyboardButtonData(
			"🚫 "+u.Mention(),
			Command{Action: ActionUntrust, ID: u.ID}.String(),
		)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(btn))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return "🤝 *Ты доверяешь:*\nНажми, чтобы убрать из списка", &kb, nil
}

func (h *Handler) handleTrustedInline(ctx context.Context, chatID int64, me domain.User) {
	text, kb, err := h.trustedKeyboard(ctx, me)
	if err != nil {
		h.replyError(ctx, chatID, err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, _ = h.api.Send(msg)
}
