// Package bot is the Telegram front end of the ledger: it turns messages,
// inline queries and button presses into ledger operations and tells both
// sides of a debt what happened.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/parser"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type UserLookup interface {
	FindByID(ctx context.Context, id int64) (domain.User, error)
}

type Accounts interface {
	UserLookup
	FindByHandle(ctx context.Context, handle string) (domain.User, error)
	Create(ctx context.Context, handle string) (domain.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (domain.User, error)
	Register(ctx context.Context, telegramID int64, username, displayName, locale string) (domain.User, error)
}

type TrustBook interface {
	AddTrust(ctx context.Context, trusterID, trustedID int64) error
	RemoveTrust(ctx context.Context, trusterID, trustedID int64) (bool, error)
	ListTrusted(ctx context.Context, trusterID int64) ([]domain.User, error)
}

type Summarizer interface {
	Summary(ctx context.Context, userID int64) (domain.Summary, error)
	Active(ctx context.Context, userID int64) ([]domain.Debt, error)
}

type Ledger interface {
	Summarizer
	Debt(ctx context.Context, id int64) (domain.Debt, error)
	CreateFromMessage(ctx context.Context, message, authorHandle string) ([]domain.Debt, error)
	CreateForDebtor(ctx context.Context, message, authorHandle, debtorHandle string) (domain.Debt, error)
	Confirm(ctx context.Context, debtID int64, confirmingHandle string) (domain.Debt, error)
	Decline(ctx context.Context, debtID int64, decliningHandle string) (domain.Debt, error)
}

type PaymentBook interface {
	Payment(ctx context.Context, id int64) (domain.Payment, error)
	RecordPayment(ctx context.Context, debtID, amountCents int64) (domain.Payment, error)
	ConfirmPayment(ctx context.Context, paymentID int64) (domain.Payment, error)
	RejectPayment(ctx context.Context, paymentID int64) (domain.Payment, error)
	History(ctx context.Context, debtID int64) ([]domain.Payment, error)
	Remaining(ctx context.Context, debtID int64) (int64, error)
}

type Handler struct {
	api      Sender
	users    Accounts
	trust    TrustBook
	ledger   Ledger
	payments PaymentBook
	notify   *Notifier
}

func NewHandler(api Sender, users Accounts, trust TrustBook, l Ledger, p PaymentBook, n *Notifier) *Handler {
	return &Handler{api: api, users: users, trust: trust, ledger: l, payments: p, notify: n}
}

// HandleUpdate processes one update. Every update gets its own trace id in the
// context logger.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	logger := log.With().
		Str("trace_id", uuid.NewString()).
		Int("update_id", upd.UpdateID).
		Logger()
	ctx = logger.WithContext(ctx)
	start := time.Now()

	switch {
	case upd.CallbackQuery != nil:
		h.HandleCallback(ctx, upd.CallbackQuery)
	case upd.InlineQuery != nil:
		h.HandleInlineQuery(ctx, upd.InlineQuery)
	case upd.ChosenInlineResult != nil:
		h.HandleChosenInlineResult(ctx, upd.ChosenInlineResult)
	case upd.Message != nil:
		h.handleMessage(ctx, upd.Message)
	default:
		return
	}
	logger.Debug().Dur("took", time.Since(start)).Msg("update handled")
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	// работаем только в личке
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}

	me, err := h.register(ctx, msg.From)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Int64("telegram_id", msg.From.ID).Msg("register user")
		h.reply(msg.Chat.ID, errorText(err), false)
		return
	}
	ctx = log.Ctx(ctx).With().Int64("user_id", me.ID).Logger().WithContext(ctx)

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	if strings.HasPrefix(text, "/") {
		h.handleCommand(ctx, msg.Chat.ID, me, text)
		return
	}

	if strings.HasPrefix(text, "@") || strings.HasPrefix(strings.ToLower(text), parser.SelfMarker) {
		h.handleDebtText(ctx, msg.Chat.ID, me, text)
		return
	}

	h.reply(msg.Chat.ID, "Не понял. Чтобы записать долг, напиши:\n`@username 500 пицца`\nСписок команд: /help", true)
}

// register upserts the sender. Nothing is written when their handle, name and
// language are already on record.
func (h *Handler) register(ctx context.Context, from *tgbotapi.User) (domain.User, error) {
	name := strings.TrimSpace(from.FirstName + " " + from.LastName)
	u, err := h.users.FindByTelegramID(ctx, from.ID)
	switch {
	case err == nil:
		if u.Username == strings.ToLower(from.UserName) && u.DisplayName == name &&
			(from.LanguageCode == "" || u.Locale == from.LanguageCode) {
			return u, nil
		}
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("find telegram user: %w", err)
	}
	return h.users.Register(ctx, from.ID, from.UserName, name, from.LanguageCode)
}

// handleDebtText records the debts of a free-form message written by me.
func (h *Handler) handleDebtText(ctx context.Context, chatID int64, me domain.User, text string) {
	if me.Username == "" {
		h.reply(chatID, "❌ Чтобы записывать долги, задай себе @username в настройках Telegram", false)
		return
	}

	debts, err := h.ledger.CreateFromMessage(ctx, text, me.Username)
	if len(debts) > 0 {
		h.reply(chatID, h.describeCreated(ctx, debts), true)
		h.notifyCreated(ctx, debts)
	}
	if err != nil {
		h.replyError(ctx, chatID, err)
	}
}

func (h *Handler) describeCreated(ctx context.Context, debts []domain.Debt) string {
	var b strings.Builder
	for _, d := range debts {
		debtor := h.notify.mention(ctx, d.DebtorID)
		fmt.Fprintf(&b, "%s Записал долг %s: %s", statusEmoji(d.Status), debtLine(d), debtor)
		switch d.Status {
		case domain.DebtPending:
			b.WriteString(" (ждёт подтверждения)")
		case domain.DebtPaid:
			b.WriteString(" (взаимозачёт, долгов не осталось)")
		}
		if u, err := h.users.FindByID(ctx, d.DebtorID); err == nil && !u.Registered() {
			b.WriteString("\n   ⚠️ пользователь ещё не писал мне, попроси его нажать /start")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) notifyCreated(ctx context.Context, debts []domain.Debt) {
	for _, d := range debts {
		if err := h.notify.DebtCreated(ctx, d); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("debt_id", d.ID).Msg("debt notification failed")
		}
	}
}

func (h *Handler) reply(chatID int64, text string, markdown bool) {
	msg := tgbotapi.NewMessage(chatID, text)
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	_, _ = h.api.Send(msg)
}

func (h *Handler) replyError(ctx context.Context, chatID int64, err error) {
	logError(ctx, err)
	h.reply(chatID, errorText(err), false)
}

func logError(ctx context.Context, err error) {
	level := zerolog.InfoLevel
	if !isUserError(err) && !errors.Is(err, context.Canceled) {
		level = zerolog.ErrorLevel
	}
	log.Ctx(ctx).WithLevel(level).Err(err).Msg("request failed")
}
