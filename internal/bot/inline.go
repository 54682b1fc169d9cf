package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/parser"
)

const (
	resultAll     = "all"
	resultError   = "error"
	resultDebtor  = "debtor:"
	inlineFormat  = "Формат: @username 500 пицца"
	inlineCaching = 1
)

// HandleInlineQuery shows what the query would record without recording
// anything. The debt is created once the user picks a result.
func (h *Handler) HandleInlineQuery(ctx context.Context, q *tgbotapi.InlineQuery) {
	query := strings.TrimSpace(q.Query)
	if query == "" || q.From == nil {
		return
	}

	cfg := tgbotapi.InlineConfig{
		InlineQueryID: q.ID,
		IsPersonal:    true,
		CacheTime:     inlineCaching,
	}

	author := q.From.UserName
	parsed, err := parser.Parse(query, author)
	if author == "" {
		err = parser.ErrInvalidHandle
	}
	if err != nil {
		article := tgbotapi.NewInlineQueryResultArticle(resultError, "❌ Не удалось разобрать", inlineFormat)
		article.Description = strings.TrimPrefix(errorText(err), "❌ ")
		cfg.Results = []interface{}{article}
		_, _ = h.api.Request(cfg)
		return
	}

	lines := make([]string, 0, len(parsed))
	for _, pd := range parsed {
		line := fmt.Sprintf("@%s — %s", pd.Debtor, formatMoney(pd.AmountCents))
		if c := pd.Comment(); c != "" {
			line += " за «" + c + "»"
		}
		lines = append(lines, line)

		article := tgbotapi.NewInlineQueryResultArticle(
			resultDebtor+pd.Debtor,
			fmt.Sprintf("@%s должен %s", pd.Debtor, formatMoney(pd.AmountCents)),
			fmt.Sprintf("📌 @%s записал долг:\n%s\nПодтверждение придёт от бота в личку.", author, line),
		)
		article.Description = pd.Comment()
		cfg.Results = append(cfg.Results, article)
	}
	if len(parsed) > 1 {
		article := tgbotapi.NewInlineQueryResultArticle(
			resultAll,
			"📌 Записать всем",
			fmt.Sprintf("📌 @%s записал долги:\n%s\nПодтверждение придёт от бота в личку.", author, strings.Join(lines, "\n")),
		)
		article.Description = strings.Join(lines, "; ")
		cfg.Results = append(cfg.Results, article)
	}
	_, _ = h.api.Request(cfg)
}

// HandleChosenInlineResult records the debts of the result the user sent.
func (h *Handler) HandleChosenInlineResult(ctx context.Context, r *tgbotapi.ChosenInlineResult) {
	if r.From == nil || r.ResultID == resultError {
		return
	}
	me, err := h.register(ctx, r.From)
	if err != nil {
		logError(ctx, err)
		return
	}
	if me.Username == "" {
		return
	}

	var created []domain.Debt
	switch {
	case r.ResultID == resultAll:
		created, err = h.ledger.CreateFromMessage(ctx, r.Query, me.Username)
	case strings.HasPrefix(r.ResultID, resultDebtor):
		var d domain.Debt
		d, err = h.ledger.CreateForDebtor(ctx, r.Query, me.Username, strings.TrimPrefix(r.ResultID, resultDebtor))
		if err == nil {
			created = append(created, d)
		}
	default:
		log.Ctx(ctx).Warn().Str("result_id", r.ResultID).Msg("unknown inline result")
		return
	}

	// ответ автору уходит в личку: инлайн-сообщение уже отправлено в чужой чат
	if len(created) > 0 {
		h.reply(*me.TelegramID, h.describeCreated(ctx, created), true)
		h.notifyCreated(ctx, created)
	}
	if err != nil {
		h.replyError(ctx, *me.TelegramID, err)
	}
}
