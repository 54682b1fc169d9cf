package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/domain"
)

type Users struct{ pool *pgxpool.Pool }

func NewUsers(p *pgxpool.Pool) *Users { return &Users{pool: p} }

const userColumns = `id, telegram_id, COALESCE(username,''), display_name, locale, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &u.Locale, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, err
}

func (r *Users) FindByHandle(ctx context.Context, handle string) (domain.User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = lower($1)`, handle))
}

func (r *Users) FindByID(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (r *Users) FindByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
}

// Create inserts a placeholder for a handle nobody has registered yet. It is
// idempotent: an existing user with the handle is returned as is.
func (r *Users) Create(ctx context.Context, handle string) (domain.User, error) {
	return scanUser(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users(username, display_name)
		VALUES(lower($1), '@' || lower($1))
		ON CONFLICT (username) DO UPDATE
		SET username = EXCLUDED.username
		RETURNING `+userColumns, handle))
}

// Register upserts a Telegram user. The first time a person talks to the bot,
// a placeholder created from a mention of their handle becomes their account,
// so debts recorded before registration are kept.
func (r *Users) Register(ctx context.Context, telegramID int64, username, displayName, locale string) (domain.User, error) {
	var u domain.User
	err := db.NewTransactor(r.pool).InTx(ctx, func(ctx context.Context) error {
		q := db.Conn(ctx, r.pool)

		var err error
		u, err = scanUser(q.QueryRow(ctx, `
			UPDATE users
			SET telegram_id = $1, display_name = $3, locale = COALESCE(NULLIF($4,''), locale)
			WHERE username = lower(NULLIF($2,''))
			  AND telegram_id IS NULL
			  AND NOT EXISTS (SELECT 1 FROM users WHERE telegram_id = $1)
			RETURNING `+userColumns, telegramID, username, displayName, locale))
		if !errors.Is(err, domain.ErrUserNotFound) {
			return err
		}

		// The handle may still sit on a stale placeholder or on an account
		// that has since renamed itself.
		if _, err := q.Exec(ctx, `
			UPDATE users SET username = NULL
			WHERE username = lower(NULLIF($2,''))
			  AND telegram_id IS DISTINCT FROM $1
		`, telegramID, username); err != nil {
			return err
		}

		u, err = scanUser(q.QueryRow(ctx, `
			INSERT INTO users(telegram_id, username, display_name, locale)
			VALUES($1, lower(NULLIF($2,'')), $3, COALESCE(NULLIF($4,''), 'ru'))
			ON CONFLICT (telegram_id) DO UPDATE
			SET username = EXCLUDED.username,
				display_name = EXCLUDED.display_name,
				locale = EXCLUDED.locale
			RETURNING `+userColumns, telegramID, username, displayName, locale))
		return err
	})
	return u, err
}

func (r *Users) ListRegistered(ctx context.Context) ([]domain.User, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
