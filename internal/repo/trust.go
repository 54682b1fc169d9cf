package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/domain"
)

// Trust stores directed "user trusts trusted_user" edges. A debtor's trust in
// a creditor lets the creditor's new debts skip manual confirmation.
type Trust struct{ pool *pgxpool.Pool }

func NewTrust(p *pgxpool.Pool) *Trust { return &Trust{pool: p} }

func (r *Trust) Trusts(ctx context.Context, trusterID int64, trustedHandle string) (bool, error) {
	var ok bool
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1
			FROM trusted_users t
			JOIN users u ON u.id = t.trusted_user_id
			WHERE t.user_id = $1 AND u.username = lower($2)
		)
	`, trusterID, trustedHandle).Scan(&ok)
	return ok, err
}

func (r *Trust) AddTrust(ctx context.Context, trusterID, trustedID int64) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO trusted_users(user_id, trusted_user_id)
		VALUES($1,$2)
		ON CONFLICT DO NOTHING
	`, trusterID, trustedID)
	return err
}

func (r *Trust) RemoveTrust(ctx context.Context, trusterID, trustedID int64) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		DELETE FROM trusted_users
		WHERE user_id = $1 AND trusted_user_id = $2
	`, trusterID, trustedID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *Trust) ListTrusted(ctx context.Context, trusterID int64) ([]domain.User, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT u.id, u.telegram_id, COALESCE(u.username,''), u.display_name, u.locale, u.created_at
		FROM trusted_users t
		JOIN users u ON u.id = t.trusted_user_id
		WHERE t.user_id = $1
		ORDER BY COALESCE(NULLIF(u.username,''), u.display_name) ASC
	`, trusterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.User, 0, 16)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
