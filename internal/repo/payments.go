package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/domain"
)

type Payments struct{ pool *pgxpool.Pool }

func NewPayments(p *pgxpool.Pool) *Payments { return &Payments{pool: p} }

const paymentColumns = `id, debt_id, amount_cents, status, created_at, confirmed_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.DebtID, &p.AmountCents, &p.Status, &p.CreatedAt, &p.ConfirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return p, err
}

func (r *Payments) Create(ctx context.Context, debtID, amountCents int64) (domain.Payment, error) {
	p, err := scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO payments(debt_id, amount_cents)
		VALUES($1,$2)
		RETURNING `+paymentColumns, debtID, amountCents))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return domain.Payment{}, domain.ErrDebtNotFound
	}
	return p, checkViolation(err)
}

func (r *Payments) Get(ctx context.Context, id int64) (domain.Payment, error) {
	return scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
}

func (r *Payments) Confirm(ctx context.Context, id int64) (domain.Payment, error) {
	return scanPayment(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE payments
		SET status = 'confirmed', confirmed_at = now()
		WHERE id = $1
		RETURNING `+paymentColumns, id))
}

func (r *Payments) Delete(ctx context.Context, id int64) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *Payments) ListByDebt(ctx context.Context, debtID int64) ([]domain.Payment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE debt_id = $1
		ORDER BY created_at, id
	`, debtID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
