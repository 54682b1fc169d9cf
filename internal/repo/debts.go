package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/domain"
)

type Debts struct{ pool *pgxpool.Pool }

func NewDebts(p *pgxpool.Pool) *Debts { return &Debts{pool: p} }

const debtColumns = `id, creditor_id, debtor_id, amount_cents, description, status,
	created_at, updated_at, confirmed_at, settled_at`

func scanDebt(row pgx.Row) (domain.Debt, error) {
	var d domain.Debt
	err := row.Scan(&d.ID, &d.CreditorID, &d.DebtorID, &d.AmountCents, &d.Description, &d.Status,
		&d.CreatedAt, &d.UpdatedAt, &d.ConfirmedAt, &d.SettledAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Debt{}, domain.ErrDebtNotFound
	}
	return d, err
}

func scanDebts(rows pgx.Rows, err error) ([]domain.Debt, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// checkViolation maps the amount CHECK constraint onto the domain error.
func checkViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23514" {
		return domain.ErrNonPositiveAmount
	}
	return err
}

func (r *Debts) Create(ctx context.Context, creditorID, debtorID, amountCents int64, description string) (domain.Debt, error) {
	d, err := scanDebt(db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO debts(creditor_id, debtor_id, amount_cents, description)
		VALUES($1,$2,$3,$4)
		RETURNING `+debtColumns, creditorID, debtorID, amountCents, description))
	return d, checkViolation(err)
}

func (r *Debts) Get(ctx context.Context, id int64) (domain.Debt, error) {
	return scanDebt(db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = $1`, id))
}

// Activation stamps confirmed_at once; settlement stamps settled_at.
const statusStamps = `
	updated_at = now(),
	confirmed_at = CASE WHEN $2::text = 'active' THEN COALESCE(confirmed_at, now()) ELSE confirmed_at END,
	settled_at = CASE WHEN $2::text = 'paid' THEN now() ELSE settled_at END`

func (r *Debts) SetStatus(ctx context.Context, id int64, status domain.DebtStatus) (domain.Debt, error) {
	return scanDebt(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE debts SET status = $2,`+statusStamps+`
		WHERE id = $1
		RETURNING `+debtColumns, id, string(status)))
}

func (r *Debts) SetAmountAndStatus(ctx context.Context, id, amountCents int64, status domain.DebtStatus) (domain.Debt, error) {
	if amountCents <= 0 {
		return domain.Debt{}, domain.ErrNonPositiveAmount
	}
	d, err := scanDebt(db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE debts SET status = $2, amount_cents = $3,`+statusStamps+`
		WHERE id = $1
		RETURNING `+debtColumns, id, string(status), amountCents))
	return d, checkViolation(err)
}

// FindActiveBetween returns the oldest active debt from creditor to debtor.
func (r *Debts) FindActiveBetween(ctx context.Context, creditorID, debtorID int64) (*domain.Debt, error) {
	d, err := scanDebt(db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE creditor_id = $1 AND debtor_id = $2 AND status = 'active'
		ORDER BY id
		LIMIT 1
	`, creditorID, debtorID))
	if errors.Is(err, domain.ErrDebtNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *Debts) ListActiveForUser(ctx context.Context, userID int64) ([]domain.Debt, error) {
	return scanDebts(db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE status = 'active' AND (creditor_id = $1 OR debtor_id = $1)
		ORDER BY id
	`, userID))
}

func (r *Debts) ListPendingBefore(ctx context.Context, before time.Time) ([]domain.Debt, error) {
	return scanDebts(db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+debtColumns+`
		FROM debts
		WHERE status = 'pending' AND created_at < $1
		ORDER BY id
	`, before))
}
