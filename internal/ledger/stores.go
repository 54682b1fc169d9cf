package ledger

import (
	"context"
	"time"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// UserDirectory resolves handles to users. Handles are lower-case without '@'.
// FindByHandle and FindByID return domain.ErrUserNotFound for unknown users.
type UserDirectory interface {
	FindByHandle(ctx context.Context, handle string) (domain.User, error)
	Create(ctx context.Context, handle string) (domain.User, error)
	FindByID(ctx context.Context, id int64) (domain.User, error)
}

type TrustDirectory interface {
	Trusts(ctx context.Context, trusterID int64, trustedHandle string) (bool, error)
}

// DebtStore persists debts. Get and the setters return domain.ErrDebtNotFound
// for unknown ids. FindActiveBetween is directional and returns nil when there
// is no active debt from creditor to debtor.
type DebtStore interface {
	Create(ctx context.Context, creditorID, debtorID, amountCents int64, description string) (domain.Debt, error)
	Get(ctx context.Context, id int64) (domain.Debt, error)
	SetStatus(ctx context.Context, id int64, status domain.DebtStatus) (domain.Debt, error)
	SetAmountAndStatus(ctx context.Context, id, amountCents int64, status domain.DebtStatus) (domain.Debt, error)
	FindActiveBetween(ctx context.Context, creditorID, debtorID int64) (*domain.Debt, error)
	ListActiveForUser(ctx context.Context, userID int64) ([]domain.Debt, error)
	ListPendingBefore(ctx context.Context, before time.Time) ([]domain.Debt, error)
}

// PaymentStore persists payments. ListByDebt is ordered by creation time.
type PaymentStore interface {
	Create(ctx context.Context, debtID, amountCents int64) (domain.Payment, error)
	Get(ctx context.Context, id int64) (domain.Payment, error)
	Confirm(ctx context.Context, id int64) (domain.Payment, error)
	Delete(ctx context.Context, id int64) error
	ListByDebt(ctx context.Context, debtID int64) ([]domain.Payment, error)
}

// Transactor runs fn so that every store call made with the ctx passed to fn
// belongs to one unit of work.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// NopTransactor runs fn directly. Suitable for stores without transactions.
type NopTransactor struct{}

func (NopTransactor) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
