package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// Payments records partial payments against active debts and settles a debt
// once confirmed payments cover it.
type Payments struct {
	debts    DebtStore
	payments PaymentStore
	options
}

func NewPayments(debts DebtStore, payments PaymentStore, opts ...Option) *Payments {
	return &Payments{debts: debts, payments: payments, options: newOptions(opts)}
}

// RecordPayment registers a payment awaiting the creditor's confirmation.
// Only confirmed payments count against the remaining amount.
func (p *Payments) RecordPayment(ctx context.Context, debtID, amountCents int64) (domain.Payment, error) {
	if amountCents <= 0 {
		return domain.Payment{}, domain.ErrNonPositiveAmount
	}
	d, err := p.debts.Get(ctx, debtID)
	if err != nil {
		return domain.Payment{}, err
	}
	if d.Status != domain.DebtActive {
		return domain.Payment{}, fmt.Errorf("%w: debt #%d is %s", domain.ErrDebtNotActive, d.ID, d.Status)
	}
	confirmed, err := confirmedTotal(ctx, p.payments, d.ID)
	if err != nil {
		return domain.Payment{}, err
	}
	if remaining := d.AmountCents - confirmed; amountCents > remaining {
		return domain.Payment{}, fmt.Errorf("%w: %d > %d", domain.ErrExceedsRemaining, amountCents, remaining)
	}

	pay, err := p.payments.Create(ctx, d.ID, amountCents)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	log.Ctx(ctx).Info().Int64("payment_id", pay.ID).Int64("debt_id", d.ID).Int64("amount_cents", amountCents).Msg("payment recorded")
	return pay, nil
}

// ConfirmPayment marks a pending payment confirmed and settles the debt when
// the confirmed total reaches its amount. The remaining amount is checked
// again under the pair lock so concurrent confirmations cannot overpay.
func (p *Payments) ConfirmPayment(ctx context.Context, paymentID int64) (domain.Payment, error) {
	pay, err := p.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	d, err := p.debts.Get(ctx, pay.DebtID)
	if err != nil {
		return domain.Payment{}, err
	}

	err = p.tx.InTx(ctx, func(ctx context.Context) error {
		unlock, err := p.locker.Lock(ctx, pairKey(d.CreditorID, d.DebtorID))
		if err != nil {
			return fmt.Errorf("lock debt pair: %w", err)
		}
		defer unlock()

		if pay, err = p.payments.Get(ctx, paymentID); err != nil {
			return err
		}
		if pay.Status == domain.PaymentConfirmed {
			return fmt.Errorf("%w: payment #%d", domain.ErrPaymentConfirmed, pay.ID)
		}
		if d, err = p.debts.Get(ctx, pay.DebtID); err != nil {
			return err
		}
		if d.Status != domain.DebtActive {
			return fmt.Errorf("%w: debt #%d is %s", domain.ErrDebtNotActive, d.ID, d.Status)
		}
		total, err := confirmedTotal(ctx, p.payments, d.ID)
		if err != nil {
			return err
		}
		if total+pay.AmountCents > d.AmountCents {
			return fmt.Errorf("%w: %d > %d", domain.ErrExceedsRemaining, pay.AmountCents, d.AmountCents-total)
		}

		if pay, err = p.payments.Confirm(ctx, pay.ID); err != nil {
			return err
		}
		total += pay.AmountCents
		if total >= d.AmountCents {
			d, err = p.debts.SetStatus(ctx, d.ID, domain.DebtPaid)
			if err != nil {
				return err
			}
			log.Ctx(ctx).Info().Int64("debt_id", d.ID).Msg("debt settled by payments")
		}
		return nil
	})
	if err != nil {
		return domain.Payment{}, err
	}
	return pay, nil
}

// RejectPayment discards a payment the creditor did not receive.
func (p *Payments) RejectPayment(ctx context.Context, paymentID int64) (domain.Payment, error) {
	pay, err := p.payments.Get(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	d, err := p.debts.Get(ctx, pay.DebtID)
	if err != nil {
		return domain.Payment{}, err
	}

	err = p.tx.InTx(ctx, func(ctx context.Context) error {
		unlock, err := p.locker.Lock(ctx, pairKey(d.CreditorID, d.DebtorID))
		if err != nil {
			return fmt.Errorf("lock debt pair: %w", err)
		}
		defer unlock()

		if pay, err = p.payments.Get(ctx, paymentID); err != nil {
			return err
		}
		if pay.Status == domain.PaymentConfirmed {
			return fmt.Errorf("%w: payment #%d", domain.ErrPaymentConfirmed, pay.ID)
		}
		return p.payments.Delete(ctx, pay.ID)
	})
	if err != nil {
		return domain.Payment{}, err
	}
	log.Ctx(ctx).Info().Int64("payment_id", pay.ID).Int64("debt_id", pay.DebtID).Msg("payment rejected")
	return pay, nil
}

func (p *Payments) Payment(ctx context.Context, id int64) (domain.Payment, error) {
	return p.payments.Get(ctx, id)
}

// History lists the payments of a debt, oldest first.
func (p *Payments) History(ctx context.Context, debtID int64) ([]domain.Payment, error) {
	list, err := p.payments.ListByDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Payment{}
	}
	return list, nil
}

// Remaining returns the part of the debt not yet covered by confirmed payments.
func (p *Payments) Remaining(ctx context.Context, debtID int64) (int64, error) {
	d, err := p.debts.Get(ctx, debtID)
	if err != nil {
		return 0, err
	}
	total, err := confirmedTotal(ctx, p.payments, debtID)
	if err != nil {
		return 0, err
	}
	return d.AmountCents - total, nil
}

func confirmedTotal(ctx context.Context, payments PaymentStore, debtID int64) (int64, error) {
	list, err := payments.ListByDebt(ctx, debtID)
	if err != nil {
		return 0, fmt.Errorf("list payments: %w", err)
	}
	var total int64
	for _, pay := range list {
		if pay.Status == domain.PaymentConfirmed {
			total += pay.AmountCents
		}
	}
	return total, nil
}
