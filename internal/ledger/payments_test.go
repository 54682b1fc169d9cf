package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/dolgi-bot/internal/domain"
)

func (f *fixture) activePair(t *testing.T, cents int64) domain.Debt {
	t.Helper()
	return f.activeDebt(t, f.user(t, "carol_3"), f.user(t, "alice_1"), cents)
}

func TestRecordPaymentValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	_, err := f.payments.RecordPayment(ctx, d.ID, 0)
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)
	_, err = f.payments.RecordPayment(ctx, d.ID, -5)
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)
	_, err = f.payments.RecordPayment(ctx, 999, 100)
	assert.ErrorIs(t, err, domain.ErrDebtNotFound)

	pending := f.pendingDebt(t, f.user(t, "bob_22"), f.user(t, "carol_3"), 1000)
	_, err = f.payments.RecordPayment(ctx, pending.ID, 100)
	assert.ErrorIs(t, err, domain.ErrDebtNotActive)
}

func TestRecordPaymentBoundaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	first, err := f.payments.RecordPayment(ctx, d.ID, 400)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, first.ID)
	require.NoError(t, err)

	_, err = f.payments.RecordPayment(ctx, d.ID, 601)
	assert.ErrorIs(t, err, domain.ErrExceedsRemaining)

	p, err := f.payments.RecordPayment(ctx, d.ID, 600)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, int64(600), p.AmountCents)
	assert.Nil(t, p.ConfirmedAt)
}

func TestConfirmPaymentSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	p1, err := f.payments.RecordPayment(ctx, d.ID, 300)
	require.NoError(t, err)
	got, err := f.payments.ConfirmPayment(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConfirmed, got.Status)
	assert.NotNil(t, got.ConfirmedAt)
	assert.Equal(t, domain.DebtActive, f.get(t, d.ID).Status)

	remaining, err := f.payments.Remaining(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(700), remaining)

	p2, err := f.payments.RecordPayment(ctx, d.ID, 700)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, p2.ID)
	require.NoError(t, err)

	settled := f.get(t, d.ID)
	assert.Equal(t, domain.DebtPaid, settled.Status)
	assert.Equal(t, int64(1000), settled.AmountCents)
	assert.NotNil(t, settled.SettledAt)

	_, err = f.payments.RecordPayment(ctx, d.ID, 1)
	assert.ErrorIs(t, err, domain.ErrDebtNotActive)
}

func TestConfirmPaymentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	_, err := f.payments.ConfirmPayment(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	p, err := f.payments.RecordPayment(ctx, d.ID, 100)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentConfirmed)
}

type vanishingDebts struct{ DebtStore }

func (vanishingDebts) Get(context.Context, int64) (domain.Debt, error) {
	return domain.Debt{}, domain.ErrDebtNotFound
}

func TestConfirmPaymentDebtVanished(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)
	p, err := f.payments.RecordPayment(ctx, d.ID, 100)
	require.NoError(t, err)

	engine := NewPayments(vanishingDebts{f.store.Debts()}, f.store.Payments())
	_, err = engine.ConfirmPayment(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrDebtNotFound)
}

func TestPendingPaymentsAreNotReserved(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	a, err := f.payments.RecordPayment(ctx, d.ID, 1000)
	require.NoError(t, err)
	b, err := f.payments.RecordPayment(ctx, d.ID, 1000)
	require.NoError(t, err)

	_, err = f.payments.ConfirmPayment(ctx, a.ID)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, b.ID)
	assert.ErrorIs(t, err, domain.ErrDebtNotActive)

	pb, err := f.store.Payments().Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, pb.Status)
}

func TestConcurrentConfirmationsNeverOverpay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	var ids []int64
	for i := 0; i < 8; i++ {
		p, err := f.payments.RecordPayment(ctx, d.ID, 300)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = f.payments.ConfirmPayment(ctx, id)
		}(id)
	}
	wg.Wait()

	history, err := f.payments.History(ctx, d.ID)
	require.NoError(t, err)
	var confirmed int64
	for _, p := range history {
		if p.Status == domain.PaymentConfirmed {
			confirmed += p.AmountCents
		}
	}
	assert.Equal(t, int64(900), confirmed)
	assert.Equal(t, domain.DebtActive, f.get(t, d.ID).Status)
}

func TestRejectPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	p, err := f.payments.RecordPayment(ctx, d.ID, 100)
	require.NoError(t, err)
	_, err = f.payments.RejectPayment(ctx, p.ID)
	require.NoError(t, err)

	_, err = f.payments.ConfirmPayment(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	p, err = f.payments.RecordPayment(ctx, d.ID, 100)
	require.NoError(t, err)
	_, err = f.payments.ConfirmPayment(ctx, p.ID)
	require.NoError(t, err)
	_, err = f.payments.RejectPayment(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentConfirmed)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.activePair(t, 1000)

	empty, err := f.payments.History(ctx, d.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	var want []int64
	for i := 0; i < 3; i++ {
		p, err := f.payments.RecordPayment(ctx, d.ID, 100)
		require.NoError(t, err)
		want = append(want, p.ID)
		f.now = f.now.Add(time.Minute)
	}

	history, err := f.payments.History(ctx, d.ID)
	require.NoError(t, err)
	var got []int64
	for _, p := range history {
		got = append(got, p.ID)
	}
	assert.Equal(t, want, got)
}
