package repo

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/ledger"
)

// testPool connects to DOLGI_TEST_DATABASE_URL and resets the schema. The
// database must be disposable.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("DOLGI_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("DOLGI_TEST_DATABASE_URL is not set")
	}
	ctx := context.Background()
	pool, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `DROP TABLE IF EXISTS payments, debts, trusted_users, users, schema_migrations CASCADE`)
	require.NoError(t, err)
	require.NoError(t, db.ApplyMigrations(ctx, pool, db.Migrations()))
	return pool
}

func TestUsersRegister(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users := NewUsers(pool)

	placeholder, err := users.Create(ctx, "Alice1")
	require.NoError(t, err)
	assert.Equal(t, "alice1", placeholder.Username)
	assert.False(t, placeholder.Registered())

	again, err := users.Create(ctx, "alice1")
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, again.ID)

	u, err := users.Register(ctx, 77, "alice1", "Alice", "en")
	require.NoError(t, err)
	assert.Equal(t, placeholder.ID, u.ID)
	require.NotNil(t, u.TelegramID)
	assert.Equal(t, int64(77), *u.TelegramID)

	// rename onto a handle held by a placeholder
	stale, err := users.Create(ctx, "newname")
	require.NoError(t, err)
	renamed, err := users.Register(ctx, 77, "newname", "Alice", "en")
	require.NoError(t, err)
	assert.Equal(t, u.ID, renamed.ID)
	orphan, err := users.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Empty(t, orphan.Username)

	_, err = users.FindByHandle(ctx, "alice1")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	list, err := users.ListRegistered(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestTrustRepo(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users, trust := NewUsers(pool), NewTrust(pool)

	a, _ := users.Create(ctx, "alice1")
	b, _ := users.Create(ctx, "bobby2")
	require.NoError(t, trust.AddTrust(ctx, a.ID, b.ID))
	require.NoError(t, trust.AddTrust(ctx, a.ID, b.ID))

	ok, err := trust.Trusts(ctx, a.ID, "BOBBY2")
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := trust.ListTrusted(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	removed, err := trust.RemoveTrust(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, removed)
}

func TestDebtsAndPaymentsRepo(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users, debts, payments := NewUsers(pool), NewDebts(pool), NewPayments(pool)

	a, _ := users.Create(ctx, "alice1")
	b, _ := users.Create(ctx, "bobby2")

	_, err := debts.Create(ctx, a.ID, b.ID, 0, "")
	assert.ErrorIs(t, err, domain.ErrNonPositiveAmount)

	d, err := debts.Create(ctx, a.ID, b.ID, 1000, "pizza")
	require.NoError(t, err)
	assert.Equal(t, domain.DebtPending, d.Status)

	pending, err := debts.ListPendingBefore(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	none, err := debts.FindActiveBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	d, err = debts.SetStatus(ctx, d.ID, domain.DebtActive)
	require.NoError(t, err)
	require.NotNil(t, d.ConfirmedAt)

	found, err := debts.FindActiveBetween(ctx, a.ID, b.ID)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, d.ID, found.ID)

	p, err := payments.Create(ctx, d.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPending, p.Status)
	_, err = payments.Create(ctx, 999999, 1)
	assert.ErrorIs(t, err, domain.ErrDebtNotFound)

	p, err = payments.Confirm(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentConfirmed, p.Status)

	d, err = debts.SetStatus(ctx, d.ID, domain.DebtPaid)
	require.NoError(t, err)
	assert.NotNil(t, d.SettledAt)

	_, err = debts.Get(ctx, 999999)
	assert.ErrorIs(t, err, domain.ErrDebtNotFound)
	assert.ErrorIs(t, payments.Delete(ctx, 999999), domain.ErrPaymentNotFound)
}

func TestAdvisoryLockerSerializesConfirmations(t *testing.T) {
	pool := testPool(t)
	ctx := context.Background()
	users, debts, payments := NewUsers(pool), NewDebts(pool), NewPayments(pool)
	opts := []ledger.Option{
		ledger.WithTransactor(db.NewTransactor(pool)),
		ledger.WithLocker(NewAdvisoryLocker(pool)),
	}
	book := ledger.NewPayments(debts, payments, opts...)

	a, _ := users.Create(ctx, "alice1")
	b, _ := users.Create(ctx, "bobby2")
	d, err := debts.Create(ctx, a.ID, b.ID, 1000, "")
	require.NoError(t, err)
	_, err = debts.SetStatus(ctx, d.ID, domain.DebtActive)
	require.NoError(t, err)

	var ids []int64
	for i := 0; i < 4; i++ {
		p, err := book.RecordPayment(ctx, d.ID, 300)
		require.NoError(t, err)
		ids = append(ids, p.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, _ = book.ConfirmPayment(ctx, id)
		}(id)
	}
	wg.Wait()

	remaining, err := book.Remaining(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), remaining)
}
