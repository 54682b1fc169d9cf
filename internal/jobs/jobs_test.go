package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourname/dolgi-bot/internal/config"
	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/ledger"
	"github.com/yourname/dolgi-bot/internal/memstore"
)

type recordingNotifier struct {
	mu         sync.Mutex
	expired    []int64
	summarized []int64
	failFor    int64
}

func (n *recordingNotifier) DebtExpired(_ context.Context, d domain.Debt) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.expired = append(n.expired, d.ID)
	return nil
}

func (n *recordingNotifier) SendSummary(_ context.Context, u domain.User) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if u.ID == n.failFor {
		return errors.New("blocked by user")
	}
	n.summarized = append(n.summarized, u.ID)
	return nil
}

type fixture struct {
	store  *memstore.Store
	svc    *ledger.Service
	notify *recordingNotifier
	now    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  memstore.New(),
		notify: &recordingNotifier{},
		now:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store.SetClock(clock)
	f.svc = ledger.NewService(f.store.Users(), f.store.Trust(), f.store.Debts(), f.store.Payments(), ledger.WithClock(clock))
	return f
}

func (f *fixture) sweeper() *Sweeper {
	s := NewSweeper(f.store.Debts(), f.svc, f.notify)
	s.now = func() time.Time { return f.now }
	return s
}

func TestSweeperRejectsOnlyStaleDebts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := f.svc.CreateFromMessage(ctx, "@debtor_1 100 taxi", "@lender_1")
	require.NoError(t, err)

	f.now = f.now.Add(20 * time.Hour)
	fresh, err := f.svc.CreateFromMessage(ctx, "@debtor_1 50 coffee", "@lender_1")
	require.NoError(t, err)

	f.now = f.now.Add(4 * time.Hour)
	n, err := f.sweeper().Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{old[0].ID}, f.notify.expired)

	d, err := f.svc.Debt(ctx, old[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtRejected, d.Status)

	d, err = f.svc.Debt(ctx, fresh[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DebtPending, d.Status)

	n, err = f.sweeper().Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSweeperSkipsConfirmedDebts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.CreateFromMessage(ctx, "@debtor_1 100", "@lender_1")
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, created[0].ID, "debtor_1")
	require.NoError(t, err)

	f.now = f.now.Add(48 * time.Hour)
	n, err := f.sweeper().Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notify.expired)
}

func TestSummariesSkipsFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.store.Users().Register(ctx, 1001, "alice_1", "Alice", "ru")
	require.NoError(t, err)
	b, err := f.store.Users().Register(ctx, 1002, "bobby_2", "Bob", "ru")
	require.NoError(t, err)
	_, err = f.store.Users().Create(ctx, "ghost_3")
	require.NoError(t, err)
	f.notify.failFor = b.ID

	n, err := NewSummaries(f.store.Users(), f.notify).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []int64{a.ID}, f.notify.summarized)
}

func TestWorkersDelegate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateFromMessage(ctx, "@debtor_1 100", "@lender_1")
	require.NoError(t, err)
	f.now = f.now.Add(24 * time.Hour)

	w := &StaleSweepWorker{sweeper: f.sweeper()}
	require.NoError(t, w.Work(ctx, &river.Job[StaleSweepArgs]{}))
	assert.Len(t, f.notify.expired, 1)

	_, err = f.store.Users().Register(ctx, 1001, "alice_1", "Alice", "ru")
	require.NoError(t, err)
	sw := &WeeklySummaryWorker{summaries: NewSummaries(f.store.Users(), f.notify)}
	require.NoError(t, sw.Work(ctx, &river.Job[WeeklySummaryArgs]{}))
	assert.Len(t, f.notify.summarized, 1)
}

func TestRunTickerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32
	done := make(chan struct{})

	go func() {
		RunTicker(ctx, "test", 5*time.Millisecond, func(context.Context) (int, error) {
			if calls.Add(1) == 3 {
				cancel()
			}
			return 0, errors.New("ignored")
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("ticker did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestJobKinds(t *testing.T) {
	assert.Equal(t, "stale_debt_sweep", StaleSweepArgs{}.Kind())
	assert.Equal(t, "weekly_summary", WeeklySummaryArgs{}.Kind())
	assert.Len(t, periodicJobs(defaultJobs()), 2)
}

func defaultJobs() config.Jobs {
	return config.Jobs{SweepInterval: time.Hour, SummaryInterval: 7 * 24 * time.Hour}
}
