// Package jobs runs the bot's periodic work: expiring debts nobody confirmed
// and sending weekly balance summaries.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
)

type PendingLister interface {
	ListPendingBefore(ctx context.Context, before time.Time) ([]domain.Debt, error)
}

type StaleRejecter interface {
	RejectIfStale(ctx context.Context, debtID int64) (domain.Debt, bool, error)
	StaleAfter() time.Duration
}

type RegisteredLister interface {
	ListRegistered(ctx context.Context) ([]domain.User, error)
}

// Notifier delivers job results to users.
type Notifier interface {
	DebtExpired(ctx context.Context, d domain.Debt) error
	SendSummary(ctx context.Context, u domain.User) error
}

// Sweeper rejects debts left pending past the stale threshold and tells their
// creditors.
type Sweeper struct {
	debts  PendingLister
	ledger StaleRejecter
	notify Notifier
	now    func() time.Time
}

func NewSweeper(debts PendingLister, ledger StaleRejecter, notify Notifier) *Sweeper {
	return &Sweeper{debts: debts, ledger: ledger, notify: notify, now: time.Now}
}

// Run returns the number of debts it rejected. A failure on one debt does not
// stop the sweep.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.ledger.StaleAfter())
	pending, err := s.debts.ListPendingBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list pending debts: %w", err)
	}

	var errs []error
	rejected := 0
	for _, d := range pending {
		if err := ctx.Err(); err != nil {
			return rejected, err
		}
		expired, ok, err := s.ledger.RejectIfStale(ctx, d.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("debt #%d: %w", d.ID, err))
			continue
		}
		if !ok {
			continue
		}
		rejected++
		if err := s.notify.DebtExpired(ctx, expired); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("debt_id", d.ID).Msg("expired debt notification failed")
		}
	}
	if rejected > 0 {
		log.Ctx(ctx).Info().Int("rejected", rejected).Msg("stale debts swept")
	}
	return rejected, errors.Join(errs...)
}

// Summaries sends every registered user their balance overview.
type Summaries struct {
	users  RegisteredLister
	notify Notifier
}

func NewSummaries(users RegisteredLister, notify Notifier) *Summaries {
	return &Summaries{users: users, notify: notify}
}

func (s *Summaries) Run(ctx context.Context) (int, error) {
	users, err := s.users.ListRegistered(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	sent := 0
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := s.notify.SendSummary(ctx, u); err != nil {
			log.Ctx(ctx).Warn().Err(err).Int64("user_id", u.ID).Msg("weekly summary failed")
			continue
		}
		sent++
	}
	log.Ctx(ctx).Info().Int("sent", sent).Int("users", len(users)).Msg("weekly summaries sent")
	return sent, nil
}

// RunTicker calls fn every interval until ctx is done. It is the scheduler
// used when no job queue database is available.
func RunTicker(ctx context.Context, name string, every time.Duration, fn func(ctx context.Context) (int, error)) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	logger := log.Ctx(ctx).With().Str("job", name).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fn(logger.WithContext(ctx)); err != nil && ctx.Err() == nil {
				logger.Error().Err(err).Msg("job failed")
			}
		}
	}
}
