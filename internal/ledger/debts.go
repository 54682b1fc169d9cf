// Package ledger turns parsed IOU messages into debt records and keeps them
// consistent: mutual debts are netted, repeated ones merged, and payments are
// tracked until a debt is settled.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/domain"
	"github.com/yourname/dolgi-bot/internal/parser"
)

// DefaultStaleAfter is how long a debt may wait for the debtor's answer.
const DefaultStaleAfter = 23 * time.Hour

type Service struct {
	users    UserDirectory
	trust    TrustDirectory
	debts    DebtStore
	payments PaymentStore
	options
}

type options struct {
	tx         Transactor
	locker     Locker
	staleAfter time.Duration
	now        func() time.Time
}

type Option func(*options)

func WithTransactor(tx Transactor) Option { return func(o *options) { o.tx = tx } }
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLocker sets the pair lock. Service and Payments built for the same
// stores must share one Locker.
func WithLocker(l Locker) Option { return func(o *options) { o.locker = l } }

func WithStaleAfter(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

func newOptions(opts []Option) options {
	o := options{
		tx:         NopTransactor{},
		staleAfter: DefaultStaleAfter,
		now:        time.Now,
	}
	for _, fn := range opts {
		fn(&o)
	}
	if o.locker == nil {
		o.locker = NewMutexLocker()
	}
	return o
}

func NewService(users UserDirectory, trust TrustDirectory, debts DebtStore, payments PaymentStore, opts ...Option) *Service {
	return &Service{users: users, trust: trust, debts: debts, payments: payments, options: newOptions(opts)}
}

func (s *Service) StaleAfter() time.Duration { return s.staleAfter }

func (s *Service) Debt(ctx context.Context, id int64) (domain.Debt, error) {
	return s.debts.Get(ctx, id)
}

// CreateFromMessage records one debt per debtor named in message. A debt is
// left pending unless the debtor trusts the author, in which case it is
// reconciled right away like a confirmed one.
func (s *Service) CreateFromMessage(ctx context.Context, message, authorHandle string) ([]domain.Debt, error) {
	return s.create(ctx, message, authorHandle, "")
}

// CreateForDebtor is CreateFromMessage restricted to the debt of one of the
// debtors named in message. It fails with ErrDebtNotFound when the message
// does not name that debtor.
func (s *Service) CreateForDebtor(ctx context.Context, message, authorHandle, debtorHandle string) (domain.Debt, error) {
	out, err := s.create(ctx, message, authorHandle, parser.NormalizeHandle(debtorHandle))
	if err != nil {
		return domain.Debt{}, err
	}
	if len(out) == 0 {
		return domain.Debt{}, fmt.Errorf("%w: no debt for @%s in message", domain.ErrDebtNotFound, parser.NormalizeHandle(debtorHandle))
	}
	return out[0], nil
}

func (s *Service) create(ctx context.Context, message, authorHandle, only string) ([]domain.Debt, error) {
	if !parser.ValidHandle(authorHandle) {
		return nil, fmt.Errorf("%w: author %q", parser.ErrInvalidHandle, authorHandle)
	}
	parsed, err := parser.Parse(message, authorHandle)
	if err != nil {
		return nil, err
	}
	if only != "" {
		kept := parsed[:0]
		for _, pd := range parsed {
			if pd.Debtor == only {
				kept = append(kept, pd)
			}
		}
		parsed = kept
	}

	author, err := s.ensureUser(ctx, parser.NormalizeHandle(authorHandle))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Debt, 0, len(parsed))
	for _, pd := range parsed {
		debtor, err := s.ensureUser(ctx, pd.Debtor)
		if err != nil {
			return out, err
		}
		trusted, err := s.trust.Trusts(ctx, debtor.ID, author.Username)
		if err != nil {
			return out, fmt.Errorf("check trust: %w", err)
		}

		d, err := s.debts.Create(ctx, author.ID, debtor.ID, pd.AmountCents, pd.Comment())
		if err != nil {
			return out, fmt.Errorf("create debt: %w", err)
		}
		if trusted {
			err = s.withPair(ctx, d, func(ctx context.Context) error {
				cur, err := s.debts.Get(ctx, d.ID)
				if err != nil {
					return err
				}
				d, err = s.reconcile(ctx, cur)
				return err
			})
			if err != nil {
				return out, err
			}
		}

		log.Ctx(ctx).Info().
			Int64("debt_id", d.ID).
			Int64("creditor_id", author.ID).
			Int64("debtor_id", debtor.ID).
			Int64("amount_cents", pd.AmountCents).
			Bool("trusted", trusted).
			Str("status", string(d.Status)).
			Msg("debt created")
		out = append(out, d)
	}
	return out, nil
}

// Confirm accepts a pending debt on behalf of its debtor and reconciles it with
// other active debts between the same two users. The returned debt is the one
// that carries the remaining obligation, or the confirmed debt when nothing
// remains.
func (s *Service) Confirm(ctx context.Context, debtID int64, confirmingHandle string) (domain.Debt, error) {
	d, err := s.debts.Get(ctx, debtID)
	if err != nil {
		return domain.Debt{}, err
	}
	if err := s.checkDebtor(ctx, d, confirmingHandle); err != nil {
		return domain.Debt{}, err
	}

	var out domain.Debt
	err = s.withPair(ctx, d, func(ctx context.Context) error {
		cur, err := s.debts.Get(ctx, debtID)
		if err != nil {
			return err
		}
		if cur.Status != domain.DebtPending {
			return fmt.Errorf("%w: debt #%d is %s", domain.ErrDebtNotPending, cur.ID, cur.Status)
		}
		out, err = s.reconcile(ctx, cur)
		return err
	})
	return out, err
}

// Decline rejects a pending debt on behalf of its debtor.
func (s *Service) Decline(ctx context.Context, debtID int64, decliningHandle string) (domain.Debt, error) {
	d, err := s.debts.Get(ctx, debtID)
	if err != nil {
		return domain.Debt{}, err
	}
	if err := s.checkDebtor(ctx, d, decliningHandle); err != nil {
		return domain.Debt{}, err
	}

	var out domain.Debt
	err = s.withPair(ctx, d, func(ctx context.Context) error {
		cur, err := s.debts.Get(ctx, debtID)
		if err != nil {
			return err
		}
		if cur.Status != domain.DebtPending {
			return fmt.Errorf("%w: debt #%d is %s", domain.ErrDebtNotPending, cur.ID, cur.Status)
		}
		out, err = s.debts.SetStatus(ctx, cur.ID, domain.DebtRejected)
		return err
	})
	return out, err
}

// RejectIfStale rejects a debt that has been pending for longer than the
// stale threshold. The boolean reports whether the debt was rejected.
func (s *Service) RejectIfStale(ctx context.Context, debtID int64) (domain.Debt, bool, error) {
	d, err := s.debts.Get(ctx, debtID)
	if err != nil {
		return domain.Debt{}, false, err
	}

	rejected := false
	err = s.withPair(ctx, d, func(ctx context.Context) error {
		cur, err := s.debts.Get(ctx, debtID)
		if err != nil {
			return err
		}
		d = cur
		if cur.Status != domain.DebtPending || s.now().Sub(cur.CreatedAt) < s.staleAfter {
			return nil
		}
		d, err = s.debts.SetStatus(ctx, cur.ID, domain.DebtRejected)
		rejected = err == nil
		return err
	})
	return d, rejected, err
}

// Active lists the active debts where userID is either party.
func (s *Service) Active(ctx context.Context, userID int64) ([]domain.Debt, error) {
	return s.debts.ListActiveForUser(ctx, userID)
}

// Summary aggregates what is still owed on the active debts of userID.
func (s *Service) Summary(ctx context.Context, userID int64) (domain.Summary, error) {
	debts, err := s.debts.ListActiveForUser(ctx, userID)
	if err != nil {
		return domain.Summary{}, err
	}

	sum := domain.Summary{UserID: userID}
	net := make(map[int64]int64)
	for _, d := range debts {
		left, err := s.outstanding(ctx, d)
		if err != nil {
			return domain.Summary{}, err
		}
		switch userID {
		case d.CreditorID:
			sum.LentCents += left
			net[d.DebtorID] += left
		case d.DebtorID:
			sum.OweCents += left
			net[d.CreditorID] -= left
		}
	}
	sum.NetCents = sum.LentCents - sum.OweCents
	for id, cents := range net {
		sum.Balances = append(sum.Balances, domain.Balance{CounterpartyID: id, NetCents: cents})
	}
	sort.Slice(sum.Balances, func(i, j int) bool {
		return sum.Balances[i].CounterpartyID < sum.Balances[j].CounterpartyID
	})
	return sum, nil
}

// reconcile activates d, first netting it against an opposite active debt or,
// failing that, merging it into a same-direction one. Callers hold the pair lock.
func (s *Service) reconcile(ctx context.Context, d domain.Debt) (domain.Debt, error) {
	logger := log.Ctx(ctx).With().Int64("debt_id", d.ID).Logger()

	opp, err := s.debts.FindActiveBetween(ctx, d.DebtorID, d.CreditorID)
	if err != nil {
		return domain.Debt{}, fmt.Errorf("find opposite debt: %w", err)
	}
	if opp != nil {
		a, err := s.outstanding(ctx, d)
		if err != nil {
			return domain.Debt{}, err
		}
		b, err := s.outstanding(ctx, *opp)
		if err != nil {
			return domain.Debt{}, err
		}
		logger.Debug().Int64("opposite_id", opp.ID).Int64("amount", a).Int64("opposite_amount", b).Msg("netting debts")

		if a <= b {
			paid, err := s.debts.SetStatus(ctx, d.ID, domain.DebtPaid)
			if err != nil {
				return domain.Debt{}, err
			}
			if a < b {
				// Confirmed payments stay attached, so only the netted part comes off.
				_, err = s.debts.SetAmountAndStatus(ctx, opp.ID, opp.AmountCents-a, domain.DebtActive)
			} else {
				_, err = s.debts.SetStatus(ctx, opp.ID, domain.DebtPaid)
			}
			if err != nil {
				return domain.Debt{}, err
			}
			return paid, nil
		}

		if _, err := s.debts.SetStatus(ctx, opp.ID, domain.DebtPaid); err != nil {
			return domain.Debt{}, err
		}
		return s.debts.SetAmountAndStatus(ctx, d.ID, d.AmountCents-b, domain.DebtActive)
	}

	same, err := s.debts.FindActiveBetween(ctx, d.CreditorID, d.DebtorID)
	if err != nil {
		return domain.Debt{}, fmt.Errorf("find same-direction debt: %w", err)
	}
	if same != nil && same.ID != d.ID {
		logger.Debug().Int64("existing_id", same.ID).Msg("merging debts")

		merged, err := s.debts.SetAmountAndStatus(ctx, same.ID, same.AmountCents+d.AmountCents, domain.DebtActive)
		if err != nil {
			return domain.Debt{}, err
		}
		if _, err := s.debts.SetStatus(ctx, d.ID, domain.DebtPaid); err != nil {
			return domain.Debt{}, err
		}
		return merged, nil
	}

	return s.debts.SetStatus(ctx, d.ID, domain.DebtActive)
}

// outstanding is the part of d not yet covered by confirmed payments.
func (s *Service) outstanding(ctx context.Context, d domain.Debt) (int64, error) {
	paid, err := confirmedTotal(ctx, s.payments, d.ID)
	if err != nil {
		return 0, err
	}
	return d.AmountCents - paid, nil
}

func (s *Service) withPair(ctx context.Context, d domain.Debt, fn func(ctx context.Context) error) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		unlock, err := s.locker.Lock(ctx, pairKey(d.CreditorID, d.DebtorID))
		if err != nil {
			return fmt.Errorf("lock debt pair: %w", err)
		}
		defer unlock()
		return fn(ctx)
	})
}

func (s *Service) checkDebtor(ctx context.Context, d domain.Debt, handle string) error {
	u, err := s.users.FindByHandle(ctx, parser.NormalizeHandle(handle))
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrNotTheDebtor
	}
	if err != nil {
		return err
	}
	if u.ID != d.DebtorID {
		return domain.ErrNotTheDebtor
	}
	return nil
}

func (s *Service) ensureUser(ctx context.Context, handle string) (domain.User, error) {
	u, err := s.users.FindByHandle(ctx, handle)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return domain.User{}, fmt.Errorf("find user %q: %w", handle, err)
	}
	u, err = s.users.Create(ctx, handle)
	if err != nil {
		return domain.User{}, fmt.Errorf("create user %q: %w", handle, err)
	}
	return u, nil
}
