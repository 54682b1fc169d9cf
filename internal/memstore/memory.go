// Package memstore keeps users, trust edges, debts and payments in memory.
// It backs the "memory" database driver and the tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yourname/dolgi-bot/internal/domain"
)

// Store is a thread-safe in-memory store. Users, Trust, Debts and Payments
// are views over it implementing the ledger contracts.
type Store struct {
	mu       sync.RWMutex
	now      func() time.Time
	users    map[int64]*domain.User
	handles  map[string]int64 // lower-case handle -> user id
	tgIndex  map[int64]int64  // telegram id -> user id
	trust    map[[2]int64]time.Time
	debts    map[int64]*domain.Debt
	payments map[int64]*domain.Payment
	nextID   int64
}

func New() *Store {
	return &Store{
		now:      time.Now,
		users:    make(map[int64]*domain.User),
		handles:  make(map[string]int64),
		tgIndex:  make(map[int64]int64),
		trust:    make(map[[2]int64]time.Time),
		debts:    make(map[int64]*domain.Debt),
		payments: make(map[int64]*domain.Payment),
	}
}

// SetClock replaces the time source used for timestamps.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) Users() *Users       { return &Users{s} }
func (s *Store) Trust() *Trust       { return &Trust{s} }
func (s *Store) Debts() *Debts       { return &Debts{s} }
func (s *Store) Payments() *Payments { return &Payments{s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// Users implements the user directory.
type Users struct{ s *Store }

func (r *Users) FindByHandle(_ context.Context, handle string) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.handles[strings.ToLower(handle)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *r.s.users[id], nil
}

func (r *Users) FindByID(_ context.Context, id int64) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	u, ok := r.s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *u, nil
}

func (r *Users) FindByTelegramID(_ context.Context, telegramID int64) (domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.tgIndex[telegramID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *r.s.users[id], nil
}

// Create returns the existing user when the handle is already taken.
func (r *Users) Create(_ context.Context, handle string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	handle = strings.ToLower(handle)
	if id, ok := r.s.handles[handle]; ok {
		return *r.s.users[id], nil
	}
	u := &domain.User{ID: r.s.id(), Username: handle, DisplayName: "@" + handle, Locale: "ru", CreatedAt: r.s.now()}
	r.s.users[u.ID] = u
	r.s.handles[handle] = u.ID
	return *u, nil
}

// Register upserts a Telegram user. A placeholder created from a mention of
// the same handle is claimed instead of creating a second user.
func (r *Users) Register(_ context.Context, telegramID int64, username, displayName, locale string) (domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	username = strings.ToLower(username)

	var u *domain.User
	if id, ok := r.s.tgIndex[telegramID]; ok {
		u = r.s.users[id]
	} else if id, ok := r.s.handles[username]; ok && username != "" && r.s.users[id].TelegramID == nil {
		u = r.s.users[id]
	} else {
		u = &domain.User{ID: r.s.id(), CreatedAt: r.s.now()}
		r.s.users[u.ID] = u
	}

	if u.Username != username {
		if u.Username != "" && r.s.handles[u.Username] == u.ID {
			delete(r.s.handles, u.Username)
		}
		// A stale placeholder holding the new handle loses it.
		if other, ok := r.s.handles[username]; ok && other != u.ID {
			r.s.users[other].Username = ""
		}
		if username != "" {
			r.s.handles[username] = u.ID
		}
		u.Username = username
	}
	tg := telegramID
	u.TelegramID = &tg
	u.DisplayName = displayName
	if locale != "" {
		u.Locale = locale
	}
	r.s.tgIndex[telegramID] = u.ID
	return *u, nil
}

func (r *Users) ListRegistered(_ context.Context) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.User
	for _, u := range r.s.users {
		if u.TelegramID != nil {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Trust implements the trust directory.
type Trust struct{ s *Store }

func (r *Trust) Trusts(_ context.Context, trusterID int64, trustedHandle string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	id, ok := r.s.handles[strings.ToLower(trustedHandle)]
	if !ok {
		return false, nil
	}
	_, ok = r.s.trust[[2]int64{trusterID, id}]
	return ok, nil
}

func (r *Trust) AddTrust(_ context.Context, trusterID, trustedID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]int64{trusterID, trustedID}
	if _, ok := r.s.trust[key]; !ok {
		r.s.trust[key] = r.s.now()
	}
	return nil
}

func (r *Trust) RemoveTrust(_ context.Context, trusterID, trustedID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := [2]int64{trusterID, trustedID}
	_, ok := r.s.trust[key]
	delete(r.s.trust, key)
	return ok, nil
}

func (r *Trust) ListTrusted(_ context.Context, trusterID int64) ([]domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var edges []domain.TrustEdge
	for k, at := range r.s.trust {
		if k[0] == trusterID {
			edges = append(edges, domain.TrustEdge{TrusterID: k[0], TrustedID: k[1], CreatedAt: at})
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].TrustedID < edges[j].TrustedID })
	out := make([]domain.User, 0, len(edges))
	for _, e := range edges {
		out = append(out, *r.s.users[e.TrustedID])
	}
	return out, nil
}

// Debts implements the debt store.
type Debts struct{ s *Store }

func (r *Debts) Create(_ context.Context, creditorID, debtorID, amountCents int64, description string) (domain.Debt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if amountCents <= 0 {
		return domain.Debt{}, domain.ErrNonPositiveAmount
	}
	now := r.s.now()
	d := &domain.Debt{
		ID:          r.s.id(),
		CreditorID:  creditorID,
		DebtorID:    debtorID,
		AmountCents: amountCents,
		Description: description,
		Status:      domain.DebtPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.s.debts[d.ID] = d
	return *d, nil
}

func (r *Debts) Get(_ context.Context, id int64) (domain.Debt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	d, ok := r.s.debts[id]
	if !ok {
		return domain.Debt{}, domain.ErrDebtNotFound
	}
	return *d, nil
}

func (r *Debts) SetStatus(_ context.Context, id int64, status domain.DebtStatus) (domain.Debt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.debts[id]
	if !ok {
		return domain.Debt{}, domain.ErrDebtNotFound
	}
	r.s.setStatus(d, status)
	return *d, nil
}

func (r *Debts) SetAmountAndStatus(_ context.Context, id, amountCents int64, status domain.DebtStatus) (domain.Debt, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.debts[id]
	if !ok {
		return domain.Debt{}, domain.ErrDebtNotFound
	}
	if amountCents <= 0 {
		return domain.Debt{}, domain.ErrNonPositiveAmount
	}
	d.AmountCents = amountCents
	r.s.setStatus(d, status)
	return *d, nil
}

func (s *Store) setStatus(d *domain.Debt, status domain.DebtStatus) {
	now := s.now()
	d.Status = status
	d.UpdatedAt = now
	switch status {
	case domain.DebtActive:
		if d.ConfirmedAt == nil {
			d.ConfirmedAt = &now
		}
	case domain.DebtPaid:
		d.SettledAt = &now
	}
}

// FindActiveBetween returns the oldest active debt from creditor to debtor.
func (r *Debts) FindActiveBetween(_ context.Context, creditorID, debtorID int64) (*domain.Debt, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var found *domain.Debt
	for _, d := range r.s.debts {
		if d.Status != domain.DebtActive || d.CreditorID != creditorID || d.DebtorID != debtorID {
			continue
		}
		if found == nil || d.ID < found.ID {
			found = d
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

func (r *Debts) ListActiveForUser(_ context.Context, userID int64) ([]domain.Debt, error) {
	return r.list(func(d *domain.Debt) bool {
		return d.Status == domain.DebtActive && (d.CreditorID == userID || d.DebtorID == userID)
	}), nil
}

func (r *Debts) ListPendingBefore(_ context.Context, before time.Time) ([]domain.Debt, error) {
	return r.list(func(d *domain.Debt) bool {
		return d.Status == domain.DebtPending && d.CreatedAt.Before(before)
	}), nil
}

func (r *Debts) list(keep func(*domain.Debt) bool) []domain.Debt {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Debt
	for _, d := range r.s.debts {
		if keep(d) {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payments implements the payment store.
type Payments struct{ s *Store }

func (r *Payments) Create(_ context.Context, debtID, amountCents int64) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.debts[debtID]; !ok {
		return domain.Payment{}, domain.ErrDebtNotFound
	}
	p := &domain.Payment{
		ID:          r.s.id(),
		DebtID:      debtID,
		AmountCents: amountCents,
		Status:      domain.PaymentPending,
		CreatedAt:   r.s.now(),
	}
	r.s.payments[p.ID] = p
	return *p, nil
}

func (r *Payments) Get(_ context.Context, id int64) (domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	return *p, nil
}

func (r *Payments) Confirm(_ context.Context, id int64) (domain.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return domain.Payment{}, domain.ErrPaymentNotFound
	}
	now := r.s.now()
	p.Status = domain.PaymentConfirmed
	p.ConfirmedAt = &now
	return *p, nil
}

func (r *Payments) Delete(_ context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.payments[id]; !ok {
		return domain.ErrPaymentNotFound
	}
	delete(r.s.payments, id)
	return nil
}

func (r *Payments) ListByDebt(_ context.Context, debtID int64) ([]domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range r.s.payments {
		if p.DebtID == debtID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
