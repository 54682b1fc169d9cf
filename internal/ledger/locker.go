package ledger

import (
	"context"
	"fmt"
	"sync"
)

// Locker serializes work on a key. Lock is called inside Transactor.InTx, so
// implementations may bind the lock to the transaction carried by ctx.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// pairKey names the lock shared by every debt between the same two users,
// regardless of direction.
func pairKey(a, b int64) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("debt-pair:%d:%d", a, b)
}

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

// NewMutexLocker returns an in-process Locker. Entries are dropped once no
// caller holds or waits for them.
func NewMutexLocker() Locker {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.mu.Lock()
	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Unlock()
			k.mu.Lock()
			m.refs--
			if m.refs == 0 {
				delete(k.locks, key)
			}
			k.mu.Unlock()
		})
	}, nil
}
