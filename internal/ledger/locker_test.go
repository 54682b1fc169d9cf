package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyIgnoresDirection(t *testing.T) {
	assert.Equal(t, pairKey(3, 7), pairKey(7, 3))
	assert.NotEqual(t, pairKey(3, 7), pairKey(3, 8))
}

func TestMutexLockerSerializes(t *testing.T) {
	l := NewMutexLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if err != nil {
				return
			}
			defer unlock()
			v := counter
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
	assert.Empty(t, l.(*keyedMutex).locks)
}

func TestMutexLockerUnlockIsIdempotent(t *testing.T) {
	l := NewMutexLocker()
	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock()
}

func TestMutexLockerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMutexLocker().Lock(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}
