package coordlock

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReentrantSameTokenDoesNotDeadlock(t *testing.T) {
	l := New()
	tok := NewToken()
	l.Lock(tok)
	l.Lock(tok)
	require.True(t, l.HeldBy(tok))
	l.Unlock(tok)
	require.True(t, l.HeldBy(tok))
	l.Unlock(tok)
	require.False(t, l.HeldBy(tok))
}

func TestDifferentTokenBlocksUntilReleased(t *testing.T) {
	l := New()
	tokA := NewToken()
	tokB := NewToken()
	l.Lock(tokA)

	var gotIn int32
	done := make(chan struct{})
	go func() {
		l.Lock(tokB)
		atomic.StoreInt32(&gotIn, 1)
		l.Unlock(tokB)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&gotIn))

	l.Unlock(tokA)
	<-done
	require.EqualValues(t, 1, atomic.LoadInt32(&gotIn))
}

func TestUnlockByNonHolderPanics(t *testing.T) {
	l := New()
	tokA := NewToken()
	tokB := NewToken()
	l.Lock(tokA)
	require.Panics(t, func() { l.Unlock(tokB) })
	l.Unlock(tokA)
}

func TestConcurrentTokensSerialize(t *testing.T) {
	l := New()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok := NewToken()
			l.Lock(tok)
			defer l.Unlock(tok)
			counter++
		}()
	}
	wg.Wait()
	require.Equal(t, 20, counter)
}
