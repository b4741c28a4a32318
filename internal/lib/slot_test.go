package lib

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotFireOnce(t *testing.T) {
	s := NewSlot()

	_, ok := s.Value()
	require.False(t, ok)
	select {
	case <-s.Done():
		t.Fatal("slot is done before being fired")
	default:
	}

	require.True(t, s.Fire(7))
	require.False(t, s.Fire(8))

	<-s.Done()
	v, ok := s.Value()
	require.True(t, ok)
	assert.Equal(t, uint64(7), v)
}

func TestSlotConcurrentFire(t *testing.T) {
	s := NewSlot()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Fire(uint64(i)) {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	_, ok := s.Value()
	assert.True(t, ok)
}
