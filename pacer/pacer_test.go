package pacer_test

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quintans/go-turnstyle/pacer"
	"github.com/quintans/go-turnstyle/trigger"
	"github.com/quintans/go-turnstyle/turnstyle"
)

func TestPacer(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		gate := turnstyle.New()
		defer gate.Close()

		w1 := gate.Join()
		w2 := gate.Join()
		w3 := gate.Join()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p := pacer.New(gate, trigger.NewSimpleTrigger(time.Second), pacer.WithLogger(turnstyle.NopLogger()))
		done := make(chan error, 1)
		go func() {
			done <- p.Run(ctx)
		}()

		time.Sleep(1500 * time.Millisecond)
		seq, ok := w1.Ready()
		require.True(t, ok)
		assert.Equal(t, uint64(0), seq)
		_, ok = w2.Ready()
		require.False(t, ok)

		time.Sleep(time.Second)
		seq, ok = w2.Ready()
		require.True(t, ok)
		assert.Equal(t, uint64(1), seq)
		_, ok = w3.Ready()
		require.False(t, ok)

		// the queue goes empty; the fires in between are lost
		time.Sleep(3 * time.Second)
		require.Equal(t, uint64(3), p.Admitted())

		w4 := gate.Join()
		time.Sleep(time.Second)
		seq, ok = w4.Ready()
		require.True(t, ok)
		assert.Equal(t, uint64(3), seq)

		cancel()
		require.NoError(t, <-done)
		require.Equal(t, uint64(4), p.Admitted())
	})
}

func TestPacerTriggerExpires(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		gate := turnstyle.New()
		defer gate.Close()

		w1 := gate.Join()
		w2 := gate.Join()

		p := pacer.New(gate, trigger.NewRunOnceTrigger(time.Minute), pacer.WithLogger(turnstyle.NopLogger()))
		require.NoError(t, p.Run(context.Background()))

		seq, ok := w1.Ready()
		require.True(t, ok)
		assert.Equal(t, uint64(0), seq)
		_, ok = w2.Ready()
		require.False(t, ok)
		assert.Equal(t, uint64(1), p.Admitted())
	})
}

var errBroken = errors.New("broken")

type brokenTrigger struct{}

func (brokenTrigger) NextFireTime(time.Time) (time.Time, error) { return time.Time{}, errBroken }
func (brokenTrigger) Description() string                      { return "broken" }

func TestPacerTriggerFails(t *testing.T) {
	gate := turnstyle.New()
	defer gate.Close()

	p := pacer.New(gate, brokenTrigger{}, pacer.WithLogger(turnstyle.NopLogger()))
	err := p.Run(t.Context())
	require.ErrorIs(t, err, errBroken)
}

func TestPacersShareTheCounter(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		gate := turnstyle.New()
		defer gate.Close()

		waiters := make([]*turnstyle.Waiter, 6)
		for i := range waiters {
			waiters[i] = gate.Join()
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		clone := gate.Clone()
		defer clone.Close()

		fast := pacer.New(gate, trigger.NewSimpleTrigger(time.Second), pacer.WithLogger(turnstyle.NopLogger()))
		slow := pacer.New(clone, trigger.NewSimpleTrigger(3*time.Second), pacer.WithLogger(turnstyle.NopLogger()))
		go fast.Run(ctx)
		go slow.Run(ctx)

		time.Sleep(4500 * time.Millisecond)
		cancel()
		synctest.Wait()

		// fast fired at 1s,2s,3s,4s and slow at 3s
		require.Equal(t, uint64(4), fast.Admitted())
		require.Equal(t, uint64(1), slow.Admitted())
		require.Equal(t, uint64(5), gate.Admitted())
		for i, w := range waiters[:5] {
			seq, ok := w.Ready()
			require.True(t, ok)
			require.Equal(t, uint64(i), seq)
		}
		_, ok := waiters[5].Ready()
		require.False(t, ok)
	})
}
