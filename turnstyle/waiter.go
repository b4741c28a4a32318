package turnstyle

import (
	"context"

	"github.com/quintans/go-turnstyle/internal/lib"
)

// Waiter waits to be notified, based on its place in line.
//
// A Waiter can be dropped at any time. Its place in line is kept and consumed
// by a later turn as if it had been admitted.
type Waiter struct {
	slot *lib.Slot
}

// Done returns a channel that is closed once the waiter has been admitted.
func (w *Waiter) Done() <-chan struct{} {
	return w.slot.Done()
}

// Ready reports, without blocking, whether the waiter was admitted and with
// which sequence number.
func (w *Waiter) Ready() (seq uint64, ok bool) {
	return w.slot.Value()
}

// Wait blocks until the waiter is admitted or ctx is done.
// An admission that already happened wins over an expired context.
func (w *Waiter) Wait(ctx context.Context) (uint64, error) {
	select {
	case <-w.slot.Done():
		seq, _ := w.slot.Value()
		return seq, nil
	default:
	}

	select {
	case <-w.slot.Done():
		seq, _ := w.slot.Value()
		return seq, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}
