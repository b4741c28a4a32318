// Package turnstyle provides gated access in a sequential fashion.
//
// Callers Join the queue and receive a Waiter that resolves once they make it
// through the turnstyle. The turnstyle is controlled externally by some
// coordinator, which calls Turn to let the next waiter in line through. Waiters
// can join at any time and the coordinator can keep admitting them, over and
// over.
//
// Every admitted waiter receives its all-time position through the turnstyle:
// the first one receives 0, the second 1, and so on, no matter which handle
// performed the turn.
//
// A Turnstyle handle can be cloned and shared across goroutines. When the last
// handle is closed (or garbage collected without being closed) every waiter
// still in line is admitted, in order, so nobody is left waiting forever.
package turnstyle

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/emirpasic/gods/queues/linkedlistqueue"

	"github.com/quintans/go-turnstyle/internal/lib"
)

type Option func(*state)

func WithLogger(logger Logger) Option {
	return func(s *state) {
		s.logger = logger
	}
}

// WithMetrics reports queue activity to m. The same Metrics may be shared by
// several turnstyles.
func WithMetrics(m *Metrics) Option {
	return func(s *state) {
		s.metrics = m
	}
}

// state is shared by every handle of the same turnstyle.
type state struct {
	mu      sync.Mutex
	pending *linkedlistqueue.Queue // of *lib.Slot
	counter uint64
	refs    int
	closed  bool

	logger  Logger
	metrics *Metrics
}

func (s *state) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.refs++
	return true
}

// release drops one reference. The last one drains the queue, firing every
// pending slot in order, before returning.
func (s *state) release() {
	s.mu.Lock()
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return
	}
	s.closed = true

	slots := make([]*lib.Slot, 0, s.pending.Size())
	for {
		v, ok := s.pending.Dequeue()
		if !ok {
			break
		}
		slots = append(slots, v.(*lib.Slot))
	}
	first := s.counter
	s.counter += uint64(len(slots))
	s.mu.Unlock()

	if len(slots) == 0 {
		return
	}

	s.logger.Info("turnstyle closed, releasing %d pending waiters", len(slots))
	for i, slot := range slots {
		slot.Fire(first + uint64(i))
	}
	if s.metrics != nil {
		s.metrics.Released.Add(float64(len(slots)))
		s.metrics.Pending.Sub(float64(len(slots)))
	}
}

// lease is one reference on the shared state. It is kept apart from the
// Turnstyle handle so that the GC cleanup of the handle can still reach it.
type lease struct {
	released atomic.Bool
	state    *state
}

func (l *lease) release() {
	if l.released.CompareAndSwap(false, true) {
		l.state.release()
	}
}

// Turnstyle is an ordered queue of waiting participants.
//
// Every turn the next participant in the queue is notified and removed from
// the queue. If the queue is empty, Turn is a no-op.
//
// Join, Turn and Clone keep working on a closed handle for as long as another
// handle keeps the queue alive. Once the last handle is closed, Join admits
// immediately and Turn reports false.
type Turnstyle struct {
	lease   *lease
	held    bool
	cleanup runtime.Cleanup
}

// New creates a new, empty turnstyle.
func New(options ...Option) *Turnstyle {
	s := &state{
		pending: linkedlistqueue.New(),
		refs:    1,
		logger:  NopLogger(),
	}
	for _, o := range options {
		o(s)
	}

	return newHandle(s, true)
}

func newHandle(s *state, held bool) *Turnstyle {
	l := &lease{state: s}
	t := &Turnstyle{lease: l, held: held}
	if !held {
		l.released.Store(true)
		return t
	}
	t.cleanup = runtime.AddCleanup(t, func(l *lease) { l.release() }, l)
	return t
}

// Clone returns a new handle on the same queue and counter.
// The queue is drained only after every handle has been closed.
func (t *Turnstyle) Clone() *Turnstyle {
	s := t.lease.state
	c := newHandle(s, s.acquire())
	runtime.KeepAlive(t)
	return c
}

// Join joins the waiting queue.
//
// The returned Waiter resolves when the turnstyle turns and reaches the
// caller's position in the queue.
func (t *Turnstyle) Join() *Waiter {
	s := t.lease.state
	slot := lib.NewSlot()

	s.mu.Lock()
	if s.closed {
		seq := s.counter
		s.counter++
		s.mu.Unlock()
		slot.Fire(seq)
		runtime.KeepAlive(t)
		return &Waiter{slot: slot}
	}
	s.pending.Enqueue(slot)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.Joined.Inc()
		s.metrics.Pending.Inc()
	}
	runtime.KeepAlive(t)

	return &Waiter{slot: slot}
}

// Turn turns once, letting a single waiter through.
//
// It returns true if a waiter was found and notified, false otherwise.
// Notifying a waiter that nobody listens to anymore is not an error.
func (t *Turnstyle) Turn() bool {
	s := t.lease.state

	s.mu.Lock()
	v, ok := s.pending.Dequeue()
	if !ok {
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.EmptyTurns.Inc()
		}
		runtime.KeepAlive(t)
		return false
	}
	seq := s.counter
	s.counter++
	s.mu.Unlock()

	v.(*lib.Slot).Fire(seq)
	if s.metrics != nil {
		s.metrics.Admitted.Inc()
		s.metrics.Pending.Dec()
	}
	runtime.KeepAlive(t)

	return true
}

// Len returns the number of waiters still in line.
func (t *Turnstyle) Len() int {
	s := t.lease.state
	s.mu.Lock()
	defer s.mu.Unlock()
	defer runtime.KeepAlive(t)

	return s.pending.Size()
}

// Admitted returns how many waiters went through so far, which is also the
// sequence number the next admitted waiter will receive.
func (t *Turnstyle) Admitted() uint64 {
	s := t.lease.state
	s.mu.Lock()
	defer s.mu.Unlock()
	defer runtime.KeepAlive(t)

	return s.counter
}

// Close releases this handle. Closing the last handle admits every waiter
// still in line, in order, before Close returns. Close is idempotent.
func (t *Turnstyle) Close() {
	if t.held {
		t.cleanup.Stop()
	}
	t.lease.release()
}
