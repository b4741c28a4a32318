// Package handoff hands HTTP listeners over from one configuration generation
// to the next.
//
// Each Reload binds a new generation of listeners and joins a turnstyle with
// it. Once the new generation is serving, the turnstyle turns once: the oldest
// generation in line is admitted and shuts down gracefully. The same
// turnstyle repeats this for every reload, and closing it shuts down whatever
// generation is left.
package handoff

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/quintans/go-turnstyle/turnstyle"
)

var (
	ErrClosed      = errors.New("handoff is closed")
	ErrNoListeners = errors.New("no listen address")
)

const (
	defaultShutdownTimeout = 30 * time.Second
	defaultMaxBindTries    = 5
)

type Option func(*Handoff)

func WithLogger(logger turnstyle.Logger) Option {
	return func(h *Handoff) {
		h.logger = logger
	}
}

// WithShutdownTimeout bounds the graceful shutdown of a generation. Connections
// still open afterwards are closed.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(h *Handoff) {
		h.shutdownTimeout = timeout
	}
}

// WithMaxBindTries sets how many times binding an address is attempted before
// the reload fails.
func WithMaxBindTries(tries uint) Option {
	return func(h *Handoff) {
		h.maxBindTries = tries
	}
}

// WithGateOptions configures the turnstyle ordering the generations.
func WithGateOptions(options ...turnstyle.Option) Option {
	return func(h *Handoff) {
		h.gateOptions = append(h.gateOptions, options...)
	}
}

type generation struct {
	id        int
	listeners []net.Listener
	servers   []*http.Server
}

func (g *generation) addrs() []string {
	addrs := make([]string, 0, len(g.listeners))
	for _, l := range g.listeners {
		addrs = append(addrs, l.Addr().String())
	}
	return addrs
}

// Handoff serves a handler on successive generations of listeners.
type Handoff struct {
	handler         http.Handler
	logger          turnstyle.Logger
	shutdownTimeout time.Duration
	maxBindTries    uint
	gateOptions     []turnstyle.Option
	gate            *turnstyle.Turnstyle
	listenConfig    net.ListenConfig

	mu      sync.Mutex
	closed  bool
	current *generation
	nextID  int

	live atomic.Int32
	wg   sync.WaitGroup
}

func New(handler http.Handler, options ...Option) *Handoff {
	h := &Handoff{
		handler:         handler,
		logger:          turnstyle.StdLogger(),
		shutdownTimeout: defaultShutdownTimeout,
		maxBindTries:    defaultMaxBindTries,
		listenConfig:    net.ListenConfig{Control: reusePort},
	}
	for _, o := range options {
		o(h)
	}
	h.gate = turnstyle.New(h.gateOptions...)

	return h
}

// Reload starts a new generation listening on addrs and hands off the
// previous one. If any address cannot be bound, nothing changes.
func (h *Handoff) Reload(ctx context.Context, addrs []string) error {
	if len(addrs) == 0 {
		return ErrNoListeners
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}

	listeners, err := h.listenAll(ctx, addrs)
	if err != nil {
		return err
	}

	gen := &generation{
		id:        h.nextID,
		listeners: listeners,
	}
	h.nextID++

	// only join once every listener is bound: a slot in line is never taken back
	h.serve(gen, h.gate.Join())
	h.logger.Info("generation %d serving on %v", gen.id, gen.addrs())

	previous := h.current
	h.current = gen
	if previous != nil {
		h.gate.Turn()
	}

	return nil
}

// Addrs returns the addresses the newest generation listens on.
func (h *Handoff) Addrs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.current == nil {
		return nil
	}
	return h.current.addrs()
}

// Generations returns the number of generations not yet shut down.
func (h *Handoff) Generations() int {
	return int(h.live.Load())
}

// Close shuts down every generation and waits for them to exit.
func (h *Handoff) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.current = nil
	h.mu.Unlock()

	h.gate.Close()
	h.wg.Wait()
}

func (h *Handoff) listenAll(ctx context.Context, addrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		l, err := h.listen(ctx, addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}
			return nil, fmt.Errorf("failed to listen on '%s': %w", addr, err)
		}
		listeners = append(listeners, l)
	}
	return listeners, nil
}

func (h *Handoff) listen(ctx context.Context, addr string) (net.Listener, error) {
	op := func() (net.Listener, error) {
		l, err := h.listenConfig.Listen(ctx, "tcp", addr)
		if err == nil {
			return l, nil
		}
		var addrErr *net.AddrError
		if errors.As(err, &addrErr) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	notifier := func(err error, d time.Duration) {
		h.logger.Warn("failed to listen on '%s': %v. Retrying in %v", addr, err, d)
	}
	return backoff.Retry(
		ctx,
		op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(notifier),
		backoff.WithMaxTries(h.maxBindTries),
	)
}

func (h *Handoff) serve(gen *generation, w *turnstyle.Waiter) {
	h.live.Add(1)
	for _, l := range gen.listeners {
		srv := &http.Server{Handler: h.handler}
		gen.servers = append(gen.servers, srv)

		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			err := srv.Serve(l)
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				h.logger.Error("generation %d failed serving on %s: %v", gen.id, l.Addr(), err)
			}
		}()
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.live.Add(-1)

		<-w.Done()
		seq, _ := w.Ready()
		h.logger.Info("generation %d handed off at turn %d, shutting down", gen.id, seq)

		ctx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()
		for _, srv := range gen.servers {
			if err := srv.Shutdown(ctx); err != nil {
				h.logger.Warn("generation %d did not shut down gracefully: %v", gen.id, err)
				_ = srv.Close()
			}
		}
	}()
}
