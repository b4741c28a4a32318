// Package pacer turns a turnstyle every time a trigger fires.
//
// The turnstyle itself never decides when to admit anyone; a Pacer is one
// such coordinator, admitting at most one waiter per fire.
package pacer

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/quintans/go-turnstyle/trigger"
	"github.com/quintans/go-turnstyle/turnstyle"
)

type Option func(*Pacer)

func WithLogger(logger turnstyle.Logger) Option {
	return func(p *Pacer) {
		p.logger = logger
	}
}

// Pacer admits the waiters of a turnstyle at the pace of a trigger.
type Pacer struct {
	gate     *turnstyle.Turnstyle
	trigger  trigger.Trigger
	logger   turnstyle.Logger
	admitted atomic.Uint64
}

// New returns a Pacer turning gate. The Pacer does not own gate: closing it
// remains the caller's job.
func New(gate *turnstyle.Turnstyle, trig trigger.Trigger, options ...Option) *Pacer {
	p := &Pacer{
		gate:    gate,
		trigger: trig,
		logger:  turnstyle.StdLogger(),
	}
	for _, o := range options {
		o(p)
	}

	return p
}

// Run turns the gate on every fire of the trigger until ctx is done or the
// trigger expires, in which case it returns nil.
// A fire that finds nobody waiting is lost.
func (p *Pacer) Run(ctx context.Context) error {
	prev := time.Now()
	for {
		next, err := p.trigger.NextFireTime(prev)
		if errors.Is(err, trigger.ErrExpired) {
			p.logger.Info("%s expired, pacer stopped", p.trigger.Description())
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to calculate next turn: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			if p.gate.Turn() {
				p.admitted.Add(1)
			}
			prev = next
		case <-ctx.Done():
			timer.Stop()
			p.logger.Info("exit the pacing loop")
			return nil
		}
	}
}

// Admitted returns the number of waiters admitted by this pacer.
func (p *Pacer) Admitted() uint64 {
	return p.admitted.Load()
}
