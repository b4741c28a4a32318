package trigger

import (
	"errors"
	"fmt"
	"time"
)

var ErrExpired = errors.New("trigger has expired")

// Trigger decides when a coordinator acts next, for instance when a pacer
// turns its turnstyle.
type Trigger interface {
	// NextFireTime returns the next time at which the Trigger fires, given the previous one.
	// It returns ErrExpired once the Trigger will not fire anymore.
	NextFireTime(prev time.Time) (time.Time, error)

	// Description returns a Trigger description.
	Description() string
}

// SimpleTrigger fires at a fixed interval.
type SimpleTrigger struct {
	Interval time.Duration
}

// NewSimpleTrigger returns a new SimpleTrigger.
func NewSimpleTrigger(interval time.Duration) *SimpleTrigger {
	return &SimpleTrigger{interval}
}

func (st *SimpleTrigger) NextFireTime(prev time.Time) (time.Time, error) {
	return prev.Add(st.Interval), nil
}

func (st *SimpleTrigger) Description() string {
	return fmt.Sprintf("SimpleTrigger every %s", st.Interval)
}

// RunOnceTrigger fires a single time, Delay after the first reference time.
type RunOnceTrigger struct {
	Delay   time.Duration
	expired bool
}

// NewRunOnceTrigger returns a new RunOnceTrigger.
func NewRunOnceTrigger(delay time.Duration) *RunOnceTrigger {
	return &RunOnceTrigger{delay, false}
}

// NextFireTime returns prev+Delay the first time and ErrExpired afterwards.
func (st *RunOnceTrigger) NextFireTime(prev time.Time) (time.Time, error) {
	if !st.expired {
		st.expired = true
		return prev.Add(st.Delay), nil
	}

	return time.Time{}, ErrExpired
}

func (st *RunOnceTrigger) Description() string {
	status := "valid"
	if st.expired {
		status = "expired"
	}

	return fmt.Sprintf("RunOnceTrigger after %s (%s)", st.Delay, status)
}
