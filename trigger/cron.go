package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CronTrigger fires following a cron expression. The seconds field is optional.
type CronTrigger struct {
	expr     string
	schedule cron.Schedule
}

// NewCronTrigger returns a new CronTrigger.
func NewCronTrigger(expr string) (*CronTrigger, error) {
	parser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cron expression '%s': %w", expr, err)
	}

	return &CronTrigger{expr: expr, schedule: schedule}, nil
}

func (ct *CronTrigger) NextFireTime(prev time.Time) (time.Time, error) {
	next := ct.schedule.Next(prev)
	if next.IsZero() {
		return time.Time{}, ErrExpired
	}
	return next, nil
}

func (ct *CronTrigger) Description() string {
	return fmt.Sprintf("CronTrigger '%s'", ct.expr)
}
