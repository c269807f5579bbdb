package followup

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParser uses standard 5-field cron expressions (minute, hour, dom, month, dow).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ValidateSchedule reports whether expr is a usable 5-field cron expression.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("followup: schedule %q: %w", expr, err)
	}
	return nil
}

// nextCronDuration returns the duration from now until the next fire time
// of sched.
func nextCronDuration(sched cron.Schedule, now time.Time) time.Duration {
	d := sched.Next(now).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Schedule runs the sweep at every fire time of expr until ctx is
// cancelled. Sweep errors are logged and the schedule continues.
func (s *Sweeper) Schedule(ctx context.Context, expr string) error {
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return fmt.Errorf("followup: schedule %q: %w", expr, err)
	}

	timer := time.NewTimer(nextCronDuration(sched, s.now()))
	defer timer.Stop()

	s.log.WithField("schedule", expr).Info("follow-up sweep scheduled")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			res, err := s.Run(ctx)
			if err != nil {
				s.log.WithError(err).Error("follow-up sweep failed")
			} else if len(res.Notified) > 0 {
				s.log.WithField("items", len(res.Notified)).Info("follow-up sweep complete")
			}
			timer.Reset(nextCronDuration(sched, s.now()))
		}
	}
}
