// Package notify posts customer activity from the repair engine to the
// workshop's chat channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garagehq/vhc/internal/events"
	"github.com/sirupsen/logrus"
)

// Destination is one chat channel a Message can be posted to.
type Destination interface {
	Name() string
	Post(ctx context.Context, msg Message) error
}

// DefaultTimeout bounds one Publish across all destinations.
const DefaultTimeout = 5 * time.Second

// Sink is an events.Publisher that formats the events staff care about and
// posts them to every destination.
type Sink struct {
	dests   []Destination
	log     logrus.FieldLogger
	timeout time.Duration
}

// NewSink returns a Sink posting to dests.
func NewSink(log logrus.FieldLogger, dests ...Destination) *Sink {
	return &Sink{dests: dests, log: log, timeout: DefaultTimeout}
}

// SetTimeout replaces DefaultTimeout. Non-positive values are ignored.
func (s *Sink) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Len reports how many destinations are configured.
func (s *Sink) Len() int { return len(s.dests) }

// Publish posts e to every destination in parallel. Events that need no
// notification are ignored. A failing destination does not stop the others.
// Delivery is detached from the caller's cancellation and bounded by the
// sink's timeout, so a slow chat service delays the caller by at most that.
func (s *Sink) Publish(ctx context.Context, e events.Event) error {
	msg, ok := Format(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	errs := make([]error, len(s.dests))
	var wg sync.WaitGroup
	for i, d := range s.dests {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := d.Post(ctx, msg); err != nil {
				errs[i] = fmt.Errorf("notify: %s: %w", d.Name(), err)
				return
			}
			s.log.WithFields(logrus.Fields{
				"destination":     d.Name(),
				"event":           e.Type,
				"health_check_id": e.HealthCheckID,
			}).Debug("notification posted")
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
