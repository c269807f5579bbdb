// Package events publishes repair-engine domain events to the log, to a
// GCP Pub/Sub topic, or to several sinks at once.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Type names a domain event.
type Type string

const (
	OutcomeChanged Type = "repair_item.outcome_changed"
	Signed         Type = "health_check.signed"
	Closed         Type = "health_check.closed"
	DeferralDue    Type = "repair_item.deferral_due"
)

// Event is the payload published for every state change the engine makes.
type Event struct {
	ID             string          `json:"id"`
	Type           Type            `json:"type"`
	OrganizationID string          `json:"organization_id"`
	HealthCheckID  string          `json:"health_check_id"`
	RepairItemIDs  []string        `json:"repair_item_ids,omitempty"`
	Outcome        string          `json:"outcome,omitempty"`
	Source         string          `json:"source,omitempty"`
	ActorID        string          `json:"actor_id,omitempty"`
	Total          decimal.Decimal `json:"total"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	log logrus.FieldLogger
}

// NewLogPublisher returns a publisher that logs at info level.
func NewLogPublisher(log logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish logs e. It never fails.
func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.log.WithFields(logrus.Fields{
		"event":           e.Type,
		"event_id":        e.ID,
		"health_check_id": e.HealthCheckID,
		"repair_item_ids": e.RepairItemIDs,
		"outcome":         e.Outcome,
		"source":          e.Source,
		"actor_id":        e.ActorID,
		"total":           e.Total.StringFixed(2),
	}).Info("domain event")
	return nil
}

// Fanout publishes to every wrapped publisher and joins their errors.
type Fanout []Publisher

// Publish delivers e to each publisher in order. A failing publisher does
// not stop the rest.
func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends e.
func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns recorded events with the given type.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
