package events

import "time"

// DomainEvent is a fact produced by the messaging core that is worth publishing
// to the durable event stream.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// BaseEvent carries the envelope fields of an event. They are excluded from the
// JSON payload because the outbox stores them as separate columns.
type BaseEvent struct {
	Name      string    `json:"-"`
	Aggregate string    `json:"-"`
	Time      time.Time `json:"-"`
}

func NewBase(name, aggregate string, at time.Time) BaseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return BaseEvent{Name: name, Aggregate: aggregate, Time: at.UTC()}
}

func (e BaseEvent) EventName() string {
	return e.Name
}

func (e BaseEvent) AggregateID() string {
	return e.Aggregate
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Time
}
