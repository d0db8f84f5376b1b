package events

import "time"

// Kind names an event type as "<subject>.<change>".
type Kind string

func (k Kind) String() string { return string(k) }

// Event is implemented by every event the live music helper emits.
type Event interface {
	Kind() Kind
	Timestamp() time.Time
}

// Base is embedded by concrete events. The timestamp is taken when the event
// is created, not when it is delivered.
type Base struct {
	kind      Kind
	timestamp time.Time
}

func NewBase(kind Kind) Base {
	return Base{kind: kind, timestamp: time.Now()}
}

func (b Base) Kind() Kind { return b.kind }

func (b Base) Timestamp() time.Time { return b.timestamp }
