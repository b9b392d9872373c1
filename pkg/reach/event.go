// Package reach lets an isolated test assert that execution passed through
// numbered checkpoints in order, ending at a final one, and that some
// points are never reached.
//
// The test body calls Nth, Last and Never. Each call writes a probe line to
// stderr; the supervising process collects the events and checks them with
// Validate once the child has exited.
package reach

import (
	"strconv"
)

// Kind of checkpoint event
type Kind int

const (
	KindNth Kind = iota
	KindLast
	KindNever
)

const (
	lastPayload  = "$"
	neverPayload = "!"
)

// Event is one reached checkpoint.
type Event struct {
	Kind Kind
	N    uint16 // only for KindNth
}

func NthEvent(n uint16) Event { return Event{Kind: KindNth, N: n} }

func LastEvent() Event { return Event{Kind: KindLast} }

func NeverEvent() Event { return Event{Kind: KindNever} }

// String returns the probe payload for the event.
func (e Event) String() string {
	switch e.Kind {
	case KindLast:
		return lastPayload
	case KindNever:
		return neverPayload
	default:
		return strconv.FormatUint(uint64(e.N), 10)
	}
}

// ParseEvent is the inverse of Event.String.
func ParseEvent(payload string) (Event, bool) {
	switch payload {
	case lastPayload:
		return LastEvent(), true
	case neverPayload:
		return NeverEvent(), true
	}
	n, err := strconv.ParseUint(payload, 10, 16)
	if err != nil {
		return Event{}, false
	}
	return NthEvent(uint16(n)), true
}
