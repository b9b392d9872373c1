package reach

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNeverReached = errors.New("reach.Never() encountered")
	ErrBadOrder     = errors.New("incorrect reach order")
)

// OrderError carries the full observed sequence for diagnosis.
type OrderError struct {
	Events []Event
	Err    error
}

func (e *OrderError) Error() string {
	parts := make([]string, len(e.Events))
	for i, ev := range e.Events {
		parts[i] = ev.String()
	}
	return fmt.Sprintf("%v [%s]", e.Err, strings.Join(parts, " "))
}

func (e *OrderError) Unwrap() error { return e.Err }

type state int

const (
	stateStart state = iota
	stateSeenNth
	stateSeenLast
	stateRejected
)

// Sequencer consumes events in arrival order. The only accepting state is
// "Last seen": Nth(0), Nth(1), ... Nth(n) optionally, then exactly one Last.
type Sequencer struct {
	state state
	nth   uint16
	never bool
}

// Feed advances the machine by one event.
func (s *Sequencer) Feed(ev Event) {
	if ev.Kind == KindNever {
		s.never = true
		s.state = stateRejected
		return
	}

	switch s.state {
	case stateStart:
		switch {
		case ev.Kind == KindLast:
			s.state = stateSeenLast
		case ev.N == 0:
			s.state = stateSeenNth
			s.nth = 0
		default:
			s.state = stateRejected
		}
	case stateSeenNth:
		switch {
		case ev.Kind == KindLast:
			s.state = stateSeenLast
		case int(ev.N) == int(s.nth)+1:
			s.nth = ev.N
		default:
			s.state = stateRejected
		}
	case stateSeenLast:
		// Last must be final
		s.state = stateRejected
	}
}

// Accepted reports whether the events fed so far form a complete run.
func (s *Sequencer) Accepted() bool {
	return s.state == stateSeenLast
}

// Validate returns nil iff events is accepted by a fresh Sequencer.
func Validate(events []Event) error {
	var s Sequencer
	for _, ev := range events {
		s.Feed(ev)
	}
	if s.Accepted() {
		return nil
	}
	if s.never {
		return &OrderError{Events: events, Err: ErrNeverReached}
	}
	return &OrderError{Events: events, Err: ErrBadOrder}
}
