package schedlib

import (
	"fmt"
	"io"
)

// EventKind identifies a scheduler event.
type EventKind uint8

const (
	EventStart EventKind = iota
	EventContinue
	EventPreempt
	EventFinish
	EventComplete
)

func (k EventKind) String() string {
	return [...]string{"START", "CONTINUE", "PREEMPT", "FINISH", "COMPLETE"}[k]
}

// Event is one observable scheduling action.
type Event struct {
	Tick      int
	Kind      EventKind
	JobID     int
	PID       int
	Remaining int
}

// String renders the event in the scheduler's stdout format.
func (e Event) String() string {
	switch e.Kind {
	case EventComplete:
		return "Complete!"
	case EventFinish:
		return fmt.Sprintf("t=%d FINISH p=%d pid=%d", e.Tick, e.JobID, e.PID)
	default:
		return fmt.Sprintf("t=%d %s p=%d pid=%d rem=%d", e.Tick, e.Kind, e.JobID, e.PID, e.Remaining)
	}
}

// EventSink receives scheduler events in the order they happen.
type EventSink interface {
	Emit(Event)
}

// WriterSink writes each event as one line to W.
type WriterSink struct {
	W io.Writer
}

// Emit implements EventSink. Write errors are ignored.
func (s WriterSink) Emit(e Event) {
	_, _ = fmt.Fprintln(s.W, e.String())
}
