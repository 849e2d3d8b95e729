package dbg

import "sync"

// EventType identifies a debugger event.
type EventType string

// Event types pushed to the session queue.
const (
	EventThreadStarted   EventType = "thread_started"
	EventThreadSuspended EventType = "thread_suspended"
	EventThreadEnded     EventType = "thread_ended"
	EventExceptionRaised EventType = "exception_raised"
	EventEndOfProgram    EventType = "end_of_program"
)

// Event is an immutable record describing a state change of the debugging
// session. Events are produced by the engine and consumed exactly once by
// whichever party drains the queue.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID int64     `json:"thread_id,omitempty"`
	File     string    `json:"file,omitempty"`
	Line     int       `json:"line,omitempty"`
	ExcType  string    `json:"exc_type,omitempty"`
	ExcValue string    `json:"exc_value,omitempty"`
}

// EventQueue is a multi-producer, single-consumer FIFO of events. Producers
// are the debuggee threads; the consumer is the remote controller draining
// through getMessages.
type EventQueue struct {
	mu     sync.Mutex
	events []Event
}

// Put appends an event to the queue.
func (q *EventQueue) Put(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// Drain returns all queued events in append order and empties the queue.
// It never blocks waiting for new events.
func (q *EventQueue) Drain() []Event {
	q.mu.Lock()
	events := q.events
	q.events = nil
	q.mu.Unlock()
	if events == nil {
		return []Event{}
	}
	return events
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
