package dbg

import (
	"sync"
	"testing"
)

func TestEventQueueDrain(t *testing.T) {
	q := &EventQueue{}

	q.Put(Event{Type: EventThreadStarted, ThreadID: 1})
	q.Put(Event{Type: EventThreadSuspended, ThreadID: 1, File: "a.lua", Line: 3})
	if q.Len() != 2 {
		t.Fatalf("len = %d, want 2", q.Len())
	}

	events := q.Drain()
	if len(events) != 2 {
		t.Fatalf("drained %d events, want 2", len(events))
	}
	if events[0].Type != EventThreadStarted || events[1].Type != EventThreadSuspended {
		t.Errorf("wrong order: %v", events)
	}
	if q.Len() != 0 {
		t.Errorf("len after drain = %d, want 0", q.Len())
	}
}

func TestEventQueueDrainEmptyIsNotNil(t *testing.T) {
	q := &EventQueue{}
	if got := q.Drain(); got == nil {
		t.Error("Drain() = nil, want empty slice")
	}
}

func TestEventQueueConcurrentProducers(t *testing.T) {
	q := &EventQueue{}
	const producers, each = 8, 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			for i := 0; i < each; i++ {
				q.Put(Event{Type: EventThreadSuspended, ThreadID: id})
			}
		}(int64(p))
	}
	wg.Wait()

	if got := len(q.Drain()); got != producers*each {
		t.Errorf("drained %d events, want %d", got, producers*each)
	}
}
