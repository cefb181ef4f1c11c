package solver

import (
	"sync"

	"github.com/piwi3910/SheetNest/internal/model"
)

// EventKind identifies the kind of a solve event.
type EventKind int

const (
	EventProgress EventKind = iota
	EventError
	EventCancelled
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventError:
		return "error"
	case EventCancelled:
		return "cancelled"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Terminal reports whether the kind ends a job's event stream.
func (k EventKind) Terminal() bool {
	return k != EventProgress
}

// Event is one notification from a running solve. Message and Percent are
// set for EventProgress, Err for EventError, Result and Key for
// EventComplete.
type Event struct {
	Kind    EventKind
	Message string
	Percent float64
	Err     error
	Result  model.Result
	Key     string
}

// eventQueue is an unbounded FIFO between the worker and the consumer.
// Pushing never blocks; delivery starts when the consumer subscribes and the
// output channel closes after the terminal event.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	notify chan struct{}
	out    chan Event
	start  sync.Once
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		notify: make(chan struct{}, 1),
		out:    make(chan Event),
	}
}

// push appends e. Events pushed after a terminal event are dropped.
func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, e)
	if e.Kind.Terminal() {
		q.closed = true
	}
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *eventQueue) subscribe() <-chan Event {
	q.start.Do(func() { go q.pump() })
	return q.out
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		q.mu.Lock()
		batch := q.items
		q.items = nil
		closed := q.closed
		q.mu.Unlock()

		for _, e := range batch {
			q.out <- e
		}
		if closed {
			return
		}
		<-q.notify
	}
}
