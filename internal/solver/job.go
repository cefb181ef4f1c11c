package solver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/piwi3910/SheetNest/internal/model"
)

// State is the lifecycle state of a job.
type State int

const (
	StateRunning State = iota
	StateComplete
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateComplete:
		return "complete"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateRunning, StateComplete, StateCancelled, StateFailed} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown job state %q", string(text))
}

// Status is a point-in-time snapshot of a job for polling clients.
type Status struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	State     State     `json:"state"`
	Message   string    `json:"message"`
	Percent   float64   `json:"percent"`
	CacheHit  bool      `json:"cache_hit"`
	Error     string    `json:"error,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// Job is one solve request. All state transitions happen under mu; once a
// terminal state is reached nothing else is recorded or emitted.
type Job struct {
	ID  string
	Key string

	ctx    context.Context
	cancel context.CancelFunc
	queue  *eventQueue

	// finished closes on the terminal transition, workerDone when the worker
	// goroutine returns.
	finished   chan struct{}
	workerDone chan struct{}
	started    time.Time

	mu       sync.Mutex
	state    State
	message  string
	percent  float64
	cacheHit bool
	result   model.Result
	err      error
}

func newJob(parent context.Context, key string) *Job {
	ctx, cancel := context.WithCancel(parent)
	return &Job{
		ID:         uuid.NewString(),
		Key:        key,
		ctx:        ctx,
		cancel:     cancel,
		queue:      newEventQueue(),
		finished:   make(chan struct{}),
		workerDone: make(chan struct{}),
		started:    time.Now(),
		state:      StateRunning,
	}
}

// Events returns the job's ordered event stream. It ends with exactly one
// terminal event and is then closed. Only one consumer should read it, and
// the consumer must drain it.
func (j *Job) Events() <-chan Event {
	return j.queue.subscribe()
}

// Cancel requests cooperative cancellation. The job moves to
// StateCancelled at once; the worker stops at its next checkpoint and its
// result, if any, is discarded. Cancelling a finished job is a no-op.
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.cancel()
	j.terminateLocked(StateCancelled, Event{Kind: EventCancelled, Key: j.Key})
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.finished
}

// Wait blocks until the job finishes or ctx is done. A cancelled job returns
// ErrCancelled.
func (j *Job) Wait(ctx context.Context) (model.Result, error) {
	select {
	case <-j.finished:
	case <-ctx.Done():
		return model.Result{}, ctx.Err()
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	switch j.state {
	case StateComplete:
		return j.result.Clone(), nil
	case StateCancelled:
		return model.Result{}, ErrCancelled
	default:
		return model.Result{}, j.err
	}
}

// Result returns the result of a completed job.
func (j *Job) Result() (model.Result, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateComplete {
		return model.Result{}, false
	}
	return j.result.Clone(), true
}

// Status returns a snapshot of the job.
func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := Status{
		ID:        j.ID,
		Key:       j.Key,
		State:     j.state,
		Message:   j.message,
		Percent:   j.percent,
		CacheHit:  j.cacheHit,
		StartedAt: j.started,
	}
	if j.err != nil {
		st.Error = j.err.Error()
	}
	return st
}

func (j *Job) progress(message string, percent float64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.message = message
	j.percent = percent
	j.queue.push(Event{Kind: EventProgress, Message: message, Percent: percent})
}

// complete hands result to persist and emits EventComplete with warnings
// prepended, unless the job was cancelled first. Both happen under the job
// lock so a concurrent Cancel either prevents the insert or comes after
// Complete. persist receives the result without the request's warnings.
func (j *Job) complete(result model.Result, warnings []model.Warning, persist func(model.Result)) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return false
	}
	if j.ctx.Err() != nil {
		j.terminateLocked(StateCancelled, Event{Kind: EventCancelled, Key: j.Key})
		return false
	}
	if persist != nil {
		persist(result)
	}
	if len(warnings) > 0 {
		result.Warnings = append(append([]model.Warning(nil), warnings...), result.Warnings...)
	}
	j.result = result
	j.message = "Complete"
	j.percent = 100
	j.terminateLocked(StateComplete, Event{Kind: EventComplete, Result: result.Clone(), Key: j.Key})
	return true
}

func (j *Job) cancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.terminateLocked(StateCancelled, Event{Kind: EventCancelled, Key: j.Key})
}

func (j *Job) fail(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning {
		return
	}
	j.err = err
	j.terminateLocked(StateFailed, Event{Kind: EventError, Err: err, Key: j.Key})
}

func (j *Job) terminateLocked(state State, e Event) {
	j.state = state
	j.queue.push(e)
	close(j.finished)
	j.cancel()
}
