// Package solver runs nesting solves in the background with caching,
// supersession and cooperative cancellation.
package solver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/piwi3910/SheetNest/internal/cache"
	"github.com/piwi3910/SheetNest/internal/cachekey"
	"github.com/piwi3910/SheetNest/internal/engine"
	"github.com/piwi3910/SheetNest/internal/model"
)

// DefaultStopTimeout bounds how long a cancelled worker is waited for.
const DefaultStopTimeout = 2 * time.Second

var (
	// ErrCancelled is returned by Job.Wait for cancelled or superseded jobs.
	ErrCancelled = errors.New("solve cancelled")
	// ErrAbandoned is returned when a cancelled worker did not stop within
	// the stop timeout. Its result is discarded.
	ErrAbandoned = errors.New("solve worker abandoned after stop timeout")
	// ErrClosed is returned by Solve after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// EngineFunc computes a layout. engine.Optimize is the default.
type EngineFunc func(ctx context.Context, parts model.PartsByMaterial, settings model.Settings, onProgress engine.ProgressFunc) (model.Result, error)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCache replaces the default in-memory cache.
func WithCache(c cache.Cache) Option {
	return func(o *Orchestrator) { o.cache = c }
}

// WithEngine replaces the nesting engine.
func WithEngine(fn EngineFunc) Option {
	return func(o *Orchestrator) { o.engine = fn }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithStopTimeout sets how long a cancelled worker is waited for before it
// is abandoned.
func WithStopTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.stopTimeout = d
		}
	}
}

// Orchestrator owns the result cache and the single in-flight job.
type Orchestrator struct {
	cache       cache.Cache
	engine      EngineFunc
	logger      hclog.Logger
	stopTimeout time.Duration
	runs        atomic.Int64

	mu      sync.Mutex
	current *Job
	closed  bool
}

func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:      engine.Optimize,
		logger:      hclog.NewNullLogger(),
		stopTimeout: DefaultStopTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.cache == nil {
		mem, _ := cache.NewMemory(cache.DefaultSize)
		o.cache = mem
	}
	return o
}

// Solve starts a solve of parts with settings and returns its job at once.
// Invalid settings are rejected before any work starts. A running job is
// superseded: it is cancelled at once, and the new worker waits for the old
// one up to the stop timeout before running the engine. Cancelling ctx
// cancels the job.
func (o *Orchestrator) Solve(ctx context.Context, parts model.PartsByMaterial, settings model.Settings) (*Job, error) {
	normalized, warnings := settings.Normalize()
	if err := normalized.Validate(); err != nil {
		return nil, err
	}
	key := cachekey.Key(parts, normalized)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrClosed
	}
	prev := o.current
	if prev != nil {
		prev.Cancel()
	}

	job := newJob(ctx, key)
	o.current = job
	logger := o.logger.With("job", job.ID, "key", key)

	if !cachekey.IsEmpty(key) {
		result, ok, err := o.cache.Get(key)
		switch {
		case err != nil:
			close(job.workerDone)
			job.fail(o.discard(key, err, logger))
			return job, nil
		case ok:
			logger.Debug("cache hit")
			close(job.workerDone)
			job.mu.Lock()
			job.cacheHit = true
			job.mu.Unlock()
			job.progress("Loaded cached result", 100)
			job.complete(result, warnings, nil)
			return job, nil
		}
	}

	logger.Info("starting solve", "materials", len(parts), "pieces", parts.TotalQuantity())
	go o.run(job, prev, logger, copyParts(parts), normalized, warnings)
	return job, nil
}

// discard removes an unreadable cache entry so the next identical solve
// recomputes it, and returns the error the job fails with.
func (o *Orchestrator) discard(key string, cause error, logger hclog.Logger) error {
	logger.Error("cache lookup failed", "error", cause)
	if err := o.cache.Delete(key); err != nil {
		logger.Error("removing cache entry failed", "error", err)
		return fmt.Errorf("reading cached result: %w", cause)
	}
	return fmt.Errorf("reading cached result (entry removed, retry the solve): %w", cause)
}

func (o *Orchestrator) run(job, prev *Job, logger hclog.Logger, parts model.PartsByMaterial, settings model.Settings, warnings []model.Warning) {
	defer close(job.workerDone)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("solve worker panicked", "panic", r)
			job.fail(fmt.Errorf("solve worker panicked: %v", r))
		}
	}()

	if prev != nil {
		if err := o.await(prev); err != nil {
			logger.Warn("superseded solve did not stop", "previous", prev.ID, "error", err)
		}
	}
	if job.ctx.Err() != nil {
		job.cancelled()
		return
	}

	o.runs.Add(1)
	start := time.Now()
	result, err := o.engine(job.ctx, parts, settings, job.progress)
	switch {
	case err != nil && job.ctx.Err() != nil:
		logger.Info("solve cancelled", "elapsed", time.Since(start))
		job.cancelled()
	case err != nil:
		logger.Error("solve failed", "error", err)
		job.fail(fmt.Errorf("nesting failed: %w", err))
	default:
		var persist func(model.Result)
		if !cachekey.IsEmpty(job.Key) {
			persist = func(r model.Result) {
				if _, err := o.cache.PutIfAbsent(job.Key, r); err != nil {
					logger.Error("caching result failed", "error", err)
				}
			}
		}
		if job.complete(result, warnings, persist) {
			logger.Info("solve complete", "boards", len(result.Boards),
				"placed", result.PlacedCount(), "unplaced", result.UnplacedCount(),
				"elapsed", time.Since(start))
		} else {
			logger.Info("solve finished after cancellation, result discarded")
		}
	}
}

// await waits for the worker of a cancelled job up to the stop timeout.
func (o *Orchestrator) await(job *Job) error {
	timer := time.NewTimer(o.stopTimeout)
	defer timer.Stop()
	select {
	case <-job.workerDone:
		return nil
	case <-timer.C:
		o.logger.Warn("abandoning solve worker", "job", job.ID, "timeout", o.stopTimeout)
		return ErrAbandoned
	}
}

// Current returns the most recently started job, or nil.
func (o *Orchestrator) Current() *Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Runs returns how many times the engine has been invoked.
func (o *Orchestrator) Runs() int64 {
	return o.runs.Load()
}

// Close cancels the in-flight job, waits for it up to the stop timeout and
// rejects further solves.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	current := o.current
	o.mu.Unlock()

	if current == nil {
		return nil
	}
	current.Cancel()
	return o.await(current)
}

func copyParts(parts model.PartsByMaterial) model.PartsByMaterial {
	out := make(model.PartsByMaterial, len(parts))
	for material, list := range parts {
		out[material] = append([]model.PartQuantity(nil), list...)
	}
	return out
}
