package solver

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"

	"github.com/piwi3910/SheetNest/internal/cache"
	"github.com/piwi3910/SheetNest/internal/engine"
	"github.com/piwi3910/SheetNest/internal/model"
)

func testSettings() model.Settings {
	s := model.DefaultSettings()
	s.KerfWidth = 3
	s.StockMaterials["Plywood_18mm"] = model.StockMaterial{Width: 2440, Height: 1220, Thickness: 18}
	return s
}

func testParts() model.PartsByMaterial {
	rail := model.NewPart("Rail", 1200, 100, 18, "Plywood_18mm")
	rail.Grain = model.GrainLength
	return model.PartsByMaterial{
		"Plywood_18mm": {
			{Part: model.NewPart("Door", 600, 400, 18, "Plywood_18mm"), Quantity: 4},
			{Part: rail, Quantity: 2},
		},
	}
}

// drain collects every event of job until the stream closes.
func drain(t *testing.T, job *Job) []Event {
	t.Helper()
	var events []Event
	done := make(chan struct{})
	go func() {
		defer close(done)
		for e := range job.Events() {
			events = append(events, e)
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not close")
	}
	return events
}

func requireSingleTerminal(t *testing.T, events []Event, want EventKind) Event {
	t.Helper()
	require.NotEmpty(t, events)
	for _, e := range events[:len(events)-1] {
		require.Equal(t, EventProgress, e.Kind, "terminal event before the end")
	}
	last := events[len(events)-1]
	require.Equal(t, want, last.Kind)
	return last
}

// blockingEngine reports one progress update, signals started and then
// waits for cancellation.
func blockingEngine(started chan<- struct{}) EngineFunc {
	return func(ctx context.Context, _ model.PartsByMaterial, _ model.Settings, onProgress engine.ProgressFunc) (model.Result, error) {
		onProgress("working", 10)
		close(started)
		<-ctx.Done()
		return model.Result{}, ctx.Err()
	}
}

// stuckEngine ignores cancellation until release is closed, then returns a
// result.
func stuckEngine(started chan<- struct{}, release <-chan struct{}) EngineFunc {
	return func(ctx context.Context, parts model.PartsByMaterial, settings model.Settings, _ engine.ProgressFunc) (model.Result, error) {
		close(started)
		<-release
		return engine.Optimize(context.Background(), parts, settings, nil)
	}
}

func waitWorker(t *testing.T, job *Job) {
	t.Helper()
	select {
	case <-job.workerDone:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not finish")
	}
}

func TestSolve_CompletesWithOrderedEvents(t *testing.T) {
	o := New()
	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)

	events := drain(t, job)
	last := requireSingleTerminal(t, events, EventComplete)
	assert.Equal(t, job.Key, last.Key)
	require.Len(t, last.Result.Boards, 1)
	assert.Equal(t, 6, last.Result.PlacedCount())

	prev := 0.0
	for _, e := range events[:len(events)-1] {
		assert.GreaterOrEqual(t, e.Percent, prev)
		prev = e.Percent
	}

	st := job.Status()
	assert.Equal(t, StateComplete, st.State)
	assert.Equal(t, 100.0, st.Percent)
	assert.False(t, st.CacheHit)
	assert.Equal(t, int64(1), o.Runs())
}

func TestSolve_SecondIdenticalSolveHitsCache(t *testing.T) {
	o := New()
	first, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	r1, err := first.Wait(context.Background())
	require.NoError(t, err)

	second, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	events := drain(t, second)
	require.Len(t, events, 2)
	assert.Equal(t, EventProgress, events[0].Kind)
	assert.Equal(t, 100.0, events[0].Percent)
	assert.Equal(t, EventComplete, events[1].Kind)

	r2, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, first.Key, second.Key)
	assert.True(t, second.Status().CacheHit)
	assert.Equal(t, int64(1), o.Runs(), "engine must not run again")
}

func TestSolve_PersistentCacheAcrossOrchestrators(t *testing.T) {
	dir := t.TempDir()
	db, err := cache.OpenBolt(dir)
	require.NoError(t, err)
	defer db.Close()

	o1 := New(WithCache(db))
	job, err := o1.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	want, err := job.Wait(context.Background())
	require.NoError(t, err)

	o2 := New(WithCache(db))
	job, err = o2.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	got, err := job.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, int64(0), o2.Runs())
}

func TestSolve_InvalidSettingsRejected(t *testing.T) {
	o := New()
	s := testSettings()
	s.StockMaterials["Broken"] = model.StockMaterial{Width: 0, Height: 1220}

	job, err := o.Solve(context.Background(), testParts(), s)
	assert.Nil(t, job)
	assert.ErrorIs(t, err, model.ErrInvalidSettings)
	assert.Equal(t, int64(0), o.Runs())
}

func TestSolve_NegativeKerfWarningReachesResult(t *testing.T) {
	o := New()
	s := testSettings()
	s.KerfWidth = -1

	job, err := o.Solve(context.Background(), testParts(), s)
	require.NoError(t, err)
	result, err := job.Wait(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0].Message, "kerf")
}

func kerfWarnings(r model.Result) []model.Warning {
	var out []model.Warning
	for _, w := range r.Warnings {
		if w.Material == "" {
			out = append(out, w)
		}
	}
	return out
}

func TestSolve_SettingsWarningsBelongToTheRequest(t *testing.T) {
	mem, err := cache.NewMemory(4)
	require.NoError(t, err)
	o := New(WithCache(mem))

	solve := func(kerf float64) (model.Result, *Job) {
		s := testSettings()
		s.KerfWidth = kerf
		job, err := o.Solve(context.Background(), testParts(), s)
		require.NoError(t, err)
		result, err := job.Wait(context.Background())
		require.NoError(t, err)
		return result, job
	}

	clamped, first := solve(-1)
	require.Len(t, kerfWarnings(clamped), 1)
	assert.Contains(t, kerfWarnings(clamped)[0].Message, "kerf")

	cached, _, err := mem.Get(first.Key)
	require.NoError(t, err)
	assert.Empty(t, kerfWarnings(cached), "request warnings must not be cached")

	plain, second := solve(0)
	assert.True(t, second.Status().CacheHit)
	assert.Empty(t, kerfWarnings(plain))

	again, third := solve(-1)
	assert.True(t, third.Status().CacheHit)
	require.Len(t, kerfWarnings(again), 1)
	assert.Equal(t, clamped.Boards, again.Boards)
	assert.Equal(t, int64(1), o.Runs())
}

func TestSolve_CorruptCacheEntryFailsThenRecovers(t *testing.T) {
	dir := t.TempDir()
	db, err := cache.OpenBolt(dir)
	require.NoError(t, err)
	o := New(WithCache(db))
	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)
	key := job.Key
	require.NoError(t, db.Close())

	raw, err := bolt.Open(filepath.Join(dir, cache.FileName), 0600, nil)
	require.NoError(t, err)
	require.NoError(t, raw.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte("results")).Put([]byte(key), []byte("{garbage"))
	}))
	require.NoError(t, raw.Close())

	db, err = cache.OpenBolt(dir)
	require.NoError(t, err)
	defer db.Close()
	o = New(WithCache(db))

	job, err = o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	last := requireSingleTerminal(t, drain(t, job), EventError)
	assert.ErrorIs(t, last.Err, cache.ErrCorrupt)
	assert.Contains(t, last.Err.Error(), "retry")
	assert.Equal(t, StateFailed, job.Status().State)
	assert.Equal(t, int64(0), o.Runs())

	job, err = o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	result, err := job.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, result.PlacedCount())
	assert.Equal(t, int64(1), o.Runs())

	_, ok, err := db.Get(key)
	require.NoError(t, err)
	assert.True(t, ok, "recomputed result replaces the corrupt entry")
}

func TestCancel_EmitsCancelledAndSkipsCache(t *testing.T) {
	mem, err := cache.NewMemory(4)
	require.NoError(t, err)
	started := make(chan struct{})
	o := New(WithCache(mem), WithEngine(blockingEngine(started)))

	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	<-started

	st := job.Status()
	assert.Equal(t, StateRunning, st.State)
	assert.Equal(t, 10.0, st.Percent)

	job.Cancel()
	events := drain(t, job)
	requireSingleTerminal(t, events, EventCancelled)

	_, err = job.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)

	waitWorker(t, job)
	_, ok, _ := mem.Get(job.Key)
	assert.False(t, ok)
	assert.Equal(t, 0, mem.Len())
}

func TestCancel_LateResultIsDiscarded(t *testing.T) {
	mem, err := cache.NewMemory(4)
	require.NoError(t, err)
	started := make(chan struct{})
	release := make(chan struct{})
	o := New(WithCache(mem), WithEngine(stuckEngine(started, release)))

	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	<-started

	job.Cancel()
	close(release)
	waitWorker(t, job)

	assert.Equal(t, StateCancelled, job.Status().State)
	_, ok := job.Result()
	assert.False(t, ok)
	assert.Equal(t, 0, mem.Len())
}

func TestCancel_AfterCompleteIsNoop(t *testing.T) {
	o := New()
	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	_, err = job.Wait(context.Background())
	require.NoError(t, err)

	job.Cancel()
	assert.Equal(t, StateComplete, job.Status().State)
	requireSingleTerminal(t, drain(t, job), EventComplete)
}

func TestSolve_ParentContextCancels(t *testing.T) {
	started := make(chan struct{})
	o := New(WithEngine(blockingEngine(started)))
	ctx, cancel := context.WithCancel(context.Background())

	job, err := o.Solve(ctx, testParts(), testSettings())
	require.NoError(t, err)
	<-started
	cancel()

	_, err = job.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSolve_SupersedesRunningJob(t *testing.T) {
	started := make(chan struct{})
	calls := 0
	block := blockingEngine(started)
	o := New(WithEngine(func(ctx context.Context, parts model.PartsByMaterial, s model.Settings, p engine.ProgressFunc) (model.Result, error) {
		calls++
		if calls == 1 {
			return block(ctx, parts, s, p)
		}
		return engine.Optimize(ctx, parts, s, p)
	}))

	first, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	<-started

	other := testParts()
	other["Plywood_18mm"][0].Quantity = 1
	second, err := o.Solve(context.Background(), other, testSettings())
	require.NoError(t, err)

	_, err = first.Wait(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	result, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.PlacedCount())
	assert.Same(t, second, o.Current())
	assert.Equal(t, int64(2), o.Runs())
}

func TestSolve_SupersedeDoesNotBlockCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	stuck := stuckEngine(started, release)
	var calls atomic.Int32
	o := New(WithStopTimeout(5*time.Second), WithEngine(func(ctx context.Context, parts model.PartsByMaterial, s model.Settings, p engine.ProgressFunc) (model.Result, error) {
		if calls.Add(1) == 1 {
			return stuck(ctx, parts, s, p)
		}
		return engine.Optimize(ctx, parts, s, p)
	}))

	first, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	<-started

	begin := time.Now()
	second, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	assert.Same(t, second, o.Current())
	assert.Less(t, time.Since(begin), time.Second, "Solve waited for the superseded worker")
	assert.Equal(t, StateCancelled, first.Status().State)
	assert.Equal(t, StateRunning, second.Status().State)
	assert.Equal(t, int32(1), calls.Load(), "new engine run started before the old worker stopped")

	close(release)
	result, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, result.PlacedCount())
	assert.Equal(t, int32(2), calls.Load())
}

func TestClose_AbandonsStuckWorker(t *testing.T) {
	mem, err := cache.NewMemory(4)
	require.NoError(t, err)
	started := make(chan struct{})
	release := make(chan struct{})
	o := New(WithCache(mem), WithEngine(stuckEngine(started, release)), WithStopTimeout(20*time.Millisecond))

	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	<-started

	err = o.Close()
	assert.ErrorIs(t, err, ErrAbandoned)
	assert.Equal(t, StateCancelled, job.Status().State)

	close(release)
	waitWorker(t, job)
	assert.Equal(t, 0, mem.Len(), "abandoned worker must not populate the cache")

	_, err = o.Solve(context.Background(), testParts(), testSettings())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestSolve_EnginePanicBecomesError(t *testing.T) {
	o := New(WithEngine(func(context.Context, model.PartsByMaterial, model.Settings, engine.ProgressFunc) (model.Result, error) {
		panic("boom")
	}))

	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)

	last := requireSingleTerminal(t, drain(t, job), EventError)
	assert.Contains(t, last.Err.Error(), "boom")
	assert.Equal(t, StateFailed, job.Status().State)
	assert.NotEmpty(t, job.Status().Error)
}

func TestSolve_EngineErrorIsWrapped(t *testing.T) {
	sentinel := errors.New("disk on fire")
	o := New(WithEngine(func(context.Context, model.PartsByMaterial, model.Settings, engine.ProgressFunc) (model.Result, error) {
		return model.Result{}, sentinel
	}))

	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	_, err = job.Wait(context.Background())
	assert.ErrorIs(t, err, sentinel)
}

func TestSolve_EmptyInputIsNeverCached(t *testing.T) {
	mem, err := cache.NewMemory(4)
	require.NoError(t, err)
	o := New(WithCache(mem))

	for i := 0; i < 2; i++ {
		job, err := o.Solve(context.Background(), model.PartsByMaterial{}, testSettings())
		require.NoError(t, err)
		result, err := job.Wait(context.Background())
		require.NoError(t, err)
		assert.Empty(t, result.Boards)
	}
	assert.Equal(t, int64(2), o.Runs())
	assert.Equal(t, 0, mem.Len())
}

func TestWait_RespectsContext(t *testing.T) {
	started := make(chan struct{})
	o := New(WithEngine(blockingEngine(started)))
	defer o.Close()

	job, err := o.Solve(context.Background(), testParts(), testSettings())
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = job.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
