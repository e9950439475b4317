package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// waitWithin fails the test if fn does not return within d.
func waitWithin(t *testing.T, d time.Duration, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timed out after %s", d)
	}
}

// TestPool_BoundedConcurrency ensures no more than size thunks ever run at once.
func TestPool_BoundedConcurrency(t *testing.T) {
	for _, size := range []uint16{1, 2, 8} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			p := NewPool(size, Config{})
			defer p.Close()

			var running, maxRunning atomic.Int32
			for i := 0; i < 5*int(size); i++ {
				p.Schedule(func() {
					n := running.Add(1)
					for {
						m := maxRunning.Load()
						if n <= m || maxRunning.CompareAndSwap(m, n) {
							break
						}
					}
					time.Sleep(5 * time.Millisecond)
					running.Add(-1)
				})
			}

			waitWithin(t, 5*time.Second, p.Wait)
			require.LessOrEqual(t, maxRunning.Load(), int32(size))
			require.Zero(t, running.Load())
		})
	}
}

// TestPool_UsesAllWorkers ensures a pool actually reaches its concurrency limit
// when the workload allows it.
func TestPool_UsesAllWorkers(t *testing.T) {
	const size = 4
	p := NewPool(size, Config{})
	defer p.Close()

	var running atomic.Int32
	release := make(chan struct{})
	for i := 0; i < size; i++ {
		p.Schedule(func() {
			running.Add(1)
			<-release
		})
	}

	require.Eventually(t, func() bool { return running.Load() == size }, 2*time.Second, time.Millisecond)
	require.Equal(t, size, p.Stats().Busy)

	close(release)
	waitWithin(t, 2*time.Second, p.Wait)
}

// TestPool_FIFODispatch ensures a single worker runs thunks in scheduling order.
func TestPool_FIFODispatch(t *testing.T) {
	p := NewPool(1, Config{})
	defer p.Close()

	mu := &sync.Mutex{}
	log := make([]int, 0, 20)
	for i := 0; i < 20; i++ {
		p.Schedule(func() {
			mu.Lock()
			defer mu.Unlock()
			log = append(log, i)
		})
	}

	waitWithin(t, 2*time.Second, p.Wait)

	expected := make([]int, 20)
	for i := range expected {
		expected[i] = i
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, expected, log)
}

// TestPool_WaitReturnsWhenQuiescent ensures every thunk has run by the time Wait returns.
func TestPool_WaitReturnsWhenQuiescent(t *testing.T) {
	p := NewPool(4, Config{})
	defer p.Close()

	var counter atomic.Int32
	for i := 0; i < 100; i++ {
		p.Schedule(func() { counter.Add(1) })
	}

	waitWithin(t, 2*time.Second, p.Wait)
	require.Equal(t, int32(100), counter.Load())

	stats := p.Stats()
	require.Zero(t, stats.Outstanding)
	require.Zero(t, stats.Pending)
	require.Equal(t, uint64(100), stats.Scheduled)
	require.Equal(t, uint64(100), stats.Completed)
}

// TestPool_WaitOnIdlePool ensures Wait does not block when nothing was scheduled.
func TestPool_WaitOnIdlePool(t *testing.T) {
	p := NewPool(2, Config{})
	defer p.Close()

	waitWithin(t, time.Second, p.Wait)
}

// TestPool_WaitContextTimesOut ensures WaitContext returns the context error
// while work is still running, and nil once it has finished.
func TestPool_WaitContextTimesOut(t *testing.T) {
	p := NewPool(1, Config{})
	defer p.Close()

	release := make(chan struct{})
	p.Schedule(func() { <-release })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, p.WaitContext(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, p.WaitContext(context.Background()))
}

// TestPool_IdleReportsNoBusyWorkers ensures a worker claimed by the dispatcher
// while it waits for work is not reported as busy.
func TestPool_IdleReportsNoBusyWorkers(t *testing.T) {
	p := NewPool(2, Config{})
	defer p.Close()

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, p.Stats().Busy)

	release := make(chan struct{})
	p.Schedule(func() { <-release })
	require.Eventually(t, func() bool { return p.Stats().Busy == 1 }, time.Second, time.Millisecond)

	close(release)
	p.Wait()
	time.Sleep(20 * time.Millisecond)
	require.Zero(t, p.Stats().Busy)
}

// TestPool_GoexitRestartsWorker ensures a thunk that ends its goroutine with
// runtime.Goexit neither loses its worker nor blocks Wait.
func TestPool_GoexitRestartsWorker(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	buf := &syncBuffer{}
	logger := zerolog.New(buf)
	p := NewPool(1, Config{Logger: &logger})

	p.Schedule(runtime.Goexit)
	waitWithin(t, time.Second, p.Wait)

	var ran atomic.Bool
	p.Schedule(func() { ran.Store(true) })
	waitWithin(t, time.Second, p.Wait)

	require.True(t, ran.Load())
	stats := p.Stats()
	require.Equal(t, uint64(2), stats.Completed)
	require.Zero(t, stats.Outstanding)
	require.Contains(t, buf.String(), "restarting worker")

	require.NoError(t, p.Close())
}

// TestPool_StoppedClosesOnClose ensures the Stopped channel is only closed once
// the pool has stopped.
func TestPool_StoppedClosesOnClose(t *testing.T) {
	p := NewPool(2, Config{})

	select {
	case <-p.Stopped():
		t.Fatal("Stopped closed before Close")
	default:
	}

	require.NoError(t, p.Close())

	select {
	case <-p.Stopped():
	default:
		t.Fatal("Stopped not closed after Close")
	}
	require.Equal(t, StateStopped, p.State())
}

// TestPool_ReentrantScheduling ensures work scheduled from inside a thunk
// extends a concurrent Wait.
func TestPool_ReentrantScheduling(t *testing.T) {
	p := NewPool(2, Config{})
	defer p.Close()

	var first, second atomic.Bool
	p.Schedule(func() {
		time.Sleep(20 * time.Millisecond)
		first.Store(true)
		p.Schedule(func() {
			time.Sleep(20 * time.Millisecond)
			second.Store(true)
		})
	})

	waitWithin(t, 2*time.Second, p.Wait)
	require.True(t, first.Load())
	require.True(t, second.Load())
}

// TestPool_ConcurrentWaiters ensures every concurrent Wait call is released.
func TestPool_ConcurrentWaiters(t *testing.T) {
	p := NewPool(2, Config{})
	defer p.Close()

	release := make(chan struct{})
	p.Schedule(func() { <-release })

	wg := &sync.WaitGroup{}
	var returned atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Wait()
			returned.Add(1)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	require.Zero(t, returned.Load())

	close(release)
	waitWithin(t, 2*time.Second, wg.Wait)
	require.Equal(t, int32(4), returned.Load())
}

// TestPool_ExactlyOnce ensures every scheduled thunk runs exactly once, even
// with many concurrent schedulers.
func TestPool_ExactlyOnce(t *testing.T) {
	const schedulers, perScheduler = 8, 200

	p := NewPool(8, Config{})
	defer p.Close()

	runs := make([]atomic.Int32, schedulers*perScheduler)

	wg := &sync.WaitGroup{}
	for s := 0; s < schedulers; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perScheduler; i++ {
				idx := s*perScheduler + i
				p.Schedule(func() { runs[idx].Add(1) })
			}
		}()
	}
	wg.Wait()

	waitWithin(t, 5*time.Second, p.Wait)
	for idx := range runs {
		require.Equal(t, int32(1), runs[idx].Load(), "thunk %d", idx)
	}
}

// TestPool_PanicKeepsBookkeeping ensures a panicking thunk neither leaks its
// worker nor its permit nor the outstanding count.
func TestPool_PanicKeepsBookkeeping(t *testing.T) {
	var handled, stackLen atomic.Int32
	var lastPanic atomic.Value

	p := NewPool(1, Config{
		PanicHandler: func(recovered any, stack []byte) {
			handled.Add(1)
			lastPanic.Store(recovered)
			stackLen.Store(int32(len(stack)))
		},
	})
	defer p.Close()

	var after atomic.Int32
	for i := 0; i < 3; i++ {
		p.Schedule(func() { panic("boom") })
		p.Schedule(func() { after.Add(1) })
	}

	waitWithin(t, 2*time.Second, p.Wait)

	require.Equal(t, int32(3), handled.Load())
	require.Equal(t, "boom", lastPanic.Load())
	require.Positive(t, stackLen.Load())
	require.Equal(t, int32(3), after.Load())

	stats := p.Stats()
	require.Equal(t, uint64(3), stats.Panicked)
	require.Equal(t, uint64(6), stats.Completed)
	require.Zero(t, stats.Busy)
}

// TestPool_PanickingHandlerIsContained ensures a panic inside the panic handler
// does not stop the worker.
func TestPool_PanickingHandlerIsContained(t *testing.T) {
	p := NewPool(1, Config{
		PanicHandler: func(any, []byte) { panic("handler boom") },
	})
	defer p.Close()

	var ran atomic.Bool
	p.Schedule(func() { panic("boom") })
	p.Schedule(func() { ran.Store(true) })

	waitWithin(t, 2*time.Second, p.Wait)
	require.True(t, ran.Load())
}

// TestPool_GracefulShutdown ensures closing an idle pool joins every goroutine.
func TestPool_GracefulShutdown(t *testing.T) {
	for _, size := range []uint16{0, 1, 16} {
		t.Run(fmt.Sprintf("size=%d", size), func(t *testing.T) {
			defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

			p := NewPool(size, Config{})
			require.Equal(t, StateRunning, p.State())

			waitWithin(t, 2*time.Second, func() {
				assert.NoError(t, p.Close())
			})
			require.Equal(t, StateStopped, p.State())
		})
	}
}

// TestPool_CloseDrainsPendingWork ensures Close runs everything already
// scheduled before stopping.
func TestPool_CloseDrainsPendingWork(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(2, Config{})

	var counter atomic.Int32
	for i := 0; i < 30; i++ {
		p.Schedule(func() {
			time.Sleep(time.Millisecond)
			counter.Add(1)
		})
	}

	waitWithin(t, 5*time.Second, func() {
		assert.NoError(t, p.Close())
	})
	require.Equal(t, int32(30), counter.Load())
}

// TestPool_CloseIsIdempotent ensures repeated and concurrent Close calls are safe.
func TestPool_CloseIsIdempotent(t *testing.T) {
	p := NewPool(3, Config{})

	wg := &sync.WaitGroup{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Close())
		}()
	}
	waitWithin(t, 2*time.Second, wg.Wait)

	require.NoError(t, p.Close())
	require.Equal(t, StateStopped, p.State())
}

// TestPool_ScheduleAfterClosePanics ensures scheduling on a stopped pool is rejected.
func TestPool_ScheduleAfterClosePanics(t *testing.T) {
	p := NewPool(1, Config{})
	require.NoError(t, p.Close())

	require.PanicsWithValue(t, ErrPoolClosed, func() {
		p.Schedule(func() {})
	})
}

// TestPool_ScheduleNilPanics ensures a nil thunk is rejected.
func TestPool_ScheduleNilPanics(t *testing.T) {
	p := NewPool(1, Config{})
	defer p.Close()

	require.PanicsWithValue(t, ErrNilThunk, func() {
		p.Schedule(nil)
	})
}

// TestPool_ZeroSizeAcceptsButNeverRuns ensures a zero sized pool queues work
// without executing it, and that Close still stops it.
func TestPool_ZeroSizeAcceptsButNeverRuns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewPool(0, Config{})

	var ran atomic.Bool
	p.Schedule(func() { ran.Store(true) })

	time.Sleep(30 * time.Millisecond)
	require.False(t, ran.Load())

	stats := p.Stats()
	require.Equal(t, 1, stats.Pending)
	require.Equal(t, int64(1), stats.Outstanding)
	require.Zero(t, stats.Size)

	waitWithin(t, 2*time.Second, func() {
		assert.NoError(t, p.Close())
	})
	require.False(t, ran.Load())
}

// TestPool_ObserverSeesEveryThunk ensures the observer is told about each
// thunk's scheduling, start and finish.
func TestPool_ObserverSeesEveryThunk(t *testing.T) {
	obs := &recordingObserver{}
	p := NewPool(2, Config{Observer: obs})
	defer p.Close()

	for i := 0; i < 10; i++ {
		p.Schedule(func() {})
	}
	p.Schedule(func() { panic("boom") })

	waitWithin(t, 2*time.Second, p.Wait)

	require.Equal(t, int32(11), obs.scheduled.Load())
	require.Equal(t, int32(11), obs.started.Load())
	require.Equal(t, int32(11), obs.finished.Load())
	require.Equal(t, int32(1), obs.panicked.Load())
}

// TestPool_ObserverSchedulesBeforeStart ensures a gauge raised on Scheduled
// and lowered on Started never goes negative.
func TestPool_ObserverSchedulesBeforeStart(t *testing.T) {
	obs := &queueGaugeObserver{}
	p := NewPool(4, Config{Observer: obs})
	defer p.Close()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 250 {
				p.Schedule(func() {})
			}
		}()
	}
	wg.Wait()
	p.Wait()

	require.GreaterOrEqual(t, obs.min.Load(), int64(0))
	require.Zero(t, obs.queued.Load())
}

// TestPool_LogsRecoveredPanics ensures a recovered panic is written to the logger.
func TestPool_LogsRecoveredPanics(t *testing.T) {
	buf := &syncBuffer{}
	logger := zerolog.New(buf)
	p := NewPool(1, Config{Logger: &logger})
	defer p.Close()

	p.Schedule(func() { panic("logged boom") })
	waitWithin(t, 2*time.Second, p.Wait)

	require.Contains(t, buf.String(), "recovered panic in scheduled thunk")
	require.Contains(t, buf.String(), "logged boom")
}

func TestState_String(t *testing.T) {
	require.Equal(t, "running", StateRunning.String())
	require.Equal(t, "draining", StateDraining.String())
	require.Equal(t, "stopping", StateStopping.String())
	require.Equal(t, "stopped", StateStopped.String())
	require.Equal(t, "State(9)", State(9).String())
}

type recordingObserver struct {
	scheduled, started, finished, panicked atomic.Int32
}

func (o *recordingObserver) Scheduled(int) { o.scheduled.Add(1) }

func (o *recordingObserver) Started(int, time.Duration) { o.started.Add(1) }

func (o *recordingObserver) Finished(_ int, _ time.Duration, panicked bool) {
	o.finished.Add(1)
	if panicked {
		o.panicked.Add(1)
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

type queueGaugeObserver struct {
	queued atomic.Int64
	min    atomic.Int64
}

func (o *queueGaugeObserver) Scheduled(int) { o.queued.Add(1) }

func (o *queueGaugeObserver) Started(int, time.Duration) {
	v := o.queued.Add(-1)
	for {
		cur := o.min.Load()
		if v >= cur || o.min.CompareAndSwap(cur, v) {
			return
		}
	}
}

func (o *queueGaugeObserver) Finished(int, time.Duration, bool) {}
