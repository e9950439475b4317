package pool

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgvanniekerk/ezpool/internal/availability"
	"github.com/pgvanniekerk/ezpool/internal/barrier"
	"github.com/pgvanniekerk/ezpool/internal/concurrency"
	"github.com/pgvanniekerk/ezpool/internal/queue"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Pool executes thunks on a fixed number of worker goroutines.
// Thunks are queued in FIFO order and handed out by a single dispatcher
// goroutine to whichever worker is idle, so that no more than size thunks ever
// run at once. Every piece of shared state has its own guard; there is no lock
// serialising unrelated workers.
type Pool struct {

	// size is the number of workers.
	size int

	// queue holds thunks that have been scheduled but not yet dispatched.
	queue *queue.Queue

	// tracker records which workers are idle. The dispatcher claims, workers release.
	tracker *availability.Tracker

	// limiter bounds the number of workers executing at once. The dispatcher
	// acquires a permit before each assignment and the worker releases it afterwards.
	limiter *concurrency.Limiter

	// slots holds one mailbox per worker, indexed by worker id.
	slots []*concurrency.Slot

	// outstanding counts thunks that have been scheduled and have not finished.
	outstanding *barrier.Barrier

	// shutdown is set once, when Close moves the pool into StateStopping.
	// Workers woken without a thunk exit when they observe it.
	shutdown *atomic.Bool

	// state is the current lifecycle State.
	state *atomic.Int32

	// actors runs the dispatcher and the workers and joins them on Close.
	actors *errgroup.Group

	// closeMutex serialises Close so that concurrent callers all return after
	// the pool has stopped.
	closeMutex *sync.Mutex

	// logger receives lifecycle and panic events.
	logger zerolog.Logger

	// panicHandler, if not nil, is given every panic recovered from a thunk.
	panicHandler PanicHandler

	// observer is notified as thunks move through the pool.
	observer Observer

	// running is the number of workers currently executing a thunk.
	running *atomic.Int32

	// stopped is closed once Close has joined every actor.
	stopped chan struct{}

	// scheduled, completed and panicked are running totals for Stats.
	scheduled *atomic.Uint64
	completed *atomic.Uint64
	panicked  *atomic.Uint64
}

// Stats is a point in time snapshot of a Pool.
type Stats struct {
	Size        int
	Busy        int
	Pending     int
	Outstanding int64
	Scheduled   uint64
	Completed   uint64
	Panicked    uint64
	State       State
}

//region Implementation

// Schedule queues thunk for execution and returns without waiting for it to run.
// It is safe to call from any goroutine, including from inside a running thunk.
//
// Schedule panics with ErrNilThunk for a nil thunk, and with ErrPoolClosed once
// Close has moved past draining.
func (p *Pool) Schedule(thunk func()) {

	if thunk == nil {
		panic(ErrNilThunk)
	}

	if p.shutdown.Load() {
		panic(ErrPoolClosed)
	}

	// Count and report the thunk before it becomes visible to the dispatcher,
	// so neither the barrier nor the observer can see it start first.
	p.outstanding.Add()
	p.scheduled.Add(1)
	p.observer.Scheduled(p.queue.Len() + 1)

	p.queue.Push(thunk)
}

// Wait blocks until every scheduled thunk has finished, including thunks
// scheduled while Wait is blocked.
func (p *Pool) Wait() {
	p.outstanding.Wait()
}

// WaitContext is like Wait but gives up when ctx is done, returning the
// context's error. Giving up does not affect the outstanding work.
func (p *Pool) WaitContext(ctx context.Context) error {
	return p.outstanding.WaitContext(ctx)
}

// Close drains the pool and then stops the dispatcher and every worker.
// It blocks until all of them have exited. Close is idempotent; concurrent
// callers block until the first call has finished.
//
// Close must not be called from inside a thunk running on the same pool, and
// must not race with Schedule calls from other goroutines.
func (p *Pool) Close() error {
	p.closeMutex.Lock()
	defer p.closeMutex.Unlock()

	if p.State() == StateStopped {
		return nil
	}

	p.setState(StateDraining)

	// Work queued on a pool without workers can never finish, so there is
	// nothing to drain.
	if p.size > 0 {
		p.outstanding.Wait()
	}

	p.setState(StateStopping)
	p.shutdown.Store(true)

	// Wake every actor so each one observes the shutdown flag.
	p.queue.Close()
	p.limiter.Close()
	for _, slot := range p.slots {
		slot.Pulse()
	}

	err := p.actors.Wait()

	p.setState(StateStopped)
	close(p.stopped)

	if err != nil {
		p.logger.Error().Err(err).Msg("pool stopped with error")
	}
	return err
}

// Stopped returns a channel that is closed once Close has stopped every actor.
func (p *Pool) Stopped() <-chan struct{} {
	return p.stopped
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Stats returns a snapshot of the pool's counters.
// The fields are read independently and may be mutually inconsistent while work is in flight.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:        p.size,
		Busy:        int(p.running.Load()),
		Pending:     p.queue.Len(),
		Outstanding: p.outstanding.Count(),
		Scheduled:   p.scheduled.Load(),
		Completed:   p.completed.Load(),
		Panicked:    p.panicked.Load(),
		State:       p.State(),
	}
}

//endregion

//region Helpers

// dispatch is the dispatcher loop. It is the only goroutine that moves a thunk
// from the queue into a worker's slot.
func (p *Pool) dispatch() error {
	p.logger.Debug().Msg("dispatcher started")
	defer p.logger.Debug().Msg("dispatcher exited")

	for {

		// Wait for the budget to run one more thunk. This only fails once
		// the limiter is closed during shutdown.
		if err := p.limiter.Acquire(context.Background()); err != nil {
			return nil
		}

		id, ok := p.tracker.Claim()
		if !ok {
			p.limiter.Release()
			return errNoIdleWorker
		}

		entry, ok := p.queue.Pop()
		if !ok {
			// Closed and empty: give back what was claimed and stop.
			p.tracker.Release(id)
			p.limiter.Release()
			return nil
		}

		p.observer.Started(id, time.Since(entry.Enqueued))
		p.slots[id].Assign(entry.Thunk)
	}
}

// work is the loop run by worker id. It waits on its own slot and runs one
// thunk at a time.
func (p *Pool) work(id int) error {
	logger := p.logger.With().Int("worker", id).Logger()
	logger.Debug().Msg("worker started")
	defer logger.Debug().Msg("worker exited")

	// A thunk that calls runtime.Goexit unwinds through this loop after its
	// bookkeeping is done. Its slot is still in use, so start a replacement.
	exited := false
	defer func() {
		if exited || p.shutdown.Load() {
			return
		}
		logger.Error().Msg("thunk exited its worker goroutine, restarting worker")
		p.actors.Go(func() error {
			return p.work(id)
		})
	}()

	slot := p.slots[id]
	for {
		thunk := slot.Await()
		if thunk == nil {
			if p.shutdown.Load() {
				exited = true
				return nil
			}
			continue
		}

		p.execute(id, thunk)
	}
}

// execute runs thunk on worker id. Whether the thunk returns, panics or exits
// its goroutine, the worker is marked idle, its permit is released and the outstanding count is
// decremented, in that order.
func (p *Pool) execute(id int, thunk func()) {
	start := time.Now()
	panicked := false
	p.running.Add(1)

	defer func() {
		if r := recover(); r != nil {
			panicked = true
			p.recovered(id, r, debug.Stack())
		}

		p.running.Add(-1)
		p.tracker.Release(id)
		p.limiter.Release()

		p.completed.Add(1)
		p.observer.Finished(id, time.Since(start), panicked)

		p.outstanding.Done()
	}()

	thunk()
}

// recovered records a panic raised by a thunk on worker id.
func (p *Pool) recovered(id int, r any, stack []byte) {
	p.panicked.Add(1)

	p.logger.Error().
		Int("worker", id).
		Interface("panic", r).
		Bytes("stack", stack).
		Msg("recovered panic in scheduled thunk")

	if p.panicHandler == nil {
		return
	}

	// A panicking handler must not take the worker down with it.
	defer func() {
		if hr := recover(); hr != nil {
			p.logger.Error().Int("worker", id).Interface("panic", hr).Msg("panic handler panicked")
		}
	}()
	p.panicHandler(r, stack)
}

func (p *Pool) setState(s State) {
	p.state.Store(int32(s))
	p.logger.Debug().Stringer("state", s).Msg("pool state changed")
}

//endregion

//region Constructor

// NewPool allocates a pool of size workers and starts its dispatcher and
// workers before returning.
//
// A size of zero is permitted: such a pool accepts work but never runs it.
// Wait on it only returns while nothing has been scheduled, and Close discards
// whatever is still queued.
func NewPool(size uint16, cfg Config) *Pool {

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	var observer Observer = noopObserver{}
	if cfg.Observer != nil {
		observer = cfg.Observer
	}

	slots := make([]*concurrency.Slot, size)
	for i := range slots {
		slots[i] = concurrency.NewSlot()
	}

	p := &Pool{
		size:         int(size),
		queue:        queue.New(),
		tracker:      availability.New(int(size)),
		limiter:      concurrency.NewLimiter(size),
		slots:        slots,
		outstanding:  barrier.New(),
		shutdown:     &atomic.Bool{},
		state:        &atomic.Int32{},
		actors:       &errgroup.Group{},
		closeMutex:   &sync.Mutex{},
		logger:       logger.With().Str("component", "threadpool").Int("workers", int(size)).Logger(),
		panicHandler: cfg.PanicHandler,
		observer:     observer,
		scheduled:    &atomic.Uint64{},
		completed:    &atomic.Uint64{},
		panicked:     &atomic.Uint64{},
		running:      &atomic.Int32{},
		stopped:      make(chan struct{}),
	}

	p.actors.Go(p.dispatch)
	for id := range slots {
		p.actors.Go(func() error {
			return p.work(id)
		})
	}

	return p
}

//endregion
