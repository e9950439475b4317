package threadpool

import (
	"time"

	"github.com/pgvanniekerk/ezpool/internal/pool"
	"github.com/rs/zerolog"
)

// Observer is notified as thunks move through a ThreadPool. Its methods are
// called concurrently from the scheduling goroutines, the dispatcher and the
// workers, and must return quickly.
type Observer = pool.Observer

// PanicHandler receives the value recovered from a panicking thunk together
// with the stack of the worker that ran it.
type PanicHandler = pool.PanicHandler

// options holds the optional configuration of a ThreadPool.
type options struct {
	logger       *zerolog.Logger
	panicHandler PanicHandler
	observers    []Observer
}

// Option configures a ThreadPool at construction.
type Option func(*options)

// WithLogger sets the logger for lifecycle debug events and recovered panics.
// Without it the pool logs nothing.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &logger
	}
}

// WithPanicHandler sets a function to be called with every panic recovered
// from a thunk. The handler runs on the worker that recovered the panic.
func WithPanicHandler(handler PanicHandler) Option {
	return func(o *options) {
		o.panicHandler = handler
	}
}

// WithObserver adds an Observer. It may be given more than once; observers are
// notified in the order they were added.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// config converts the collected options into the pool's configuration.
func (o *options) config() pool.Config {
	cfg := pool.Config{
		Logger:       o.logger,
		PanicHandler: o.panicHandler,
	}

	switch len(o.observers) {
	case 0:
	case 1:
		cfg.Observer = o.observers[0]
	default:
		cfg.Observer = observers(o.observers)
	}

	return cfg
}

// observers fans every notification out to each of its members in order.
type observers []Observer

func (obs observers) Scheduled(pending int) {
	for _, o := range obs {
		o.Scheduled(pending)
	}
}

func (obs observers) Started(worker int, queued time.Duration) {
	for _, o := range obs {
		o.Started(worker, queued)
	}
}

func (obs observers) Finished(worker int, ran time.Duration, panicked bool) {
	for _, o := range obs {
		o.Finished(worker, ran, panicked)
	}
}
