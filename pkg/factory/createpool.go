package factory

import (
	"fmt"
	"math"
	"runtime"

	"github.com/pgvanniekerk/ezpool/pkg/metrics"
	"github.com/pgvanniekerk/ezpool/pkg/threadpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// poolOptions represents configuration options for a ThreadPool, including worker count, logging, panic handling
// and metrics.
type poolOptions struct {
	workers      uint16
	logger       *zerolog.Logger
	panicHandler threadpool.PanicHandler
	registerer   prometheus.Registerer
	namespace    string
}

// poolOption defines a functional option for customizing a ThreadPool by modifying poolOptions.
type poolOption func(*poolOptions)

// WithWorkers configures the number of workers, and so the number of thunks that may run at once.
func WithWorkers(workers uint16) poolOption {
	return func(options *poolOptions) {
		options.workers = workers
	}
}

// WithLogger sets the logger the pool reports lifecycle events and recovered panics to.
func WithLogger(logger zerolog.Logger) poolOption {
	return func(options *poolOptions) {
		options.logger = &logger
	}
}

// WithPanicHandler sets the function called with every panic recovered from a thunk.
func WithPanicHandler(handler threadpool.PanicHandler) poolOption {
	return func(options *poolOptions) {
		options.panicHandler = handler
	}
}

// WithMetrics registers a metrics.Collector for the pool with registerer, naming its metrics under namespace.
func WithMetrics(registerer prometheus.Registerer, namespace string) poolOption {
	return func(options *poolOptions) {
		options.registerer = registerer
		options.namespace = namespace
	}
}

// CreatePool initializes a ThreadPool with customizable options and returns it, or an error if creation fails.
// It defaults the number of workers to the CPU core count. When metrics are requested, they are registered before
// any worker is started, so a failed registration never leaves a running pool behind.
func CreatePool(opts ...poolOption) (*threadpool.ThreadPool, error) {

	options := &poolOptions{}

	// Default workers to CPU core count
	options.workers = uint16(min(runtime.NumCPU(), math.MaxUint16))

	for idx := range opts {
		opts[idx](options)
	}

	var tpOpts []threadpool.Option
	if options.logger != nil {
		tpOpts = append(tpOpts, threadpool.WithLogger(*options.logger))
	}
	if options.panicHandler != nil {
		tpOpts = append(tpOpts, threadpool.WithPanicHandler(options.panicHandler))
	}

	if options.registerer != nil {
		collector := metrics.NewCollector(options.namespace)
		if err := collector.Register(options.registerer); err != nil {
			return nil, fmt.Errorf("register pool metrics: %w", err)
		}
		tpOpts = append(tpOpts, threadpool.WithObserver(collector))
	}

	return threadpool.New(options.workers, tpOpts...), nil
}
