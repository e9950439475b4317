// Package metrics exposes the activity of a threadpool.ThreadPool as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/pgvanniekerk/ezpool/pkg/threadpool"
	"github.com/prometheus/client_golang/prometheus"
)

var _ threadpool.Observer = (*Collector)(nil)
var _ prometheus.Collector = (*Collector)(nil)

// Collector is a threadpool.Observer that records what it observes in
// Prometheus metrics. Pass it to a pool with threadpool.WithObserver and
// register it once with a prometheus.Registerer.
//
// A Collector may observe several pools; their activity is summed.
//
// queue_length is raised when a thunk is scheduled, which happens before the
// thunk can start, and lowered when it starts, so it never goes negative.
// Thunks discarded by closing a pool without workers never start and stay
// counted.
type Collector struct {
	// scheduled counts every thunk handed to Schedule
	scheduled prometheus.Counter
	// completed counts every thunk that returned or panicked
	completed prometheus.Counter
	// panicked counts every thunk that panicked
	panicked prometheus.Counter
	// queueLength is the number of thunks scheduled but not yet started
	queueLength prometheus.Gauge
	// busyWorkers is the number of workers running a thunk
	busyWorkers prometheus.Gauge
	// queueWait is the time thunks spend queued before a worker starts them
	queueWait prometheus.Histogram
	// duration is the time thunks spend running
	duration prometheus.Histogram
}

// NewCollector creates a Collector whose metric names are prefixed with namespace.
func NewCollector(namespace string) *Collector {
	return &Collector{
		scheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thunks_scheduled_total",
			Help:      "Total number of thunks scheduled on the pool.",
		}),
		completed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thunks_completed_total",
			Help:      "Total number of thunks that finished, including those that panicked.",
		}),
		panicked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "thunks_panicked_total",
			Help:      "Total number of thunks that panicked.",
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Current number of thunks waiting for a worker.",
		}),
		busyWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "busy_workers",
			Help:      "Current number of workers running a thunk.",
		}),
		queueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_wait_seconds",
			Help:      "Time a thunk spends in the queue before execution in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "thunk_duration_seconds",
			Help:      "Duration of thunk execution in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Register registers every metric of the Collector with reg. It fails if any
// of them is already registered.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

//region threadpool.Observer

func (c *Collector) Scheduled(int) {
	c.scheduled.Inc()
	c.queueLength.Inc()
}

func (c *Collector) Started(_ int, queued time.Duration) {
	c.queueLength.Dec()
	c.busyWorkers.Inc()
	c.queueWait.Observe(queued.Seconds())
}

func (c *Collector) Finished(_ int, ran time.Duration, panicked bool) {
	c.busyWorkers.Dec()
	c.duration.Observe(ran.Seconds())
	c.completed.Inc()
	if panicked {
		c.panicked.Inc()
	}
}

//endregion

//region prometheus.Collector

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics() {
		m.Describe(ch)
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.metrics() {
		m.Collect(ch)
	}
}

//endregion

func (c *Collector) metrics() []prometheus.Collector {
	return []prometheus.Collector{
		c.scheduled,
		c.completed,
		c.panicked,
		c.queueLength,
		c.busyWorkers,
		c.queueWait,
		c.duration,
	}
}
