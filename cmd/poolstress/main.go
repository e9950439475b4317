// Command poolstress drives two thread pools with a nested fan-out workload:
// a pool of feed loaders whose thunks schedule article processors onto a second
// pool. It reports both pools' statistics when the workload has drained and can
// serve Prometheus metrics while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"hash/fnv"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pgvanniekerk/ezpool/pkg/factory"
	"github.com/pgvanniekerk/ezpool/pkg/threadpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	workers := flag.Uint("workers", 8, "Number of article workers")
	feeds := flag.Int("feeds", 16, "Number of feeds to load")
	articles := flag.Int("articles", 64, "Number of articles per feed")
	work := flag.Duration("work", 2*time.Millisecond, "Simulated time spent on each article")
	logLevel := flag.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve /metrics on, e.g. :9090 (disabled when empty)")
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -log-level: %s\n", err)
		os.Exit(2)
	}
	if *workers > 1<<16-1 {
		fmt.Fprintf(os.Stderr, "invalid -workers: %d exceeds %d\n", *workers, 1<<16-1)
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()

	if err := run(logger, config{
		workers:     uint16(*workers),
		feeds:       *feeds,
		articles:    *articles,
		work:        *work,
		metricsAddr: *metricsAddr,
	}); err != nil {
		logger.Error().Err(err).Msg("poolstress failed")
		os.Exit(1)
	}
}

type config struct {
	workers     uint16
	feeds       int
	articles    int
	work        time.Duration
	metricsAddr string
}

func run(logger zerolog.Logger, cfg config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()

	panicHandler := func(r any, _ []byte) {
		logger.Warn().Interface("panic", r).Msg("article processor panicked")
	}

	feedPool, err := factory.CreatePool(
		factory.WithWorkers(max(cfg.workers/4, 1)),
		factory.WithLogger(logger.With().Str("pool", "feeds").Logger()),
		factory.WithPanicHandler(panicHandler),
		factory.WithMetrics(prometheus.WrapRegistererWith(prometheus.Labels{"pool": "feeds"}, reg), "poolstress"),
	)
	if err != nil {
		return fmt.Errorf("create feed pool: %w", err)
	}

	articlePool, err := factory.CreatePool(
		factory.WithWorkers(cfg.workers),
		factory.WithLogger(logger.With().Str("pool", "articles").Logger()),
		factory.WithPanicHandler(panicHandler),
		factory.WithMetrics(prometheus.WrapRegistererWith(prometheus.Labels{"pool": "articles"}, reg), "poolstress"),
	)
	if err != nil {
		_ = feedPool.Close()
		return fmt.Errorf("create article pool: %w", err)
	}

	// Feeds stop first: once they are drained no more articles can arrive.
	components := []runnable{feedPool, articlePool}
	lifecycle := &errgroup.Group{}
	for _, c := range components {
		lifecycle.Go(c.Run)
	}
	defer func() {
		if err := stopAll(logger, components...); err != nil {
			logger.Error().Err(err).Msg("pools did not stop cleanly")
			return
		}
		if err := lifecycle.Wait(); err != nil {
			logger.Error().Err(err).Msg("pool exited with error")
		}
	}()

	if cfg.metricsAddr != "" {
		srv := &http.Server{
			Addr:    cfg.metricsAddr,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		}
		go func() {
			logger.Info().Str("addr", cfg.metricsAddr).Msg("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var digest atomic.Uint64
	start := time.Now()

	for feed := range cfg.feeds {
		feedPool.Schedule(func() {
			for article := range cfg.articles {
				articlePool.Schedule(func() {
					digest.Add(processArticle(feed, article, cfg.work))
				})
			}
			logger.Debug().Int("feed", feed).Int("articles", cfg.articles).Msg("feed loaded")
		})
	}

	// Every article is scheduled by a feed thunk, so the article pool only
	// holds the whole workload once the feed pool is quiescent.
	if err := waitAll(ctx, feedPool, articlePool); err != nil {
		return err
	}

	elapsed := time.Since(start)
	report(logger, "feeds", feedPool.Stats())
	report(logger, "articles", articlePool.Stats())
	logger.Info().
		Dur("elapsed", elapsed).
		Uint64("digest", digest.Load()).
		Float64("articles_per_second", float64(cfg.feeds*cfg.articles)/elapsed.Seconds()).
		Msg("workload drained")

	if cfg.metricsAddr != "" {
		logger.Info().Msg("waiting for interrupt before shutting down the metrics server")
		<-ctx.Done()
	}

	return nil
}

// runnable is the lifecycle shared by ezapp Runnables and threadpool.ThreadPool.
type runnable interface {
	Run() error
	Stop(ctx context.Context) error
}

// stopAll stops each component in turn, all within shutdownTimeout.
func stopAll(logger zerolog.Logger, components ...runnable) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for i, c := range components {
		if err := c.Stop(ctx); err != nil {
			return fmt.Errorf("stop component %d: %w", i, err)
		}
		logger.Debug().Int("component", i).Msg("component stopped")
	}
	return nil
}

// waitAll waits on each pool in turn, giving up when ctx is done.
func waitAll(ctx context.Context, pools ...*threadpool.ThreadPool) error {
	for _, pool := range pools {
		if err := pool.WaitContext(ctx); err != nil {
			return fmt.Errorf("interrupted before the workload drained: %w", err)
		}
	}
	return nil
}

// processArticle stands in for fetching and indexing one article.
func processArticle(feed, article int, work time.Duration) uint64 {
	time.Sleep(work)

	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "feed-%d/article-%d", feed, article)
	return h.Sum64()
}

func report(logger zerolog.Logger, name string, stats threadpool.Stats) {
	logger.Info().
		Str("pool", name).
		Int("workers", stats.Size).
		Uint64("scheduled", stats.Scheduled).
		Uint64("completed", stats.Completed).
		Uint64("panicked", stats.Panicked).
		Stringer("state", stats.State).
		Msg("pool stats")
}
