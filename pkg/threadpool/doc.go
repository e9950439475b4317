// Package threadpool provides a fixed-size pool of worker goroutines that run
// argument-less functions, called thunks, with bounded concurrency.
//
// A ThreadPool is created with a number of workers N. Any goroutine may hand it
// a thunk with Schedule, which never waits for the thunk to run. Thunks are
// queued in first-in first-out order and started in that order as workers become
// idle; at no point are more than N thunks running. Wait blocks until every
// thunk scheduled so far, and every thunk those thunks schedule in turn, has
// finished.
//
// # Overview
//
// Key features:
//   - A fixed number of workers, started once by New and stopped once by Close
//   - FIFO dispatch of scheduled thunks
//   - Re-entrant scheduling: a running thunk may Schedule more work on its own pool
//   - A quiescence barrier (Wait and WaitContext) that may be used any number of times
//   - Graceful shutdown that finishes all outstanding work before the workers exit
//   - Panic containment: a panicking thunk is recovered, logged and reported
//   - Structured logging through zerolog and an Observer hook for metrics
//
// # Usage
//
//	package main
//
//	import (
//		"fmt"
//		"sync/atomic"
//
//		"github.com/pgvanniekerk/ezpool/pkg/threadpool"
//	)
//
//	func main() {
//		pool := threadpool.New(4)
//		defer pool.Close()
//
//		var total atomic.Int64
//		for i := 1; i <= 100; i++ {
//			pool.Schedule(func() {
//				total.Add(int64(i))
//			})
//		}
//
//		pool.Wait()
//		fmt.Println(total.Load()) // 5050
//	}
//
// # Nested Scheduling
//
// Thunks may schedule further thunks, on the same pool or on another one. A
// common shape is a pool of feed loaders whose thunks fan out onto a second
// pool of article processors:
//
//	feeds := threadpool.New(4)
//	articles := threadpool.New(16)
//
//	for _, url := range feedURLs {
//		feeds.Schedule(func() {
//			for _, item := range load(url) {
//				articles.Schedule(func() { process(item) })
//			}
//		})
//	}
//
//	feeds.Wait()
//	articles.Wait()
//
// Waiting on feeds first matters: once it returns, no more articles can be
// scheduled, so the second Wait sees the whole workload.
//
// # Panics
//
// A thunk that panics does not bring down its worker or the pool. The panic is
// recovered, logged at error level with its stack, counted in Stats, and given
// to the handler set with WithPanicHandler, if any. The thunk still counts as
// finished for Wait.
//
// # Shutdown
//
// Close waits for all outstanding work to finish, then stops the dispatcher and
// every worker and waits for them to exit. Scheduling on a pool after Close has
// started is a programming error and panics with ErrPoolClosed. Close must not
// be called from inside one of the pool's own thunks.
//
// # Best Practices
//
// 1. Size the pool for the work it runs:
//   - CPU-bound thunks: typically runtime.NumCPU() workers
//   - I/O-bound thunks: may use more workers than CPU cores
//
// 2. Never block a thunk on Wait of its own pool. The thunk itself is
// outstanding, so the wait can never end.
//
// 3. Prefer WaitContext when a caller has a deadline:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
//	defer cancel()
//
//	if err := pool.WaitContext(ctx); err != nil {
//	    log.Printf("work still outstanding: %v", err)
//	}
//
// 4. Use the factory package to construct a pool wired for Prometheus metrics.
package threadpool
