package threadpool

// Thunk is a unit of work: a function that takes no arguments and returns
// nothing. Any inputs are captured by the closure and any results are written
// somewhere the caller can reach.
//
// # Thread Safety
//
// Thunks run concurrently on different workers. Anything a thunk shares with
// other thunks or with the scheduling goroutine must be synchronised by the
// caller.
//
// # Examples
//
// Capturing inputs and writing results:
//
//	results := make([]int, len(inputs))
//	for i, in := range inputs {
//	    pool.Schedule(func() {
//	        results[i] = square(in)
//	    })
//	}
//	pool.Wait()
//
// Scheduling more work from inside a thunk:
//
//	pool.Schedule(func() {
//	    for _, child := range children {
//	        pool.Schedule(func() { visit(child) })
//	    }
//	})
type Thunk func()
