package threadpool

import (
	"github.com/pgvanniekerk/ezpool/internal/pool"
)

// ErrPoolClosed is the value Schedule panics with when the pool's shutdown has
// already begun. It indicates a programming error: work must not be scheduled
// on a pool after, or concurrently with, Close.
//
// It can be identified after recovering:
//
//	defer func() {
//	    if r := recover(); r == threadpool.ErrPoolClosed {
//	        log.Println("scheduled on a closed pool")
//	    }
//	}()
var ErrPoolClosed = pool.ErrPoolClosed

// ErrNilThunk is the value Schedule panics with when given a nil Thunk.
var ErrNilThunk = pool.ErrNilThunk
