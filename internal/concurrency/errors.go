package concurrency

import "errors"

var ErrLimiterClosed = errors.New("limiter has been closed")
var ErrReleaseExceedsMaxLimit = errors.New("release exceeds acquired permits")
var ErrSlotOccupied = errors.New("slot already holds a thunk")
