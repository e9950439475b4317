package concurrency

import (
	"sync"

	"golang.org/x/sys/cpu"
)

// Slot is a single worker's mailbox. It holds at most one thunk and a binary
// wake signal. The writer stores the thunk before raising the signal and the
// reader only takes the thunk after observing it, so the handoff is ordered by
// the channel operation.
//
// Slots are padded to whole cache lines because each one is written by the
// dispatcher and read by a different worker goroutine.
type Slot struct {
	_ cpu.CacheLinePad

	mu    sync.Mutex
	thunk func()
	wake  chan struct{}

	_ cpu.CacheLinePad
}

// Assign stores thunk in the slot and then wakes the owning worker.
// It panics with ErrSlotOccupied if the previous thunk has not been taken yet.
func (s *Slot) Assign(thunk func()) {
	s.mu.Lock()
	if s.thunk != nil {
		s.mu.Unlock()
		panic(ErrSlotOccupied)
	}
	s.thunk = thunk
	s.mu.Unlock()

	s.wake <- struct{}{}
}

// Await blocks until the slot is signalled and takes its thunk.
// The result is nil when the signal came from Pulse rather than Assign.
func (s *Slot) Await() func() {
	<-s.wake

	s.mu.Lock()
	defer s.mu.Unlock()

	thunk := s.thunk
	s.thunk = nil
	return thunk
}

// Pulse raises the wake signal without storing a thunk. A pending signal is
// left as is, so Pulse never blocks.
func (s *Slot) Pulse() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// NewSlot returns an empty Slot.
func NewSlot() *Slot {
	return &Slot{
		wake: make(chan struct{}, 1),
	}
}
