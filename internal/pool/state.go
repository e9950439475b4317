package pool

import "fmt"

// State is the lifecycle phase of a Pool. A pool only ever moves forward
// through the states in declaration order.
type State int32

const (
	// StateRunning accepts and executes work.
	StateRunning State = iota

	// StateDraining is entered by Close; it waits for all outstanding work to finish.
	StateDraining

	// StateStopping has set the shutdown flag and is waking and joining every actor.
	StateStopping

	// StateStopped has joined the dispatcher and all workers.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
