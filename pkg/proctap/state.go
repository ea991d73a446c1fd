package proctap

import (
	"fmt"
)

// State is the lifecycle phase of a Session.
//
// The allowed transitions are:
//
//	Idle -> Starting -> Capturing -> Stopping -> Stopped
//	Starting/Capturing -> Error
//
// Stopped and Error are terminal.
type State int

const (
	StateIdle = State(iota)
	StateStarting
	StateCapturing
	StateStopping
	StateStopped
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("unexpected_state_%d", int(s))
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateError
}
