// Package connection models the network lifecycle of the lamp as an explicit
// finite-state machine.
package connection

import "fmt"

// State is a phase of the connectivity lifecycle.
type State int32

const (
	Init State = iota
	Acquiring
	ConfigPortal
	Operational
	Recovering
	Fault
)

var stateNames = [...]string{
	Init:         "init",
	Acquiring:    "acquiring",
	ConfigPortal: "config_portal",
	Operational:  "operational",
	Recovering:   "recovering",
	Fault:        "fault",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Event drives a transition.
type Event int

const (
	BootComplete Event = iota
	ConnectSuccess
	ConnectFailed
	CredentialsSubmitted
	LinkDropped
	UnrecoverableError
)

var eventNames = [...]string{
	BootComplete:         "boot_complete",
	ConnectSuccess:       "connect_success",
	ConnectFailed:        "connect_failed",
	CredentialsSubmitted: "credentials_submitted",
	LinkDropped:          "link_dropped",
	UnrecoverableError:   "unrecoverable_error",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("Event(%d)", int(e))
}

// transitions is the complete table. Anything missing is illegal.
// Fault has no outgoing edges; only Force leaves it.
var transitions = map[State]map[Event]State{
	Init: {
		BootComplete: Acquiring,
	},
	Acquiring: {
		ConnectSuccess: Operational,
		ConnectFailed:  ConfigPortal,
	},
	ConfigPortal: {
		CredentialsSubmitted: Acquiring,
		ConnectSuccess:       Operational,
	},
	Operational: {
		LinkDropped:        Recovering,
		UnrecoverableError: Fault,
	},
	Recovering: {
		ConnectSuccess: Operational,
		ConnectFailed:  ConfigPortal,
	},
}

// Next returns the state event leads to from, and false if the event is
// illegal in that state.
func Next(from State, event Event) (State, bool) {
	to, ok := transitions[from][event]
	return to, ok
}
