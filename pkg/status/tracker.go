package status

import (
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/connection"
)

// Tracker mirrors the machine's state into an atomic the render lane reads.
type Tracker struct {
	state       atomic.Int32
	transitions atomic.Uint64
	log         zerolog.Logger
}

var _ connection.Hooks = (*Tracker)(nil)

// NewTracker creates a tracker starting at initial.
func NewTracker(initial connection.State, log zerolog.Logger) *Tracker {
	t := &Tracker{log: log}
	t.state.Store(int32(initial))
	return t
}

func (t *Tracker) OnEnter(s connection.State) {
	t.state.Store(int32(s))
	t.transitions.Add(1)
	t.log.Debug().Str("indicator_state", s.String()).Msg("Status indicator follows state")
}

func (t *Tracker) OnExit(connection.State) {}

// State returns the last entered state.
func (t *Tracker) State() connection.State {
	return connection.State(t.state.Load())
}

// Transitions returns how many states were entered.
func (t *Tracker) Transitions() uint64 {
	return t.transitions.Load()
}
