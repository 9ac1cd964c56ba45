package connection

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/clock"
)

// Hooks observe state changes. The status indicator implements it; the
// machine knows nothing about displays. Hooks run synchronously on the
// goroutine that fired the event and must not call Fire or Force.
type Hooks interface {
	OnEnter(s State)
	OnExit(s State)
}

// HookFuncs adapts plain functions to Hooks. Nil fields are skipped.
type HookFuncs struct {
	Enter func(s State)
	Exit  func(s State)
}

func (h HookFuncs) OnEnter(s State) {
	if h.Enter != nil {
		h.Enter(s)
	}
}

func (h HookFuncs) OnExit(s State) {
	if h.Exit != nil {
		h.Exit(s)
	}
}

var _ Hooks = HookFuncs{}

// Machine is the single authority on the connectivity phase.
// State may be read from any goroutine; transitions are serialized.
type Machine struct {
	clk clock.Clock
	log zerolog.Logger

	state     atomic.Int32
	enteredAt atomic.Uint64

	mu    sync.Mutex
	hooks []Hooks
}

// New creates a machine in Init.
func New(clk clock.Clock, log zerolog.Logger) *Machine {
	m := &Machine{clk: clk, log: log}
	m.state.Store(int32(Init))
	m.enteredAt.Store(clk.NowMs())
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	return State(m.state.Load())
}

// EnteredAt returns the clock time in milliseconds when the current state was entered.
func (m *Machine) EnteredAt() uint64 {
	return m.enteredAt.Load()
}

// Subscribe registers hooks. The current state is not replayed.
func (m *Machine) Subscribe(h Hooks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, h)
}

// Fire applies event. Illegal events are logged and ignored; Fire reports
// whether a transition happened.
func (m *Machine) Fire(event Event) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	from := m.State()
	to, ok := Next(from, event)
	if !ok {
		m.log.Warn().
			Str("state", from.String()).
			Str("event", event.String()).
			Msg("Ignoring illegal state transition")
		return false
	}
	m.transition(from, to, event.String())
	return true
}

// Force moves to s regardless of the table. This is the only way out of Fault.
func (m *Machine) Force(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.transition(m.State(), s, "forced")
}

// transition runs exit and enter hooks around the state change. Caller holds mu.
func (m *Machine) transition(from, to State, cause string) {
	for _, h := range m.hooks {
		h.OnExit(from)
	}
	m.state.Store(int32(to))
	m.enteredAt.Store(m.clk.NowMs())
	m.log.Info().
		Str("from", from.String()).
		Str("to", to.String()).
		Str("cause", cause).
		Msg("State changed")
	for _, h := range m.hooks {
		h.OnEnter(to)
	}
}
