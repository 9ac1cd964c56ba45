package connection

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/surflamp/pkg/clock"
)

// recorder captures hook calls as "exit:x" / "enter:y".
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) OnEnter(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "enter:"+s.String())
}

func (r *recorder) OnExit(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "exit:"+s.String())
}

func newMachine() (*Machine, *clock.Fake) {
	clk := clock.NewFake(time.Time{})
	return New(clk, zerolog.Nop()), clk
}

var allStates = []State{Init, Acquiring, ConfigPortal, Operational, Recovering, Fault}
var allEvents = []Event{BootComplete, ConnectSuccess, ConnectFailed, CredentialsSubmitted, LinkDropped, UnrecoverableError}

func TestNext_Table(t *testing.T) {
	tests := []struct {
		from  State
		event Event
		to    State
	}{
		{Init, BootComplete, Acquiring},
		{Acquiring, ConnectSuccess, Operational},
		{Acquiring, ConnectFailed, ConfigPortal},
		{ConfigPortal, CredentialsSubmitted, Acquiring},
		{ConfigPortal, ConnectSuccess, Operational},
		{Operational, LinkDropped, Recovering},
		{Operational, UnrecoverableError, Fault},
		{Recovering, ConnectSuccess, Operational},
		{Recovering, ConnectFailed, ConfigPortal},
	}

	legal := 0
	for _, tt := range tests {
		got, ok := Next(tt.from, tt.event)
		require.True(t, ok, "%s + %s", tt.from, tt.event)
		assert.Equal(t, tt.to, got, "%s + %s", tt.from, tt.event)
		legal++
	}

	// Every other combination is illegal
	count := 0
	for _, s := range allStates {
		for _, e := range allEvents {
			if _, ok := Next(s, e); ok {
				count++
			}
		}
	}
	assert.Equal(t, legal, count)
}

func TestMachine_LinkDroppedAlwaysRecovers(t *testing.T) {
	m, _ := newMachine()
	m.Force(Operational)

	require.True(t, m.Fire(LinkDropped))
	assert.Equal(t, Recovering, m.State())

	require.True(t, m.Fire(ConnectFailed))
	assert.Equal(t, ConfigPortal, m.State())
}

func TestMachine_IllegalEventIsNoop(t *testing.T) {
	m, _ := newMachine()
	rec := &recorder{}
	m.Subscribe(rec)

	assert.False(t, m.Fire(ConnectSuccess))
	assert.False(t, m.Fire(LinkDropped))
	assert.Equal(t, Init, m.State())
	assert.Empty(t, rec.calls)
}

func TestMachine_FaultIsSticky(t *testing.T) {
	m, _ := newMachine()
	m.Force(Operational)
	require.True(t, m.Fire(UnrecoverableError))

	for _, e := range allEvents {
		assert.False(t, m.Fire(e), "event %s", e)
		assert.Equal(t, Fault, m.State())
	}

	m.Force(Init)
	assert.Equal(t, Init, m.State())
}

func TestMachine_HooksOrder(t *testing.T) {
	m, _ := newMachine()
	rec := &recorder{}
	m.Subscribe(rec)

	m.Fire(BootComplete)
	m.Fire(ConnectFailed)

	assert.Equal(t, []string{
		"exit:init", "enter:acquiring",
		"exit:acquiring", "enter:config_portal",
	}, rec.calls)
}

func TestMachine_HookFuncs(t *testing.T) {
	m, _ := newMachine()
	var entered []State
	m.Subscribe(HookFuncs{Enter: func(s State) { entered = append(entered, s) }})

	m.Fire(BootComplete)
	m.Fire(ConnectSuccess)
	assert.Equal(t, []State{Acquiring, Operational}, entered)
}

func TestMachine_EnteredAt(t *testing.T) {
	m, clk := newMachine()
	assert.Equal(t, uint64(0), m.EnteredAt())

	clk.Advance(3 * time.Second)
	m.Fire(BootComplete)
	assert.Equal(t, uint64(3000), m.EnteredAt())

	clk.Advance(time.Second)
	m.Fire(LinkDropped) // illegal, keeps timestamp
	assert.Equal(t, uint64(3000), m.EnteredAt())
}

func TestMachine_ConcurrentReaders(t *testing.T) {
	m, _ := newMachine()
	done := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_ = m.State().String()
				}
			}
		}()
	}

	for i := 0; i < 100; i++ {
		m.Force(Operational)
		m.Fire(LinkDropped)
		m.Fire(ConnectSuccess)
	}
	close(done)
	wg.Wait()
	assert.Equal(t, Operational, m.State())
}

func TestStrings(t *testing.T) {
	assert.Equal(t, "config_portal", ConfigPortal.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.Equal(t, "credentials_submitted", CredentialsSubmitted.String())
	assert.Equal(t, "Event(-1)", fmt.Sprint(Event(-1)))
}
