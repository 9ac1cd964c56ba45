// Package lanes runs the lamp's two execution contexts. The network lane owns
// every blocking call; the render lane only reads facts and draws.
package lanes

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/acquire"
	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/facts"
	"github.com/itohio/surflamp/pkg/fetch"
	"github.com/itohio/surflamp/pkg/fingerprint"
	"github.com/itohio/surflamp/pkg/health"
	"github.com/itohio/surflamp/pkg/radio"
	"github.com/itohio/surflamp/pkg/store"
)

// queryFailureLimit is the number of consecutive unanswered status queries
// after which the link is treated as lost.
const queryFailureLimit = 3

// Fetcher pulls the remote payload. It may block for seconds.
type Fetcher interface {
	Fetch(ctx context.Context) (fetch.Payload, error)
}

// Checker reports link health.
type Checker interface {
	Check(ctx context.Context) (health.Result, error)
}

// Ensure the production collaborators fit.
var (
	_ Fetcher = (*fetch.HTTP)(nil)
	_ Checker = (*health.Monitor)(nil)
)

// NetworkDeps are the collaborators of the network lane.
type NetworkDeps struct {
	Machine     *connection.Machine
	Protocol    *acquire.Protocol
	Radio       radio.Radio
	Store       store.Store
	Fingerprint *fingerprint.Store
	Health      Checker
	Fetcher     Fetcher
	Facts       *facts.Facts
	Clock       clock.Clock
	Log         zerolog.Logger
}

// Network is the lane that acquires and keeps the link, fetches data and
// publishes facts. It is the only writer of facts apart from the sunset
// acknowledgement.
type Network struct {
	cfg    config.SchedulerConfig
	health config.HealthConfig
	deps   NetworkDeps
	log    zerolog.Logger

	// Lane-local, touched only from Run.
	nextFetch     uint64
	nextCheck     uint64
	nextReconnect uint64
	reconnects    int
	queryFailures int
	serverTime    time.Time
	serverAtMs    uint64

	payload       atomic.Pointer[fetch.Payload]
	fetchFailures atomic.Int32
	reset         atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewNetwork creates the network lane.
func NewNetwork(cfg *config.Config, deps NetworkDeps) *Network {
	return &Network{
		cfg:    cfg.Scheduler,
		health: cfg.Health,
		deps:   deps,
		log:    deps.Log,
	}
}

// Run drives the connection state machine until ctx is done. It returns nil
// on cancellation and an error only when acquisition fails fatally.
func (n *Network) Run(ctx context.Context) error {
	n.log.Info().Msg("Network lane started")
	defer n.log.Info().Msg("Network lane stopped")

	for {
		if err := n.Step(ctx); err != nil {
			return err
		}
		if err := n.deps.Clock.Sleep(ctx, n.cfg.Slice); err != nil {
			return nil
		}
	}
}

// Step runs one slice of the lane. Acquisition may block inside it for as
// long as the operator needs.
func (n *Network) Step(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}
	n.deps.Facts.Heartbeat(n.deps.Clock.NowMs())

	if n.reset.Load() {
		n.factoryReset(ctx)
	}

	var err error
	switch n.deps.Machine.State() {
	case connection.Init:
		n.deps.Machine.Fire(connection.BootComplete)
		err = n.acquire(ctx, n.deps.Protocol.Run)
	case connection.Acquiring:
		err = n.acquire(ctx, n.deps.Protocol.Run)
	case connection.ConfigPortal:
		err = n.acquire(ctx, n.deps.Protocol.Reacquire)
	case connection.Operational:
		n.operate(ctx)
	case connection.Recovering:
		n.recover(ctx)
	case connection.Fault:
		// Only a reset leaves Fault.
	}

	n.publish()
	return err
}

// RequestReset asks the lane to forget the network. Safe from any goroutine;
// an acquisition in progress is interrupted.
func (n *Network) RequestReset() {
	n.reset.Store(true)
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.cancel != nil {
		n.cancel()
	}
}

// ResetRequested reports whether a reset is pending.
func (n *Network) ResetRequested() bool {
	return n.reset.Load()
}

// Payload returns the last fetched payload.
func (n *Network) Payload() (fetch.Payload, bool) {
	p := n.payload.Load()
	if p == nil {
		return fetch.Payload{}, false
	}
	return *p, true
}

// acquire runs fn under a context RequestReset can cancel.
func (n *Network) acquire(ctx context.Context, fn func(context.Context) error) error {
	actx, cancel := context.WithCancel(ctx)
	n.mu.Lock()
	n.cancel = cancel
	n.mu.Unlock()
	if n.reset.Load() {
		cancel()
	}
	defer func() {
		n.mu.Lock()
		n.cancel = nil
		n.mu.Unlock()
		cancel()
	}()

	err := fn(actx)
	switch {
	case err == nil:
		n.connected()
		return nil
	case ctx.Err() != nil:
		return nil
	case actx.Err() != nil:
		n.log.Info().Msg("Acquisition interrupted by reset")
		return nil
	case acquire.IsFatal(err):
		return err
	}
	n.log.Warn().Err(err).Msg("Acquisition ended without a link")
	return nil
}

func (n *Network) connected() {
	now := n.deps.Clock.NowMs()
	n.reconnects = 0
	n.queryFailures = 0
	n.nextFetch = now
	n.nextCheck = now + uint64(n.health.CheckInterval.Milliseconds())
	n.deps.Facts.SetNetworkAlive(true)
}

// operate checks the link and fetches on cadence.
func (n *Network) operate(ctx context.Context) {
	now := n.deps.Clock.NowMs()
	if now >= n.nextCheck {
		n.nextCheck = now + uint64(n.health.CheckInterval.Milliseconds())
		_, err := n.deps.Health.Check(ctx)
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, health.ErrQueryFailed) {
			n.queryFailures++
		} else {
			n.queryFailures = 0
		}
		switch {
		case err == nil:
			n.deps.Facts.SetNetworkAlive(true)
		case errors.Is(err, health.ErrLinkDown), n.queryFailures >= queryFailureLimit:
			n.linkLost(now, err)
			return
		default:
			n.log.Warn().Err(err).Msg("Link degraded")
			n.deps.Facts.SetNetworkAlive(false)
		}
	}

	if now >= n.nextFetch {
		n.fetch(ctx, now)
	}
}

func (n *Network) linkLost(now uint64, err error) {
	n.log.Warn().Err(err).Int("query_failures", n.queryFailures).Msg("Link lost")
	n.deps.Facts.SetNetworkAlive(false)
	n.queryFailures = 0
	n.reconnects = 0
	n.nextReconnect = now
	n.deps.Machine.Fire(connection.LinkDropped)
}

func (n *Network) fetch(ctx context.Context, now uint64) {
	p, err := n.deps.Fetcher.Fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, fetch.ErrUnrecoverable) {
			n.log.Error().Err(err).Msg("Backend refused the lamp")
			n.deps.Machine.Fire(connection.UnrecoverableError)
			return
		}
		failures := n.fetchFailures.Add(1)
		n.nextFetch = now + uint64(n.cfg.FetchRetry.Milliseconds())
		n.log.Warn().Err(err).Int32("failures", failures).Dur("retry", n.cfg.FetchRetry).Msg("Fetch failed")
		return
	}

	n.fetchFailures.Store(0)
	n.nextFetch = now + uint64(n.cfg.FetchInterval.Milliseconds())
	n.payload.Store(&p)

	f := n.deps.Facts
	f.MarkFetched(now)
	f.SetNetworkAlive(true)
	f.SetCoordinatesKnown(p.CoordinatesKnown)
	if p.SunsetMinutes >= 0 {
		f.SetSunsetMinutes(p.SunsetMinutes)
	}
	if !p.ServerTime.IsZero() {
		n.serverTime = p.ServerTime
		n.serverAtMs = now
	}
	n.log.Info().Bool("coordinates", p.CoordinatesKnown).Int("sunset_minutes", p.SunsetMinutes).Msg("Data refreshed")
}

// recover retries the stored network silently, then hands over to the portal.
func (n *Network) recover(ctx context.Context) {
	if n.deps.Clock.NowMs() < n.nextReconnect {
		return
	}
	n.reconnects++

	err := n.acquire(ctx, n.deps.Protocol.Reconnect)
	if err != nil || ctx.Err() != nil || n.reset.Load() {
		return
	}
	now := n.deps.Clock.NowMs()
	if n.deps.Machine.State() == connection.Operational {
		n.nextFetch = now + uint64(n.health.SettleDelay.Milliseconds())
		n.log.Info().Dur("settle", n.health.SettleDelay).Msg("Link recovered")
		return
	}

	if n.reconnects >= n.health.MaxReconnects {
		n.log.Warn().Int("reconnects", n.reconnects).Msg("Silent recovery gave up")
		n.reconnects = 0
		n.deps.Machine.Fire(connection.ConnectFailed)
		return
	}
	n.nextReconnect = now + uint64(n.health.ReconnectInterval.Milliseconds())
}

// factoryReset forgets the network and restarts from Init.
func (n *Network) factoryReset(ctx context.Context) {
	n.log.Warn().Msg("Factory reset")
	if err := radio.ClearCredentials(n.deps.Store); err != nil {
		n.log.Error().Err(err).Msg("Failed to clear credentials")
	}
	if err := n.deps.Fingerprint.Clear(); err != nil {
		n.log.Error().Err(err).Msg("Failed to clear fingerprint")
	}
	if err := n.deps.Radio.Disconnect(ctx); err != nil {
		n.log.Warn().Err(err).Msg("Failed to disconnect")
	}
	n.deps.Facts.SetNetworkAlive(false)
	n.payload.Store(nil)
	n.reconnects = 0
	n.reset.Store(false)
	n.deps.Machine.Force(connection.Init)
}

// publish derives the wall clock and the sunset window.
func (n *Network) publish() {
	f := n.deps.Facts
	if n.serverTime.IsZero() {
		return
	}
	elapsed := time.Duration(n.deps.Clock.NowMs()-n.serverAtMs) * time.Millisecond
	now := n.serverTime.Add(elapsed)
	f.SetWallClock(now)

	sunset := f.SunsetMinutes()
	if sunset < 0 {
		f.SetSunsetWindowActive(false)
		return
	}
	minute := now.Hour()*60 + now.Minute()
	window := int(n.cfg.SunsetWindow.Minutes())
	f.SetSunsetWindowActive(minute >= sunset && minute < sunset+window)
}
