package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/radio"
	"github.com/itohio/surflamp/pkg/store"
)

// Deps are the collaborators of the protocol.
type Deps struct {
	Radio   radio.Radio
	Portal  Portal
	Store   store.Store
	Locator Locator
	Machine *connection.Machine
	Clock   clock.Clock
	Log     zerolog.Logger
}

// Protocol runs connection acquisition. All methods except the accessors
// block and belong to the network lane.
type Protocol struct {
	cfg  config.AcquisitionConfig
	ap   config.PortalConfig
	deps Deps
	log  zerolog.Logger

	scenario   atomic.Int32
	diagnostic atomic.Pointer[string]

	mu     sync.Mutex
	health LinkHealth

	// relocationChecks counts fingerprint comparisons, for tests and status.
	relocationChecks atomic.Int32
}

// New creates a protocol.
func New(cfg *config.Config, deps Deps) *Protocol {
	p := &Protocol{
		cfg:  cfg.Acquisition,
		ap:   cfg.Portal,
		deps: deps,
		log:  deps.Log,
	}
	empty := ""
	p.diagnostic.Store(&empty)
	return p
}

// LastDiagnostic returns the most specific explanation of the last failure.
func (p *Protocol) LastDiagnostic() string {
	return *p.diagnostic.Load()
}

// Scenario returns the scenario of the current or last acquisition.
func (p *Protocol) Scenario() Scenario {
	return Scenario(p.scenario.Load())
}

// Health returns a snapshot of the link health counters.
func (p *Protocol) Health() LinkHealth {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.health
}

// RelocationChecks returns how many times the fingerprint was consulted.
func (p *Protocol) RelocationChecks() int {
	return int(p.relocationChecks.Load())
}

// DetectScenario picks the scenario from persisted state. Credentials decide
// alone; a stored fingerprint does not matter here.
func (p *Protocol) DetectScenario() (Scenario, radio.Credentials) {
	creds, ok, err := radio.LoadCredentials(p.deps.Store)
	if err != nil {
		p.log.Warn().Err(err).Msg("Cannot read stored credentials")
	}
	if !ok {
		return FirstSetup, radio.Credentials{}
	}
	return RouterReboot, creds
}

// Run performs boot acquisition from the Acquiring state. It returns nil once
// connected, the context error when cancelled, or ErrFatal.
func (p *Protocol) Run(ctx context.Context) error {
	scenario, creds := p.DetectScenario()
	p.setScenario(scenario)

	switch scenario {
	case FirstSetup:
		return p.firstSetup(ctx)
	default:
		return p.routerReboot(ctx, creds)
	}
}

// Reacquire runs the known-network-failing policy after silent recovery gave up.
func (p *Protocol) Reacquire(ctx context.Context) error {
	scenario, creds := p.DetectScenario()
	if scenario == FirstSetup {
		p.setScenario(FirstSetup)
		return p.firstSetup(ctx)
	}
	p.setScenario(KnownNetworkFailing)

	failures := 0
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		timeout := backoff(p.cfg.InitialConnectTimeout, p.cfg.MaxConnectTimeout, attempt)
		if err := p.attempt(ctx, creds, attempt, timeout); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
		failures++

		if p.relocated(ctx, creds.SSID, failures) {
			return p.relocation(ctx)
		}
		if attempt == p.cfg.MaxRetries {
			break
		}

		ok, err := p.portalSession(ctx, p.cfg.PortalWindow, p.LastDiagnostic())
		if ok {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			p.log.Warn().Err(err).Int("attempt", attempt).Msg("Portal window unavailable")
		}
	}

	return p.exhausted(ctx)
}

// Reconnect makes one silent attempt with the stored credentials, as used
// while recovering a dropped link.
func (p *Protocol) Reconnect(ctx context.Context) error {
	creds, ok, err := radio.LoadCredentials(p.deps.Store)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no stored credentials")
	}
	return p.attempt(ctx, creds, p.Health().Failures+1, p.cfg.InitialConnectTimeout)
}

// Diagnose scans and classifies a failure to join target. Without a target
// or a working scan it falls back to the reason text.
func (p *Protocol) Diagnose(ctx context.Context, target string, reason radio.Reason) Diagnosis {
	if target == "" {
		return Diagnosis{Message: reasonMessage(reason)}
	}
	networks, err := p.deps.Radio.Scan(ctx)
	if err != nil {
		p.log.Debug().Err(err).Msg("Diagnostic scan failed")
		return Diagnosis{Message: reasonMessage(reason)}
	}
	return Classify(networks, target, reason, p.cfg.WeakSignalDBm)
}

// firstSetup opens one long portal session, then falls back to an indefinite one.
func (p *Protocol) firstSetup(ctx context.Context) error {
	p.log.Info().Dur("timeout", p.cfg.FirstSetupPortalTimeout).Msg("No credentials stored, opening configuration portal")

	ok, err := p.portalSession(ctx, p.cfg.FirstSetupPortalTimeout, "")
	if ok {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		p.log.Warn().Err(err).Msg("Setup portal unavailable")
	}
	return p.exhausted(ctx)
}

// routerReboot retries silently with growing timeouts for a bounded budget.
func (p *Protocol) routerReboot(ctx context.Context, creds radio.Credentials) error {
	start := p.deps.Clock.NowMs()
	budget := uint64(p.cfg.RouterRebootBudget.Milliseconds())
	p.log.Info().Str("ssid", creds.SSID).Dur("budget", p.cfg.RouterRebootBudget).Msg("Reconnecting to stored network")

	for attempt := 1; ; attempt++ {
		timeout := backoff(p.cfg.InitialConnectTimeout, p.cfg.MaxConnectTimeout, attempt)
		if err := p.attempt(ctx, creds, attempt, timeout); err == nil {
			return nil
		} else if ctx.Err() != nil {
			return ctx.Err()
		}

		if p.relocated(ctx, creds.SSID, attempt) {
			return p.relocation(ctx)
		}
		if p.deps.Clock.NowMs()-start >= budget {
			break
		}

		delay := backoff(p.cfg.InitialRetryDelay, p.cfg.MaxRetryDelay, attempt)
		if err := p.deps.Clock.Sleep(ctx, delay); err != nil {
			return err
		}
		if p.deps.Clock.NowMs()-start >= budget {
			break
		}
	}

	p.log.Warn().Dur("budget", p.cfg.RouterRebootBudget).Msg("Router did not come back in time")
	return p.exhausted(ctx)
}

// relocation forces the portal open after the fingerprint check failed.
func (p *Protocol) relocation(ctx context.Context) error {
	p.setScenario(RelocatedSuspected)
	p.setDiagnostic(RelocatedMessage)
	p.log.Warn().Msg("Radio environment changed, forcing reconfiguration")
	return p.indefinite(ctx, RelocatedMessage)
}

// exhausted opens the portal until an operator intervenes.
func (p *Protocol) exhausted(ctx context.Context) error {
	p.log.Warn().Msg("Acquisition exhausted, waiting for operator")
	return p.indefinite(ctx, p.LastDiagnostic())
}

func (p *Protocol) indefinite(ctx context.Context, notice string) error {
	ok, err := p.portalSession(ctx, 0, notice)
	switch {
	case ok:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case err == nil:
		err = ErrPortalClosed
	}
	p.log.Error().Err(err).Msg("Configuration portal failed")
	return fmt.Errorf("%w: %w", ErrFatal, err)
}

// relocated runs the fingerprint check once enough consecutive failures
// with a known target have accumulated.
func (p *Protocol) relocated(ctx context.Context, target string, failures int) bool {
	if target == "" || failures < p.cfg.RelocationCheckAfter || p.deps.Locator == nil {
		return false
	}
	p.relocationChecks.Add(1)
	return !p.deps.Locator.IsSameLocation(ctx)
}

// attempt makes one connection attempt and records its outcome.
func (p *Protocol) attempt(ctx context.Context, creds radio.Credentials, index int, timeout time.Duration) error {
	started := p.deps.Clock.NowMs()
	err := p.deps.Radio.Connect(ctx, creds, timeout)
	a := Attempt{
		Index:   index,
		Timeout: timeout,
		Elapsed: time.Duration(p.deps.Clock.NowMs()-started) * time.Millisecond,
	}
	if err == nil {
		p.succeed(ctx, creds, a)
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	p.fail(ctx, creds.SSID, err, &a)
	return err
}

// succeed persists the environment, clears link health and reports success.
func (p *Protocol) succeed(ctx context.Context, creds radio.Credentials, a Attempt) {
	if p.deps.Locator != nil {
		if err := p.deps.Locator.Update(ctx, creds.SSID); err != nil {
			p.log.Warn().Err(err).Msg("Failed to update location fingerprint")
		}
	}

	p.mu.Lock()
	p.health = LinkHealth{}
	p.mu.Unlock()
	p.setDiagnostic("")

	p.log.Info().
		Str("ssid", creds.SSID).
		Int("attempt", a.Index).
		Dur("elapsed", a.Elapsed).
		Msg("Connected")
	p.deps.Machine.Fire(connection.ConnectSuccess)
}

// fail classifies the failure and updates link health.
func (p *Protocol) fail(ctx context.Context, target string, err error, a *Attempt) {
	reason := radio.ReasonOf(err)
	d := p.Diagnose(ctx, target, reason)
	a.Diagnostic = d.Message
	p.setDiagnostic(d.Message)

	p.mu.Lock()
	p.health.Failures++
	p.health.Reason = reason
	p.health.Diagnostic = d.Message
	failures := p.health.Failures
	p.mu.Unlock()

	p.log.Warn().
		Err(err).
		Int("attempt", a.Index).
		Dur("timeout", a.Timeout).
		Dur("elapsed", a.Elapsed).
		Int("consecutive", failures).
		Str("diagnostic", d.Message).
		Msg("Connection attempt failed")
}

// portalSession opens the operator channel for timeout (0 = no limit) and
// tries every submission until one connects. ok is true once connected.
func (p *Protocol) portalSession(ctx context.Context, timeout time.Duration, notice string) (ok bool, err error) {
	if p.deps.Machine.State() == connection.Acquiring {
		p.deps.Machine.Fire(connection.ConnectFailed)
	}

	if err := p.deps.Radio.StartAccessPoint(ctx, p.ap.APSSID, p.ap.APPassphrase); err != nil {
		return false, fmt.Errorf("failed to start access point: %w", err)
	}
	defer func() {
		if err := p.deps.Radio.StopAccessPoint(context.WithoutCancel(ctx)); err != nil {
			p.log.Warn().Err(err).Msg("Failed to stop access point")
		}
	}()

	var expired <-chan time.Time
	if timeout > 0 {
		expired = p.deps.Clock.After(timeout)
	}

	submissions, err := p.deps.Portal.Start(ctx, notice)
	if err != nil {
		return false, fmt.Errorf("failed to start portal: %w", err)
	}
	defer func() {
		if err := p.deps.Portal.Stop(); err != nil {
			p.log.Warn().Err(err).Msg("Failed to stop portal")
		}
	}()
	p.log.Info().Str("ap", p.ap.APSSID).Dur("timeout", timeout).Msg("Configuration portal open")

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-expired:
			p.log.Info().Msg("Configuration portal timed out")
			return false, nil
		case creds, open := <-submissions:
			if !open {
				return false, ErrPortalClosed
			}
			if p.submitted(ctx, creds, attempt) {
				return true, nil
			}
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
		}
	}
}

// submitted tries operator-entered credentials and stores them on success.
func (p *Protocol) submitted(ctx context.Context, creds radio.Credentials, index int) bool {
	p.deps.Machine.Fire(connection.CredentialsSubmitted)

	err := p.deps.Radio.Connect(ctx, creds, p.cfg.MaxConnectTimeout)
	if err == nil {
		if err := radio.SaveCredentials(p.deps.Store, creds); err != nil {
			p.log.Error().Err(err).Msg("Connected but could not store credentials")
		}
		p.succeed(ctx, creds, Attempt{Index: index, Timeout: p.cfg.MaxConnectTimeout})
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	a := Attempt{Index: index, Timeout: p.cfg.MaxConnectTimeout}
	p.fail(ctx, creds.SSID, err, &a)
	p.deps.Machine.Fire(connection.ConnectFailed)
	p.deps.Portal.Notify(a.Diagnostic)
	return false
}

func (p *Protocol) setScenario(s Scenario) {
	if Scenario(p.scenario.Swap(int32(s))) != s {
		p.log.Info().Str("scenario", s.String()).Msg("Acquisition scenario")
	}
}

func (p *Protocol) setDiagnostic(msg string) {
	p.diagnostic.Store(&msg)
}

// IsFatal reports whether err ends acquisition for good.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}
