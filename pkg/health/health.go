// Package health checks the station link and, optionally, an upstream host.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-ping/ping"
	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/radio"
)

var (
	// ErrLinkDown means the radio is not associated.
	ErrLinkDown = errors.New("link down")
	// ErrUnreachable means the link is up but the probe target did not answer.
	ErrUnreachable = errors.New("probe target unreachable")
	// ErrQueryFailed means the radio did not answer the status query.
	ErrQueryFailed = errors.New("link query failed")
)

// Pinger sends one echo request and returns the round trip time.
type Pinger func(ctx context.Context, host string, timeout time.Duration, privileged bool) (time.Duration, error)

// Result is the outcome of one check.
type Result struct {
	Status radio.Status
	Probed bool
	RTT    time.Duration
}

// Monitor checks link health.
type Monitor struct {
	radio      radio.Radio
	target     string
	timeout    time.Duration
	privileged bool
	ping       Pinger
	log        zerolog.Logger
}

// New creates a monitor probing cfg.PingTarget with ICMP when set.
func New(cfg config.HealthConfig, r radio.Radio, log zerolog.Logger) *Monitor {
	return &Monitor{
		radio:      r,
		target:     cfg.PingTarget,
		timeout:    cfg.PingTimeout,
		privileged: cfg.PingPrivileged,
		ping:       ICMP,
		log:        log,
	}
}

// WithPinger replaces the probe, mostly for tests.
func (m *Monitor) WithPinger(p Pinger) *Monitor {
	m.ping = p
	return m
}

// Check queries the radio and probes the target. It returns ErrQueryFailed,
// ErrLinkDown or ErrUnreachable (wrapped) when unhealthy.
func (m *Monitor) Check(ctx context.Context) (Result, error) {
	st, err := m.radio.Status(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	res := Result{Status: st}
	if !st.Connected {
		return res, fmt.Errorf("%w: %s", ErrLinkDown, st.Reason)
	}
	if m.target == "" {
		return res, nil
	}

	res.Probed = true
	rtt, err := m.ping(ctx, m.target, m.timeout, m.privileged)
	if err != nil {
		return res, fmt.Errorf("%w: %s: %v", ErrUnreachable, m.target, err)
	}
	res.RTT = rtt
	m.log.Debug().Dur("rtt", rtt).Str("target", m.target).Msg("Probe ok")
	return res, nil
}

// ICMP pings host once with go-ping. Unprivileged mode uses UDP sockets.
func ICMP(ctx context.Context, host string, timeout time.Duration, privileged bool) (time.Duration, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return 0, err
	}
	pinger.SetPrivileged(privileged)
	pinger.Count = 1
	pinger.Timeout = timeout

	stop := context.AfterFunc(ctx, pinger.Stop)
	defer stop()

	if err := pinger.Run(); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return 0, fmt.Errorf("no reply within %s", timeout)
	}
	return stats.AvgRtt, nil
}
