package lanes

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/itohio/surflamp/pkg/facts"
	"github.com/itohio/surflamp/pkg/status"
)

// Service is an extra long-running task started next to the lanes.
type Service func(ctx context.Context) error

// Scheduler owns the two lanes.
type Scheduler struct {
	network  *Network
	render   *Render
	services []Service
	log      zerolog.Logger
}

// NewScheduler creates a scheduler. services run in the same group, so an
// error from any of them stops everything.
func NewScheduler(network *Network, render *Render, log zerolog.Logger, services ...Service) *Scheduler {
	return &Scheduler{
		network:  network,
		render:   render,
		services: services,
		log:      log,
	}
}

// Run starts both lanes and waits. A fatal network error cancels the render
// lane and is returned.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := s.network.Run(gctx); err != nil {
			return fmt.Errorf("network lane: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return s.render.Run(gctx)
	})
	for _, svc := range s.services {
		g.Go(func() error {
			return svc(gctx)
		})
	}

	err := g.Wait()
	if err != nil {
		s.log.Error().Err(err).Msg("Scheduler stopped")
	}
	return err
}

// Report assembles the diagnostics snapshot. Safe from any goroutine.
func (s *Scheduler) Report() status.Report {
	n := s.network
	now := n.deps.Clock.NowMs()
	f := n.deps.Facts.Snapshot()
	p := n.deps.Protocol
	h := p.Health()

	rep := status.Report{
		State:          n.deps.Machine.State().String(),
		StateSinceMs:   now - min(n.deps.Machine.EnteredAt(), now),
		Scenario:       p.Scenario().String(),
		Diagnostic:     p.LastDiagnostic(),
		Failures:       h.Failures,
		LastReasonCode: int(h.Reason),
		Freshness:      facts.Evaluate(now, f.LastFetchMs, f.Fetched, n.cfg.StalenessThreshold).String(),
		LastFetchAgeMs: -1,
		NetworkAlive:   f.NetworkAlive,
		HeartbeatAgeMs: now - min(f.HeartbeatMs, now),
		Coordinates:    f.CoordinatesKnown,
		SunsetMinutes:  f.SunsetMinutes,
		SunsetActive:   f.SunsetWindowActive,
		SunsetShown:    f.SunsetShownToday,
		Indicator:      s.render.Indicator().String(),
		ResetRequested: n.ResetRequested(),
	}
	if h.Reason != 0 {
		rep.LastReason = h.Reason.String()
	}
	if f.Fetched {
		rep.LastFetchAgeMs = int64(now - min(f.LastFetchMs, now))
	}
	if f.ClockKnown {
		c := f.Clock
		rep.Clock = fmt.Sprintf("%04d-%02d-%02d %02d:%02d", c.Year, c.Month, c.Day, c.Hour, c.Minute)
	}
	return rep
}
