package lanes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/surflamp/pkg/acquire"
	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/connection"
)

func fastConfig() *config.Config {
	cfg := config.Default()
	cfg.Scheduler.Slice = 5 * time.Millisecond
	cfg.Scheduler.FrameRate = 200
	return cfg
}

func runScheduler(ctx context.Context, s *Scheduler) <-chan error {
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func TestScheduler_GracefulShutdown(t *testing.T) {
	f := newFixture(t, fastConfig(), clock.NewSystem())
	f.storeCredentials(t)

	serviceStopped := make(chan struct{})
	s := NewScheduler(f.network, f.render, zerolog.Nop(), func(ctx context.Context) error {
		<-ctx.Done()
		close(serviceStopped)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)

	require.Eventually(t, func() bool {
		return f.fetcher.Calls() > 0 && s.Report().Indicator == "online"
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, connection.Operational, f.machine.State())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("scheduler did not stop")
	}
	<-serviceStopped

	frames := f.render.Frames()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frames, f.render.Frames(), "render lane stopped")
}

func TestScheduler_ShutdownDuringPortal(t *testing.T) {
	f := newFixture(t, fastConfig(), clock.NewSystem())
	s := NewScheduler(f.network, f.render, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := runScheduler(ctx, s)
	f.portal.waitStarted(t)

	// The render lane keeps drawing while the network lane waits
	frames := f.render.Frames()
	require.Eventually(t, func() bool {
		return f.render.Frames() > frames+5
	}, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, "setup_portal", s.Report().Indicator)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(waitTimeout):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_FatalStopsRenderLane(t *testing.T) {
	f := newFixture(t, fastConfig(), clock.NewSystem())
	f.portal.startErr = errors.New("no access point")
	s := NewScheduler(f.network, f.render, zerolog.Nop())

	var err error
	select {
	case err = <-runScheduler(context.Background(), s):
	case <-time.After(waitTimeout):
		t.Fatal("scheduler did not stop")
	}
	require.Error(t, err)
	assert.True(t, acquire.IsFatal(err))

	frames := f.render.Frames()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, frames, f.render.Frames())
}
