package lanes

import (
	"context"
	"image/color"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/facts"
	"github.com/itohio/surflamp/pkg/status"
)

// Frame is what the render lane hands to the display every frame.
type Frame struct {
	NowMs      uint64
	State      connection.State
	Indicator  status.Indicator
	Color      color.NRGBA // Pattern colour scaled by Brightness
	Brightness float32
	Freshness  facts.Freshness
	Clock      facts.WallClock
	ClockKnown bool
}

// Display consumes frames. Show must return without blocking.
type Display interface {
	Show(f Frame)
}

// DisplayFunc adapts a function to Display.
type DisplayFunc func(Frame)

func (f DisplayFunc) Show(fr Frame) { f(fr) }

// Render is the frame loop. It never performs I/O and never waits longer
// than one frame.
type Render struct {
	cfg     config.SchedulerConfig
	facts   *facts.Facts
	tracker *status.Tracker
	display Display
	clock   clock.Clock
	log     zerolog.Logger

	sunsetUntil uint64

	indicator atomic.Int32
	frames    atomic.Uint64
}

// NewRender creates the render lane.
func NewRender(cfg config.SchedulerConfig, f *facts.Facts, tracker *status.Tracker, display Display, clk clock.Clock, log zerolog.Logger) *Render {
	return &Render{
		cfg:     cfg,
		facts:   f,
		tracker: tracker,
		display: display,
		clock:   clk,
		log:     log,
	}
}

// Run draws frames until ctx is done.
func (r *Render) Run(ctx context.Context) error {
	period := time.Second / time.Duration(max(r.cfg.FrameRate, 1))
	r.log.Info().Dur("period", period).Msg("Render lane started")
	defer r.log.Info().Uint64("frames", r.frames.Load()).Msg("Render lane stopped")

	for {
		r.Frame(r.clock.NowMs())
		if err := r.clock.Sleep(ctx, period); err != nil {
			return nil
		}
	}
}

// Frame computes and shows one frame at nowMs.
func (r *Render) Frame(nowMs uint64) Frame {
	state := r.tracker.State()
	fresh := r.facts.Freshness(nowMs, r.cfg.StalenessThreshold)
	ind := status.Select(state, fresh, r.sunset(nowMs))
	p := ind.Pattern()
	b := p.Brightness(nowMs)

	f := Frame{
		NowMs:      nowMs,
		State:      state,
		Indicator:  ind,
		Color:      status.Scale(p.Color, b),
		Brightness: b,
		Freshness:  fresh,
		Clock:      r.facts.WallClock(),
		ClockKnown: r.facts.ClockKnown(),
	}

	if prev := status.Indicator(r.indicator.Swap(int32(ind))); prev != ind {
		r.log.Debug().Str("from", prev.String()).Str("to", ind.String()).Msg("Indicator changed")
	}
	r.frames.Add(1)
	r.display.Show(f)
	return f
}

// Indicator returns the indicator of the last frame.
func (r *Render) Indicator() status.Indicator {
	return status.Indicator(r.indicator.Load())
}

// Frames returns the number of frames drawn.
func (r *Render) Frames() uint64 {
	return r.frames.Load()
}

// sunset reports whether the sunset indication plays at nowMs, starting it
// once per day when the window opens.
func (r *Render) sunset(nowMs uint64) bool {
	if nowMs < r.sunsetUntil {
		return true
	}
	if !r.facts.SunsetWindowActive() || r.facts.SunsetShownToday() {
		return false
	}
	r.sunsetUntil = nowMs + uint64(r.cfg.SunsetDuration.Milliseconds())
	r.facts.MarkSunsetShown()
	r.log.Info().Dur("duration", r.cfg.SunsetDuration).Msg("Playing sunset")
	return true
}
