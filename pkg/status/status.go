// Package status maps the connectivity state and data freshness to the
// lamp's status indication.
package status

import (
	"image/color"
	"time"

	"github.com/chewxy/math32"

	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/facts"
)

// Indicator is what the status LED communicates.
type Indicator int

const (
	Booting Indicator = iota
	Connecting
	SetupPortal
	Online
	OnlineStale
	OnlineNoData
	Reconnecting
	Failed
	Sunset
)

var indicatorNames = [...]string{
	Booting:      "booting",
	Connecting:   "connecting",
	SetupPortal:  "setup_portal",
	Online:       "online",
	OnlineStale:  "online_stale",
	OnlineNoData: "online_no_data",
	Reconnecting: "reconnecting",
	Failed:       "failed",
	Sunset:       "sunset",
}

func (i Indicator) String() string {
	if i >= 0 && int(i) < len(indicatorNames) {
		return indicatorNames[i]
	}
	return "unknown"
}

// Mode is the temporal shape of an indication.
type Mode int

const (
	Solid Mode = iota
	Blink
	Breathe
)

// Pattern is a colour with its animation.
type Pattern struct {
	Color  color.NRGBA
	Mode   Mode
	Period time.Duration
}

var (
	White  = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	Blue   = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	Yellow = color.NRGBA{R: 255, G: 255, B: 0, A: 255}
	Green  = color.NRGBA{R: 0, G: 128, B: 0, A: 255}
	Orange = color.NRGBA{R: 255, G: 165, B: 0, A: 255}
	Red    = color.NRGBA{R: 255, G: 0, B: 0, A: 255}
	Dusk   = color.NRGBA{R: 255, G: 94, B: 77, A: 255}
)

const breathePeriod = 1250 * time.Millisecond

var patterns = [...]Pattern{
	Booting:      {Color: White, Mode: Breathe, Period: breathePeriod},
	Connecting:   {Color: Blue, Mode: Breathe, Period: breathePeriod},
	SetupPortal:  {Color: Yellow, Mode: Breathe, Period: breathePeriod},
	Online:       {Color: Green, Mode: Solid},
	OnlineStale:  {Color: Orange, Mode: Breathe, Period: 4 * time.Second},
	OnlineNoData: {Color: Green, Mode: Breathe, Period: breathePeriod},
	Reconnecting: {Color: Red, Mode: Breathe, Period: breathePeriod},
	Failed:       {Color: Red, Mode: Blink, Period: 500 * time.Millisecond},
	Sunset:       {Color: Dusk, Mode: Breathe, Period: 3 * time.Second},
}

// Pattern returns the indication pattern.
func (i Indicator) Pattern() Pattern {
	if i >= 0 && int(i) < len(patterns) {
		return patterns[i]
	}
	return patterns[Booting]
}

// Select picks the indicator. sunset is true while the sunset indication plays.
func Select(state connection.State, freshness facts.Freshness, sunset bool) Indicator {
	switch state {
	case connection.Init:
		return Booting
	case connection.Acquiring:
		return Connecting
	case connection.ConfigPortal:
		return SetupPortal
	case connection.Recovering:
		return Reconnecting
	case connection.Fault:
		return Failed
	}

	if sunset {
		return Sunset
	}
	switch freshness {
	case facts.Fresh:
		return Online
	case facts.Stale:
		return OnlineStale
	}
	return OnlineNoData
}

// Brightness returns the pattern intensity in [0, 1] at nowMs.
// Breathing stays between 0.4 and 1 so the colour never disappears.
func (p Pattern) Brightness(nowMs uint64) float32 {
	if p.Period <= 0 || p.Mode == Solid {
		return 1
	}
	period := uint64(p.Period.Milliseconds())
	phase := float32(nowMs%period) / float32(period)

	switch p.Mode {
	case Blink:
		if phase < 0.5 {
			return 1
		}
		return 0
	case Breathe:
		return 0.7 + 0.3*math32.Sin(2*math32.Pi*phase)
	}
	return 1
}

// Scale returns c dimmed by brightness.
func Scale(c color.NRGBA, brightness float32) color.NRGBA {
	brightness = math32.Max(0, math32.Min(1, brightness))
	return color.NRGBA{
		R: uint8(math32.Round(float32(c.R) * brightness)),
		G: uint8(math32.Round(float32(c.G) * brightness)),
		B: uint8(math32.Round(float32(c.B) * brightness)),
		A: c.A,
	}
}
