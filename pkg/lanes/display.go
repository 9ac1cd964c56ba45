package lanes

import (
	"github.com/rs/zerolog"

	"github.com/itohio/surflamp/pkg/status"
)

// LogDisplay logs indicator changes. Used when running headless.
type LogDisplay struct {
	log   zerolog.Logger
	last  status.Indicator
	shown bool
}

var _ Display = (*LogDisplay)(nil)

// NewLogDisplay creates a display writing to log.
func NewLogDisplay(log zerolog.Logger) *LogDisplay {
	return &LogDisplay{log: log}
}

func (d *LogDisplay) Show(f Frame) {
	if d.shown && f.Indicator == d.last {
		return
	}
	d.shown = true
	d.last = f.Indicator
	d.log.Info().
		Str("indicator", f.Indicator.String()).
		Str("state", f.State.String()).
		Str("freshness", f.Freshness.String()).
		Msg("Status")
}
