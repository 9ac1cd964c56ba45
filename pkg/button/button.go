// Package button watches the factory reset button.
package button

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
)

// ErrDisabled is returned by Open when no pin is configured.
var ErrDisabled = errors.New("reset button disabled")

const pollInterval = 50 * time.Millisecond

// Watcher fires onHold once per press when the active-low button has been
// held for the configured time.
type Watcher struct {
	pin    gpio.PinIn
	holdMs uint64
	clock  clock.Clock
	onHold func()
	log    zerolog.Logger

	pressedAt uint64
	pressed   bool
	fired     bool
}

// Open initializes the host drivers and watches the configured pin.
func Open(cfg config.ButtonConfig, clk clock.Clock, onHold func(), log zerolog.Logger) (*Watcher, error) {
	if cfg.Pin == "" {
		return nil, ErrDisabled
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize GPIO host: %w", err)
	}
	p := gpioreg.ByName(cfg.Pin)
	if p == nil {
		return nil, fmt.Errorf("GPIO pin %q not found", cfg.Pin)
	}
	return New(p, cfg.Hold, clk, onHold, log)
}

// New watches pin with the internal pull-up enabled.
func New(pin gpio.PinIn, hold time.Duration, clk clock.Clock, onHold func(), log zerolog.Logger) (*Watcher, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure %s: %w", pin, err)
	}
	return &Watcher{
		pin:    pin,
		holdMs: uint64(hold.Milliseconds()),
		clock:  clk,
		onHold: onHold,
		log:    log,
	}, nil
}

// Poll samples the pin once. It reports whether onHold fired.
func (w *Watcher) Poll(nowMs uint64) bool {
	if w.pin.Read() == gpio.High {
		w.pressed = false
		w.fired = false
		return false
	}

	if !w.pressed {
		w.pressed = true
		w.pressedAt = nowMs
		return false
	}
	if w.fired || nowMs-w.pressedAt < w.holdMs {
		return false
	}

	w.fired = true
	w.log.Warn().Uint64("held_ms", nowMs-w.pressedAt).Msg("Reset button held")
	w.onHold()
	return true
}

// Run polls the pin until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		w.Poll(w.clock.NowMs())
		if err := w.clock.Sleep(ctx, pollInterval); err != nil {
			return nil
		}
	}
}
