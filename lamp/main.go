package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/itohio/surflamp/pkg/acquire"
	"github.com/itohio/surflamp/pkg/button"
	"github.com/itohio/surflamp/pkg/clock"
	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/facts"
	"github.com/itohio/surflamp/pkg/fetch"
	"github.com/itohio/surflamp/pkg/fingerprint"
	"github.com/itohio/surflamp/pkg/health"
	"github.com/itohio/surflamp/pkg/lampview"
	"github.com/itohio/surflamp/pkg/lanes"
	"github.com/itohio/surflamp/pkg/logging"
	"github.com/itohio/surflamp/pkg/portal"
	"github.com/itohio/surflamp/pkg/radio"
	"github.com/itohio/surflamp/pkg/status"
	"github.com/itohio/surflamp/pkg/store"
)

func main() {
	var (
		portFlag     = flag.String("p", "", "Serial port of the WiFi modem (e.g., COM3 or /dev/ttyUSB0)")
		configFlag   = flag.String("config", "config.yaml", "Configuration file path")
		mockFlag     = flag.Bool("mock", false, "Use a simulated radio instead of the serial modem")
		headlessFlag = flag.Bool("headless", false, "Run without a window and log status changes")
	)
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Override serial port if provided via command line
	if *portFlag != "" {
		cfg.Radio.Port = *portFlag
	}

	logger := logging.New(cfg.Log)

	if *headlessFlag {
		runHeadless(cfg, *configFlag, *mockFlag, logger)
		return
	}
	runWindow(cfg, *configFlag, *mockFlag, logger)
}

// appState holds the running lamp and its window.
type appState struct {
	cfg        *config.Config
	configPath string
	log        zerolog.Logger

	store     store.Store
	radio     radio.Radio
	mock      *radio.Mock // nil on real hardware
	network   *lanes.Network
	scheduler *lanes.Scheduler

	window   fyne.Window
	lamp     *lampview.LampWidget
	resetBtn *widget.Button
	dropBtn  *widget.Button
}

// newAppState wires the lamp. display receives every rendered frame.
func newAppState(ctx context.Context, cfg *config.Config, configPath string, useMock bool, display lanes.Display, logger zerolog.Logger) (*appState, error) {
	clk := clock.NewSystem()

	kv, err := store.Open(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	state := &appState{
		cfg:        cfg,
		configPath: configPath,
		log:        logger,
		store:      kv,
	}

	if useMock {
		state.mock = radio.NewMock(&cfg.Mock, nil)
		state.radio = state.mock
		logger.Info().Msg("Using simulated radio")
	} else {
		s := radio.NewSerial(cfg.Radio.Port, cfg.Radio.BaudRate, cfg.Radio.CommandTimeout, logging.Component(logger, "radio"))
		if err := s.Open(ctx); err != nil {
			kv.Close()
			return nil, fmt.Errorf("failed to open modem on %s: %w", cfg.Radio.Port, err)
		}
		state.radio = s
		logger.Info().Str("port", cfg.Radio.Port).Msg("Modem ready")
	}

	policy, err := fingerprint.ParsePolicy(cfg.Fingerprint.MatchPolicy)
	if err != nil {
		state.Close()
		return nil, err
	}
	fp := fingerprint.NewStore(kv)

	machine := connection.New(clk, logging.Component(logger, "state"))
	tracker := status.NewTracker(machine.State(), logging.Component(logger, "status"))
	machine.Subscribe(tracker)
	cells := facts.New()

	srv := portal.New(cfg.Portal,
		func() status.Report { return state.scheduler.Report() },
		func() { state.network.RequestReset() },
		logging.Component(logger, "portal"))

	proto := acquire.New(cfg, acquire.Deps{
		Radio:   state.radio,
		Portal:  srv,
		Store:   kv,
		Locator: fingerprint.NewLocator(fp, state.radio, policy, logging.Component(logger, "fingerprint")),
		Machine: machine,
		Clock:   clk,
		Log:     logging.Component(logger, "acquire"),
	})

	state.network = lanes.NewNetwork(cfg, lanes.NetworkDeps{
		Machine:     machine,
		Protocol:    proto,
		Radio:       state.radio,
		Store:       kv,
		Fingerprint: fp,
		Health:      health.New(cfg.Health, state.radio, logging.Component(logger, "health")),
		Fetcher:     fetch.NewHTTP(cfg.Fetch, logging.Component(logger, "fetch")),
		Facts:       cells,
		Clock:       clk,
		Log:         logging.Component(logger, "network"),
	})
	render := lanes.NewRender(cfg.Scheduler, cells, tracker, display, clk, logging.Component(logger, "render"))

	services := []lanes.Service{srv.Listen}
	btn, err := button.Open(cfg.Button, clk, state.network.RequestReset, logging.Component(logger, "button"))
	switch {
	case err == nil:
		services = append(services, btn.Run)
	case !errors.Is(err, button.ErrDisabled):
		logger.Warn().Err(err).Msg("Reset button unavailable")
	}

	state.scheduler = lanes.NewScheduler(state.network, render, logging.Component(logger, "scheduler"), services...)
	return state, nil
}

// Close releases the radio and the store.
func (s *appState) Close() {
	if err := s.radio.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close radio")
	}
	if err := s.store.Close(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to close store")
	}
}

func runHeadless(cfg *config.Config, configPath string, useMock bool, logger zerolog.Logger) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state, err := newAppState(ctx, cfg, configPath, useMock, lanes.NewLogDisplay(logging.Component(logger, "display")), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start lamp")
	}

	err = state.scheduler.Run(ctx)
	state.Close()
	if err != nil {
		logger.Fatal().Err(err).Msg("Lamp stopped")
	}
}

func runWindow(cfg *config.Config, configPath string, useMock bool, logger zerolog.Logger) {
	application := app.NewWithID("com.itohio.surflamp")

	window := application.NewWindow("Surf Lamp")
	window.Resize(fyne.NewSize(900, 600))
	window.CenterOnScreen()

	lampWidget := lampview.New(cfg, 10*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	state, err := newAppState(ctx, cfg, configPath, useMock, lanes.DisplayFunc(lampWidget.ShowFrame), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start lamp")
	}
	defer state.Close()
	state.window = window
	state.lamp = lampWidget

	window.SetContent(container.NewBorder(
		createToolbar(state),
		nil,
		nil,
		nil,
		lampWidget,
	))

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := state.scheduler.Run(ctx); err != nil {
			fyne.Do(func() {
				dialog.ShowError(err, window)
			})
		}
	}()
	go startReportUpdates(ctx, state)

	window.ShowAndRun()

	cancel()
	<-done
}
