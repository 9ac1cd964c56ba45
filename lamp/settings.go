package main

import (
	"fmt"
	"strconv"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/surflamp/pkg/fingerprint"
	"github.com/itohio/surflamp/pkg/radio"
)

// showSettingsDialog displays a settings dialog with tabs for the persisted
// configuration. Changes are saved to the config file and apply on restart.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createRadioTab(state),
		createDataTab(state),
		createAcquisitionTab(state),
		createHealthTab(state),
		createPortalTab(state),
	)

	note := widget.NewLabel("Changes apply after the lamp restarts.")
	content := container.NewBorder(nil, note, nil, nil, tabs)
	content.Resize(fyne.NewSize(600, 500))

	d := dialog.NewCustom("Settings", "Close", content, state.window)
	d.Resize(fyne.NewSize(600, 500))
	d.Show()
}

func saveConfig(state *appState) {
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
		return
	}
	state.log.Info().Str("path", state.configPath).Msg("Configuration saved")
}

// createRadioTab creates the modem configuration tab.
func createRadioTab(state *appState) *container.TabItem {
	// Add current port if not in list
	portOptions, err := radio.Ports()
	if err != nil {
		state.log.Debug().Err(err).Msg("Cannot list serial ports")
	}
	current := state.cfg.Radio.Port
	found := false
	for _, p := range portOptions {
		if p == current {
			found = true
			break
		}
	}
	if !found && current != "" {
		portOptions = append(portOptions, current)
	}

	portSelect := widget.NewSelect(portOptions, func(string) {})
	if current != "" {
		portSelect.SetSelected(current)
	}

	baudEntry := widget.NewEntry()
	baudEntry.SetText(strconv.Itoa(state.cfg.Radio.BaudRate))

	commandTimeoutEntry := widget.NewEntry()
	commandTimeoutEntry.SetText(state.cfg.Radio.CommandTimeout.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Serial Port", Widget: portSelect},
			{Text: "Baud Rate", Widget: baudEntry},
			{Text: "Command Timeout", Widget: commandTimeoutEntry},
		},
		OnSubmit: func() {
			if portSelect.Selected != "" {
				state.cfg.Radio.Port = portSelect.Selected
			}
			if baud, err := strconv.Atoi(baudEntry.Text); err == nil && baud > 0 {
				state.cfg.Radio.BaudRate = baud
			}
			if d, err := time.ParseDuration(commandTimeoutEntry.Text); err == nil {
				state.cfg.Radio.CommandTimeout = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Radio", form)
}

// createDataTab creates the backend and freshness tab.
func createDataTab(state *appState) *container.TabItem {
	urlEntry := widget.NewEntry()
	urlEntry.SetText(state.cfg.Fetch.URL)

	intervalEntry := widget.NewEntry()
	intervalEntry.SetText(state.cfg.Scheduler.FetchInterval.String())

	retryEntry := widget.NewEntry()
	retryEntry.SetText(state.cfg.Scheduler.FetchRetry.String())

	stalenessEntry := widget.NewEntry()
	stalenessEntry.SetText(state.cfg.Scheduler.StalenessThreshold.String())

	sunsetEntry := widget.NewEntry()
	sunsetEntry.SetText(state.cfg.Scheduler.SunsetWindow.String())

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Data URL", Widget: urlEntry},
			{Text: "Fetch Interval", Widget: intervalEntry},
			{Text: "Retry After", Widget: retryEntry},
			{Text: "Stale After", Widget: stalenessEntry},
			{Text: "Sunset Window", Widget: sunsetEntry},
		},
		OnSubmit: func() {
			if urlEntry.Text != "" {
				state.cfg.Fetch.URL = urlEntry.Text
			}
			if d, err := time.ParseDuration(intervalEntry.Text); err == nil && d > 0 {
				state.cfg.Scheduler.FetchInterval = d
			}
			if d, err := time.ParseDuration(retryEntry.Text); err == nil && d > 0 {
				state.cfg.Scheduler.FetchRetry = d
			}
			if d, err := time.ParseDuration(stalenessEntry.Text); err == nil && d > 0 {
				state.cfg.Scheduler.StalenessThreshold = d
			}
			if d, err := time.ParseDuration(sunsetEntry.Text); err == nil && d > 0 {
				state.cfg.Scheduler.SunsetWindow = d
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Data", form)
}

// createAcquisitionTab creates the connection policy tab.
func createAcquisitionTab(state *appState) *container.TabItem {
	a := &state.cfg.Acquisition

	setupEntry := widget.NewEntry()
	setupEntry.SetText(a.FirstSetupPortalTimeout.String())

	budgetEntry := widget.NewEntry()
	budgetEntry.SetText(a.RouterRebootBudget.String())

	retriesEntry := widget.NewEntry()
	retriesEntry.SetText(strconv.Itoa(a.MaxRetries))

	relocationEntry := widget.NewEntry()
	relocationEntry.SetText(strconv.Itoa(a.RelocationCheckAfter))

	policySelect := widget.NewSelect([]string{
		fingerprint.MatchAny.String(),
		fingerprint.MatchThreeQuarters.String(),
	}, func(string) {})
	if p, err := fingerprint.ParsePolicy(state.cfg.Fingerprint.MatchPolicy); err == nil {
		policySelect.SetSelected(p.String())
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Setup Portal Timeout", Widget: setupEntry},
			{Text: "Router Reboot Budget", Widget: budgetEntry},
			{Text: "Max Retries", Widget: retriesEntry},
			{Text: "Relocation Check After", Widget: relocationEntry},
			{Text: "Relocation Match", Widget: policySelect},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(setupEntry.Text); err == nil && d > 0 {
				a.FirstSetupPortalTimeout = d
			}
			if d, err := time.ParseDuration(budgetEntry.Text); err == nil && d > 0 {
				a.RouterRebootBudget = d
			}
			if n, err := strconv.Atoi(retriesEntry.Text); err == nil && n > 0 {
				a.MaxRetries = n
			}
			if n, err := strconv.Atoi(relocationEntry.Text); err == nil && n > 0 {
				a.RelocationCheckAfter = n
			}
			if policySelect.Selected != "" {
				state.cfg.Fingerprint.MatchPolicy = policySelect.Selected
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Acquisition", form)
}

// createHealthTab creates the link health tab.
func createHealthTab(state *appState) *container.TabItem {
	h := &state.cfg.Health

	checkEntry := widget.NewEntry()
	checkEntry.SetText(h.CheckInterval.String())

	reconnectsEntry := widget.NewEntry()
	reconnectsEntry.SetText(strconv.Itoa(h.MaxReconnects))

	targetEntry := widget.NewEntry()
	targetEntry.SetPlaceHolder("disabled")
	targetEntry.SetText(h.PingTarget)

	privilegedCheck := widget.NewCheck("", func(bool) {})
	privilegedCheck.SetChecked(h.PingPrivileged)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Check Interval", Widget: checkEntry},
			{Text: "Silent Reconnects", Widget: reconnectsEntry},
			{Text: "Ping Target", Widget: targetEntry},
			{Text: "Privileged Ping", Widget: privilegedCheck},
		},
		OnSubmit: func() {
			if d, err := time.ParseDuration(checkEntry.Text); err == nil && d > 0 {
				h.CheckInterval = d
			}
			if n, err := strconv.Atoi(reconnectsEntry.Text); err == nil && n > 0 {
				h.MaxReconnects = n
			}
			h.PingTarget = targetEntry.Text
			h.PingPrivileged = privilegedCheck.Checked
			saveConfig(state)
		},
	}

	return container.NewTabItem("Health", form)
}

// createPortalTab creates the setup access point tab.
func createPortalTab(state *appState) *container.TabItem {
	p := &state.cfg.Portal

	listenEntry := widget.NewEntry()
	listenEntry.SetText(p.Listen)

	ssidEntry := widget.NewEntry()
	ssidEntry.SetText(p.APSSID)

	passEntry := widget.NewPasswordEntry()
	passEntry.SetText(p.APPassphrase)

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Listen Address", Widget: listenEntry},
			{Text: "Setup Network", Widget: ssidEntry},
			{Text: "Setup Password", Widget: passEntry},
		},
		OnSubmit: func() {
			if listenEntry.Text != "" {
				p.Listen = listenEntry.Text
			}
			if ssidEntry.Text != "" {
				p.APSSID = ssidEntry.Text
			}
			if n := len(passEntry.Text); n == 0 || (n >= 8 && n <= 63) {
				p.APPassphrase = passEntry.Text
			} else {
				dialog.ShowError(fmt.Errorf("setup password must be 8 to 63 characters, or empty"), state.window)
				return
			}
			saveConfig(state)
		},
	}

	return container.NewTabItem("Portal", form)
}
