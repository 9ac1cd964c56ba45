package main

import (
	"encoding/json"
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/radio"
	"github.com/itohio/surflamp/pkg/status"
)

// createToolbar creates the toolbar with Settings, Diagnostics, Drop link and Reset buttons.
func createToolbar(state *appState) fyne.CanvasObject {
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})
	diagnosticsBtn := widget.NewButtonWithIcon("", theme.InfoIcon(), func() {
		showDiagnostics(state)
	})

	// Only the simulated radio can lose its link on demand
	dropBtn := widget.NewButtonWithIcon("Drop link", theme.MediaStopIcon(), func() {
		handleLinkDrop(state)
	})
	dropBtn.Disable()
	if state.mock == nil {
		dropBtn.Hide()
	}
	state.dropBtn = dropBtn

	resetBtn := widget.NewButtonWithIcon("Reset", theme.DeleteIcon(), func() {
		handleReset(state)
	})
	state.resetBtn = resetBtn

	return container.NewBorder(
		nil, // top
		nil, // bottom
		container.NewHBox(settingsBtn, diagnosticsBtn), // left
		container.NewHBox(dropBtn, resetBtn),           // right
		nil, // center (spacer)
	)
}

// handleReset asks for confirmation and requests a factory reset.
func handleReset(state *appState) {
	dialog.ShowConfirm("Factory reset",
		"Forget the WiFi network and open the setup portal?",
		func(ok bool) {
			if !ok {
				return
			}
			state.log.Warn().Msg("Factory reset requested from window")
			state.network.RequestReset()
			updateResetButton(state.resetBtn, true)
		}, state.window)
}

// handleLinkDrop makes the simulated access point vanish for a moment.
func handleLinkDrop(state *appState) {
	if state.mock == nil {
		return
	}
	state.mock.DropLink(radio.ReasonBeaconTimeout)
	state.log.Info().Msg("Simulated link drop")
}

// showDiagnostics displays the current status report.
func showDiagnostics(state *appState) {
	data, err := json.MarshalIndent(state.scheduler.Report(), "", "  ")
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to encode report: %w", err), state.window)
		return
	}

	text := widget.NewLabel(string(data))
	text.TextStyle = fyne.TextStyle{Monospace: true}
	d := dialog.NewCustom("Diagnostics", "Close", container.NewVScroll(text), state.window)
	d.Resize(fyne.NewSize(500, 500))
	d.Show()
}

// updateControls syncs the buttons with the latest report. Runs on the UI thread.
func updateControls(state *appState, rep status.Report) {
	updateResetButton(state.resetBtn, rep.ResetRequested)
	if state.mock == nil {
		return
	}
	if rep.State == connection.Operational.String() {
		state.dropBtn.Enable()
	} else {
		state.dropBtn.Disable()
	}
}

// updateResetButton highlights the reset button while a reset is pending.
func updateResetButton(btn *widget.Button, pending bool) {
	if pending {
		btn.Importance = widget.DangerImportance
	} else {
		btn.Importance = widget.MediumImportance
	}
	btn.Refresh()
}
