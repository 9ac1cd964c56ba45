package main

import (
	"context"
	"time"

	"fyne.io/fyne/v2"
)

const reportInterval = time.Second

// startReportUpdates pushes the diagnostics report to the window until ctx is
// done. The report is built off the UI thread; only the widget update is
// scheduled with fyne.Do.
func startReportUpdates(ctx context.Context, state *appState) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rep := state.scheduler.Report()
			fyne.Do(func() {
				state.lamp.SetReport(rep)
				updateControls(state, rep)
			})
		}
	}
}
