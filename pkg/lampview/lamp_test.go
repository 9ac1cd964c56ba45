package lampview

import (
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/connection"
	"github.com/itohio/surflamp/pkg/lanes"
	"github.com/itohio/surflamp/pkg/status"
)

func newTestLamp(t *testing.T) *LampWidget {
	t.Helper()
	test.NewTempApp(t)

	w := New(config.Default(), time.Second)
	win := test.NewTempWindow(t, w)
	win.Resize(fyne.NewSize(480, 360))
	w.Resize(fyne.NewSize(480, 360))
	return w
}

func TestLampWidget_FramesThroughDisplay(t *testing.T) {
	w := newTestLamp(t)

	var display lanes.Display = lanes.DisplayFunc(w.ShowFrame)
	for i := range 10 {
		display.Show(lanes.Frame{
			NowMs:      uint64(i * 50),
			State:      connection.Operational,
			Indicator:  status.Online,
			Color:      status.Green,
			Brightness: 1,
		})
	}

	w.mu.RLock()
	last := w.frame
	points := append([]Point(nil), w.displayPoints...)
	w.mu.RUnlock()

	assert.Equal(t, uint64(450), last.NowMs)
	require.Len(t, points, 10)
	assert.Equal(t, uint64(0), points[0].Ms)
	assert.Equal(t, uint64(450), points[9].Ms)

	r, ok := test.WidgetRenderer(w).(*lampRenderer)
	require.True(t, ok)
	assert.Equal(t, status.Green, r.led.FillColor)
}

func TestLampWidget_RefreshIsThrottled(t *testing.T) {
	w := newTestLamp(t)

	// Frames closer together than the refresh interval are recorded but not drawn
	w.ShowFrame(lanes.Frame{NowMs: 100, Brightness: 0.5})
	w.ShowFrame(lanes.Frame{NowMs: 110, Brightness: 0.6})

	w.mu.RLock()
	defer w.mu.RUnlock()
	assert.Equal(t, uint64(110), w.frame.NowMs)
	assert.Equal(t, 2, w.trace.Len())
	assert.Len(t, w.displayPoints, 1)
	assert.Equal(t, uint64(100), w.lastRefreshMs)
}

func TestLampWidget_SetReport(t *testing.T) {
	w := newTestLamp(t)

	w.SetReport(status.Report{Scenario: "first_setup", Diagnostic: "No WiFi networks found"})

	w.mu.RLock()
	defer w.mu.RUnlock()
	assert.Equal(t, "first_setup", w.report.Scenario)
}
