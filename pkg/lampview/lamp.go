// Package lampview draws the lamp's status LED and its recent history in a
// Fyne window.
package lampview

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/surflamp/pkg/config"
	"github.com/itohio/surflamp/pkg/lanes"
	"github.com/itohio/surflamp/pkg/status"
)

const (
	refreshIntervalMs = 33 // ~30 FPS
	maxDisplayPoints  = 400
)

// LampWidget shows the status LED, a brightness trace and the diagnostics report.
type LampWidget struct {
	widget.BaseWidget

	window time.Duration

	// Protected by mu
	mu            sync.RWMutex
	frame         lanes.Frame
	report        status.Report
	trace         *Trace
	points        []Point
	displayPoints []Point
	lastRefreshMs uint64
	refreshing    bool
}

// New creates a lamp widget keeping the last window of frames.
func New(cfg *config.Config, window time.Duration) *LampWidget {
	frames := int(window.Seconds() * float64(max(cfg.Scheduler.FrameRate, 1)))
	w := &LampWidget{
		window:        window,
		trace:         NewTrace(frames),
		points:        make([]Point, 0, frames),
		displayPoints: make([]Point, 0, maxDisplayPoints),
	}
	w.ExtendBaseWidget(w)
	w.Refresh()
	return w
}

// ShowFrame records a frame. Called by the render lane through
// lanes.DisplayFunc; it never waits for the UI.
func (w *LampWidget) ShowFrame(f lanes.Frame) {
	w.mu.Lock()
	w.frame = f
	w.trace.Add(Point{Ms: f.NowMs, Level: f.Brightness})
	due := !w.refreshing && f.NowMs-w.lastRefreshMs >= refreshIntervalMs
	if due {
		w.lastRefreshMs = f.NowMs
		w.refreshing = true
	}
	w.mu.Unlock()

	if due {
		fyne.Do(w.refresh)
	}
}

// SetReport replaces the diagnostics shown under the LED. Call on the UI thread.
func (w *LampWidget) SetReport(rep status.Report) {
	w.mu.Lock()
	w.report = rep
	w.mu.Unlock()
	w.Refresh()
}

func (w *LampWidget) refresh() {
	w.mu.Lock()
	w.points = w.trace.Points(w.points)
	w.displayPoints = Downsample(w.displayPoints, w.points, maxDisplayPoints)
	w.refreshing = false
	w.mu.Unlock()

	// Outside the lock, the renderer takes a read lock
	w.Refresh()
}

// CreateRenderer creates the widget renderer.
func (w *LampWidget) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.NRGBA{R: 20, G: 20, B: 20, A: 255})
	led := canvas.NewCircle(status.White)
	return &lampRenderer{
		lamp:    w,
		bg:      bg,
		led:     led,
		objects: []fyne.CanvasObject{bg, led},
	}
}
