package lampview

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"

	"github.com/itohio/surflamp/pkg/lanes"
	"github.com/itohio/surflamp/pkg/status"
)

var (
	gridColor  = color.NRGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor = color.NRGBA{R: 150, G: 150, B: 150, A: 255}
	textColor  = color.NRGBA{R: 220, G: 220, B: 220, A: 255}
	warnColor  = color.NRGBA{R: 255, G: 165, B: 0, A: 255}
)

type textLine struct {
	text  string
	color color.Color
}

// lampRenderer renders the lamp widget.
type lampRenderer struct {
	lamp *LampWidget

	bg  *canvas.Rectangle
	led *canvas.Circle

	objects  []fyne.CanvasObject
	lastSize fyne.Size
}

func (r *lampRenderer) MinSize() fyne.Size {
	return fyne.NewSize(480, 360)
}

func (r *lampRenderer) Layout(size fyne.Size) {
	r.bg.Resize(size)
	if r.lastSize != size {
		r.lastSize = size
		r.lamp.BaseWidget.Refresh()
	}
}

func (r *lampRenderer) Refresh() {
	r.lamp.mu.RLock()
	frame := r.lamp.frame
	report := r.lamp.report
	points := r.lamp.displayPoints
	window := r.lamp.window
	r.lamp.mu.RUnlock()

	size := r.lamp.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}
	r.objects = []fyne.CanvasObject{r.bg, r.led}

	// LED on the left, text on the right, trace below
	ledSize := min(size.Height*0.4, size.Width*0.3)
	r.led.FillColor = frame.Color
	r.led.StrokeColor = frame.Indicator.Pattern().Color
	r.led.StrokeWidth = 2
	r.led.Resize(fyne.NewSize(ledSize, ledSize))
	r.led.Move(fyne.NewPos(20, 20))
	r.led.Refresh()

	r.drawText(ledSize+40, 20, frame, report)

	plotX := float32(50)
	plotY := ledSize + 50
	plotWidth := size.Width - plotX - 20
	plotHeight := size.Height - plotY - 30
	if plotWidth > 0 && plotHeight > 0 {
		r.drawGrid(plotX, plotY, plotWidth, plotHeight, window)
		r.drawTrace(plotX, plotY, plotWidth, plotHeight, points, frame, window)
	}
}

func (r *lampRenderer) drawText(x, y float32, frame lanes.Frame, report status.Report) {
	lines := []textLine{
		{fmt.Sprintf("State: %s", frame.State), textColor},
		{fmt.Sprintf("Indicator: %s", frame.Indicator), textColor},
		{fmt.Sprintf("Data: %s", frame.Freshness), textColor},
		{fmt.Sprintf("Scenario: %s", report.Scenario), labelColor},
	}
	if frame.ClockKnown {
		c := frame.Clock
		lines = append(lines, textLine{fmt.Sprintf("Local time: %02d:%02d", c.Hour, c.Minute), labelColor})
	}
	if report.Diagnostic != "" {
		lines = append(lines, textLine{report.Diagnostic, warnColor})
	}

	for i, l := range lines {
		text := canvas.NewText(l.text, l.color)
		text.TextSize = 13
		text.Move(fyne.NewPos(x, y+float32(i)*20))
		r.objects = append(r.objects, text)
	}
}

// drawGrid draws brightness levels and a seconds-ago time axis.
func (r *lampRenderer) drawGrid(plotX, plotY, plotWidth, plotHeight float32, window time.Duration) {
	const levels = 4
	for i := range levels + 1 {
		y := plotY + float32(i)*plotHeight/levels
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(plotX, y)
		line.Position2 = fyne.NewPos(plotX+plotWidth, y)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		text := canvas.NewText(fmt.Sprintf("%d%%", 100-i*100/levels), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignTrailing
		text.Move(fyne.NewPos(plotX-5, y-6))
		r.objects = append(r.objects, text)
	}

	const ticks = 5
	for i := range ticks + 1 {
		x := plotX + float32(i)*plotWidth/ticks
		line := canvas.NewLine(gridColor)
		line.Position1 = fyne.NewPos(x, plotY)
		line.Position2 = fyne.NewPos(x, plotY+plotHeight)
		line.StrokeWidth = 1
		r.objects = append(r.objects, line)

		ago := window - time.Duration(i)*window/ticks
		text := canvas.NewText(fmt.Sprintf("-%.0fs", ago.Seconds()), labelColor)
		text.TextSize = 10
		text.Alignment = fyne.TextAlignCenter
		text.Move(fyne.NewPos(x-15, plotY+plotHeight+5))
		r.objects = append(r.objects, text)
	}
}

// drawTrace draws brightness over the last window, newest on the right.
func (r *lampRenderer) drawTrace(plotX, plotY, plotWidth, plotHeight float32, points []Point, frame lanes.Frame, window time.Duration) {
	if len(points) < 2 {
		return
	}
	windowMs := float32(window.Milliseconds())
	stroke := frame.Indicator.Pattern().Color

	pos := func(p Point) fyne.Position {
		age := float32(frame.NowMs - min(p.Ms, frame.NowMs))
		x := plotX + plotWidth - age/windowMs*plotWidth
		y := plotY + plotHeight - p.Level*plotHeight
		return fyne.NewPos(max(x, plotX), y)
	}

	prev := pos(points[0])
	for _, p := range points[1:] {
		next := pos(p)
		line := canvas.NewLine(stroke)
		line.Position1 = prev
		line.Position2 = next
		line.StrokeWidth = 1.5
		r.objects = append(r.objects, line)
		prev = next
	}
}

func (r *lampRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

func (r *lampRenderer) Destroy() {}
