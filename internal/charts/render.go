// Package charts renders item history as PNG line charts and caches the
// results in badger.
package charts

import (
	"fmt"
	"image/color"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"

	"github.com/erazemk/webventory/internal/imaging"
)

// Kind selects which history field a chart plots.
type Kind string

const (
	KindPrice    Kind = "price"
	KindQuantity Kind = "quantity"
)

// Kinds lists every chart kind in display order.
var Kinds = []Kind{KindPrice, KindQuantity}

// ParseKind validates a chart kind taken from a URL.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindPrice, KindQuantity:
		return k, nil
	}
	return "", fmt.Errorf("unknown chart kind %q", s)
}

// Point is one sample of a series.
type Point struct {
	At    time.Time
	Value float64
}

// DateFormat labels the time axis.
const DateFormat = "2006-01-02"

// supersample renders charts larger than requested so the downscale
// smooths lines and text.
const supersample = 2

var lineColor = color.RGBA{R: 31, G: 119, B: 180, A: 255}

// Renderer draws charts of a fixed output size in pixels.
type Renderer struct {
	Width  int
	Height int
}

// Render plots points against time and returns the chart as PNG. An empty
// series still yields a chart with labelled axes.
func (r Renderer) Render(kind Kind, points []Point) ([]byte, error) {
	p := plot.New()
	p.X.Label.Text = "Date"
	p.X.Tick.Marker = plot.TimeTicks{Format: DateFormat}

	switch kind {
	case KindPrice:
		p.Y.Label.Text = "Price"
		p.Y.Tick.Marker = priceTicks{}
	case KindQuantity:
		p.Y.Label.Text = "Quantity"
	default:
		return nil, fmt.Errorf("unknown chart kind %q", kind)
	}

	p.Add(plotter.NewGrid())

	if len(points) > 0 {
		xys := make(plotter.XYs, len(points))
		for i, pt := range points {
			xys[i].X = float64(pt.At.Unix())
			xys[i].Y = pt.Value
		}

		line, marks, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, fmt.Errorf("building %s series: %w", kind, err)
		}
		line.Color = lineColor
		marks.Color = lineColor
		marks.Shape = draw.CircleGlyph{}
		p.Add(line, marks)
	}

	w, h := r.Width*supersample, r.Height*supersample
	canvas := vgimg.NewWith(
		vgimg.UseWH(vg.Length(w)*vg.Inch/96, vg.Length(h)*vg.Inch/96),
		vgimg.UseDPI(96),
	)
	p.Draw(draw.New(canvas))

	img := imaging.Fit(canvas.Image(), r.Width, r.Height)
	data, err := imaging.EncodePNG(img)
	if err != nil {
		return nil, fmt.Errorf("rendering %s chart: %w", kind, err)
	}
	return data, nil
}

// priceTicks labels the price axis as currency.
type priceTicks struct{}

func (priceTicks) Ticks(min, max float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(min, max)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = fmt.Sprintf("$%.2f", ticks[i].Value)
		}
	}
	return ticks
}
