package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/recorder"
	"gonum.org/v1/plot/vg/vgpdf"
)

// Page size of every chart.
const (
	PageWidth  = 10 * vg.Inch
	PageHeight = 6 * vg.Inch
)

var (
	errNoPoints = errors.New("no data points")

	seriesColor = color.NRGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff}
	markerDash  = []vg.Length{vg.Points(6), vg.Points(3)}
)

// PDFSurface draws charts onto consecutive pages of one PDF document.
type PDFSurface struct {
	canvas *vgpdf.Canvas
	width  vg.Length
	height vg.Length
	pages  int
}

// NewPDFSurface creates an empty document with 10x6 inch pages.
func NewPDFSurface() *PDFSurface {
	return &PDFSurface{
		canvas: vgpdf.New(PageWidth, PageHeight),
		width:  PageWidth,
		height: PageHeight,
	}
}

// AddPage draws spec on a new page. The chart is recorded off-page first so
// a chart that fails to build or draw leaves the document untouched.
func (s *PDFSurface) AddPage(spec ChartSpec) error {
	p, err := buildPlot(spec)
	if err != nil {
		return err
	}
	rec := &recorder.Canvas{}
	if err := drawRecovered(p, draw.NewCanvas(rec, s.width, s.height)); err != nil {
		return err
	}

	// vgpdf.New opens the first page itself.
	if s.pages > 0 {
		s.canvas.NextPage()
	}
	if err := rec.ReplayOn(s.canvas); err != nil {
		return fmt.Errorf("replay chart: %w", err)
	}
	s.pages++
	return nil
}

// Pages returns the number of charts drawn so far.
func (s *PDFSurface) Pages() int {
	return s.pages
}

// WriteTo writes the PDF document to w.
func (s *PDFSurface) WriteTo(w io.Writer) (int64, error) {
	return s.canvas.WriteTo(w)
}

func drawRecovered(p *plot.Plot, c draw.Canvas) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("draw chart: %v", r)
		}
	}()
	p.Draw(c)
	return nil
}

func buildPlot(spec ChartSpec) (*plot.Plot, error) {
	pts := make(plotter.XYs, 0, len(spec.Years))
	known := make([]float64, 0, len(spec.Years))
	for i, year := range spec.Years {
		if i >= len(spec.Values) {
			break
		}
		v := spec.Values[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: float64(year), Y: v})
		known = append(known, v)
	}
	if len(pts) == 0 {
		return nil, errNoPoints
	}

	p := plot.New()
	p.Title.Text = spec.Title
	p.X.Label.Text = spec.XLabel
	p.Y.Label.Text = spec.YLabel
	p.Add(plotter.NewGrid())

	line, points, err := plotter.NewLinePoints(pts)
	if err != nil {
		return nil, fmt.Errorf("build series: %w", err)
	}
	line.Color = seriesColor
	line.Width = vg.Points(1.5)
	points.Shape = draw.CircleGlyph{}
	points.Color = seriesColor
	points.Radius = vg.Points(2.5)
	p.Add(line, points)

	lo, hi := yRange(known)
	for _, m := range spec.Markers {
		vl, err := plotter.NewLine(plotter.XYs{
			{X: float64(m.Year), Y: lo},
			{X: float64(m.Year), Y: hi},
		})
		if err != nil {
			return nil, fmt.Errorf("build marker %q: %w", m.Label, err)
		}
		vl.Color = m.Color
		vl.Width = vg.Points(1.5)
		vl.Dashes = markerDash
		p.Add(vl)
		p.Legend.Add(m.Label, vl)
	}
	p.Y.Min, p.Y.Max = lo, hi

	first, last := spec.Years[0], spec.Years[len(spec.Years)-1]
	p.X.Min, p.X.Max = float64(first)-0.5, float64(last)+0.5
	p.X.Tick.Marker = yearTicks(spec.Years)
	p.X.Tick.Label.Rotation = math.Pi / 4
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	p.Legend.Top = true
	p.Legend.Left = true
	p.Legend.XOffs = vg.Points(6)
	p.Legend.YOffs = -vg.Points(6)
	p.Legend.TextStyle.Font.Size = vg.Points(legendFontSize(len(spec.Markers)))
	return p, nil
}

// yRange pads the value range by 5%, or by one unit around a flat series.
func yRange(values []float64) (float64, float64) {
	lo, hi := floats.Min(values), floats.Max(values)
	if lo == hi {
		pad := math.Max(math.Abs(lo)*0.05, 1)
		return lo - pad, hi + pad
	}
	pad := (hi - lo) * 0.05
	return lo - pad, hi + pad
}

func yearTicks(years []int) plot.ConstantTicks {
	ticks := make(plot.ConstantTicks, len(years))
	for i, y := range years {
		ticks[i] = plot.Tick{Value: float64(y), Label: strconv.Itoa(y)}
	}
	return ticks
}
