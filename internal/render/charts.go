package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/sarida/backend/internal/climate"
	"github.com/sarida/backend/internal/domain"
)

// ErrNoData is returned when a chart has nothing to draw.
var ErrNoData = errors.New("no data to plot")

// ErrUnknownChart is returned by ParseChart for unsupported names.
var ErrUnknownChart = errors.New("unknown chart")

// Chart names served by the dashboard.
type Chart string

const (
	ChartPrecipitation Chart = "precipitation"
	ChartSPI           Chart = "spi"
	ChartSPEI          Chart = "spei"
	ChartSPEI12        Chart = "spei12"
	ChartProbability   Chart = "probability"
)

// ParseChart validates a chart name.
func ParseChart(name string) (Chart, error) {
	switch c := Chart(name); c {
	case ChartPrecipitation, ChartSPI, ChartSPEI, ChartSPEI12, ChartProbability:
		return c, nil
	default:
		return "", fmt.Errorf("render: %q: %w", name, ErrUnknownChart)
	}
}

// Image size of every chart.
const (
	Width  = 12 * vg.Inch
	Height = 5 * vg.Inch
)

// eventWindow is the number of trailing months drawn on the SPEI_12 chart.
const eventWindow = 150

var (
	colorWine   = color.RGBA{R: 0x5F, G: 0x0F, B: 0x40, A: 255}
	colorRed    = color.RGBA{R: 0x9A, G: 0x03, B: 0x1E, A: 255}
	colorOrange = color.RGBA{R: 0xFB, G: 0x8B, B: 0x24, A: 255}
	colorRust   = color.RGBA{R: 0xE3, G: 0x64, B: 0x14, A: 255}
	colorTeal   = color.RGBA{R: 0x0F, G: 0x4C, B: 0x5C, A: 255}
	colorShade  = color.NRGBA{R: 0x9A, G: 0x03, B: 0x1E, A: 46}

	palette = []color.Color{colorTeal, colorOrange, colorRust, colorWine}
)

func newTimePlot(title, ylabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Title.TextStyle.Font.Size = vg.Points(14)
	p.X.Label.Text = "Fecha"
	p.Y.Label.Text = ylabel
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Legend.Top = true
	p.Add(plotter.NewGrid())
	return p
}

func unix(t time.Time) float64 {
	return float64(t.Unix())
}

func pointsXY(points []domain.MonthlyPoint) plotter.XYs {
	xys := make(plotter.XYs, len(points))
	for i, pt := range points {
		xys[i].X = unix(pt.Date)
		xys[i].Y = pt.Value
	}
	return xys
}

func addLine(p *plot.Plot, name string, xys plotter.XYs, c color.Color, dashed bool) error {
	l, err := plotter.NewLine(xys)
	if err != nil {
		return fmt.Errorf("render: %s: %w", name, err)
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = vg.Points(1.5)
	if dashed {
		l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	}
	p.Add(l)
	p.Legend.Add(name, l)
	return nil
}

// PrecipitationChart plots monthly precipitation against total evaporation,
// both in mm/month. obs must already be converted.
func PrecipitationChart(obs []domain.Observation) (*plot.Plot, error) {
	if len(obs) == 0 {
		return nil, ErrNoData
	}
	tp := make(plotter.XYs, len(obs))
	e := make(plotter.XYs, len(obs))
	for i, o := range obs {
		tp[i] = plotter.XY{X: unix(o.Time), Y: o.Tp}
		e[i] = plotter.XY{X: unix(o.Time), Y: o.E}
	}

	p := newTimePlot("Precipitación vs Evaporación total (mm/mes)", "mm/mes")
	if err := addLine(p, "Precipitación total", tp, colorTeal, false); err != nil {
		return nil, err
	}
	if err := addLine(p, "Evaporación total", e, colorOrange, false); err != nil {
		return nil, err
	}
	return p, nil
}

// IndexChart plots every window of one index family.
func IndexChart(a domain.Analysis, kind domain.IndexKind, windows []int) (*plot.Plot, error) {
	if len(a.Rows) == 0 {
		return nil, ErrNoData
	}
	if len(windows) == 0 {
		windows = domain.DefaultWindows
	}

	p := newTimePlot(fmt.Sprintf("%s en Riohacha (1, 3, 6 y 12 meses)", kind), string(kind))
	p.Y.Min, p.Y.Max = -climate.MaxIndex, climate.MaxIndex
	for i, w := range windows {
		key := domain.IndexKey{Kind: kind, Window: w}
		col := a.Column(key.String())
		if len(col) == 0 {
			continue
		}
		name := fmt.Sprintf("%s (k=%d meses)", kind, w)
		if err := addLine(p, name, pointsXY(col), palette[i%len(palette)], false); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// SPEI12Chart plots the trailing SPEI_12 values with the Mann-Kendall trend
// line and shades the historical events that overlap the plotted period.
func SPEI12Chart(a domain.Analysis, events []domain.HistoricalEvent) (*plot.Plot, error) {
	series := a.Column(climate.TrendLineIndex)
	if len(series) == 0 {
		return nil, ErrNoData
	}
	trend := a.TrendLine
	if n := len(series); n > eventWindow {
		series = series[n-eventWindow:]
	}
	if n := len(trend); n > eventWindow {
		trend = trend[n-eventWindow:]
	}

	p := newTimePlot("SPEI (k=12 meses), tendencia y eventos históricos", "SPEI (k=12 meses)")
	lo, hi := -climate.MaxIndex, climate.MaxIndex
	p.Y.Min, p.Y.Max = lo, hi

	from, to := series[0].Date, series[len(series)-1].Date
	for _, ev := range events {
		if ev.End.Before(from) || ev.Start.After(to) {
			continue
		}
		x0, x1 := unix(maxTime(ev.Start, from)), unix(minTime(ev.End, to))
		if x1 <= x0 {
			x1 = x0 + float64(24*time.Hour/time.Second)
		}
		band, err := plotter.NewPolygon(plotter.XYs{{X: x0, Y: lo}, {X: x1, Y: lo}, {X: x1, Y: hi}, {X: x0, Y: hi}})
		if err != nil {
			return nil, fmt.Errorf("render: event %q: %w", ev.Label, err)
		}
		band.Color = colorShade
		band.LineStyle.Width = 0
		p.Add(band)
	}

	if err := addLine(p, "SPEI (k=12 meses)", pointsXY(series), colorTeal, false); err != nil {
		return nil, err
	}
	if len(trend) > 0 {
		if err := addLine(p, "Tendencia (Mann-Kendall)", pointsXY(trend), colorRed, true); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// ProbabilityChart plots the monthly drought probability in percent with the
// risk band thresholds.
func ProbabilityChart(probs []domain.DroughtProbability) (*plot.Plot, error) {
	if len(probs) == 0 {
		return nil, ErrNoData
	}
	xys := make(plotter.XYs, len(probs))
	for i, pr := range probs {
		xys[i] = plotter.XY{X: unix(pr.Date), Y: pr.Percent}
	}

	p := newTimePlot("Evolución mensual de la probabilidad de sequía según el modelo", "Probabilidad de sequía (%)")
	p.Y.Min, p.Y.Max = 0, 100

	x0, x1 := xys[0].X, xys[len(xys)-1].X
	for _, th := range []float64{33, 50, 70, 90} {
		l, err := plotter.NewLine(plotter.XYs{{X: x0, Y: th}, {X: x1, Y: th}})
		if err != nil {
			return nil, fmt.Errorf("render: threshold %v: %w", th, err)
		}
		l.LineStyle.Color = color.Gray{Y: 160}
		l.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(3)}
		p.Add(l)
	}

	if err := addLine(p, "Probabilidad de sequía", xys, colorRed, false); err != nil {
		return nil, err
	}
	return p, nil
}

// WritePNG encodes p as a PNG image.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("render: failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("render: failed to write png: %w", err)
	}
	return nil
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
