// Package monitor renders aligned sensor magnitudes as PNG plots and
// interactive HTML charts.
package monitor

import (
	"fmt"
	"image/color"
	"io"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/swing.report/internal/swing"
)

// Quantity selects which magnitude a chart shows.
type Quantity int

const (
	Gyro Quantity = iota
	Acc
)

func (q Quantity) String() string {
	if q == Acc {
		return "acc"
	}
	return "gyro"
}

// Label returns the axis label with units.
func (q Quantity) Label() string {
	if q == Acc {
		return "|acc| (g)"
	}
	return "|gyro| (deg/s)"
}

// Default PNG size.
const (
	DefaultWidth  = 14 * vg.Inch
	DefaultHeight = 6 * vg.Inch
)

// roleColors are fixed so the same role has the same colour everywhere.
var roleColors = map[swing.SensorRole]color.RGBA{
	swing.RoleWaist:    {R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	swing.RoleShoulder: {R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	swing.RoleWrist:    {R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	swing.RoleRacket:   {R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
}

// Values returns the selected magnitude of s.
func Values(s *swing.AlignedSeries, q Quantity) []float64 {
	if q == Acc {
		return s.AccMagnitudes
	}
	return s.GyroMagnitudes
}

// MagnitudePlot draws one line per role over the union window with the
// detected peaks marked. minDistance is the peak spacing in samples.
func MagnitudePlot(a swing.Alignment, q Quantity, minDistance int) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s magnitude", q)
	p.X.Label.Text = "time since window start (s)"
	p.Y.Label.Text = q.Label()
	p.Add(plotter.NewGrid())
	p.Legend.Top = true

	for _, role := range swing.Roles {
		s, ok := a.Series[role]
		if !ok || s.Len() == 0 {
			continue
		}
		vals := Values(s, q)
		pts := make(plotter.XYs, len(vals))
		for i, v := range vals {
			pts[i] = plotter.XY{X: s.Times[i], Y: v}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s line: %w", role, err)
		}
		line.Color = roleColors[role]
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(string(role), line)

		peaks := swing.DetectPeaks(vals, nil, minDistance)
		if peaks.Len() == 0 {
			continue
		}
		peakPts := make(plotter.XYs, peaks.Len())
		for i, idx := range peaks.Indices {
			peakPts[i] = plotter.XY{X: s.Times[idx], Y: vals[idx]}
		}
		marks, err := plotter.NewScatter(peakPts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s peaks: %w", role, err)
		}
		marks.GlyphStyle.Shape = draw.CrossGlyph{}
		marks.GlyphStyle.Color = roleColors[role]
		marks.GlyphStyle.Radius = vg.Points(3)
		p.Add(marks)
	}
	return p, nil
}

// WritePNG renders p as PNG to w.
func WritePNG(w io.Writer, p *plot.Plot, width, height vg.Length) error {
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders the magnitude plot of a to path.
func SavePNG(path string, a swing.Alignment, q Quantity, minDistance int) error {
	p, err := MagnitudePlot(a, q, minDistance)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WritePNG(f, p, DefaultWidth, DefaultHeight); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
