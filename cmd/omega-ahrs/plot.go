package main

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"omega-ahrs/internal/ahrs"
	"omega-ahrs/internal/quat"
	"omega-ahrs/internal/sim"
)

var axisColors = [3]color.RGBA{
	{R: 0xD6, G: 0x27, B: 0x28, A: 0xFF}, // roll
	{R: 0x1F, G: 0x77, B: 0xB4, A: 0xFF}, // pitch
	{R: 0x2C, G: 0xA0, B: 0x2C, A: 0xFF}, // yaw
}

// savePlot draws the wrapped Euler error of every row against time, with the
// steps spent in the STRONG state shaded, and writes it to path. The image
// format follows the file extension (png, svg, pdf, ...).
func savePlot(rows []sim.Row, path string) error {
	if len(rows) == 0 {
		return fmt.Errorf("no rows to plot")
	}

	p := plot.New()
	p.Title.Text = "Attitude error"
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "error (deg)"
	p.Add(plotter.NewGrid())

	errs := eulerErrorsDeg(rows)
	lo, hi := 0.0, 0.0
	for axis, name := range []string{"roll", "pitch", "yaw"} {
		pts := make(plotter.XYs, len(rows))
		for i, r := range rows {
			pts[i].X = r.Time.Seconds()
			pts[i].Y = errs[axis][i]
			lo, hi = math.Min(lo, pts[i].Y), math.Max(hi, pts[i].Y)
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.LineStyle.Width = vg.Points(1.5)
		line.LineStyle.Color = axisColors[axis]
		p.Add(line)
		p.Legend.Add(name, line)
	}

	if strong := strongSpans(rows, lo, hi); len(strong) > 0 {
		bars, err := plotter.NewLine(strong)
		if err != nil {
			return err
		}
		bars.LineStyle.Width = vg.Points(0.5)
		bars.LineStyle.Color = color.Gray{Y: 0x90}
		bars.LineStyle.Dashes = []vg.Length{vg.Points(2), vg.Points(2)}
		p.Add(bars)
		p.Legend.Add("strong", bars)
	}
	p.Legend.Top = true

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

// eulerErrorsDeg returns estimate minus truth per axis (roll, pitch, yaw),
// wrapped to (-180, 180] degrees.
func eulerErrorsDeg(rows []sim.Row) [3][]float64 {
	var out [3][]float64
	for axis := range out {
		out[axis] = make([]float64, len(rows))
	}
	for i, r := range rows {
		d := [3]float64{
			r.EstEuler.Roll - r.TrueEuler.Roll,
			r.EstEuler.Pitch - r.TrueEuler.Pitch,
			r.EstEuler.Yaw - r.TrueEuler.Yaw,
		}
		for axis := range d {
			out[axis][i] = quat.WrapAngle(d[axis]) * 180 / math.Pi
		}
	}
	return out
}

// strongSpans outlines each run of STRONG rows as a rectangle spanning
// [lo, hi]. Consecutive rectangles are joined along the lo edge.
func strongSpans(rows []sim.Row, lo, hi float64) plotter.XYs {
	var pts plotter.XYs
	start := -1
	flush := func(end int) {
		t0, t1 := rows[start].Time.Seconds(), rows[end].Time.Seconds()
		pts = append(pts,
			plotter.XY{X: t0, Y: lo}, plotter.XY{X: t0, Y: hi},
			plotter.XY{X: t1, Y: hi}, plotter.XY{X: t1, Y: lo},
		)
		start = -1
	}
	for i, r := range rows {
		if r.State == ahrs.DisturbanceStrong {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			flush(i - 1)
		}
	}
	if start >= 0 {
		flush(len(rows) - 1)
	}
	return pts
}
