package viz

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/odomctl/internal/storage"
)

var ErrNoData = errors.New("viz: trajectory has fewer than two points")

var (
	targetColor = color.RGBA{R: 40, G: 90, B: 220, A: 255}
	inputColor  = color.RGBA{R: 220, G: 50, B: 50, A: 255}
	outputColor = color.RGBA{R: 40, G: 160, B: 90, A: 255}
)

func addLine(p *plot.Plot, label string, pts plotter.XYs, c color.Color) error {
	line, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("viz: %s line: %w", label, err)
	}
	line.Color = c
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Legend.Add(label, line)
	return nil
}

func styleLegend(p *plot.Plot) {
	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10
	p.Add(plotter.NewGrid())
}

// SaveResponsePNG writes target, input and output against time. The image
// format follows the file extension.
func SaveResponsePNG(path, title string, traj []storage.Point) error {
	if len(traj) < 2 {
		return ErrNoData
	}

	target := make(plotter.XYs, len(traj))
	input := make(plotter.XYs, len(traj))
	output := make(plotter.XYs, len(traj))
	for i, pt := range traj {
		target[i] = plotter.XY{X: pt.Time, Y: pt.Target}
		input[i] = plotter.XY{X: pt.Time, Y: pt.Input}
		output[i] = plotter.XY{X: pt.Time, Y: pt.Output}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "time (s)"
	p.Y.Label.Text = "value"
	styleLegend(p)

	for _, l := range []struct {
		label string
		pts   plotter.XYs
		c     color.Color
	}{
		{"target", target, targetColor},
		{"input", input, inputColor},
		{"output", output, outputColor},
	} {
		if err := addLine(p, l.label, l.pts, l.c); err != nil {
			return err
		}
	}

	return p.Save(10*vg.Inch, 5*vg.Inch, path)
}

// SavePathPNG writes the driven path seen from above with equal axis
// scales: lateral offset on the horizontal axis and forward distance on the
// vertical.
func SavePathPNG(path, title string, traj []storage.Point) error {
	if len(traj) < 2 {
		return ErrNoData
	}

	pts := make(plotter.XYs, len(traj))
	for i, pt := range traj {
		pts[i] = plotter.XY{X: pt.Y, Y: pt.X}
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "y (m, right)"
	p.Y.Label.Text = "x (m, forward)"
	styleLegend(p)

	if err := addLine(p, "path", pts, inputColor); err != nil {
		return err
	}
	start, err := plotter.NewScatter(pts[:1])
	if err != nil {
		return err
	}
	start.GlyphStyle.Color = targetColor
	start.GlyphStyle.Radius = vg.Points(4)
	p.Add(start)
	p.Legend.Add("start", start)

	squareAxes(p)
	return p.Save(6*vg.Inch, 6*vg.Inch, path)
}

// squareAxes widens the shorter axis so both share one scale.
func squareAxes(p *plot.Plot) {
	dx := p.X.Max - p.X.Min
	dy := p.Y.Max - p.Y.Min
	span := max(dx, dy, 0.01)
	cx := (p.X.Max + p.X.Min) / 2
	cy := (p.Y.Max + p.Y.Min) / 2
	p.X.Min, p.X.Max = cx-span/2, cx+span/2
	p.Y.Min, p.Y.Max = cy-span/2, cy+span/2
}
