package viz

import (
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/odomctl/internal/storage"
	"github.com/san-kum/odomctl/internal/units"
)

// DefaultWidth is the plot width used by reports.
const DefaultWidth = 72

// RunSummary renders the metadata and metrics of a run as a panel.
func RunSummary(meta storage.RunMetadata) string {
	var b strings.Builder
	b.WriteString(Title.Render(meta.ID) + "\n")

	status := StatusOK.Render("ok")
	if meta.Error != "" {
		status = StatusFailed.Render(meta.Error)
	}

	target := fmt.Sprintf("%.3f m", meta.Target)
	if meta.Kind == "turn" {
		target = fmt.Sprintf("%.2f deg", units.ToDegrees(meta.Target))
	}

	rows := [][2]string{
		{"kind", meta.Kind},
		{"target", target},
		{"status", status},
		{"recorded", meta.Timestamp.Format("2006-01-02 15:04:05")},
		{"odometry", meta.Odometry},
		{"source", meta.Source + " / " + meta.Integrator},
		{"period", meta.Period.String()},
		{"final pose", meta.FinalPose.String()},
	}
	for _, r := range rows {
		b.WriteString(MetricLabel.Render(r[0]) + r[1] + "\n")
	}

	if len(meta.Metrics) > 0 {
		b.WriteString("\n" + HeaderStyle.Render("step response") + "\n")
		names := make([]string, 0, len(meta.Metrics))
		for name := range meta.Metrics {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			b.WriteString(MetricLabel.Render(name) + MetricValue.Render(fmt.Sprintf("%.4f", meta.Metrics[name])) + "\n")
		}
	}

	return Panel.Render(strings.TrimRight(b.String(), "\n"))
}

// ResponsePlot charts target and measured input over the run. It returns
// an empty string when there is nothing to plot.
func ResponsePlot(traj []storage.Point, width int) string {
	if len(traj) < 2 {
		return ""
	}
	_, targets, inputs, _ := storage.Columns(traj)
	return asciigraph.PlotMany([][]float64{targets, inputs},
		asciigraph.Height(12),
		asciigraph.Width(width),
		asciigraph.Precision(3),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
		asciigraph.Caption(fmt.Sprintf("target (blue) and input (red) over %.2fs", traj[len(traj)-1].Time-traj[0].Time)),
	)
}

// OutputPlot charts the controller output.
func OutputPlot(traj []storage.Point, width int) string {
	if len(traj) < 2 {
		return ""
	}
	_, _, _, outputs := storage.Columns(traj)
	return asciigraph.Plot(outputs,
		asciigraph.Height(6),
		asciigraph.Width(width),
		asciigraph.Precision(2),
		asciigraph.Caption("controller output"),
	)
}

// ErrorSparkline renders |target - input| as a sparkline.
func ErrorSparkline(traj []storage.Point, width int) string {
	errs := make([]float64, len(traj))
	for i, p := range traj {
		errs[i] = math.Abs(p.Target - p.Input)
	}
	return Sparkline(errs, width)
}

// PathMap draws the driven path seen from above, forward pointing up and
// right-hand side to the right.
func PathMap(traj []storage.Point, width, height int) string {
	c := NewCanvas(width, height)
	xs := make([]float64, len(traj))
	ys := make([]float64, len(traj))
	for i, p := range traj {
		xs[i], ys[i] = p.X, p.Y
	}
	c.DrawPath(ys, xs)
	return c.String()
}

// Report renders the full terminal report of a run.
func Report(meta storage.RunMetadata, traj []storage.Point, width int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	parts := []string{RunSummary(meta)}
	if plot := ResponsePlot(traj, width); plot != "" {
		parts = append(parts,
			plot,
			OutputPlot(traj, width),
			Subtle.Render("error ")+ErrorSparkline(traj, width-6),
			Separator(width),
			Title.Render("path")+"\n"+PathMap(traj, width/2, 12),
		)
	} else {
		parts = append(parts, Subtle.Render("no trajectory recorded"))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// RunTable renders a list of runs, one per line.
func RunTable(runs []storage.RunMetadata) string {
	if len(runs) == 0 {
		return Subtle.Render("no runs recorded")
	}
	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%-48s %-6s %10s %8s  %s", "ID", "KIND", "TARGET", "IAE", "STATUS")) + "\n")
	for _, r := range runs {
		status := StatusOK.Render("ok")
		if r.Error != "" {
			status = StatusFailed.Render("failed")
		}
		iae := "-"
		if v, ok := r.Metrics["iae"]; ok {
			iae = fmt.Sprintf("%.4f", v)
		}
		fmt.Fprintf(&b, "%-48s %-6s %10.3f %8s  %s\n", r.ID, r.Kind, r.Target, iae, status)
	}
	return strings.TrimRight(b.String(), "\n")
}
