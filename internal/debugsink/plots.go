package debugsink

import (
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/impedance/internal/monitoring"
	"github.com/banshee-data/impedance/internal/security"
)

// SavePlots writes one PNG per non-empty label into dir and returns the number
// of files written.
func (r *Recorder) SavePlots(dir string) (int, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create plot dir: %w", err)
	}

	written := 0
	for i, label := range r.Labels() {
		samples := r.Series(label)
		if len(samples) == 0 {
			continue
		}

		pts := make(plotter.XYs, len(samples))
		for j, s := range samples {
			pts[j].X = s.Timestamp
			pts[j].Y = s.Value
		}

		p := plot.New()
		p.Title.Text = label
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = axisLabel(label)

		line, err := plotter.NewLine(pts)
		if err != nil {
			return written, fmt.Errorf("line for %s: %w", label, err)
		}
		line.Color = plotutil.Color(i)
		line.Width = vg.Points(1)
		p.Add(line, plotter.NewGrid())

		file := filepath.Join(dir, security.SanitizeFilename(label)+".png")
		if err := p.Save(14*vg.Inch, 4*vg.Inch, file); err != nil {
			return written, fmt.Errorf("save %s plot: %w", label, err)
		}
		written++
	}
	monitoring.Logf("debugsink: wrote %d plots to %s", written, dir)
	return written, nil
}

func axisLabel(label string) string {
	switch label {
	case LabelVAE, LabelSQI:
		return "Score"
	default:
		return "Impedance (Ω)"
	}
}
