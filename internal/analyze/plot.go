package analyze

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/robin-collins/arecordd/internal/store"
)

// RenderChart draws the RMS timeline with speech frames highlighted and
// saves it to outputPath (format chosen by extension, typically .png).
func RenderChart(samples []store.TaggedSample, outputPath string) error {
	if len(samples) == 0 {
		return fmt.Errorf("no samples in the selected time range")
	}

	p := plot.New()
	p.Title.Text = "Audio RMS Timeline"
	p.X.Label.Text = "Time"
	p.Y.Label.Text = "RMS (% full scale)"
	p.X.Tick.Marker = plot.TimeTicks{Format: "15:04:05"}

	rmsLine := make(plotter.XYs, 0, len(samples))
	speechPoints := make(plotter.XYs, 0, len(samples)/4)

	for i := range samples {
		s := &samples[i]
		x := float64(s.Timestamp.Unix()) + float64(s.Timestamp.Nanosecond())/1e9

		rmsLine = append(rmsLine, plotter.XY{X: x, Y: s.RMSPercent})
		if s.Speech {
			speechPoints = append(speechPoints, plotter.XY{X: x, Y: s.RMSPercent})
		}
	}

	line, err := plotter.NewLine(rmsLine)
	if err != nil {
		return fmt.Errorf("build rms line: %w", err)
	}
	line.Color = color.RGBA{R: 70, G: 130, B: 180, A: 255}
	p.Add(line)
	p.Legend.Add("rms", line)

	if len(speechPoints) > 0 {
		scatter, err := plotter.NewScatter(speechPoints)
		if err != nil {
			return fmt.Errorf("build speech scatter: %w", err)
		}
		scatter.GlyphStyle.Color = color.RGBA{R: 220, G: 60, B: 60, A: 255}
		scatter.GlyphStyle.Radius = vg.Points(1.5)
		p.Add(scatter)
		p.Legend.Add("speech", scatter)
	}

	if err := p.Save(12*vg.Inch, 4*vg.Inch, outputPath); err != nil {
		return fmt.Errorf("save chart: %w", err)
	}

	return nil
}
