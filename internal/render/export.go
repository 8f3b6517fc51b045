package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/rovermap/internal/fsutil"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pathstore"
)

// DefaultOutputFile is where Save writes unless configured otherwise.
const DefaultOutputFile = "2D_map.png"

// ErrNoSamples is returned by Save when there is nothing to plot.
var ErrNoSamples = errors.New("no map data to save")

var (
	pathColor   = color.RGBA{B: 255, A: 255}
	markerColor = color.RGBA{R: 255, A: 255}
)

// Exporter writes the path as a line-and-marker plot in rover units.
type Exporter struct {
	fs   fsutil.FileSystem
	path string

	Width, Height vg.Length
}

// NewExporter returns an exporter writing to path through fsys.
func NewExporter(fsys fsutil.FileSystem, path string) *Exporter {
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if path == "" {
		path = DefaultOutputFile
	}
	return &Exporter{
		fs:     fsys,
		path:   path,
		Width:  6.4 * vg.Inch,
		Height: 4.8 * vg.Inch,
	}
}

// Path is the file Save writes.
func (e *Exporter) Path() string { return e.path }

// Save renders samples and overwrites the output file. An empty path is
// ErrNoSamples and nothing is written.
func (e *Exporter) Save(samples []pathstore.Sample) (string, error) {
	if len(samples) == 0 {
		return "", ErrNoSamples
	}

	p, err := MapPlot(samples)
	if err != nil {
		return "", err
	}
	wt, err := p.WriterTo(e.Width, e.Height, "png")
	if err != nil {
		return "", fmt.Errorf("render plot: %w", err)
	}

	if e.fs.Exists(e.path) {
		monitoring.Logf("render: replacing %s", e.path)
	}
	err = fsutil.WriteAtomic(e.fs, e.path, func(w io.Writer) error {
		_, err := wt.WriteTo(w)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", e.path, err)
	}
	return e.path, nil
}

// MapPlot builds the exported figure: the path in arrival order with a
// marker on every sample, axes in centimetres.
func MapPlot(samples []pathstore.Sample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "2D Map"
	p.X.Label.Text = "X (cm)"
	p.Y.Label.Text = "Y (cm)"
	p.Add(plotter.NewGrid())

	xys := make(plotter.XYs, len(samples))
	for i, s := range samples {
		xys[i] = plotter.XY{X: s.X, Y: s.Y}
	}

	line, points, err := plotter.NewLinePoints(xys)
	if err != nil {
		return nil, fmt.Errorf("build path plot: %w", err)
	}
	line.Color = pathColor
	line.Width = vg.Points(1.5)
	points.Shape = draw.CircleGlyph{}
	points.Color = markerColor
	points.Radius = vg.Points(3)

	p.Add(line, points)
	return p, nil
}
