// Package render turns a rover path into pictures: the live canvas shown
// by the control panel, the exported 2D_map.png and a debug chart.
package render

import (
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/rovermap/internal/pathstore"
)

// Point is a position on the drawing surface.
type Point struct {
	X, Y float64
}

// Normalize rescales each axis independently so its minimum lands on 0 and
// its maximum on extent. An axis with zero range is centred at extent/2.
func Normalize(samples []pathstore.Sample, extent float64) []Point {
	if len(samples) == 0 {
		return nil
	}
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.X
		ys[i] = s.Y
	}
	scaleAxis(xs, extent)
	scaleAxis(ys, extent)

	points := make([]Point, len(samples))
	for i := range points {
		points[i] = Point{X: xs[i], Y: ys[i]}
	}
	return points
}

func scaleAxis(v []float64, extent float64) {
	lo, hi := floats.Min(v), floats.Max(v)
	span := hi - lo
	if span == 0 {
		for i := range v {
			v[i] = extent / 2
		}
		return
	}
	// dividing before scaling keeps hi on exactly extent
	floats.AddConst(-lo, v)
	for i := range v {
		v[i] = v[i] / span * extent
	}
}
