package render

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/gogpu/gg"

	"github.com/banshee-data/rovermap/internal/pathstore"
)

// DefaultCanvasSize is the side of the square drawing surface in pixels.
const DefaultCanvasSize = 400

// Extent is the normalised range of both axes. A canvas of another size
// draws the same normalised path scaled to its pixels.
const Extent = 400

const (
	lineWidth    = 2
	markerRadius = 2
)

// Canvas is the live drawing surface. Every Redraw paints the whole path
// from scratch and keeps the encoded PNG for readers.
type Canvas struct {
	size int

	mu     sync.RWMutex
	png    []byte
	frames int64
	points int
}

// NewCanvas returns a canvas holding a blank frame.
func NewCanvas(size int) (*Canvas, error) {
	if size <= 0 {
		size = DefaultCanvasSize
	}
	c := &Canvas{size: size}
	if err := c.Redraw(nil); err != nil {
		return nil, err
	}
	c.frames = 0
	return c, nil
}

// Size returns the side length in pixels.
func (c *Canvas) Size() int { return c.size }

// Redraw clears the surface and draws samples as blue segments with a red
// marker on every point.
func (c *Canvas) Redraw(samples []pathstore.Sample) error {
	points := Normalize(samples, Extent)
	scale := float64(c.size) / Extent
	for i := range points {
		points[i].X *= scale
		points[i].Y *= scale
	}

	dc := gg.NewContext(c.size, c.size)
	defer dc.Close()
	dc.ClearWithColor(gg.White)

	if len(points) > 1 {
		dc.SetRGB(0, 0, 1)
		dc.SetLineWidth(lineWidth)
		dc.MoveTo(points[0].X, points[0].Y)
		for _, p := range points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		if err := dc.Stroke(); err != nil {
			return fmt.Errorf("stroke path: %w", err)
		}
	}

	if len(points) > 0 {
		dc.SetRGB(1, 0, 0)
		for _, p := range points {
			dc.DrawCircle(p.X, p.Y, markerRadius)
		}
		if err := dc.Fill(); err != nil {
			return fmt.Errorf("fill markers: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return fmt.Errorf("encode canvas: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.png = buf.Bytes()
	c.frames++
	c.points = len(points)
	return nil
}

// PNG returns the most recent frame. The slice must not be modified.
func (c *Canvas) PNG() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.png
}

// Frames counts completed redraws.
func (c *Canvas) Frames() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// Points returns how many samples the current frame shows.
func (c *Canvas) Points() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.points
}
