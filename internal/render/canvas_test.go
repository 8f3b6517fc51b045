package render

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rovermap/internal/pathstore"
)

func decodeFrame(t *testing.T, c *Canvas) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(c.PNG()))
	require.NoError(t, err)
	return img
}

// isReddish and isBluish tolerate anti-aliased edges.
func isReddish(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r > 0xc000 && g < 0x8000 && b < 0x8000
}

func isBluish(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return b > 0xc000 && r < 0x8000 && g < 0x8000
}

func isWhite(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return r == 0xffff && g == 0xffff && b == 0xffff
}

func TestNewCanvas_BlankFrame(t *testing.T) {
	c, err := NewCanvas(0)
	require.NoError(t, err)
	assert.Equal(t, DefaultCanvasSize, c.Size())
	assert.Equal(t, int64(0), c.Frames())

	img := decodeFrame(t, c)
	assert.Equal(t, image.Rect(0, 0, 400, 400), img.Bounds())
	for _, pt := range []image.Point{{0, 0}, {200, 200}, {399, 399}} {
		assert.True(t, isWhite(img, pt.X, pt.Y), "pixel %v not white", pt)
	}
}

func TestCanvas_RedrawDrawsPathAndMarkers(t *testing.T) {
	c, err := NewCanvas(400)
	require.NoError(t, err)

	// normalised to (0,200) and (400,200): a horizontal line through the middle
	samples := []pathstore.Sample{{X: 0, Y: 5}, {X: 100, Y: 5}, {X: 50, Y: 5}}
	require.NoError(t, c.Redraw(samples))

	assert.Equal(t, int64(1), c.Frames())
	assert.Equal(t, 3, c.Points())

	img := decodeFrame(t, c)
	assert.True(t, isBluish(img, 100, 200), "segment pixel not blue")
	assert.True(t, isReddish(img, 200, 200), "marker pixel not red")
	assert.True(t, isWhite(img, 100, 50), "background pixel not white")
}

func TestCanvas_RedrawIsFull(t *testing.T) {
	c, err := NewCanvas(400)
	require.NoError(t, err)

	require.NoError(t, c.Redraw([]pathstore.Sample{{X: 0, Y: 0}, {X: 10, Y: 0}}))
	first := decodeFrame(t, c)
	require.True(t, isBluish(first, 100, 200))

	// the same samples plus a vertical leg move the old line to y=0
	require.NoError(t, c.Redraw([]pathstore.Sample{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}))
	second := decodeFrame(t, c)
	assert.True(t, isWhite(second, 100, 200), "stale segment left behind")
	assert.Equal(t, int64(2), c.Frames())
}

func TestCanvas_SingleSampleDrawsMarkerOnly(t *testing.T) {
	c, err := NewCanvas(400)
	require.NoError(t, err)
	require.NoError(t, c.Redraw([]pathstore.Sample{{X: 3, Y: 4}}))

	img := decodeFrame(t, c)
	assert.True(t, isReddish(img, 200, 200))
	assert.True(t, isWhite(img, 210, 200))
}

func TestCanvas_OtherSizeScalesNormalisedPath(t *testing.T) {
	c, err := NewCanvas(200)
	require.NoError(t, err)

	// normalised to (0,200) and (400,200), drawn at half scale
	require.NoError(t, c.Redraw([]pathstore.Sample{{X: 0, Y: 5}, {X: 100, Y: 5}, {X: 50, Y: 5}}))

	img := decodeFrame(t, c)
	assert.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())
	assert.True(t, isBluish(img, 50, 100), "segment pixel not blue")
	assert.True(t, isReddish(img, 100, 100), "marker pixel not red")
	assert.True(t, isWhite(img, 50, 20), "background pixel not white")
}
