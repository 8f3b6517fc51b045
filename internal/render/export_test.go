package render

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rovermap/internal/fsutil"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pathstore"
)

var lPath = []pathstore.Sample{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}

func TestExporter_EmptyPathWritesNothing(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := NewExporter(mfs, "")

	_, err := e.Save(nil)
	require.ErrorIs(t, err, ErrNoSamples)
	assert.Equal(t, 0, mfs.Creates())
	assert.Empty(t, mfs.Files())
}

func TestExporter_SaveWritesPNG(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	e := NewExporter(mfs, "")
	require.Equal(t, DefaultOutputFile, e.Path())

	path, err := e.Save(lPath)
	require.NoError(t, err)
	assert.Equal(t, "2D_map.png", path)

	data, err := mfs.ReadFile("2D_map.png")
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Greater(t, cfg.Width, cfg.Height)
}

func TestExporter_SaveOverwrites(t *testing.T) {
	var logged []string
	original := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logged = append(logged, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.Logf = original })

	mfs := fsutil.NewMemoryFileSystem()
	e := NewExporter(mfs, "2D_map.png")

	_, err := e.Save(lPath[:1])
	require.NoError(t, err)
	first, _ := mfs.ReadFile("2D_map.png")
	assert.Empty(t, logged, "first save replaces nothing")

	_, err = e.Save(lPath)
	require.NoError(t, err)
	second, _ := mfs.ReadFile("2D_map.png")

	assert.NotEqual(t, first, second)
	assert.Equal(t, []string{"2D_map.png"}, mfs.Files())
	assert.Equal(t, []string{"render: replacing 2D_map.png"}, logged)
}

func TestExporter_WriteFailure(t *testing.T) {
	mfs := fsutil.NewMemoryFileSystem()
	mfs.CreateErr = errors.New("disk full")
	e := NewExporter(mfs, "2D_map.png")

	_, err := e.Save(lPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NotErrorIs(t, err, ErrNoSamples)
}

func TestExporter_OSFileSystem(t *testing.T) {
	target := filepath.Join(t.TempDir(), "2D_map.png")
	e := NewExporter(nil, target)

	_, err := e.Save(lPath)
	require.NoError(t, err)

	f, err := os.Open(target)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)
}

func TestMapPlot_Labels(t *testing.T) {
	p, err := MapPlot(lPath)
	require.NoError(t, err)
	assert.Equal(t, "2D Map", p.Title.Text)
	assert.Equal(t, "X (cm)", p.X.Label.Text)
	assert.Equal(t, "Y (cm)", p.Y.Label.Text)
	// original units, not normalised
	assert.LessOrEqual(t, p.X.Min, 0.0)
	assert.GreaterOrEqual(t, p.X.Max, 10.0)
}
