package main

import (
	"context"
	"errors"
	"flag"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rovermap/internal/fsutil"
	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/panel"
	"github.com/banshee-data/rovermap/internal/pathstore"
	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/roverlink"
	"github.com/banshee-data/rovermap/internal/testutil"
)

func TestParseFlags_Defaults(t *testing.T) {
	opts, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	cfg := opts.cfg
	assert.Equal(t, "192.168.147.159", cfg.GetHost())
	assert.Equal(t, 80, cfg.GetPort())
	assert.Equal(t, "localhost:8080", cfg.GetListen())
	assert.Equal(t, "2D_map.png", cfg.GetOutputFile())
	assert.Equal(t, 10*time.Second, cfg.GetConnectTimeout())
	assert.False(t, cfg.GetResetOnStart())
	assert.False(t, opts.dev)
	assert.False(t, opts.showVersion)
}

func TestParseFlags_ConfigFileAndOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rover.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"host": "10.1.1.1", "port": 8023, "reset_on_start": true, "read_timeout": "2s"}`), 0644))

	tests := []struct {
		name      string
		args      []string
		wantHost  string
		wantPort  int
		wantReset bool
	}{
		{"file only", []string{"-config", path}, "10.1.1.1", 8023, true},
		{"flag overrides host", []string{"-config", path, "-host", "rover.local"}, "rover.local", 8023, true},
		{"flag overrides bool", []string{"-config", path, "-reset-on-start=false"}, "10.1.1.1", 8023, false},
		{"flags without file", []string{"-port", "9000", "-reset-on-start"}, "192.168.147.159", 9000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args, io.Discard)
			require.NoError(t, err)
			assert.Equal(t, tt.wantHost, opts.cfg.GetHost())
			assert.Equal(t, tt.wantPort, opts.cfg.GetPort())
			assert.Equal(t, tt.wantReset, opts.cfg.GetResetOnStart())
		})
	}

	opts, err := parseFlags([]string{"-config", path}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, opts.cfg.GetReadTimeout())
}

func TestParseFlags_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"-bogus"}},
		{"bad port", []string{"-port", "0"}},
		{"output not png", []string{"-output", "map.txt"}},
		{"missing config", []string{"-config", "/nonexistent/rover.json"}},
		{"positional args", []string{"extra"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}

	_, err := parseFlags([]string{"-h"}, io.Discard)
	assert.True(t, errors.Is(err, flag.ErrHelp))
}

func TestParseFlags_VersionAndDev(t *testing.T) {
	opts, err := parseFlags([]string{"-version", "-dev"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, opts.showVersion)
	assert.True(t, opts.dev)
}

func TestNewDialer(t *testing.T) {
	opts, err := parseFlags([]string{"-host", "10.0.0.2", "-port", "81"}, io.Discard)
	require.NoError(t, err)
	d, err := newDialer(opts.cfg)
	require.NoError(t, err)
	assert.IsType(t, &roverlink.TCPDialer{}, d)
	assert.Equal(t, "10.0.0.2:81", d.String())

	opts, err = parseFlags([]string{"-serial", "/dev/ttyUSB0", "-baud", "9600"}, io.Discard)
	require.NoError(t, err)
	d, err = newDialer(opts.cfg)
	require.NoError(t, err)
	assert.IsType(t, &roverlink.SerialDialer{}, d)
	assert.Equal(t, "/dev/ttyUSB0", d.String())
}

// TestRoverEndToEnd maps a simulated rover over real TCP and saves the map.
func TestRoverEndToEnd(t *testing.T) {
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.Logf = original })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sim, err := roverlink.NewSimulator("127.0.0.1:0", 2*time.Millisecond, nil)
	require.NoError(t, err)
	sim.NoiseEvery = 5
	go sim.Serve(ctx)
	defer sim.Close()

	simOpts := sim.Options()
	opts, err := parseFlags([]string{"-host", simOpts.Host, "-port", strconv.Itoa(simOpts.Port)}, io.Discard)
	require.NoError(t, err)
	dialer, err := newDialer(opts.cfg)
	require.NoError(t, err)

	store := pathstore.New()
	link := roverlink.NewManager(dialer, store, 20*time.Millisecond)
	defer link.Close()
	canvas, err := render.NewCanvas(opts.cfg.GetCanvasSize())
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "2D_map.png")
	p := panel.New(link, store, canvas, render.NewExporter(fsutil.OSFileSystem{}, out), panel.Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	require.False(t, p.Start(ctx).Dialog)
	testutil.WaitFor(t, "a lap of the square", func() bool { return store.Len() >= 40 })
	assert.Equal(t, "Mapping stopped", p.Stop(ctx).Message)

	samples := store.Snapshot()
	for i, s := range samples {
		require.Equal(t, roverlink.SquarePath(i), s, "sample %d", i)
	}
	assert.Greater(t, link.Counters().Malformed.Load(), int64(0), "noise lines are discarded")

	n := p.Save(ctx)
	assert.Equal(t, "Map saved as 2D_map.png", n.Message)
	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	require.NoError(t, err)

	testutil.WaitFor(t, "STOP at the simulator", func() bool {
		cmds := sim.Commands()
		return len(cmds) == 2 && cmds[1] == roverlink.CommandStop
	})

	cancel()
	<-done
}
