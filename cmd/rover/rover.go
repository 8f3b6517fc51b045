package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/rovermap/internal/api"
	"github.com/banshee-data/rovermap/internal/config"
	"github.com/banshee-data/rovermap/internal/fsutil"
	"github.com/banshee-data/rovermap/internal/panel"
	"github.com/banshee-data/rovermap/internal/pathstore"
	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/roverlink"
	"github.com/banshee-data/rovermap/internal/security"
	"github.com/banshee-data/rovermap/internal/version"
)

// devInterval paces the built-in simulator in -dev mode.
const devInterval = 200 * time.Millisecond

type cliOptions struct {
	cfg         *config.RoverConfig
	dev         bool
	showVersion bool
}

// parseFlags reads the command line and the optional config file. Flags
// given explicitly on the command line override the file.
func parseFlags(args []string, stderr io.Writer) (*cliOptions, error) {
	fs := flag.NewFlagSet("rover", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		host         = fs.String("host", roverlink.DefaultHost, "Rover address")
		port         = fs.Int("port", roverlink.DefaultPort, "Rover TCP port")
		listen       = fs.String("listen", config.DefaultListen, "Control panel listen address")
		output       = fs.String("output", render.DefaultOutputFile, "File written by Save")
		configPath   = fs.String("config", "", "Path to a JSON config file")
		dev          = fs.Bool("dev", false, "Map a simulated rover instead of a real one")
		serialPort   = fs.String("serial", "", "Serial device of a USB attached rover (replaces TCP)")
		baud         = fs.Int("baud", roverlink.DefaultBaudRate, "Serial baud rate")
		resetOnStart = fs.Bool("reset-on-start", false, "Clear the path on every Start")
		showVersion  = fs.Bool("version", false, "Print version information and exit")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	cfg := &config.RoverConfig{}
	if *configPath != "" {
		loaded, err := config.LoadRoverConfig(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	override := &config.RoverConfig{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			override.Host = host
		case "port":
			override.Port = port
		case "listen":
			override.Listen = listen
		case "output":
			override.OutputFile = output
		case "serial":
			override.SerialPort = serialPort
		case "baud":
			override.BaudRate = baud
		case "reset-on-start":
			override.ResetOnStart = resetOnStart
		}
	})
	cfg.Apply(override)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cliOptions{cfg: cfg, dev: *dev, showVersion: *showVersion}, nil
}

// newDialer picks the serial transport when a device is configured and TCP
// otherwise.
func newDialer(cfg *config.RoverConfig) (roverlink.Dialer, error) {
	if dev := cfg.GetSerialPort(); dev != "" {
		d, err := roverlink.NewSerialDialer(roverlink.SerialOptions{Path: dev, BaudRate: cfg.GetBaudRate()})
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	d, err := roverlink.NewTCPDialer(roverlink.Options{
		Host:           cfg.GetHost(),
		Port:           cfg.GetPort(),
		ConnectTimeout: cfg.GetConnectTimeout(),
		ReadTimeout:    cfg.GetReadTimeout(),
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Main
func main() {
	opts, err := parseFlags(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if opts.showVersion {
		fmt.Println(version.String())
		return
	}
	cfg := opts.cfg

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	if opts.dev {
		sim, err := roverlink.NewSimulator("127.0.0.1:0", devInterval, nil)
		if err != nil {
			log.Fatalf("failed to start simulator: %v", err)
		}
		sim.NoiseEvery = 25
		host, port := sim.Options().Host, sim.Options().Port
		cfg.Host, cfg.Port, cfg.SerialPort = &host, &port, nil
		log.Printf("dev mode: simulated rover on %s", sim.Addr())

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sim.Serve(ctx); err != nil {
				log.Printf("simulator stopped: %v", err)
			}
			sim.Close()
		}()
	}

	cwd, err := os.Getwd()
	if err != nil {
		log.Fatalf("failed to get working directory: %v", err)
	}
	outputPath, err := security.ValidateOutputPath(cfg.GetOutputFile(), cwd)
	if err != nil {
		log.Fatalf("invalid output file: %v", err)
	}

	dialer, err := newDialer(cfg)
	if err != nil {
		log.Fatalf("invalid rover endpoint: %v", err)
	}

	store := pathstore.New()
	link := roverlink.NewManager(dialer, store, cfg.GetReadTimeout())

	canvas, err := render.NewCanvas(cfg.GetCanvasSize())
	if err != nil {
		log.Fatalf("failed to create canvas: %v", err)
	}
	exporter := render.NewExporter(fsutil.OSFileSystem{}, outputPath)
	p := panel.New(link, store, canvas, exporter, panel.Options{ResetOnStart: cfg.GetResetOnStart()})

	// UI loop
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("panel loop failed: %v", err)
		}
		log.Print("panel loop terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(p, canvas.Size()).ServeMux()
		link.AttachAdminRoutes(mux)

		server := &http.Server{
			Addr:              cfg.GetListen(),
			Handler:           api.LoggingMiddleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.Printf("control panel on http://%s (rover %s)", cfg.GetListen(), dialer)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			// event streams keep connections open; force them closed
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	if err := link.Close(); err != nil {
		log.Printf("closing rover link: %v", err)
	}
	log.Printf("Graceful shutdown complete")
}
