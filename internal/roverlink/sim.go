package roverlink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pathstore"
	"github.com/banshee-data/rovermap/internal/timeutil"
)

// squareSide and squareStep shape the simulated lap, in centimetres.
const (
	squareSide  = 100.0
	squareStep  = 10.0
	stepsPerLeg = int(squareSide / squareStep)
)

// SquarePath walks the perimeter of a 1m square, one step per index.
func SquarePath(i int) pathstore.Sample {
	k := i % (4 * stepsPerLeg)
	t := float64(k%stepsPerLeg) * squareStep
	switch k / stepsPerLeg {
	case 0:
		return pathstore.Sample{X: t, Y: 0}
	case 1:
		return pathstore.Sample{X: squareSide, Y: t}
	case 2:
		return pathstore.Sample{X: squareSide - t, Y: squareSide}
	default:
		return pathstore.Sample{X: 0, Y: squareSide - t}
	}
}

// Simulator is a fake rover listening on TCP. It streams COORD lines while
// started and records every command it receives. It backs -dev mode and the
// end-to-end tests.
type Simulator struct {
	ln       net.Listener
	clock    timeutil.Clock
	interval time.Duration

	// Path yields the position for step i. Defaults to SquarePath.
	Path func(i int) pathstore.Sample
	// NoiseEvery, when positive, interleaves a malformed line after every
	// NoiseEvery position updates.
	NoiseEvery int

	mu       sync.Mutex
	commands []string
	conns    map[net.Conn]struct{}
	step     int
	wg       sync.WaitGroup
}

// NewSimulator listens on addr ("127.0.0.1:0" picks a free port).
func NewSimulator(addr string, interval time.Duration, clock timeutil.Clock) (*Simulator, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("simulator listen: %w", err)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Simulator{
		ln:       ln,
		clock:    clock,
		interval: interval,
		Path:     SquarePath,
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Addr returns the listening address.
func (s *Simulator) Addr() string { return s.ln.Addr().String() }

// Options returns link options pointing at the simulator.
func (s *Simulator) Options() Options {
	host, portStr, _ := net.SplitHostPort(s.Addr())
	port, _ := strconv.Atoi(portStr)
	return Options{Host: host, Port: port}
}

// Commands returns the commands received so far, in order.
func (s *Simulator) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

// Serve accepts connections until ctx is cancelled or Close is called.
func (s *Simulator) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.ln.Close()
	}()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(ctx, conn)
		}()
	}
}

// Close stops accepting, drops every connection and waits for handlers.
func (s *Simulator) Close() error {
	err := s.ln.Close()
	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
	return err
}

// DropConnections closes every open connection without stopping the
// listener, as a rover losing power would.
func (s *Simulator) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *Simulator) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	commands := make(chan string)
	go func() {
		defer cancel()
		scan := bufio.NewScanner(conn)
		for scan.Scan() {
			cmd := strings.TrimSpace(scan.Text())
			// recorded before handoff; the writer may already have quit
			s.mu.Lock()
			s.commands = append(s.commands, cmd)
			s.mu.Unlock()
			select {
			case commands <- cmd:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	streaming := false
	sent := 0
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			switch cmd {
			case CommandStart:
				streaming = true
			case CommandStop:
				streaming = false
			default:
				monitoring.Logf("simulator: ignoring command %q", cmd)
			}
		case <-ticker.C():
			if !streaming {
				continue
			}
			s.mu.Lock()
			p := s.Path(s.step)
			s.step++
			s.mu.Unlock()

			line := fmt.Sprintf("%s,%g,%g\n", CoordTag, p.X, p.Y)
			sent++
			if s.NoiseEvery > 0 && sent%s.NoiseEvery == 0 {
				line += "STATUS,battery,87\n"
			}
			if _, err := conn.Write([]byte(line)); err != nil {
				// the peer is gone; drain its last commands until the
				// reader sees EOF
				streaming = false
			}
		}
	}
}
