// Package panel is the control panel's UI loop. One goroutine runs every
// Start, Stop and Save and every canvas redraw; the HTTP layer only submits
// commands to it and relays its events.
package panel

import (
	"context"
	"errors"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pathstore"
	"github.com/banshee-data/rovermap/internal/render"
	"github.com/banshee-data/rovermap/internal/roverlink"
)

// ErrNotRunning is returned when a command is submitted after Run exited.
var ErrNotRunning = errors.New("panel is not running")

// Link is the part of roverlink.Manager the panel drives.
type Link interface {
	Start(ctx context.Context) error
	Stop() error
	OnSessionStart(fn func())
	State() roverlink.State
	SessionID() string
	Endpoint() string
	Redraw() <-chan struct{}
	Errors() <-chan error
}

// Options configure a Panel.
type Options struct {
	// ResetOnStart clears the path whenever a new session starts.
	ResetOnStart bool
}

type commandKind int

const (
	cmdStart commandKind = iota
	cmdStop
	cmdSave
)

type command struct {
	kind  commandKind
	ctx   context.Context
	reply chan Notification
}

// Status is a point-in-time view for the status endpoint and state events.
type Status struct {
	State        string  `json:"state"`
	SessionID    string  `json:"session_id,omitempty"`
	Endpoint     string  `json:"endpoint"`
	Samples      int     `json:"samples"`
	Frames       int64   `json:"frames"`
	OutputFile   string  `json:"output_file"`
	ResetOnStart bool    `json:"reset_on_start"`
	Bounds       *Bounds `json:"bounds,omitempty"`
}

// Bounds is the extent of the path in rover units.
type Bounds struct {
	Min pathstore.Sample `json:"min"`
	Max pathstore.Sample `json:"max"`
}

// Panel owns the UI loop.
type Panel struct {
	link     Link
	store    *pathstore.Store
	canvas   *render.Canvas
	exporter *render.Exporter
	opts     Options

	cmds chan command
	done chan struct{}
	once sync.Once

	subMu sync.Mutex
	subs  map[string]chan Event
}

// New wires a panel. Run must be called for commands to be served.
func New(link Link, store *pathstore.Store, canvas *render.Canvas, exporter *render.Exporter, opts Options) *Panel {
	p := &Panel{
		link:     link,
		store:    store,
		canvas:   canvas,
		exporter: exporter,
		opts:     opts,
		cmds:     make(chan command),
		done:     make(chan struct{}),
		subs:     make(map[string]chan Event),
	}
	if opts.ResetOnStart {
		link.OnSessionStart(store.Reset)
	}
	return p
}

// Run is the UI loop. It returns when ctx is cancelled. It does not stop a
// running session; the caller closes the link.
func (p *Panel) Run(ctx context.Context) error {
	defer p.once.Do(func() { close(p.done) })

	p.redraw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-p.cmds:
			cmd.reply <- p.execute(cmd)
		case <-p.link.Redraw():
			p.redraw()
		case err := <-p.link.Errors():
			p.receiveFailed(err)
		}
	}
}

// Start connects to the rover and begins mapping.
func (p *Panel) Start(ctx context.Context) Notification { return p.submit(ctx, cmdStart) }

// Stop ends the mapping session.
func (p *Panel) Stop(ctx context.Context) Notification { return p.submit(ctx, cmdStop) }

// Save exports the path to the output file.
func (p *Panel) Save(ctx context.Context) Notification { return p.submit(ctx, cmdSave) }

func (p *Panel) submit(ctx context.Context, kind commandKind) Notification {
	cmd := command{kind: kind, ctx: ctx, reply: make(chan Notification, 1)}
	select {
	case p.cmds <- cmd:
	case <-p.done:
		return dialog(LevelError, "Panel Error", "%v", ErrNotRunning)
	case <-ctx.Done():
		return dialog(LevelError, "Panel Error", "%v", ctx.Err())
	}
	// once accepted the loop always replies
	return <-cmd.reply
}

func (p *Panel) execute(cmd command) Notification {
	var n Notification
	switch cmd.kind {
	case cmdStart:
		n = p.start(cmd.ctx)
	case cmdStop:
		n = p.stop()
	case cmdSave:
		n = p.save()
	}
	if cmd.kind != cmdSave {
		p.broadcast(Event{Name: EventState, Data: p.Status()})
	}
	return n
}

func (p *Panel) start(ctx context.Context) Notification {
	err := p.link.Start(ctx)
	switch {
	case err == nil:
		if p.opts.ResetOnStart {
			p.redraw()
		}
		return status("Mapping started on %s", p.link.Endpoint())
	case errors.Is(err, roverlink.ErrAlreadyRunning):
		return dialog(LevelError, "Connection Error", "Already connected to the rover at %s.", p.link.Endpoint())
	default:
		monitoring.Logf("panel: start failed: %v", err)
		cause := err
		var connErr *roverlink.ConnectionError
		if errors.As(err, &connErr) {
			cause = connErr.Err
		}
		return dialog(LevelError, "Connection Error", "Could not connect to the rover: %v", cause)
	}
}

func (p *Panel) stop() Notification {
	if p.link.State() != roverlink.Connected {
		// a session that already ended on a receive error is still reaped
		if err := p.link.Stop(); err != nil {
			monitoring.Logf("panel: stop: %v", err)
		}
		return status("Not connected")
	}
	err := p.link.Stop()
	var sendErr *roverlink.SendError
	if errors.As(err, &sendErr) {
		monitoring.Logf("panel: %v", err)
		return dialog(LevelError, "Connection Error", "Could not send stop command: %v", sendErr.Err)
	}
	if err != nil {
		return dialog(LevelError, "Connection Error", "%v", err)
	}
	return status("Mapping stopped")
}

func (p *Panel) save() Notification {
	path, err := p.exporter.Save(p.store.Snapshot())
	switch {
	case errors.Is(err, render.ErrNoSamples):
		return dialog(LevelWarning, "No Data", "No map data to save.")
	case err != nil:
		monitoring.Logf("panel: save failed: %v", err)
		return dialog(LevelError, "Save Error", "Could not save the map: %v", err)
	default:
		return dialog(LevelInfo, "Map Saved", "Map saved as %s", filepath.Base(path))
	}
}

func (p *Panel) redraw() {
	samples := p.store.Snapshot()
	if err := p.canvas.Redraw(samples); err != nil {
		monitoring.Logf("panel: redraw failed: %v", err)
		return
	}
	p.broadcast(Event{Name: EventRedraw, Data: RedrawData{Frame: p.canvas.Frames(), Samples: p.canvas.Points()}})
}

func (p *Panel) receiveFailed(err error) {
	n := dialog(LevelError, "Connection Error", "Lost connection to the rover: %v", err)
	var recvErr *roverlink.ReceiveError
	if errors.As(err, &recvErr) {
		n.Message = "Lost connection to the rover: " + recvErr.Err.Error()
	}
	p.broadcast(Event{Name: EventNotify, Data: n})
	p.broadcast(Event{Name: EventState, Data: p.Status()})
}

// Status reports the current connection and path state.
func (p *Panel) Status() Status {
	st := Status{
		State:        p.link.State().String(),
		SessionID:    p.link.SessionID(),
		Endpoint:     p.link.Endpoint(),
		Samples:      p.store.Len(),
		Frames:       p.canvas.Frames(),
		OutputFile:   p.exporter.Path(),
		ResetOnStart: p.opts.ResetOnStart,
	}
	if min, max, ok := p.store.Bounds(); ok {
		st.Bounds = &Bounds{Min: min, Max: max}
	}
	return st
}

// Canvas returns the latest frame as PNG.
func (p *Panel) Canvas() []byte { return p.canvas.PNG() }

// Samples returns a copy of the path.
func (p *Panel) Samples() []pathstore.Sample { return p.store.Snapshot() }

// Subscribe registers for panel events. Slow subscribers miss events.
func (p *Panel) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 16)
	p.subMu.Lock()
	defer p.subMu.Unlock()
	p.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscription.
func (p *Panel) Unsubscribe(id string) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	if ch, ok := p.subs[id]; ok {
		close(ch)
		delete(p.subs, id)
	}
}

func (p *Panel) broadcast(ev Event) {
	p.subMu.Lock()
	defer p.subMu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
