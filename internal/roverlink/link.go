// Package roverlink owns the connection to the mapping rover: it opens the
// session, sends START/STOP, and runs the receive loop that turns COORD
// lines into path samples.
package roverlink

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/banshee-data/rovermap/internal/monitoring"
	"github.com/banshee-data/rovermap/internal/pathstore"
)

// State is the connection state seen by the panel.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

const (
	readChunkSize = 1024
	// maxLineLength matches bufio.Scanner's default token limit.
	maxLineLength = bufio.MaxScanTokenSize
	errQueueSize  = 16
)

// session is everything that belongs to one Start..Stop cycle. The receive
// goroutine gets its own pointer so a later session never sees its state.
type session struct {
	id      string
	conn    Conn
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
	writeMu sync.Mutex
}

func (s *session) send(command string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !strings.HasSuffix(command, "\n") {
		command += "\n"
	}
	n, err := s.conn.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Manager is the single owner of the rover connection.
type Manager struct {
	dialer      Dialer
	store       *pathstore.Store
	readTimeout time.Duration
	counters    *monitoring.Counters

	mu             sync.Mutex
	session        *session
	dialing        bool
	onSessionStart func()

	redraw chan struct{}
	errs   chan error

	subscriberMu sync.Mutex
	subscribers  map[string]chan string
}

// NewManager returns a Disconnected manager that appends received samples to
// store.
func NewManager(dialer Dialer, store *pathstore.Store, readTimeout time.Duration) *Manager {
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Manager{
		dialer:      dialer,
		store:       store,
		readTimeout: readTimeout,
		counters:    &monitoring.Counters{},
		redraw:      make(chan struct{}, 1),
		errs:        make(chan error, errQueueSize),
		subscribers: make(map[string]chan string),
	}
}

// Redraw delivers a signal after samples were appended. Signals coalesce: one
// pending signal covers any number of appends.
func (m *Manager) Redraw() <-chan struct{} { return m.redraw }

// Errors delivers the ReceiveError that ended a session.
func (m *Manager) Errors() <-chan error { return m.errs }

// Counters exposes the line counters for debug pages.
func (m *Manager) Counters() *monitoring.Counters { return m.counters }

// Endpoint names the configured rover endpoint.
func (m *Manager) Endpoint() string { return m.dialer.String() }

// State reports whether a session is currently running.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.running.Load() {
		return Connected
	}
	return Disconnected
}

// Running is shorthand for State() == Connected.
func (m *Manager) Running() bool { return m.State() == Connected }

// SessionID returns the id of the running session, or "".
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.running.Load() {
		return m.session.id
	}
	return ""
}

// OnSessionStart registers fn to run inside Start once START has been sent
// and before the receive loop begins, so fn sees no samples from the new
// session.
func (m *Manager) OnSessionStart(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onSessionStart = fn
}

// Start opens a connection, sends START and spawns the receive loop. It
// refuses to open a second connection while a session is running or being
// dialled.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.dialing || (m.session != nil && m.session.running.Load()) {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	stale := m.session
	m.session = nil
	m.dialing = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.dialing = false
		m.mu.Unlock()
	}()

	// a session that ended on a receive error is reaped here
	if stale != nil {
		<-stale.done
	}

	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return &ConnectionError{Endpoint: m.dialer.String(), Err: err}
	}
	if err := conn.SetReadTimeout(m.readTimeout); err != nil {
		conn.Close()
		return &ConnectionError{Endpoint: m.dialer.String(), Err: err}
	}

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		conn:   conn,
		ctx:    sctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if err := s.send(CommandStart); err != nil {
		cancel()
		conn.Close()
		return &ConnectionError{
			Endpoint: m.dialer.String(),
			Err:      &SendError{Command: CommandStart, Err: err},
		}
	}
	s.running.Store(true)

	m.mu.Lock()
	m.session = s
	hook := m.onSessionStart
	m.mu.Unlock()

	if hook != nil {
		hook()
	}
	m.counters.Sessions.Add(1)
	monitoring.Logf("roverlink: session %s started on %s", s.id, m.dialer.String())

	go m.receive(s)
	return nil
}

// Stop ends the running session. STOP is sent best effort: a send failure is
// returned as *SendError after the connection has been closed. Stop on a
// Disconnected manager is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return nil
	}
	if !s.running.Swap(false) {
		// already ended by a receive error
		<-s.done
		return nil
	}

	s.cancel()
	sendErr := s.send(CommandStop)
	if err := s.conn.Close(); err != nil {
		monitoring.Logf("roverlink: closing session %s: %v", s.id, err)
	}
	<-s.done

	monitoring.Logf("roverlink: session %s stopped", s.id)
	if sendErr != nil {
		return &SendError{Command: CommandStop, Err: sendErr}
	}
	return nil
}

// Close stops any running session and closes all subscriber channels.
func (m *Manager) Close() error {
	err := m.Stop()

	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for id, ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, id)
	}
	return err
}

// SendCommand writes an allowlisted command to the running session.
func (m *Manager) SendCommand(command string) error {
	command = strings.TrimSpace(command)
	if !IsAllowedCommand(command) {
		return fmt.Errorf("%w: %q", ErrCommandNotAllowed, command)
	}

	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil || !s.running.Load() {
		return ErrNotConnected
	}
	if err := s.send(command); err != nil {
		return &SendError{Command: command, Err: err}
	}
	return nil
}

// Subscribe returns a channel receiving every non-empty line read from the
// rover, valid or not. Slow subscribers miss lines.
func (m *Manager) Subscribe() (string, chan string) {
	id := uuid.NewString()
	ch := make(chan string, 64)
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	m.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (m *Manager) Unsubscribe(id string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	if ch, ok := m.subscribers[id]; ok {
		close(ch)
		delete(m.subscribers, id)
	}
}

func (m *Manager) publish(line string) {
	m.subscriberMu.Lock()
	defer m.subscriberMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- line:
		default:
		}
	}
}

// receive runs until the session is cancelled or a read fails. Read timeouts
// only give it a chance to notice cancellation.
func (m *Manager) receive(s *session) {
	defer close(s.done)

	buf := make([]byte, readChunkSize)
	var pending []byte

	for {
		if s.ctx.Err() != nil {
			return
		}

		n, err := s.conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i]
				if herr := m.handleLine(line); herr != nil {
					m.fail(s, herr)
					return
				}
				pending = append(pending[:0], pending[i+1:]...)
			}
			if len(pending) > maxLineLength {
				m.fail(s, bufio.ErrTooLong)
				return
			}
		}

		if err != nil {
			if IsTimeout(err) {
				continue
			}
			if s.ctx.Err() != nil {
				// Stop closed the connection underneath the read
				return
			}
			m.fail(s, err)
			return
		}
	}
}

func (m *Manager) handleLine(raw []byte) error {
	if !utf8.Valid(raw) {
		return ErrInvalidText
	}
	line := strings.TrimSpace(string(raw))
	if line == "" {
		return nil
	}
	m.publish(line)

	sample, err := ParseLine(line)
	if err != nil {
		m.counters.Malformed.Add(1)
		monitoring.Logf("roverlink: discarding line: %v", err)
		return nil
	}

	m.store.Append(sample)
	m.counters.Accepted.Add(1)
	select {
	case m.redraw <- struct{}{}:
	default:
	}
	return nil
}

// fail ends the session after a receive error and queues the error for the
// panel. The session stays installed until the next Start or Stop reaps it.
func (m *Manager) fail(s *session, cause error) {
	if !s.running.Swap(false) {
		return
	}
	s.cancel()
	s.conn.Close()

	err := &ReceiveError{SessionID: s.id, Err: cause}
	m.counters.Errors.Add(1)
	monitoring.Logf("roverlink: session %s ended: %v", s.id, err)

	select {
	case m.errs <- err:
	default:
		monitoring.Logf("roverlink: error queue full, dropping %v", err)
	}
}
