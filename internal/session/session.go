// Package session binds a PTY host, an emulator, an optional recorder
// and a socket server into one addressable daemon, dispatching the
// request kinds of the protocol package. Grounded on
// _examples/chriswa-spaceterm/pty-daemon/daemon.go's handleClient
// dispatch switch and session.go's SessionManager, reshaped for one
// session per daemon process (spec.md §3: "exactly one daemon process
// per session id") instead of the teacher's many-sessions-per-daemon
// map.
package session

import (
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/pepegar/tui-wright/internal/diffing"
	"github.com/pepegar/tui-wright/internal/emulator"
	"github.com/pepegar/tui-wright/internal/input"
	"github.com/pepegar/tui-wright/internal/protocol"
	"github.com/pepegar/tui-wright/internal/ptyhost"
	"github.com/pepegar/tui-wright/internal/recorder"
)

// pollInterval is how often waitfor rechecks the screen text.
const pollInterval = 50 * time.Millisecond

// killGrace is how long Close waits for SIGHUP before escalating to
// SIGKILL.
const killGrace = 2 * time.Second

// Daemon owns one session's PTY, emulator, optional recorder, and
// socket listener.
type Daemon struct {
	log *zap.Logger

	id         string
	socketPath string

	mu   sync.RWMutex // the Emulator "lease": RLock for readers, Lock for writers
	emu  *emulator.Emulator
	host *ptyhost.Host

	recMu sync.Mutex
	rec   *recorder.Recorder

	ln net.Listener

	shutdownOnce sync.Once
	done         chan struct{}
	childExited  bool
	childExitErr error
}

// New starts the child under a fresh PTY at (cols, rows) and wires its
// output into a fresh Emulator. The daemon does not yet listen; call
// Serve to bind the socket and start accepting.
func New(log *zap.Logger, id, socketPath, command string, args []string, cwd string, env []string, cols, rows int) (*Daemon, error) {
	d := &Daemon{
		log:        log,
		id:         id,
		socketPath: socketPath,
		emu:        emulator.New(cols, rows),
		done:       make(chan struct{}),
	}

	host, err := ptyhost.Spawn(command, args, cwd, env, cols, rows, d.onOutput, d.onExit)
	if err != nil {
		return nil, fmt.Errorf("pty host: %w", err)
	}
	d.host = host

	return d, nil
}

func (d *Daemon) onOutput(data []byte) {
	d.mu.Lock()
	d.emu.Feed(data)
	d.mu.Unlock()

	d.recMu.Lock()
	if d.rec != nil {
		_ = d.rec.RecordOutput(data)
	}
	d.recMu.Unlock()
}

func (d *Daemon) onExit(code int) {
	d.log.Info("child exited", zap.String("session", d.id), zap.Int("exit_code", code))
	d.mu.Lock()
	d.childExited = true
	if code != 0 {
		d.childExitErr = fmt.Errorf("child exited with code %d", code)
	}
	d.mu.Unlock()
	d.Shutdown()
}

// Serve binds the Unix socket at d.socketPath (mode 0600), invokes
// onReady once the socket is listening (the daemonization readiness
// handshake spec.md §4.7 requires), and runs the accept loop until
// Shutdown is called. Returns nil once the listener is closed as part
// of an orderly shutdown. onReady may be nil.
func (d *Daemon) Serve(onReady func()) error {
	_ = os.Remove(d.socketPath)
	ln, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if err := os.Chmod(d.socketPath, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}
	d.ln = ln

	if onReady != nil {
		onReady()
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-d.done:
				return nil
			default:
				return err
			}
		}
		go d.handleConn(conn)
	}
}

func (d *Daemon) handleConn(conn net.Conn) {
	defer conn.Close()

	req, err := protocol.ReadRequest(conn)
	if err != nil {
		if err != io.EOF {
			_ = protocol.WriteResponse(conn, protocol.ErrResponse(protocol.NewError(protocol.ErrProtocolError, err.Error())))
		}
		return
	}

	resp := d.dispatch(req)
	_ = protocol.WriteResponse(conn, resp)

	if req.Kind == protocol.KindKill {
		d.Shutdown()
	}
}

// dispatch is the exhaustive match over request kinds spec.md §9 calls
// for; an unhandled Kind falls through to ErrProtocolError rather than
// a compile error, since Go has no closed sum type, but every Kind
// constant in the protocol package has a case below.
func (d *Daemon) dispatch(req protocol.Request) protocol.Response {
	d.mu.RLock()
	exited := d.childExited
	exitErr := d.childExitErr
	d.mu.RUnlock()
	if exited && req.Kind != protocol.KindKill {
		msg := "child process has exited"
		if exitErr != nil {
			msg = exitErr.Error()
		}
		return protocol.ErrResponse(protocol.NewError(protocol.ErrChildExited, msg))
	}

	switch req.Kind {
	case protocol.KindScreen:
		return d.handleScreen(req)
	case protocol.KindCursor:
		return d.handleCursor()
	case protocol.KindType:
		return d.handleType(req)
	case protocol.KindKey:
		return d.handleKey(req)
	case protocol.KindMouse:
		return d.handleMouse(req)
	case protocol.KindResize:
		return d.handleResize(req)
	case protocol.KindWaitfor:
		return d.handleWaitfor(req)
	case protocol.KindAssert:
		return d.handleAssert(req)
	case protocol.KindSnapshotDiff:
		return d.handleSnapshotDiff(req)
	case protocol.KindTraceStart:
		return d.handleTraceStart(req)
	case protocol.KindTraceStop:
		return d.handleTraceStop()
	case protocol.KindTraceMarker:
		return d.handleTraceMarker(req)
	case protocol.KindKill:
		return protocol.OKResponse()
	default:
		return protocol.ErrResponse(protocol.NewError(protocol.ErrProtocolError, "unknown request kind: "+string(req.Kind)))
	}
}

func (d *Daemon) screenText() string {
	d.mu.RLock()
	g := d.emu.Snapshot()
	d.mu.RUnlock()
	return emulator.Text(g)
}

func (d *Daemon) handleScreen(req protocol.Request) protocol.Response {
	d.mu.RLock()
	g := d.emu.Snapshot()
	d.mu.RUnlock()

	resp := protocol.OKResponse()
	if req.Format == "json" {
		resp.Grid = &g
	} else {
		resp.Text = emulator.Text(g)
	}
	return resp
}

func (d *Daemon) handleCursor() protocol.Response {
	d.mu.RLock()
	row, col := d.emu.Cursor()
	d.mu.RUnlock()

	resp := protocol.OKResponse()
	resp.Row = row
	resp.Col = col
	return resp
}

func (d *Daemon) handleType(req protocol.Request) protocol.Response {
	raw := []byte(req.Text)
	if err := d.writeAndRecord(raw, fmt.Sprintf("type %q", req.Text)); err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	return protocol.OKResponse()
}

func (d *Daemon) handleKey(req protocol.Request) protocol.Response {
	k, err := input.ParseKeyName(req.Name)
	if err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	seq := k.EscapeSequence()
	if err := d.writeAndRecord(seq, "key "+req.Name); err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	return protocol.OKResponse()
}

func (d *Daemon) handleMouse(req protocol.Request) protocol.Response {
	action, err := input.ParseMouseAction(req.Action)
	if err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	if req.Col < 0 || req.Row < 0 {
		return protocol.ErrResponse(protocol.NewError(protocol.ErrInvalidCoordinates, "row and col must be non-negative"))
	}
	seq := input.MouseSGRSequence(action, req.Col, req.Row)
	label := fmt.Sprintf("mouse %s %d,%d", req.Action, req.Col, req.Row)
	if err := d.writeAndRecord(seq, label); err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	return protocol.OKResponse()
}

// writeAndRecord takes the write lease only long enough to write to
// the PTY, per spec.md §5 ("no operation blocks while holding a write
// lease"); the i event and its m marker are recorded before the write
// so the i event precedes any downstream o event, per the same
// section's ordering guarantee.
func (d *Daemon) writeAndRecord(raw []byte, label string) error {
	d.recMu.Lock()
	if d.rec != nil {
		_ = d.rec.RecordInput(raw)
		_ = d.rec.RecordMarker(label)
	}
	d.recMu.Unlock()

	d.mu.Lock()
	err := d.host.Write(raw)
	d.mu.Unlock()
	return err
}

func (d *Daemon) handleResize(req protocol.Request) protocol.Response {
	if req.Cols <= 0 || req.Rows <= 0 {
		return protocol.ErrResponse(protocol.NewError(protocol.ErrInvalidCoordinates, "cols and rows must be positive"))
	}

	d.mu.Lock()
	d.emu.Resize(req.Cols, req.Rows)
	err := d.host.Resize(req.Cols, req.Rows)
	d.mu.Unlock()
	if err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}

	d.recMu.Lock()
	if d.rec != nil {
		_ = d.rec.RecordResize(req.Cols, req.Rows)
	}
	d.recMu.Unlock()

	return protocol.OKResponse()
}

func (d *Daemon) handleWaitfor(req protocol.Request) protocol.Response {
	timeout := time.Duration(req.TimeoutMs) * time.Millisecond
	deadline := time.Now().Add(timeout)

	for {
		text := d.screenText()
		if containsSubstring(text, req.Text) {
			resp := protocol.OKResponse()
			resp.Text = text
			return resp
		}
		if time.Now().After(deadline) {
			resp := protocol.ErrResponse(protocol.NewError(protocol.ErrTimeout, fmt.Sprintf("no match for %q within %dms", req.Text, req.TimeoutMs)))
			resp.Text = text
			return resp
		}
		if req.TimeoutMs == 0 {
			// One check only, already performed above.
			resp := protocol.ErrResponse(protocol.NewError(protocol.ErrTimeout, fmt.Sprintf("no match for %q within 0ms", req.Text)))
			resp.Text = text
			return resp
		}
		time.Sleep(pollInterval)
	}
}

func (d *Daemon) handleAssert(req protocol.Request) protocol.Response {
	text := d.screenText()
	found := containsSubstring(text, req.Text)
	resp := protocol.OKResponse()
	resp.Text = text
	resp.Found = &found
	if !found {
		resp.OK = false
	}
	return resp
}

func (d *Daemon) handleSnapshotDiff(req protocol.Request) protocol.Response {
	if req.Baseline == nil {
		return protocol.ErrResponse(protocol.NewError(protocol.ErrProtocolError, "snapshot_diff requires a baseline grid"))
	}

	d.mu.RLock()
	current := d.emu.Snapshot()
	d.mu.RUnlock()

	diff := diffing.Compute(*req.Baseline, current)
	resp := protocol.OKResponse()
	resp.Diff = &diff
	return resp
}

func (d *Daemon) handleTraceStart(req protocol.Request) protocol.Response {
	path := req.Path
	if path == "" {
		path = fmt.Sprintf("%s/tui-wright-%s.cast", os.TempDir(), d.id)
	}

	d.mu.RLock()
	cols, rows := d.host.Dimensions()
	d.mu.RUnlock()

	rec, err := recorder.Start(path, cols, rows)
	if err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}

	d.recMu.Lock()
	if d.rec != nil {
		_ = d.rec.Finish()
	}
	d.rec = rec
	d.recMu.Unlock()

	resp := protocol.OKResponse()
	resp.Path = path
	return resp
}

func (d *Daemon) handleTraceStop() protocol.Response {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	if d.rec == nil {
		return protocol.ErrResponse(protocol.NewError(protocol.ErrProtocolError, "no active trace"))
	}
	err := d.rec.Finish()
	d.rec = nil
	if err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	return protocol.OKResponse()
}

func (d *Daemon) handleTraceMarker(req protocol.Request) protocol.Response {
	d.recMu.Lock()
	defer d.recMu.Unlock()
	if d.rec == nil {
		return protocol.ErrResponse(protocol.NewError(protocol.ErrProtocolError, "no active trace"))
	}
	if err := d.rec.RecordMarker(req.Label); err != nil {
		return protocol.ErrResponse(protocol.Wrap(err))
	}
	return protocol.OKResponse()
}

// Shutdown stops accepting new connections, finalizes any active
// recording, closes the PTY and socket, and signals the child. Safe to
// call more than once or concurrently; only the first call acts.
func (d *Daemon) Shutdown() {
	d.shutdownOnce.Do(func() {
		close(d.done)

		d.recMu.Lock()
		if d.rec != nil {
			_ = d.rec.Finish()
			d.rec = nil
		}
		d.recMu.Unlock()

		if d.ln != nil {
			_ = d.ln.Close()
		}
		_ = os.Remove(d.socketPath)

		d.host.Close(killGrace)
	})
}

func containsSubstring(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
