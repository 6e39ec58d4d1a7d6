// Package ptyhost opens a PTY pair, spawns the child on its slave side,
// and carries bytes in both directions, grounded on
// _examples/chriswa-spaceterm/pty-daemon/session.go's Create/Write/Resize
// methods. Unlike that teacher, which holds a map of many sessions per
// daemon, a tui-wright daemon owns exactly one Host for its one session.
package ptyhost

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

// OutputFunc receives each batch of bytes read from the PTY master, in
// order, as soon as it arrives.
type OutputFunc func(data []byte)

// ExitFunc is called once, after the child has been reaped.
type ExitFunc func(exitCode int)

// Host owns the master side of a PTY and the child process attached to
// its slave side.
type Host struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	pty  *os.File
	cols int
	rows int
	pid  int

	onOutput OutputFunc
	onExit   ExitFunc

	exited   bool
	exitCode int
}

// Spawn opens a PTY at (cols, rows) and starts command/args on its slave
// side with the given working directory and environment. onOutput is
// invoked from a dedicated reader goroutine for every non-empty read;
// onExit is invoked once after the child is reaped, from that same
// goroutine's continuation.
func Spawn(command string, args []string, cwd string, env []string, cols, rows int, onOutput OutputFunc, onExit ExitFunc) (*Host, error) {
	cmd := exec.Command(command, args...)
	cmd.Dir = cwd
	if env != nil {
		cmd.Env = env
	}

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
	if err != nil {
		return nil, fmt.Errorf("pty start: %w", err)
	}

	h := &Host{
		cmd:      cmd,
		pty:      ptmx,
		cols:     cols,
		rows:     rows,
		pid:      cmd.Process.Pid,
		onOutput: onOutput,
		onExit:   onExit,
	}

	go h.readLoop()

	return h, nil
}

// Pid returns the child's process id.
func (h *Host) Pid() int {
	return h.pid
}

func (h *Host) readLoop() {
	buf := make([]byte, 32*1024)
	var pending []byte
	for {
		n, err := h.pty.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if len(pending) > 0 {
				chunk = append(append([]byte{}, pending...), chunk...)
				pending = nil
			}
			tail := incompleteUTF8Tail(chunk)
			if tail > 0 {
				pending = append([]byte{}, chunk[len(chunk)-tail:]...)
				chunk = chunk[:len(chunk)-tail]
			}
			if len(chunk) > 0 {
				h.onOutput(chunk)
			}
		}
		if err != nil {
			if len(pending) > 0 {
				h.onOutput(pending)
			}
			break
		}
	}

	state, _ := h.cmd.Process.Wait()
	code := 0
	if state != nil {
		code = state.ExitCode()
	}

	h.mu.Lock()
	h.exited = true
	h.exitCode = code
	h.mu.Unlock()

	h.onExit(code)
}

// Write injects bytes into the PTY master, as if typed at the controlling
// terminal.
func (h *Host) Write(data []byte) error {
	_, err := h.pty.Write(data)
	return err
}

// Resize changes the PTY window size, which raises SIGWINCH in the
// child, and records the new dimensions.
func (h *Host) Resize(cols, rows int) error {
	h.mu.Lock()
	h.cols = cols
	h.rows = rows
	h.mu.Unlock()
	return pty.Setsize(h.pty, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)})
}

// Dimensions returns the last accepted (cols, rows).
func (h *Host) Dimensions() (cols, rows int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cols, h.rows
}

// Exited reports whether the child has already been reaped, and its
// exit code if so.
func (h *Host) Exited() (exited bool, code int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exited, h.exitCode
}

// Close signals the child with SIGHUP, giving it grace to exit
// cleanly, then SIGKILL if it hasn't, and closes the PTY master.
func (h *Host) Close(grace time.Duration) {
	h.mu.Lock()
	alreadyExited := h.exited
	h.mu.Unlock()

	if !alreadyExited {
		_ = h.cmd.Process.Signal(syscall.SIGHUP)
		timer := time.NewTimer(grace)
		defer timer.Stop()
		for {
			h.mu.Lock()
			done := h.exited
			h.mu.Unlock()
			if done {
				break
			}
			select {
			case <-timer.C:
				_ = h.cmd.Process.Signal(syscall.SIGKILL)
			default:
				time.Sleep(5 * time.Millisecond)
				continue
			}
			break
		}
	}
	_ = h.pty.Close()
}

// incompleteUTF8Tail returns the length of a trailing incomplete UTF-8
// sequence in b, or 0 if b ends on a rune boundary. Mirrors the
// teacher's own helper in ringbuf.go so streamed reads don't get split
// mid-rune.
func incompleteUTF8Tail(b []byte) int {
	n := len(b)
	if n == 0 {
		return 0
	}
	maxBack := 4
	if n < maxBack {
		maxBack = n
	}
	for i := 1; i <= maxBack; i++ {
		c := b[n-i]
		if c&0xC0 != 0x80 {
			want := utf8SeqLen(c)
			if want == 0 {
				return 0
			}
			if want > i {
				return i
			}
			return 0
		}
	}
	return 0
}

func utf8SeqLen(lead byte) int {
	switch {
	case lead&0x80 == 0x00:
		return 1
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	default:
		return 0
	}
}
