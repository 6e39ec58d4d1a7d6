// Package daemonize implements the double-fork detachment spawn
// requires: the controller process re-execs itself twice — once to
// leave the controlling terminal's session, once more so the final
// daemon is never a session leader and is immediately reparented to
// init — and blocks on a pipe that the final stage closes once its
// socket is bound. Grounded on
// _examples/chriswa-spaceterm/pty-daemon/main.go's cmdStart, which
// re-execs itself once with Setsid and polls for the socket file to
// appear; this package generalizes that into the stronger two-exec
// fork-and-handshake spec.md calls for, replacing the poll loop with a
// pipe the child closes on success (or writes an error to on failure).
package daemonize

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"
)

// Stage markers passed as argv[1] on re-exec. A process started with
// neither marker is the original controller invocation.
const (
	Stage1Marker = "__tui_wright_daemon_stage1"
	Stage2Marker = "__tui_wright_daemon_stage2"
)

// readyFD is the file descriptor number the readiness pipe's write end
// is handed to the child on, via ExtraFiles[0].
const readyFD = 3

// Spawn re-execs exePath with Stage1Marker and args, detaching it via
// Setsid; the stage-1 process re-execs itself again with Stage2Marker
// (the actual daemon) and exits, and is reaped in the background. Spawn
// blocks until the stage-2 process closes the readiness pipe — either
// cleanly (ready) or after writing an error message (bind or setup
// failure) — or until timeout elapses.
//
// Callers arrange for their own main() to detect Stage1Marker and call
// RunStage1, and to detect Stage2Marker and call ReadyPipe, then
// SignalReady/SignalFailed after performing their own setup (binding
// the socket, etc).
func Spawn(exePath string, args []string, timeout time.Duration) error {
	r, w, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("daemonize: pipe: %w", err)
	}

	cmd := exec.Command(exePath, append([]string{Stage1Marker}, args...)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.ExtraFiles = []*os.File{w}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return fmt.Errorf("daemonize: start stage1: %w", err)
	}
	w.Close()

	go func() {
		_, _ = cmd.Process.Wait()
	}()

	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		buf := make([]byte, 0, 256)
		chunk := make([]byte, 256)
		for {
			n, err := r.Read(chunk)
			if n > 0 {
				buf = append(buf, chunk[:n]...)
			}
			if err != nil {
				done <- result{data: buf}
				return
			}
		}
	}()

	select {
	case res := <-done:
		return parseHandshake(res.data)
	case <-time.After(timeout):
		return fmt.Errorf("daemonize: daemon did not signal readiness within %s", timeout)
	}
}

// parseHandshake interprets the bytes read from the readiness pipe
// before it closed: empty means ready, an "ERR:" prefix means the
// daemon reported a setup failure.
func parseHandshake(data []byte) error {
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		return nil
	}
	if strings.HasPrefix(msg, "ERR:") {
		return fmt.Errorf("daemonize: %s", strings.TrimSpace(strings.TrimPrefix(msg, "ERR:")))
	}
	return nil
}

// RunStage1 is the entry point for a process re-exec'd with
// Stage1Marker. It is already a session leader (Setsid took effect on
// exec); it re-execs once more with Stage2Marker so the final daemon
// process is never itself a session leader, then exits so that
// grandchild is reparented to init.
func RunStage1(exePath string, args []string) {
	readyPipe := os.NewFile(readyFD, "readypipe")

	cmd := exec.Command(exePath, append([]string{Stage2Marker}, args...)...)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if readyPipe != nil {
		cmd.ExtraFiles = []*os.File{readyPipe}
	}

	if err := cmd.Start(); err != nil {
		if readyPipe != nil {
			fmt.Fprintf(readyPipe, "ERR: %v", err)
			readyPipe.Close()
		}
		os.Exit(1)
	}
	os.Exit(0)
}

// ReadyPipe returns the inherited readiness pipe for a process re-exec'd
// with Stage2Marker, or nil if absent (e.g. run directly for testing).
func ReadyPipe() *os.File {
	var st syscall.Stat_t
	if err := syscall.Fstat(readyFD, &st); err != nil {
		return nil
	}
	// Keep the PTY child (or any later exec) from inheriting the write
	// end, which would hold the pipe open past SignalReady.
	syscall.CloseOnExec(readyFD)
	return os.NewFile(readyFD, "readypipe")
}

// SignalReady closes the readiness pipe with no payload, telling the
// controller the daemon's socket is bound and it may return success.
func SignalReady(pipe *os.File) {
	if pipe == nil {
		return
	}
	pipe.Close()
}

// SignalFailed writes an error message to the readiness pipe and closes
// it, telling the controller the daemon failed to come up.
func SignalFailed(pipe *os.File, err error) {
	if pipe == nil {
		return
	}
	fmt.Fprintf(pipe, "ERR: %v", err)
	pipe.Close()
}
