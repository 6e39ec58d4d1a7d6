// Package recorder writes an asciicast v2 transcript of a session's
// inputs, outputs, resizes and markers, grounded on
// original_source/src/trace.rs and the event-tuple JSON shape
// other_examples/coder-agentapi__cast_agent.go reads back (this package
// is that reader's write-side counterpart; spec.md §1 explicitly puts a
// replay player itself out of scope).
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// header is the first line of the trace file.
type header struct {
	Version   int   `json:"version"`
	Width     int   `json:"width"`
	Height    int   `json:"height"`
	Timestamp int64 `json:"timestamp"`
}

// Recorder captures a session's event stream to a tail-safe file: every
// write is flushed immediately so a concurrent tail -f sees events as
// they happen.
type Recorder struct {
	mu     sync.Mutex
	file   *os.File
	writer *bufio.Writer
	start  time.Time
	path   string
}

// Start opens path, writes the asciicast v2 header, and begins the
// monotonic clock origin for event timestamps.
func Start(path string, cols, rows int) (*Recorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriter(f)

	h := header{Version: 2, Width: cols, Height: rows, Timestamp: time.Now().Unix()}
	hdrJSON, err := json.Marshal(h)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := w.Write(hdrJSON); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.WriteByte('\n'); err != nil {
		f.Close()
		return nil, err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return nil, err
	}

	return &Recorder{file: f, writer: w, start: time.Now(), path: path}, nil
}

// Path returns the file path this recorder writes to.
func (r *Recorder) Path() string {
	return r.path
}

// RecordOutput records one "o" event: a batch of bytes read from the PTY,
// decoded as UTF-8 with invalid sequences replaced by U+FFFD.
func (r *Recorder) RecordOutput(raw []byte) error {
	return r.writeEvent("o", decodeLossy(raw))
}

// RecordInput records one "i" event: the exact bytes injected into the
// PTY for a type/key/mouse request.
func (r *Recorder) RecordInput(raw []byte) error {
	return r.writeEvent("i", decodeLossy(raw))
}

// RecordMarker records one "m" event with a human-readable label.
func (r *Recorder) RecordMarker(label string) error {
	return r.writeEvent("m", label)
}

// RecordResize records one "r" event as "COLSxROWS".
func (r *Recorder) RecordResize(cols, rows int) error {
	return r.writeEvent("r", fmt.Sprintf("%dx%d", cols, rows))
}

func decodeLossy(raw []byte) string {
	return strings.ToValidUTF8(string(raw), "�")
}

func (r *Recorder) writeEvent(code, data string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	elapsed := time.Since(r.start).Seconds()
	codeJSON, err := json.Marshal(code)
	if err != nil {
		return err
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		return err
	}
	line := fmt.Sprintf("[%s,%s,%s]\n", formatElapsed(elapsed), codeJSON, dataJSON)
	if _, err := r.writer.WriteString(line); err != nil {
		return err
	}
	return r.writer.Flush()
}

func formatElapsed(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}

// Finish flushes and closes the trace file. Safe to call once.
func (r *Recorder) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
