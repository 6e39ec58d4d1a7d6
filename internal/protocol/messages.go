package protocol

import (
	"github.com/pepegar/tui-wright/internal/diffing"
	"github.com/pepegar/tui-wright/internal/emulator"
)

// RequestKind enumerates the exhaustive set of request kinds spec.md §4.4
// defines. Request is a single flattened struct (rather than one Go type
// per kind) carrying every kind's payload as omitempty fields, the way
// GandalftheGUI-grove/internal/proto.Request flattens its own daemon
// protocol; dispatch on Kind is still an exhaustive switch in
// internal/session, so adding a new kind without a case is a lint/review
// finding, not silently ignored.
type RequestKind string

const (
	KindScreen       RequestKind = "screen"
	KindCursor       RequestKind = "cursor"
	KindType         RequestKind = "type"
	KindKey          RequestKind = "key"
	KindMouse        RequestKind = "mouse"
	KindResize       RequestKind = "resize"
	KindWaitfor      RequestKind = "waitfor"
	KindAssert       RequestKind = "assert"
	KindSnapshotDiff RequestKind = "snapshot_diff"
	KindTraceStart   RequestKind = "trace_start"
	KindTraceStop    RequestKind = "trace_stop"
	KindTraceMarker  RequestKind = "trace_marker"
	KindKill         RequestKind = "kill"
)

// Request is the single JSON object a client sends on a freshly-connected
// stream.
type Request struct {
	Kind RequestKind `json:"kind"`

	// screen
	Format string `json:"format,omitempty"` // "text" | "json"

	// type / waitfor / assert
	Text string `json:"text,omitempty"`

	// key
	Name string `json:"name,omitempty"`

	// mouse
	Action string `json:"action,omitempty"`
	Col    int    `json:"col,omitempty"`
	Row    int    `json:"row,omitempty"`

	// resize
	Cols int `json:"cols,omitempty"`
	Rows int `json:"rows,omitempty"`

	// waitfor
	TimeoutMs int `json:"timeout_ms,omitempty"`

	// snapshot_diff
	Baseline *emulator.Grid `json:"baseline,omitempty"`

	// trace_start
	Path string `json:"path,omitempty"`

	// trace_marker
	Label string `json:"label,omitempty"`
}

// Response is the single JSON object the server writes back. Exactly one
// Response is produced per Request, per spec.md §3's invariant.
type Response struct {
	OK      bool      `json:"ok"`
	Error   ErrorKind `json:"error,omitempty"`
	Message string    `json:"message,omitempty"`

	// screen (text format), waitfor success/timeout, assert
	Text string `json:"text,omitempty"`

	// screen (json format)
	Grid *emulator.Grid `json:"grid,omitempty"`

	// cursor
	Row int `json:"row,omitempty"`
	Col int `json:"col,omitempty"`

	// assert
	Found *bool `json:"found,omitempty"`

	// trace_start
	Path string `json:"path,omitempty"`

	// snapshot_diff
	Diff *diffing.Diff `json:"diff,omitempty"`
}

// OKResponse builds a bare success response carrying no payload.
func OKResponse() Response {
	return Response{OK: true}
}

// ErrResponse converts any error into the `{"ok":false,"error":kind,
// "message":text}` shape spec.md §7 mandates.
func ErrResponse(err error) Response {
	pe := Wrap(err)
	return Response{OK: false, Error: pe.Kind, Message: pe.Message}
}
