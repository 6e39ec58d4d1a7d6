package session

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pepegar/tui-wright/internal/protocol"
)

func startTestDaemon(t *testing.T, command string, args []string) (*Daemon, string) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "test.sock")
	d, err := New(zap.NewNop(), "test", socketPath, command, args, "", nil, 80, 24)
	require.NoError(t, err)

	go func() {
		_ = d.Serve(nil)
	}()

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	t.Cleanup(d.Shutdown)
	return d, socketPath
}

func roundTrip(t *testing.T, socketPath string, req protocol.Request) protocol.Response {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, protocol.WriteRequest(conn, req))
	resp, err := protocol.ReadResponse(conn)
	require.NoError(t, err)
	return resp
}

func TestCursorRequestReturnsOrigin(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)
	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindCursor})
	assert.True(t, resp.OK)
	assert.Equal(t, 0, resp.Row)
	assert.Equal(t, 0, resp.Col)
}

func TestTypeThenScreenContainsText(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	typeResp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindType, Text: "hello"})
	require.True(t, typeResp.OK)

	require.Eventually(t, func() bool {
		resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindScreen})
		return resp.OK && strings.Contains(resp.Text, "hello")
	}, 2*time.Second, 20*time.Millisecond)
}

func TestWaitforFindsEchoedText(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	require.True(t, roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindType, Text: "waited"}).OK)

	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindWaitfor, Text: "waited", TimeoutMs: 5000})
	assert.True(t, resp.OK)
	assert.Contains(t, resp.Text, "waited")
}

func TestWaitforTimesOutOnMissingText(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindWaitfor, Text: "never-appears", TimeoutMs: 100})
	assert.False(t, resp.OK)
	assert.Equal(t, protocol.ErrTimeout, resp.Error)
}

func TestAssertReportsFoundFlag(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	require.True(t, roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindType, Text: "marker"}).OK)
	require.Eventually(t, func() bool {
		resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindAssert, Text: "marker"})
		return resp.Found != nil && *resp.Found
	}, 2*time.Second, 20*time.Millisecond)

	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindAssert, Text: "absent-text"})
	assert.False(t, resp.OK)
	require.NotNil(t, resp.Found)
	assert.False(t, *resp.Found)
}

func TestResizeUpdatesCursorBounds(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindResize, Cols: 40, Rows: 10})
	assert.True(t, resp.OK)

	screen := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindScreen, Format: "json"})
	require.True(t, screen.OK)
	require.NotNil(t, screen.Grid)
	assert.Equal(t, 10, screen.Grid.Rows)
	assert.Equal(t, 40, screen.Grid.Cols)
}

func TestResizeRejectsNonPositiveDimensions(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)
	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindResize, Cols: 0, Rows: 10})
	assert.False(t, resp.OK)
	assert.Equal(t, protocol.ErrInvalidCoordinates, resp.Error)
}

func TestSnapshotDiffIdenticalWhenUnchanged(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	baseline := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindScreen, Format: "json"})
	require.True(t, baseline.OK)
	require.NotNil(t, baseline.Grid)

	diffResp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindSnapshotDiff, Baseline: baseline.Grid})
	require.True(t, diffResp.OK)
	require.NotNil(t, diffResp.Diff)
	assert.True(t, diffResp.Diff.Identical)
	assert.Empty(t, diffResp.Diff.ChangedCells)
}

func TestKeyWithUnsupportedModifierIsRejected(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)
	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindKey, Name: "shift+a"})
	assert.False(t, resp.OK)
	assert.Equal(t, protocol.ErrUnsupportedModifier, resp.Error)
}

func TestMouseLargeCoordinatesAccepted(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)
	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindMouse, Action: "press", Col: 300, Row: 300})
	assert.True(t, resp.OK)
}

func TestTraceStartWritesHeaderThenStop(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	path := filepath.Join(t.TempDir(), "out.cast")
	startResp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindTraceStart, Path: path})
	require.True(t, startResp.OK)
	assert.Equal(t, path, startResp.Path)

	require.True(t, roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindType, Text: "hi"}).OK)
	require.True(t, roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindTraceMarker, Label: "custom marker"}).OK)
	require.True(t, roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindTraceStop}).OK)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"version":2`)
	assert.Contains(t, string(data), `"type \"hi\""`)
	assert.Contains(t, string(data), "custom marker")
}

func TestKillShutsDownDaemon(t *testing.T) {
	_, socketPath := startTestDaemon(t, "cat", nil)

	resp := roundTrip(t, socketPath, protocol.Request{Kind: protocol.KindKill})
	assert.True(t, resp.OK)

	require.Eventually(t, func() bool {
		_, err := os.Stat(socketPath)
		return os.IsNotExist(err)
	}, 2*time.Second, 20*time.Millisecond)
}
