package recorder

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestTraceHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cast")
	r, err := Start(path, 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.Finish())

	lines := readLines(t, path)
	require.Len(t, lines, 1)

	var h map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &h))
	assert.EqualValues(t, 2, h["version"])
	assert.EqualValues(t, 80, h["width"])
	assert.EqualValues(t, 24, h["height"])
}

func TestTraceOutputEvent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cast")
	r, err := Start(path, 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.RecordOutput([]byte("hello world")))
	require.NoError(t, r.Finish())

	lines := readLines(t, path)
	require.Len(t, lines, 2)

	var event [3]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &event))
	var code, data string
	require.NoError(t, json.Unmarshal(event[1], &code))
	require.NoError(t, json.Unmarshal(event[2], &data))
	assert.Equal(t, "o", code)
	assert.Equal(t, "hello world", data)
}

func TestTraceAllEventTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cast")
	r, err := Start(path, 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.RecordOutput([]byte("output")))
	require.NoError(t, r.RecordInput([]byte("input")))
	require.NoError(t, r.RecordMarker("checkpoint"))
	require.NoError(t, r.RecordResize(120, 40))
	require.NoError(t, r.Finish())

	lines := readLines(t, path)
	require.Len(t, lines, 5)

	codes := []string{"o", "i", "m", "r"}
	datas := []string{"output", "input", "checkpoint", "120x40"}
	for i, line := range lines[1:] {
		var event [3]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(line), &event))
		var code, data string
		require.NoError(t, json.Unmarshal(event[1], &code))
		require.NoError(t, json.Unmarshal(event[2], &data))
		assert.Equal(t, codes[i], code)
		assert.Equal(t, datas[i], data)
	}
}

func TestTraceTimestampsNonDecreasing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cast")
	r, err := Start(path, 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.RecordOutput([]byte("first")))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.RecordOutput([]byte("second")))
	require.NoError(t, r.Finish())

	lines := readLines(t, path)
	var e1, e2 [3]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e1))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &e2))
	var t1, t2 float64
	require.NoError(t, json.Unmarshal(e1[0], &t1))
	require.NoError(t, json.Unmarshal(e2[0], &t2))
	assert.Greater(t, t2, t1)
}

func TestInvalidUTF8ReplacedWithReplacementChar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cast")
	r, err := Start(path, 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.RecordOutput([]byte{'o', 'k', 0xff, 0xfe}))
	require.NoError(t, r.Finish())

	lines := readLines(t, path)
	var event [3]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &event))
	var data string
	require.NoError(t, json.Unmarshal(event[2], &data))
	assert.Contains(t, data, "�")
}

func TestIOEventOrderingInputBeforeMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.cast")
	r, err := Start(path, 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.RecordInput([]byte("hi")))
	require.NoError(t, r.RecordMarker(`type "hi"`))
	require.NoError(t, r.Finish())

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	var e1, e2 [3]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &e1))
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &e2))
	var c1, c2 string
	require.NoError(t, json.Unmarshal(e1[1], &c1))
	require.NoError(t, json.Unmarshal(e2[1], &c2))
	assert.Equal(t, "i", c1)
	assert.Equal(t, "m", c2)
}
