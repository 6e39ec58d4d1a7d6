package input

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pepegar/tui-wright/internal/protocol"
)

func TestParseBasicKeys(t *testing.T) {
	k, err := ParseKeyName("enter")
	require.NoError(t, err)
	assert.Equal(t, []byte{13}, k.EscapeSequence())

	k, err = ParseKeyName("Return")
	require.NoError(t, err)
	assert.Equal(t, []byte{13}, k.EscapeSequence())

	k, err = ParseKeyName("esc")
	require.NoError(t, err)
	assert.Equal(t, []byte{27}, k.EscapeSequence())
}

func TestParseArrowKeys(t *testing.T) {
	k, err := ParseKeyName("up")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x1b[A"), k.EscapeSequence())
}

func TestParseFunctionKeys(t *testing.T) {
	k, err := ParseKeyName("F5")
	require.NoError(t, err)
	assert.Equal(t, []byte("\x1b[15~"), k.EscapeSequence())
}

func TestParseCtrlKeys(t *testing.T) {
	k, err := ParseKeyName("Ctrl+A")
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, k.EscapeSequence())

	k, err = ParseKeyName("ctrl-z")
	require.NoError(t, err)
	assert.Equal(t, []byte{26}, k.EscapeSequence())
}

func TestParseAltKeys(t *testing.T) {
	k, err := ParseKeyName("alt+x")
	require.NoError(t, err)
	assert.Equal(t, append([]byte{27}, 'x'), k.EscapeSequence())
}

func TestShiftModifierUnsupported(t *testing.T) {
	_, err := ParseKeyName("shift+m")
	require.Error(t, err)
	var pe *protocol.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, protocol.ErrUnsupportedModifier, pe.Kind)
}

func TestUnknownKeyName(t *testing.T) {
	_, err := ParseKeyName("nonexistent")
	require.Error(t, err)
	var pe *protocol.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, protocol.ErrUnknownKeyName, pe.Kind)
}

func TestParseMouseAction(t *testing.T) {
	a, err := ParseMouseAction("click")
	require.NoError(t, err)
	assert.Equal(t, MousePress, a)

	_, err = ParseMouseAction("invalid")
	require.Error(t, err)
	var pe *protocol.Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, protocol.ErrUnknownMouseAction, pe.Kind)
}

func TestMouseSGRSequence(t *testing.T) {
	assert.Equal(t, []byte("\x1b[<0;11;6M"), MouseSGRSequence(MousePress, 10, 5))
	assert.Equal(t, []byte("\x1b[<0;11;6m"), MouseSGRSequence(MouseRelease, 10, 5))
	assert.Equal(t, []byte("\x1b[<64;1;1M"), MouseSGRSequence(MouseScrollUp, 0, 0))
	assert.Equal(t, []byte("\x1b[<34;1;1M"), MouseSGRSequence(MouseMove, 0, 0))
}

func TestMouseSGRDoesNotTruncateLargeCoordinates(t *testing.T) {
	seq := MouseSGRSequence(MousePress, 300, 300)
	assert.Equal(t, []byte("\x1b[<0;301;301M"), seq)
}
