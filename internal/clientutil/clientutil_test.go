package clientutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSocketPathRoundTripsThroughIDFromSocketPath(t *testing.T) {
	id, err := NewSessionID()
	assert.NoError(t, err)
	assert.Len(t, id, 16)

	path := SocketPath(id)
	assert.Equal(t, id, IDFromSocketPath(path))
}

func TestIDFromSocketPathRejectsUnrelatedFiles(t *testing.T) {
	assert.Equal(t, "", IDFromSocketPath("/tmp/some-other-file.sock"))
	assert.Equal(t, "", IDFromSocketPath("/tmp/tui-wright-.sock"))
	assert.Equal(t, "", IDFromSocketPath("/tmp/tui-wright-not-hex.sock"))
}

func TestIDFromSocketPathAcceptsLegacySixHexDigitID(t *testing.T) {
	assert.Equal(t, "a1b2c3", IDFromSocketPath("/tmp/tui-wright-a1b2c3.sock"))
}

func TestProbeReturnsFalseForNonexistentSession(t *testing.T) {
	assert.False(t, Probe("0000000000000000"))
}
