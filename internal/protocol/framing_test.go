package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRequestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	req := Request{Kind: KindType, Text: "hello"}
	require.NoError(t, WriteRequest(&buf, req))

	got, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, req, got)
}

func TestWriteReadResponseRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	resp := Response{OK: true, Row: 3, Col: 5}
	require.NoError(t, WriteResponse(&buf, resp))

	got, err := ReadResponse(&buf)
	require.NoError(t, err)
	assert.Equal(t, resp, got)
}

func TestErrResponseShape(t *testing.T) {
	resp := ErrResponse(NewError(ErrTimeout, "no match within 5000ms"))
	assert.False(t, resp.OK)
	assert.Equal(t, ErrTimeout, resp.Error)
	assert.Equal(t, "no match within 5000ms", resp.Message)
}

func TestReadRequestAcceptsTrailingDataWithoutNewline(t *testing.T) {
	// spec.md: the server reads until end-of-stream or newline, so a
	// client that closes its write side right after the JSON payload
	// (no trailing '\n') still produces a valid read.
	var buf bytes.Buffer
	buf.WriteString(`{"kind":"cursor"}`)

	req, err := ReadRequest(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindCursor, req.Kind)
}

func TestReadRequestOnEmptyStreamReturnsEOF(t *testing.T) {
	var buf bytes.Buffer
	_, err := ReadRequest(&buf)
	assert.ErrorIs(t, err, io.EOF)
}
