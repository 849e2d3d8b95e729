package rpc

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rwc glues a reader and writer into an io.ReadWriteCloser for RawTransport.
type rwc struct {
	io.Reader
	io.Writer
}

func (rwc) Close() error { return nil }

func TestTransportRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	out := NewRawTransport(rwc{Reader: strings.NewReader(""), Writer: &buf})

	content := []byte(`{"seq":1,"type":"request","method":"ping"}`)
	require.NoError(t, out.Send(&Message{Content: content}))
	assert.Contains(t, buf.String(), "Content-Length: ")

	in := NewRawTransport(rwc{Reader: &buf, Writer: io.Discard})
	msg, err := in.Receive()
	require.NoError(t, err)
	assert.Equal(t, string(content), string(msg.Content))
}

func TestTransportMultipleMessages(t *testing.T) {
	var buf bytes.Buffer
	out := NewRawTransport(rwc{Reader: strings.NewReader(""), Writer: &buf})

	require.NoError(t, out.Send(&Message{Content: []byte("first")}))
	require.NoError(t, out.Send(&Message{Content: []byte("second")}))

	in := NewRawTransport(rwc{Reader: &buf, Writer: io.Discard})
	msg, err := in.Receive()
	require.NoError(t, err)
	assert.Equal(t, "first", string(msg.Content))
	msg, err = in.Receive()
	require.NoError(t, err)
	assert.Equal(t, "second", string(msg.Content))
}

func TestTransportMissingContentLength(t *testing.T) {
	in := NewRawTransport(rwc{
		Reader: strings.NewReader("X-Whatever: 3\r\n\r\nabc"),
		Writer: io.Discard,
	})
	_, err := in.Receive()
	assert.Error(t, err)
}

func TestTransportMalformedContentLength(t *testing.T) {
	in := NewRawTransport(rwc{
		Reader: strings.NewReader("Content-Length: banana\r\n\r\n"),
		Writer: io.Discard,
	})
	_, err := in.Receive()
	assert.Error(t, err)
}

func TestTransportOversizedMessage(t *testing.T) {
	in := NewRawTransport(rwc{
		Reader: strings.NewReader("Content-Length: 99999999\r\n\r\n"),
		Writer: io.Discard,
	})
	_, err := in.Receive()
	assert.Error(t, err)
}

func TestTransportEOF(t *testing.T) {
	in := NewRawTransport(rwc{Reader: strings.NewReader(""), Writer: io.Discard})
	_, err := in.Receive()
	assert.Error(t, err)
}
