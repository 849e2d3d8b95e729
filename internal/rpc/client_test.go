package rpc

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadAddr returns a loopback address nothing is listening on.
func deadAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func TestConnectFailsAfterAttempts(t *testing.T) {
	c := NewClient(deadAddr(t), WithRetryDelay(time.Millisecond))
	err := c.Connect(3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

func TestConnectRetriesUntilEngineAnswers(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// first connection is dropped before the ping, the second one answers
	go func() {
		c1, err := ln.Accept()
		if err != nil {
			return
		}
		c1.Close()

		c2, err := ln.Accept()
		if err != nil {
			return
		}
		defer c2.Close()
		tr := NewSocketTransportFromConn(c2)
		msg, err := tr.Receive()
		if err != nil {
			return
		}
		var req Request
		if err := json.Unmarshal(msg.Content, &req); err != nil {
			return
		}
		resp := Response{
			Seq:        1,
			Type:       TypeResponse,
			RequestSeq: req.Seq,
			Success:    true,
			Result:     json.RawMessage(`"` + Version + `"`),
		}
		content, _ := json.Marshal(resp)
		tr.Send(&Message{Content: content})
	}()

	c := NewClient(ln.Addr().String(), WithRetryDelay(time.Millisecond))
	require.NoError(t, c.Connect(3))
	c.Close()
}

func TestConnectRetryPacedByClock(t *testing.T) {
	mock := clock.NewMock()
	c := NewClient(deadAddr(t), WithClock(mock))

	done := make(chan error, 1)
	go func() { done <- c.Connect(2) }()

	// the first attempt fails immediately; the second waits on the clock
	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("connect returned before retry delay elapsed: %v", err)
	default:
	}

	mock.Add(DefaultRetryDelay)
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionFailed)
	case <-time.After(5 * time.Second):
		t.Fatal("connect did not return after clock advance")
	}
}

func TestCallNotConnected(t *testing.T) {
	c := NewClient("127.0.0.1:0")
	_, err := c.Ping()
	assert.ErrorIs(t, err, ErrNotConnected)
}
