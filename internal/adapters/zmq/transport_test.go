package zmq

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/meshlink/internal/ports"
)

type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

type completions struct {
	ch chan uint32
}

func (c completions) SendComplete(nodeID uint32) { c.ch <- nodeID }

func TestTransport_RoundTrip(t *testing.T) {
	var mu sync.Mutex
	var received [][]byte
	got := make(chan struct{}, 4)

	server := NewTransport(Config{NodeID: 2}, nil, mockLogger{})
	defer server.Close()
	addr, err := server.Listen("tcp://127.0.0.1:0", func(wire []byte) {
		mu.Lock()
		received = append(received, wire)
		mu.Unlock()
		got <- struct{}{}
	})
	require.NoError(t, err)

	sink := completions{ch: make(chan uint32, 4)}
	client := NewTransport(Config{NodeID: 1, DialAttempts: 3, BackoffInitial: time.Millisecond}, sink, mockLogger{})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	link := ports.Link{NodeID: 2, Addr: addr}
	require.NoError(t, client.Connect(ctx, link))

	for _, payload := range []string{`{"n":1}`, `{"n":2}`} {
		require.NoError(t, client.Send(link, []byte(payload)))
		select {
		case id := <-sink.ch:
			assert.Equal(t, uint32(2), id)
		case <-ctx.Done():
			t.Fatal("no completion")
		}
		select {
		case <-got:
		case <-ctx.Done():
			t.Fatal("package not received")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, [][]byte{[]byte(`{"n":1}`), []byte(`{"n":2}`)}, received)
}

func TestTransport_SendErrors(t *testing.T) {
	tr := NewTransport(Config{NodeID: 1}, nil, mockLogger{})

	err := tr.Send(ports.Link{NodeID: 9}, []byte("x"))
	assert.ErrorIs(t, err, ErrUnknownPeer)

	// A peer without a writer keeps its one slot occupied.
	_, cancel := context.WithCancel(context.Background())
	tr.peers[3] = &peer{link: ports.Link{NodeID: 3}, out: make(chan []byte, 1), cancel: cancel}
	require.NoError(t, tr.Send(ports.Link{NodeID: 3}, []byte("a")))
	assert.ErrorIs(t, tr.Send(ports.Link{NodeID: 3}, []byte("b")), ErrLinkBusy)
	delete(tr.peers, 3)
	cancel()

	require.NoError(t, tr.Close())
	assert.ErrorIs(t, tr.Send(ports.Link{NodeID: 3}, []byte("c")), ErrClosed)
	assert.ErrorIs(t, tr.Connect(context.Background(), ports.Link{NodeID: 3, Addr: "tcp://127.0.0.1:1"}), ErrClosed)
	assert.NoError(t, tr.Close())
}

func TestBackoff(t *testing.T) {
	b := newBackoff(time.Millisecond, 4*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, b.Wait(ctx))
	assert.Equal(t, 2*time.Millisecond, b.current)
	require.NoError(t, b.Wait(ctx))
	require.NoError(t, b.Wait(ctx))
	assert.Equal(t, 4*time.Millisecond, b.current)

	b.Reset()
	assert.Equal(t, time.Millisecond, b.current)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	slow := newBackoff(time.Hour, time.Hour)
	assert.ErrorIs(t, slow.Wait(canceled), context.Canceled)
}
