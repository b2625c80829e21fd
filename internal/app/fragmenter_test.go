package app

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/meshlink/internal/codec"
	"github.com/bft-labs/meshlink/internal/domain"
)

func decodeAll(t *testing.T, ws [][]byte) []domain.Package {
	t.Helper()
	out := make([]domain.Package, len(ws))
	for i, w := range ws {
		p, err := codec.Decode(w)
		require.NoError(t, err, "package %d: %s", i, w)
		out[i] = p
	}
	return out
}

// drain completes sends on nodeID until the queue is empty and the
// transport is idle.
func drain(f *fixture, c *Connection) {
	for !c.SendReady() || c.QueueLen() > 0 {
		f.complete(c.NodeID)
	}
}

func TestFragment_SliceLayout(t *testing.T) {
	tests := []struct {
		name     string
		length   int
		wantLens []int
	}{
		{"empty", 0, []int{0}},
		{"short", 10, []int{10}},
		{"exact slice", 1000, []int{1000}},
		{"one over", 1537, []int{1000, 537}},
		{"two exact", 2000, []int{1000, 1000}},
		{"three", 2500, []int{1000, 1000, 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(domain.DefaultLimits())
			c := f.connect(2)[0]
			msg := strings.Repeat("m", tt.length)

			tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, msg, false)
			require.NoError(t, err)
			f.pipeline.Scheduler().RunPending()
			drain(f, c)

			require.True(t, tr.Finished())
			require.NoError(t, tr.Err())

			pkgs := decodeAll(t, f.transport.Sent(2))
			require.Len(t, pkgs, len(tt.wantLens))

			var got strings.Builder
			for i, p := range pkgs {
				assert.Equal(t, uint32(2), p.Dest)
				assert.Equal(t, uint32(1), p.From)
				assert.Equal(t, domain.TypeSingle, p.Type)
				assert.Equal(t, tr.PackageID(), p.PackageID)
				assert.Equal(t, uint16(len(tt.wantLens)-1), p.Slices)
				assert.Equal(t, uint16(i), p.SliceNum)
				assert.Len(t, p.Payload, tt.wantLens[i])
				got.WriteString(p.Payload)
			}
			assert.Equal(t, msg, got.String())
		})
	}
}

func TestFragment_MultiByteTextReassembles(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	c := f.connect(2)[0]
	msg := strings.Repeat("a", 999) + "é" + strings.Repeat("<&>", 400) + "tail"

	tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, msg, false)
	require.NoError(t, err)
	f.pipeline.Scheduler().RunPending()
	drain(f, c)

	require.True(t, tr.Finished())
	require.NoError(t, tr.Err())

	var got strings.Builder
	for _, p := range decodeAll(t, f.transport.Sent(2)) {
		got.WriteString(p.Payload)
	}
	assert.Equal(t, msg, got.String())
}

func TestFragment_WaitsForQueueToDrain(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	c := f.connect(2)[0]

	tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, strings.Repeat("a", 2500), false)
	require.NoError(t, err)

	// Slice 0 in flight, slice 1 queued, slice 2 parked.
	assert.False(t, tr.Finished())
	assert.Equal(t, 2, tr.Submitted())
	assert.Equal(t, 1, c.QueueLen())
	assert.Len(t, f.transport.Sent(2), 1)

	f.complete(2)
	assert.Len(t, f.transport.Sent(2), 2)
	assert.True(t, tr.Finished())
	assert.Equal(t, 1, c.QueueLen())

	f.complete(2)
	pkgs := decodeAll(t, f.transport.Sent(2))
	require.Len(t, pkgs, 3)
	for i, p := range pkgs {
		assert.Equal(t, uint16(i), p.SliceNum)
	}
	select {
	case <-tr.Done():
	default:
		t.Fatal("Done not closed")
	}
}

func TestFragment_TooManySlices(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	c := busy(t, f, 2)
	_, err := f.pipeline.queue.Submit(c, []byte("queued"), false)
	require.NoError(t, err)

	// 32001 bytes need 33 slices; the last index would be 32.
	msg := strings.Repeat("z", domain.DefaultMaxBundleSlices*domain.DefaultMaxSliceBytes+1)
	tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, msg, false)
	require.ErrorIs(t, err, domain.ErrTooManySlices)
	assert.Nil(t, tr)
	assert.Equal(t, 1, c.QueueLen())
	assert.Len(t, f.transport.Sent(2), 1)
}

func TestFragment_LargestAllowedTransfer(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	c := f.connect(2)[0]

	msg := strings.Repeat("z", domain.DefaultMaxBundleSlices*domain.DefaultMaxSliceBytes)
	tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, msg, false)
	require.NoError(t, err)
	drain(f, c)

	require.True(t, tr.Finished())
	assert.Equal(t, domain.DefaultMaxBundleSlices-1, tr.Slices())
	assert.Len(t, f.transport.Sent(2), domain.DefaultMaxBundleSlices)
}

func TestFragment_NodeSyncPayload(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	f.connect(2)

	_, err := f.pipeline.SendMessage(2, 1, domain.TypeNodeSyncRequest, `[ {"nodeId": 3, "subs": []} ]`, false)
	require.NoError(t, err)

	sent := f.transport.Sent(2)
	require.Len(t, sent, 1)
	assert.Contains(t, string(sent[0]), `"subs":[{"nodeId":3,"subs":[]}]`)

	_, err = f.pipeline.SendMessage(2, 1, domain.TypeNodeSyncReply, `{"nodeId": 3}`, false)
	require.ErrorIs(t, err, domain.ErrMalformedPayload)
}

func TestFragment_UnknownType(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	f.connect(2)

	_, err := f.pipeline.SendMessage(2, 1, domain.PackageType(42), "x", false)
	require.ErrorIs(t, err, domain.ErrUnknownPackageType)
	assert.Empty(t, f.transport.Sent(2))
}

func TestFragment_FailureStopsTransfer(t *testing.T) {
	limits := domain.DefaultLimits()
	limits.MaxQueueDepth = 1
	f := newFixture(limits)
	c := busy(t, f, 2)
	_, err := f.pipeline.queue.Submit(c, []byte("queued"), false)
	require.NoError(t, err)

	var got error
	tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, "x", false)
	require.NoError(t, err)
	tr.OnDone(func(err error) { got = err })

	require.True(t, tr.Finished())
	assert.ErrorIs(t, got, domain.ErrQueueFull)
	assert.ErrorIs(t, tr.Err(), domain.ErrQueueFull)
	assert.Equal(t, 1, f.observer.failed)
}

func TestFragment_ClosedConnectionWakesParkedTransfer(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	f.connect(2)

	tr, err := f.pipeline.SendMessage(2, 1, domain.TypeSingle, strings.Repeat("a", 2500), false)
	require.NoError(t, err)
	require.False(t, tr.Finished())

	require.True(t, f.pipeline.RemoveConnection(2))
	f.pipeline.Scheduler().RunPending()

	require.True(t, tr.Finished())
	assert.ErrorIs(t, tr.Err(), domain.ErrConnectionClosed)
}

func TestFragment_PriorityTransfer(t *testing.T) {
	f := newFixture(domain.DefaultLimits())
	c := busy(t, f, 2)
	_, err := f.pipeline.queue.Submit(c, []byte("normal"), false)
	require.NoError(t, err)

	_, err = f.pipeline.SendMessage(2, 1, domain.TypeControl, "stop", true)
	require.NoError(t, err)

	queued := c.Queued()
	require.Len(t, queued, 2)
	p, err := codec.Decode(queued[0])
	require.NoError(t, err)
	assert.Equal(t, domain.TypeControl, p.Type)
	assert.Equal(t, "normal", string(queued[1]))
}

func TestRandomID(t *testing.T) {
	seen := make(map[uint32]bool)
	for i := 0; i < 64; i++ {
		seen[RandomID()] = true
	}
	assert.Greater(t, len(seen), 60)
}
