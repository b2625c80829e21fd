package app

import (
	"errors"
	"sync"

	"github.com/bft-labs/meshlink/internal/domain"
	"github.com/bft-labs/meshlink/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

var errLinkDown = errors.New("link down")

// mockTransport records every package handed to it.
type mockTransport struct {
	mu     sync.Mutex
	sent   map[uint32][][]byte
	reject map[uint32]bool
}

func newMockTransport() *mockTransport {
	return &mockTransport{
		sent:   make(map[uint32][][]byte),
		reject: make(map[uint32]bool),
	}
}

func (m *mockTransport) Send(link ports.Link, wire []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reject[link.NodeID] {
		return errLinkDown
	}
	m.sent[link.NodeID] = append(m.sent[link.NodeID], wire)
	return nil
}

func (m *mockTransport) Sent(nodeID uint32) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent[nodeID]...)
}

func (m *mockTransport) SetReject(nodeID uint32, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reject[nodeID] = reject
}

// fixedGauge reports a settable amount of free memory.
type fixedGauge struct {
	free uint64
}

func (g *fixedGauge) FreeMemory() uint64 { return g.free }

// stepClock advances by one microsecond per reading.
type stepClock struct {
	now uint32
}

func (c *stepClock) NodeTime() uint32 {
	c.now++
	return c.now
}

// countingObserver counts pipeline events.
type countingObserver struct {
	sent      int
	queued    int
	dropped   []error
	evicted   int
	transfers int
	failed    int
}

func (o *countingObserver) OnSent(uint32, int, bool) { o.sent++ }
func (o *countingObserver) OnQueued(uint32, int)     { o.queued++ }
func (o *countingObserver) OnDropped(_ uint32, reason error) {
	o.dropped = append(o.dropped, reason)
}
func (o *countingObserver) OnEvicted(_ uint32, n int) { o.evicted += n }
func (o *countingObserver) OnTransferDone(_ uint32, _ int, err error) {
	o.transfers++
	if err != nil {
		o.failed++
	}
}

// fixture is a pipeline over mocks, driven from the test goroutine.
type fixture struct {
	transport *mockTransport
	gauge     *fixedGauge
	observer  *countingObserver
	pipeline  *Pipeline
	nextID    uint32
}

func newFixture(limits domain.Limits) *fixture {
	f := &fixture{
		transport: newMockTransport(),
		gauge:     &fixedGauge{free: 1 << 30},
		observer:  &countingObserver{},
	}
	f.pipeline = NewPipeline(PipelineConfig{
		Limits:    limits,
		Transport: f.transport,
		Gauge:     f.gauge,
		Clock:     &stepClock{},
		NewID: func() uint32 {
			f.nextID++
			return f.nextID
		},
		Logger:   mockLogger{},
		Observer: f.observer,
	})
	return f
}

func (f *fixture) connect(nodeIDs ...uint32) []*Connection {
	conns := make([]*Connection, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		conns = append(conns, f.pipeline.AddConnection(ports.Link{NodeID: id, Addr: "mem"}))
	}
	return conns
}

// complete signals transport completion for nodeID and runs whatever the
// signal unblocked.
func (f *fixture) complete(nodeID uint32) {
	f.pipeline.Complete(nodeID)
	f.pipeline.Scheduler().RunPending()
}
