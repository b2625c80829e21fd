// Package metrics exports send pipeline events as Prometheus metrics.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/meshlink/internal/domain"
)

// Observer implements ports.SendObserver with Prometheus collectors.
type Observer struct {
	PackagesSent   *prometheus.CounterVec
	BytesSent      prometheus.Counter
	PackagesQueued prometheus.Counter
	QueueDepth     *prometheus.GaugeVec
	Dropped        *prometheus.CounterVec
	Evicted        prometheus.Counter
	Transfers      *prometheus.CounterVec
	TransferSlices prometheus.Histogram
}

// New registers the collectors with reg under namespace.
func New(reg prometheus.Registerer, namespace string) *Observer {
	factory := promauto.With(reg)
	return &Observer{
		PackagesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_sent_total",
			Help:      "Packages handed to the transport",
		}, []string{"path"}),
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Encoded bytes handed to the transport",
		}),
		PackagesQueued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_queued_total",
			Help:      "Packages that entered a connection queue",
		}),
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Packages waiting in a connection queue",
		}, []string{"node"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_dropped_total",
			Help:      "Packages rejected or discarded by the send queue",
		}, []string{"reason"}),
		Evicted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packages_evicted_total",
			Help:      "Queued packages discarded under memory pressure",
		}),
		Transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transfers_total",
			Help:      "Finished message transfers",
		}, []string{"result"}),
		TransferSlices: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transfer_slices",
			Help:      "Slices per transfer",
			Buckets:   []float64{1, 2, 4, 8, 16, 32},
		}),
	}
}

// OnSent implements ports.SendObserver.
func (o *Observer) OnSent(nodeID uint32, bytes int, queued bool) {
	path := "direct"
	if queued {
		path = "queue"
		o.QueueDepth.WithLabelValues(nodeLabel(nodeID)).Dec()
	}
	o.PackagesSent.WithLabelValues(path).Inc()
	o.BytesSent.Add(float64(bytes))
}

// OnQueued implements ports.SendObserver.
func (o *Observer) OnQueued(nodeID uint32, depth int) {
	o.PackagesQueued.Inc()
	o.QueueDepth.WithLabelValues(nodeLabel(nodeID)).Set(float64(depth))
}

// OnDropped implements ports.SendObserver.
func (o *Observer) OnDropped(_ uint32, reason error) {
	o.Dropped.WithLabelValues(Reason(reason)).Inc()
}

// OnEvicted implements ports.SendObserver.
func (o *Observer) OnEvicted(nodeID uint32, discarded int) {
	o.Evicted.Add(float64(discarded))
	o.QueueDepth.WithLabelValues(nodeLabel(nodeID)).Set(0)
}

// OnTransferDone implements ports.SendObserver.
func (o *Observer) OnTransferDone(_ uint32, slices int, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	o.Transfers.WithLabelValues(result).Inc()
	o.TransferSlices.Observe(float64(slices))
}

// Reason maps a pipeline error to a bounded label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrQueueFull):
		return "queue_full"
	case errors.Is(err, domain.ErrMemoryPressure):
		return "memory_pressure"
	case errors.Is(err, domain.ErrOversizedPackage):
		return "oversized"
	case errors.Is(err, domain.ErrTransportRejected):
		return "transport_rejected"
	case errors.Is(err, domain.ErrConnectionClosed):
		return "connection_closed"
	default:
		return "other"
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func nodeLabel(nodeID uint32) string {
	return strconv.FormatUint(uint64(nodeID), 10)
}
