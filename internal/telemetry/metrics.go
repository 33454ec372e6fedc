package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "shardgate"

// Metrics holds the Prometheus collectors of the login server. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	connectionsActive prometheus.Gauge
	connectionsTotal  prometheus.Counter
	connectionsClosed *prometheus.CounterVec
	packetsTotal      *prometheus.CounterVec
	decodeErrors      *prometheus.CounterVec
	bytesIn           prometheus.Counter
	bytesOut          prometheus.Counter
	compressedBytes   prometheus.Counter
	compressionRatio  prometheus.Histogram
	cacheLookups      *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg. Passing nil uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		connectionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connections_active",
			Help:      "Number of open login connections",
		}),
		connectionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_total",
			Help:      "Total number of accepted login connections",
		}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "connections_closed_total",
			Help:      "Closed login connections by reason",
		}, []string{"reason"}),
		packetsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "packets_total",
			Help:      "Decoded inbound packets by opcode",
		}, []string{"opcode"}),
		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "decode_errors_total",
			Help:      "Inbound decode failures by kind",
		}, []string{"kind"}),
		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_in_total",
			Help:      "Bytes read from login clients",
		}),
		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "bytes_out_total",
			Help:      "Bytes written to login clients",
		}),
		compressedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "compressed_bytes_total",
			Help:      "Bytes produced by the Huffman compressor",
		}),
		compressionRatio: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "compression_ratio",
			Help:      "Compressed size divided by raw size per packet",
			Buckets:   []float64{0.25, 0.4, 0.5, 0.6, 0.75, 1, 1.25, 1.5},
		}),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "compression_cache_lookups_total",
			Help:      "Compressed payload cache lookups by result",
		}, []string{"result"}),
	}
}

// ConnOpened records an accepted connection.
func (m *Metrics) ConnOpened() {
	if m == nil {
		return
	}
	m.connectionsTotal.Inc()
	m.connectionsActive.Inc()
}

// ConnClosed records a closed connection.
func (m *Metrics) ConnClosed(reason string) {
	if m == nil {
		return
	}
	m.connectionsActive.Dec()
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

// ConnRefused records a connection closed right after accept, before it
// was counted as open.
func (m *Metrics) ConnRefused(reason string) {
	if m == nil {
		return
	}
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

// BytesIn records bytes read from a client.
func (m *Metrics) BytesIn(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesIn.Add(float64(n))
}

// BytesOut records bytes written to a client.
func (m *Metrics) BytesOut(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesOut.Add(float64(n))
}

// Packet records one decoded packet.
func (m *Metrics) Packet(opcode string) {
	if m == nil {
		return
	}
	m.packetsTotal.WithLabelValues(opcode).Inc()
}

// DecodeError records one decode failure.
func (m *Metrics) DecodeError(kind string) {
	if m == nil {
		return
	}
	m.decodeErrors.WithLabelValues(kind).Inc()
}

// Compressed records one compression of raw bytes into out bytes.
func (m *Metrics) Compressed(raw, out int) {
	if m == nil {
		return
	}
	m.compressedBytes.Add(float64(out))
	if raw > 0 {
		m.compressionRatio.Observe(float64(out) / float64(raw))
	}
}

// CacheLookup records a compression cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
