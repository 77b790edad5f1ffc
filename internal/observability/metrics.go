package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	CachedSessions prometheus.Gauge
	CacheLookups   *prometheus.CounterVec
	StoreWrites    *prometheus.CounterVec
	StoreErrors    *prometheus.CounterVec
	CorruptRecords *prometheus.CounterVec
	EventsAppended *prometheus.CounterVec
	EventsPruned   *prometheus.CounterVec
	WSMessages     *prometheus.CounterVec
	OpLatency      *prometheus.HistogramVec

	ops *opLatencyWindow
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		CachedSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cached_sessions",
			Help:      "Session documents currently held in the memory cache.",
		}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Session cache lookups by result.",
		}, []string{"result"}),
		StoreWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Durable writes by store and operation.",
		}, []string{"store", "op"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_errors_total",
			Help:      "Durable write failures by store and operation.",
		}, []string{"store", "op"}),
		CorruptRecords: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "corrupt_records_total",
			Help:      "Records skipped on read because they could not be decoded.",
		}, []string{"store"}),
		EventsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_appended_total",
			Help:      "Live events appended by log and audit status.",
		}, []string{"log", "status"}),
		EventsPruned: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_pruned_total",
			Help:      "Live events removed by the retention sweep.",
		}, []string{"log"}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		OpLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_op_latency_ms",
			Help:      "Store operation latency in milliseconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}, []string{"op"}),
		ops: newOpLatencyWindow(256),
	}
}

// ObserveOp records how long a store operation took.
func (m *Metrics) ObserveOp(op string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.OpLatency.WithLabelValues(op).Observe(ms)
	m.ops.Observe(op, ms)
}

func (m *Metrics) SnapshotOps() OpLatencySnapshot {
	if m == nil || m.ops == nil {
		return OpLatencySnapshot{GeneratedAt: time.Now().UTC(), Ops: []OpLatencyStats{}}
	}
	return m.ops.Snapshot()
}

func (m *Metrics) ObserveCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetCachedSessions(n int) {
	if m == nil {
		return
	}
	m.CachedSessions.Set(float64(n))
}

func (m *Metrics) ObserveWrite(store, op string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.StoreErrors.WithLabelValues(store, op).Inc()
		return
	}
	m.StoreWrites.WithLabelValues(store, op).Inc()
}

func (m *Metrics) ObserveCorrupt(store string) {
	if m == nil {
		return
	}
	m.CorruptRecords.WithLabelValues(store).Inc()
}

func (m *Metrics) ObserveEventAppended(log, status string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(log, status).Inc()
}

func (m *Metrics) ObserveEventsPruned(log string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsPruned.WithLabelValues(log).Add(float64(n))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
