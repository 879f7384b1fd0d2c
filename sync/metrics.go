package sync

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every Prometheus collector this package registers. It is
// always constructed against a caller-supplied registry rather than the
// global default one, to avoid double-registration panics across tests
// and across multiple Client instances in one process.
type Metrics struct {
	blocksStreamed     *prometheus.CounterVec
	peerSetCacheMisses prometheus.Counter
	peerPunishments    prometheus.Counter
	overDelivery       *prometheus.CounterVec
	underDelivery      *prometheus.CounterVec
}

// NewMetrics registers and returns a fresh Metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		blocksStreamed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_blocks_streamed_total",
			Help: "Number of per-block artifacts yielded, by artifact kind.",
		}, []string{"artifact"}),
		peerSetCacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_peer_set_cache_misses_total",
			Help: "Number of times the peer-set cache was stale and had to be refreshed.",
		}),
		peerPunishments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sync_peer_punishments_total",
			Help: "Number of times a peer was reported misbehaving.",
		}),
		overDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_over_delivery_total",
			Help: "Number of times a peer sent more items than the declared budget, by artifact kind.",
		}, []string{"artifact"}),
		underDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sync_under_delivery_total",
			Help: "Number of times Fin arrived before the declared budget was exhausted, by artifact kind.",
		}, []string{"artifact"}),
	}
	reg.MustRegister(m.blocksStreamed, m.peerSetCacheMisses, m.peerPunishments, m.overDelivery, m.underDelivery)
	return m
}

func (m *Metrics) blockStreamed(artifact string) {
	if m == nil {
		return
	}
	m.blocksStreamed.WithLabelValues(artifact).Inc()
}

func (m *Metrics) overDelivered(artifact string) {
	if m == nil {
		return
	}
	m.overDelivery.WithLabelValues(artifact).Inc()
}

func (m *Metrics) underDelivered(artifact string) {
	if m == nil {
		return
	}
	m.underDelivery.WithLabelValues(artifact).Inc()
}

func (m *Metrics) punished() {
	if m == nil {
		return
	}
	m.peerPunishments.Inc()
}
