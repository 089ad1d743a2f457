package metrics

import (
	"fmt"
	"github.com/celo-tools/validator-heartbeat/entities"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type RunMetrics struct {
	registry           *prometheus.Registry
	fetchedBlockCount  prometheus.Counter
	electionCacheCount *prometheus.CounterVec
	sealCacheCount     *prometheus.CounterVec
	markCount          *prometheus.CounterVec
	endBlockGauge      prometheus.Gauge
}

// NewRunMetrics registers the heartbeat metrics on their own registry. A cli run is short-lived,
// so nothing is served; the registry is gathered once at the end of the run.
func NewRunMetrics(namespace string) *RunMetrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	m := RunMetrics{
		registry: registry,
		fetchedBlockCount: factory.NewCounter(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_fetched_block_count", namespace),
			Help: "The total number of blocks fetched from the node",
		}),
		electionCacheCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_election_cache_count", namespace),
			Help: "Elected signer set lookups by result (hit, store, miss)",
		}, []string{"result"}),
		sealCacheCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_seal_cache_count", namespace),
			Help: "Seal bitmap lookups by result (hit, miss)",
		}, []string{"result"}),
		markCount: factory.NewCounterVec(prometheus.CounterOpts{
			Name: fmt.Sprintf("%s_mark_count", namespace),
			Help: "Rendered block marks by status",
		}, []string{"status"}),
		endBlockGauge: factory.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_end_block", namespace),
			Help: "The last block examined",
		}),
	}
	return &m
}

func (m *RunMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *RunMetrics) IncFetchedBlocks() {
	m.fetchedBlockCount.Inc()
}

func (m *RunMetrics) IncElectionCache(result string) {
	m.electionCacheCount.WithLabelValues(result).Inc()
}

func (m *RunMetrics) IncSealCache(result string) {
	m.sealCacheCount.WithLabelValues(result).Inc()
}

func (m *RunMetrics) IncMarks(status entities.MarkStatus) {
	m.markCount.WithLabelValues(string(status)).Inc()
}

func (m *RunMetrics) SetEndBlock(block uint64) {
	m.endBlockGauge.Set(float64(block))
}

// WriteTextfile writes all metrics in the text exposition format, for the node exporter textfile
// collector.
func (m *RunMetrics) WriteTextfile(path string) error {
	err := prometheus.WriteToTextfile(path, m.registry)
	if err != nil {
		return fmt.Errorf("writing metrics to [%s]: %w", path, err)
	}
	return nil
}
