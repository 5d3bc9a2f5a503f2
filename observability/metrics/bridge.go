package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type BridgeMetrics struct {
	transfersRequested *prometheus.CounterVec
	transfersExecuted  prometheus.Counter
	batchesExecuted    prometheus.Counter
	batchFailures      *prometheus.CounterVec
	replayRejections   prometheus.Counter
	tokensWrapped      prometheus.Counter
	processedSetSize   prometheus.Gauge
	bridgeNonce        prometheus.Gauge
}

var (
	bridgeOnce     sync.Once
	bridgeRegistry *BridgeMetrics
)

func Bridge() *BridgeMetrics {
	bridgeOnce.Do(func() {
		bridgeRegistry = &BridgeMetrics{
			transfersRequested: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_transfers_requested_total",
				Help: "Count of accepted outbound transfer requests by token symbol.",
			}, []string{"symbol"}),
			transfersExecuted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_transfers_executed_total",
				Help: "Count of inbound transfers settled.",
			}),
			batchesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_batches_executed_total",
				Help: "Count of inbound batches committed.",
			}),
			batchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "bridge_batch_failures_total",
				Help: "Count of rejected inbound batches by reason.",
			}, []string{"reason"}),
			replayRejections: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_replay_rejections_total",
				Help: "Count of inbound transfers rejected as already processed.",
			}),
			tokensWrapped: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "bridge_tokens_wrapped_total",
				Help: "Count of foreign tokens wrapped on first sight.",
			}),
			processedSetSize: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bridge_processed_set_size",
				Help: "Number of settled (nonce, source chain) pairs tracked for replay protection.",
			}),
			bridgeNonce: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "bridge_nonce",
				Help: "Next outbound nonce to be assigned.",
			}),
		}
		prometheus.MustRegister(
			bridgeRegistry.transfersRequested,
			bridgeRegistry.transfersExecuted,
			bridgeRegistry.batchesExecuted,
			bridgeRegistry.batchFailures,
			bridgeRegistry.replayRejections,
			bridgeRegistry.tokensWrapped,
			bridgeRegistry.processedSetSize,
			bridgeRegistry.bridgeNonce,
		)
	})
	return bridgeRegistry
}

func (m *BridgeMetrics) ObserveTransferRequested(symbol string) {
	if m == nil {
		return
	}
	if symbol == "" {
		symbol = "unknown"
	}
	m.transfersRequested.WithLabelValues(symbol).Inc()
}

func (m *BridgeMetrics) ObserveBatchExecuted(items int) {
	if m == nil {
		return
	}
	m.batchesExecuted.Inc()
	m.transfersExecuted.Add(float64(items))
}

func (m *BridgeMetrics) ObserveBatchFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.batchFailures.WithLabelValues(reason).Inc()
}

func (m *BridgeMetrics) ObserveReplayRejection() {
	if m == nil {
		return
	}
	m.replayRejections.Inc()
}

func (m *BridgeMetrics) ObserveTokenWrapped() {
	if m == nil {
		return
	}
	m.tokensWrapped.Inc()
}

func (m *BridgeMetrics) SetProcessedSetSize(size int) {
	if m == nil {
		return
	}
	m.processedSetSize.Set(float64(size))
}

func (m *BridgeMetrics) SetBridgeNonce(nonce uint64) {
	if m == nil {
		return
	}
	m.bridgeNonce.Set(float64(nonce))
}
