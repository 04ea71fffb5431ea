package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics exposes counters for the escrow lifecycle and the buyback
// conversion path.
type MarketMetrics struct {
	offersSubmitted  prometheus.Counter
	offersCancelled  prometheus.Counter
	escrowsOpened    *prometheus.CounterVec
	escrowsSettled   *prometheus.CounterVec
	disputesOpened   *prometheus.CounterVec
	disputesResolved *prometheus.CounterVec
	buybackRuns      *prometheus.CounterVec
	missionsRecorded *prometheus.CounterVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the process-wide marketplace metrics, registering them on
// first use.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			offersSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_offers_submitted_total",
				Help: "Count of offers recorded by the escrow engine.",
			}),
			offersCancelled: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "market_offers_cancelled_total",
				Help: "Count of offers withdrawn before acceptance.",
			}),
			escrowsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_escrows_opened_total",
				Help: "Count of funded escrows opened by payment asset.",
			}, []string{"asset"}),
			escrowsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_escrows_settled_total",
				Help: "Count of escrows settled through dual validation by payment asset.",
			}, []string{"asset"}),
			disputesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_disputes_opened_total",
				Help: "Count of escrows entering arbitration by payment asset.",
			}, []string{"asset"}),
			disputesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_disputes_resolved_total",
				Help: "Count of arbitrated resolutions by outcome.",
			}, []string{"outcome"}),
			buybackRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_buyback_runs_total",
				Help: "Count of buyback conversion attempts by result.",
			}, []string{"result"}),
			missionsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "market_missions_recorded_total",
				Help: "Count of terminal engagements recorded by dispute involvement.",
			}, []string{"disputed"}),
		}
		prometheus.MustRegister(
			marketRegistry.offersSubmitted,
			marketRegistry.offersCancelled,
			marketRegistry.escrowsOpened,
			marketRegistry.escrowsSettled,
			marketRegistry.disputesOpened,
			marketRegistry.disputesResolved,
			marketRegistry.buybackRuns,
			marketRegistry.missionsRecorded,
		)
	})
	return marketRegistry
}

func (m *MarketMetrics) ObserveOfferSubmitted() {
	if m == nil {
		return
	}
	m.offersSubmitted.Inc()
}

func (m *MarketMetrics) ObserveOfferCancelled() {
	if m == nil {
		return
	}
	m.offersCancelled.Inc()
}

func (m *MarketMetrics) ObserveEscrowOpened(asset string) {
	if m == nil {
		return
	}
	m.escrowsOpened.WithLabelValues(labelOrUnknown(asset)).Inc()
}

func (m *MarketMetrics) ObserveEscrowSettled(asset string) {
	if m == nil {
		return
	}
	m.escrowsSettled.WithLabelValues(labelOrUnknown(asset)).Inc()
}

func (m *MarketMetrics) ObserveDisputeOpened(asset string) {
	if m == nil {
		return
	}
	m.disputesOpened.WithLabelValues(labelOrUnknown(asset)).Inc()
}

func (m *MarketMetrics) ObserveDisputeResolved(outcome string) {
	if m == nil {
		return
	}
	m.disputesResolved.WithLabelValues(labelOrUnknown(outcome)).Inc()
}

func (m *MarketMetrics) ObserveBuybackRun(result string) {
	if m == nil {
		return
	}
	m.buybackRuns.WithLabelValues(labelOrUnknown(result)).Inc()
}

func (m *MarketMetrics) ObserveMissionRecorded(disputed string) {
	if m == nil {
		return
	}
	m.missionsRecorded.WithLabelValues(labelOrUnknown(disputed)).Inc()
}

func labelOrUnknown(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
