package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type StakeMetrics struct {
	stakes        prometheus.Counter
	unstakes      prometheus.Counter
	flushes       prometheus.Counter
	pooledBalance prometheus.Gauge
	epochID       prometheus.Gauge
}

var (
	stakeOnce     sync.Once
	stakeRegistry *StakeMetrics
)

func Stake() *StakeMetrics {
	stakeOnce.Do(func() {
		stakeRegistry = &StakeMetrics{
			stakes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stake_deposits_total",
				Help: "Count of stake deposits accepted into the pool.",
			}),
			unstakes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stake_withdrawals_total",
				Help: "Count of unstake operations settled.",
			}),
			flushes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "stake_flushes_total",
				Help: "Count of pooled balances delegated to the facility.",
			}),
			pooledBalance: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "stake_pooled_balance_wei",
				Help: "Locally pooled balance awaiting the next flush, in wei.",
			}),
			epochID: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "stake_next_epoch_id",
				Help: "Identifier the next flush will open.",
			}),
		}
		prometheus.MustRegister(
			stakeRegistry.stakes,
			stakeRegistry.unstakes,
			stakeRegistry.flushes,
			stakeRegistry.pooledBalance,
			stakeRegistry.epochID,
		)
	})
	return stakeRegistry
}

func (m *StakeMetrics) ObserveStake() {
	if m == nil {
		return
	}
	m.stakes.Inc()
}

func (m *StakeMetrics) ObserveUnstake() {
	if m == nil {
		return
	}
	m.unstakes.Inc()
}

func (m *StakeMetrics) ObserveFlush() {
	if m == nil {
		return
	}
	m.flushes.Inc()
}

func (m *StakeMetrics) SetPooledBalance(wei float64) {
	if m == nil {
		return
	}
	m.pooledBalance.Set(wei)
}

func (m *StakeMetrics) SetNextEpochID(id uint64) {
	if m == nil {
		return
	}
	m.epochID.Set(float64(id))
}
