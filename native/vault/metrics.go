package vault

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine operations. Attach via SetMetrics; a nil Metrics
// disables instrumentation entirely.
type Metrics struct {
	Deposits          prometheus.Counter
	Withdrawals       prometheus.Counter
	LocalSwaps        prometheus.Counter
	AssetSends        prometheus.Counter
	AssetReceives     prometheus.Counter
	LiquiditySends    prometheus.Counter
	LiquidityReceives prometheus.Counter
	EscrowAcks        prometheus.Counter
	EscrowTimeouts    prometheus.Counter
}

// NewMetrics builds the engine counters and registers them with the supplied
// registerer. Pass a per-vault registerer when running multiple vaults in one
// process.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "deposits_total",
			Help:      "Total successful mixed deposits.",
		}),
		Withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "withdrawals_total",
			Help:      "Total successful withdrawals, proportional and mixed.",
		}),
		LocalSwaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "local_swaps_total",
			Help:      "Total successful same-chain swaps.",
		}),
		AssetSends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "asset_sends_total",
			Help:      "Total outbound cross-chain asset swaps dispatched.",
		}),
		AssetReceives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "asset_receives_total",
			Help:      "Total inbound cross-chain asset swaps paid out.",
		}),
		LiquiditySends: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "liquidity_sends_total",
			Help:      "Total outbound cross-chain liquidity swaps dispatched.",
		}),
		LiquidityReceives: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "liquidity_receives_total",
			Help:      "Total inbound cross-chain liquidity swaps minted.",
		}),
		EscrowAcks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "escrow_acks_total",
			Help:      "Total escrows settled by delivery confirmation.",
		}),
		EscrowTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "crossvault",
			Subsystem: "engine",
			Name:      "escrow_timeouts_total",
			Help:      "Total escrows unwound by timeout refunds.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Deposits, m.Withdrawals, m.LocalSwaps,
			m.AssetSends, m.AssetReceives,
			m.LiquiditySends, m.LiquidityReceives,
			m.EscrowAcks, m.EscrowTimeouts,
		)
	}
	return m
}
