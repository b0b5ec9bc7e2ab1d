package swapd

import (
	"context"

	"github.com/highwayswap/highway/devnet"
	"github.com/highwayswap/highway/notifications"
	"github.com/highwayswap/highway/relayer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const metricsNamespace = "highway"

// metrics exports the settlement activity of the network.
type metrics struct {
	registry *prometheus.Registry

	transfers   *prometheus.CounterVec
	settlements *prometheus.CounterVec
}

// newMetrics registers the daemon metrics on a fresh registry.
func newMetrics(network *devnet.Network,
	checkpoint *relayer.Checkpoint) *metrics {

	m := &metrics{
		registry: prometheus.NewRegistry(),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "settlement",
				Name:      "transfers_total",
				Help:      "Swaps sent from the origin chain",
			},
			[]string{"source_chain"},
		),
		settlements: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "settlement",
				Name:      "results_total",
				Help:      "Swaps settled on the target chain",
			},
			[]string{"from_chain", "outcome"},
		),
	}

	m.registry.MustRegister(
		m.transfers, m.settlements,
		newRelayerCollector(network, checkpoint),
		collectors.NewGoCollector(),
	)

	for _, chain := range network.Chains() {
		id := chain.Config.ID
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: "transport",
				Name:      "pending_messages",
				Help:      "Messages waiting to be redeemed",
				ConstLabels: prometheus.Labels{
					"chain": id.String(),
				},
			},
			func() float64 {
				return float64(len(network.Hub.Pending(id)))
			},
		))
	}

	return m
}

// run counts the transfers and settlements announced by the manager until
// the context is canceled.
func (m *metrics) run(ctx context.Context,
	manager *notifications.Manager) error {

	transfers := manager.SubscribeTransfers(ctx)
	results := manager.SubscribeResults(ctx)

	for {
		select {
		case transfer, ok := <-transfers:
			if !ok {
				return nil
			}
			m.transfers.WithLabelValues(
				transfer.SourceChain.String(),
			).Inc()

		case result, ok := <-results:
			if !ok {
				return nil
			}
			m.settlements.WithLabelValues(
				result.FromChain.String(),
				result.Outcome.String(),
			).Inc()

		case <-ctx.Done():
			return nil
		}
	}
}

// relayerCollector reports the relayer checkpoint as per status counts.
type relayerCollector struct {
	network    *devnet.Network
	checkpoint *relayer.Checkpoint
	handled    *prometheus.Desc
}

func newRelayerCollector(network *devnet.Network,
	checkpoint *relayer.Checkpoint) *relayerCollector {

	return &relayerCollector{
		network:    network,
		checkpoint: checkpoint,
		handled: prometheus.NewDesc(
			prometheus.BuildFQName(
				metricsNamespace, "relayer", "handled_messages",
			),
			"Messages the relayer handled for good, by status",
			[]string{"chain", "status"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *relayerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.handled
}

// Collect implements prometheus.Collector.
func (c *relayerCollector) Collect(ch chan<- prometheus.Metric) {
	for _, chain := range c.network.Chains() {
		id := chain.Config.ID

		counts, err := c.checkpoint.Counts(id)
		if err != nil {
			log.Errorf("Unable to read checkpoint of %v: %v", id,
				err)
			continue
		}

		for status, count := range counts {
			ch <- prometheus.MustNewConstMetric(
				c.handled, prometheus.GaugeValue,
				float64(count), id.String(), status.String(),
			)
		}
	}
}
