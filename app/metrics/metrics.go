package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Path labels.
const (
	PathSync    = "sync"
	PathWebhook = "webhook"
	PathJob     = "job"
)

type Collector struct {
	verifications   *prometheus.CounterVec
	lockContention  *prometheus.CounterVec
	webhookRejected *prometheus.CounterVec
	gatewayCalls    *prometheus.CounterVec
	gatewayLatency  prometheus.Histogram
	payouts         prometheus.Counter
	reconciliations *prometheus.CounterVec
}

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ajo",
			Name:      "payment_verifications_total",
			Help:      "Payment verification pipeline outcomes by entry path.",
		}, []string{"path", "outcome"}),
		lockContention: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ajo",
			Name:      "payment_lock_contention_total",
			Help:      "Payment lock acquisitions that found the lock already held.",
		}, []string{"path"}),
		webhookRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ajo",
			Name:      "webhook_rejections_total",
			Help:      "Webhook deliveries rejected before processing.",
		}, []string{"reason"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ajo",
			Name:      "gateway_verify_calls_total",
			Help:      "Outbound verify calls to the payment gateway.",
		}, []string{"result"}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ajo",
			Name:      "gateway_verify_duration_seconds",
			Help:      "Latency of outbound verify calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		payouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ajo",
			Name:      "payouts_total",
			Help:      "Cycle payouts credited to slot holders.",
		}),
		reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ajo",
			Name:      "reconciliations_opened_total",
			Help:      "Verified payments parked for manual reconciliation.",
		}, []string{"reason"}),
	}

	if reg != nil {
		reg.MustRegister(
			c.verifications,
			c.lockContention,
			c.webhookRejected,
			c.gatewayCalls,
			c.gatewayLatency,
			c.payouts,
			c.reconciliations,
		)
	}
	return c
}

// Nop returns a collector that is not registered anywhere.
func Nop() *Collector {
	return NewCollector(nil)
}

func (c *Collector) Verification(path, outcome string) {
	c.verifications.WithLabelValues(path, outcome).Inc()
}

func (c *Collector) LockContention(path string) {
	c.lockContention.WithLabelValues(path).Inc()
}

func (c *Collector) WebhookRejected(reason string) {
	c.webhookRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) GatewayCall(result string, seconds float64) {
	c.gatewayCalls.WithLabelValues(result).Inc()
	c.gatewayLatency.Observe(seconds)
}

func (c *Collector) Payout() {
	c.payouts.Inc()
}

func (c *Collector) ReconciliationOpened(reason string) {
	c.reconciliations.WithLabelValues(reason).Inc()
}
