package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "events_published_total",
		Help:      "Risk events delivered per sink.",
	}, []string{"kind", "sink"})

	PublishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "publish_failures_total",
		Help:      "Risk events that exhausted retries per sink.",
	}, []string{"kind", "sink"})

	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "events_dropped_total",
		Help:      "Risk events dropped before delivery.",
	}, []string{"reason"})

	TicksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "riskengine",
		Name:      "ticks_rejected_total",
		Help:      "Inbound records rejected by validation.",
	}, []string{"reason"})

	EvaluationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskengine",
		Name:      "evaluation_duration_seconds",
		Help:      "Duration of one portfolio evaluation.",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	PortfolioValue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "portfolio_value",
		Help:      "Latest total portfolio value.",
	})

	DailyChangePct = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "daily_change_pct",
		Help:      "Signed percent change since day start.",
	})

	WeeklyChangePct = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "weekly_change_pct",
		Help:      "Signed percent change since ISO week start.",
	})

	ValueAtRisk = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "value_at_risk",
		Help:      "Latest risk metrics of the portfolio return series.",
	}, []string{"metric"})

	BreakerStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "circuit_breaker_status",
		Help:      "1 for the current breaker status, 0 otherwise.",
	}, []string{"status"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskengine",
		Name:      "open_positions",
		Help:      "Positions currently tracked.",
	})
)

var breakerStatuses = []string{"normal", "warning", "breached", "cooldown"}

// SetBreakerStatus flips the one-hot breaker gauge.
func SetBreakerStatus(status string) {
	for _, s := range breakerStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		BreakerStatus.WithLabelValues(s).Set(v)
	}
}
