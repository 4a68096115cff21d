package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for outbound delivery.
type Metrics struct {
	EmailsSentTotal   *prometheus.CounterVec
	EmailSendDuration prometheus.Histogram

	SMTPConnectionsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the delivery metrics with the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EmailsSentTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "directmail",
			Subsystem: "email",
			Name:      "sent_total",
			Help:      "Total number of emails sent, by outcome.",
		}, []string{"status"}),
		EmailSendDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "directmail",
			Subsystem: "email",
			Name:      "send_duration_seconds",
			Help:      "Time to deliver an email to every recipient's MX host.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		SMTPConnectionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "directmail",
			Subsystem: "smtp",
			Name:      "connections_total",
			Help:      "Total SMTP connections attempted, by destination host and result.",
		}, []string{"mx_host", "result"}),
	}
}
