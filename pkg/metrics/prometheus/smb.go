// Package prometheus implements the metrics interfaces with
// prometheus/client_golang. Import it for side effects:
//
//	import _ "github.com/marmos91/dittosmb/pkg/metrics/prometheus"
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittosmb/pkg/metrics"
)

func init() {
	metrics.RegisterSMBMetricsConstructor(NewSMBMetrics)
}

type smbMetrics struct {
	negotiations      *prometheus.CounterVec
	negotiateDuration prometheus.Histogram
	sessionSetups     *prometheus.CounterVec
	signingFailures   *prometheus.CounterVec
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	activeConnections prometheus.Gauge
	connectionsTotal  *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// NewSMBMetrics builds the collectors on the shared registry. Returns nil
// when metrics are disabled.
func NewSMBMetrics() metrics.SMBMetrics {
	reg := metrics.GetRegistry()
	if reg == nil {
		return nil
	}
	return newSMBMetrics(reg)
}

func newSMBMetrics(reg prometheus.Registerer) *smbMetrics {
	f := promauto.With(reg)
	return &smbMetrics{
		negotiations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_negotiations_total",
				Help: "NEGOTIATE requests by chosen dialect and outcome",
			},
			[]string{"dialect", "outcome"},
		),
		negotiateDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittosmb_negotiate_duration_milliseconds",
				Help: "Time spent building NEGOTIATE responses",
				Buckets: []float64{
					0.05, // 50us
					0.1,
					0.25,
					0.5,
					1,
					5,
					25, // slow security buffer source
				},
			},
		),
		sessionSetups: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_session_setups_total",
				Help: "SESSION_SETUP legs by mechanism and outcome",
			},
			[]string{"mechanism", "outcome"},
		),
		signingFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_signing_failures_total",
				Help: "Inbound messages rejected by signature verification",
			},
			[]string{"command"},
		),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_requests_total",
				Help: "Post-negotiate SMB requests by command and status",
			},
			[]string{"command", "status"},
		),
		requestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dittosmb_request_duration_milliseconds",
				Help:    "Post-negotiate SMB request latency",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500},
			},
			[]string{"command"},
		),
		activeConnections: f.NewGauge(prometheus.GaugeOpts{
			Name: "dittosmb_active_connections",
			Help: "Open SMB connections",
		}),
		connectionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittosmb_connections_total",
				Help: "Connection lifecycle events",
			},
			[]string{"event"}, // accepted, closed, force_closed
		),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "dittosmb_active_sessions",
			Help: "Established SMB sessions",
		}),
	}
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func (m *smbMetrics) RecordNegotiate(dialect, outcome string, duration time.Duration) {
	m.negotiations.WithLabelValues(dialect, outcome).Inc()
	m.negotiateDuration.Observe(ms(duration))
}

func (m *smbMetrics) RecordSessionSetup(mechanism, outcome string) {
	m.sessionSetups.WithLabelValues(mechanism, outcome).Inc()
}

func (m *smbMetrics) RecordSigningFailure(command string) {
	m.signingFailures.WithLabelValues(command).Inc()
}

func (m *smbMetrics) RecordRequest(command, status string, duration time.Duration) {
	m.requests.WithLabelValues(command, status).Inc()
	m.requestDuration.WithLabelValues(command).Observe(ms(duration))
}

func (m *smbMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *smbMetrics) RecordConnectionAccepted() {
	m.connectionsTotal.WithLabelValues("accepted").Inc()
}

func (m *smbMetrics) RecordConnectionClosed() {
	m.connectionsTotal.WithLabelValues("closed").Inc()
}

func (m *smbMetrics) RecordConnectionForceClosed() {
	m.connectionsTotal.WithLabelValues("force_closed").Inc()
}

func (m *smbMetrics) SetActiveSessions(count int) {
	m.activeSessions.Set(float64(count))
}
