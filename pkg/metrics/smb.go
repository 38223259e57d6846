package metrics

import "time"

// Negotiate outcomes.
const (
	OutcomeSuccess    = "success"
	OutcomeUpgrade    = "upgrade"
	OutcomeNoDialect  = "no_mutual_dialect"
	OutcomeMalformed  = "malformed"
	OutcomeFailure    = "failure"
	OutcomeMoreNeeded = "more_processing"
)

// SMBMetrics observes the SMB adapter. Pass nil to disable.
//
//	m := metrics.NewSMBMetrics() // nil unless InitRegistry was called
//	adapter := smb.New(cfg, m)
type SMBMetrics interface {
	// RecordNegotiate counts one NEGOTIATE by chosen dialect ("0x311",
	// "NT LM 0.12", "0x2FF", or "" on failure) and outcome.
	RecordNegotiate(dialect, outcome string, duration time.Duration)

	// RecordSessionSetup counts one SESSION_SETUP leg by mechanism and
	// outcome.
	RecordSessionSetup(mechanism, outcome string)

	// RecordSigningFailure counts an inbound message rejected by signature
	// verification, by command name.
	RecordSigningFailure(command string)

	// RecordRequest counts a dispatched post-negotiate command.
	RecordRequest(command, status string, duration time.Duration)

	SetActiveConnections(count int32)
	RecordConnectionAccepted()
	RecordConnectionClosed()
	RecordConnectionForceClosed()

	SetActiveSessions(count int)
}

var newPrometheusSMBMetrics func() SMBMetrics

// RegisterSMBMetricsConstructor is called by pkg/metrics/prometheus at
// init. The indirection keeps this package free of the implementation.
func RegisterSMBMetricsConstructor(constructor func() SMBMetrics) {
	newPrometheusSMBMetrics = constructor
}

// NewSMBMetrics returns the Prometheus implementation, or nil when metrics
// are disabled or the implementation is not linked in.
func NewSMBMetrics() SMBMetrics {
	if !IsEnabled() || newPrometheusSMBMetrics == nil {
		return nil
	}
	return newPrometheusSMBMetrics()
}
