package prometheus

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSMBMetricsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newSMBMetrics(reg)

	m.RecordNegotiate("0x311", "success", time.Millisecond)
	m.RecordNegotiate("0x311", "success", time.Millisecond)
	m.RecordNegotiate("", "no_mutual_dialect", time.Millisecond)
	m.RecordSigningFailure("ECHO")
	m.RecordConnectionAccepted()
	m.SetActiveConnections(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.negotiations.WithLabelValues("0x311", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.negotiations.WithLabelValues("", "no_mutual_dialect")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.signingFailures.WithLabelValues("ECHO")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.activeConnections))

	err := testutil.GatherAndCompare(reg, strings.NewReader(`
# HELP dittosmb_connections_total Connection lifecycle events
# TYPE dittosmb_connections_total counter
dittosmb_connections_total{event="accepted"} 1
`), "dittosmb_connections_total")
	require.NoError(t, err)
}
