package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans swaps the package tracer for one backed by an in-memory
// recorder for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	mu.Lock()
	prev := tracer
	tracer = tp.Tracer("test")
	mu.Unlock()

	t.Cleanup(func() {
		mu.Lock()
		tracer = prev
		mu.Unlock()
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func TestConfigNormalized(t *testing.T) {
	tests := []struct {
		name string
		in   Config
		want Config
	}{
		{
			name: "empty",
			in:   Config{},
			want: Config{ServiceName: "dittosmb", Endpoint: DefaultEndpoint, SampleRate: 1},
		},
		{
			name: "explicit",
			in:   Config{ServiceName: "edge", Endpoint: "otel:4317", SampleRate: 0.25},
			want: Config{ServiceName: "edge", Endpoint: "otel:4317", SampleRate: 0.25},
		},
		{
			name: "rate above one",
			in:   Config{SampleRate: 3},
			want: Config{ServiceName: "dittosmb", Endpoint: DefaultEndpoint, SampleRate: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.normalized())
		})
	}
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Init(ctx, Config{Endpoint: DefaultEndpoint})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))
	assert.False(t, IsEnabled())
	assert.NotNil(t, Tracer())
}

func TestHelpersWithoutActiveSpan(t *testing.T) {
	ctx := context.Background()
	require.NotPanics(t, func() {
		AddEvent(ctx, "negotiate.upgrade")
		RecordError(ctx, nil)
		RecordError(ctx, errors.New("boom"))
		SetAttributes(ctx, ClientAddr("192.0.2.1:445"))
	})
	assert.Empty(t, TraceID(ctx))
	assert.Empty(t, SpanID(ctx))
}

func TestStartSMBSpanRecordsAttributes(t *testing.T) {
	rec := recordSpans(t)

	ctx, span := StartSMBSpan(context.Background(), "SESSION_SETUP", "192.0.2.1:50000",
		SMBSessionID(0x42), AuthMethod("ntlm"))
	assert.NotEmpty(t, TraceID(ctx))
	assert.NotEmpty(t, SpanID(ctx))
	AddEvent(ctx, "auth.complete", Username("alice"))
	RecordError(ctx, errors.New("logon failure"))
	span.End()

	ended := rec.Ended()
	require.Len(t, ended, 1)
	s := ended[0]
	assert.Equal(t, "smb.SESSION_SETUP", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "logon failure", s.Status().Description)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range s.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	assert.Equal(t, "192.0.2.1:50000", attrs[AttrClientAddr].AsString())
	assert.Equal(t, "0x0000000000000042", attrs[AttrSMBSessionID].AsString())
	assert.Equal(t, "ntlm", attrs[AttrAuth].AsString())

	events := s.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "auth.complete", events[0].Name)
}

func TestAttributeHelpers(t *testing.T) {
	tests := []struct {
		attr attribute.KeyValue
		key  string
		want any
	}{
		{ClientAddr("192.0.2.1:445"), AttrClientAddr, "192.0.2.1:445"},
		{SMBCommand("NEGOTIATE"), AttrSMBCommand, "NEGOTIATE"},
		{SMBMessageID(7), AttrSMBMessageID, int64(7)},
		{SMBDialect("0x311"), AttrSMBDialect, "0x311"},
		{SMBSigned(true), AttrSMBSigned, true},
		{SMBUpgrade(true), AttrSMBUpgrade, true},
		{Domain("CORP"), AttrDomain, "CORP"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.key, string(tt.attr.Key))
			assert.Equal(t, tt.want, tt.attr.Value.AsInterface())
		})
	}
}

func TestProfiling(t *testing.T) {
	pt, err := ParseProfileType("cpu")
	require.NoError(t, err)
	assert.EqualValues(t, "cpu", pt)

	_, err = ParseProfileType("heap")
	assert.Error(t, err)

	for _, name := range DefaultProfileTypes {
		_, err := ParseProfileType(name)
		assert.NoError(t, err, name)
	}

	stop, err := InitProfiling(ProfilingConfig{})
	require.NoError(t, err)
	assert.NoError(t, stop())
	assert.False(t, IsProfilingEnabled())
}
