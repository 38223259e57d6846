package telemetry

const (
	// DefaultEndpoint is the local OTLP/gRPC collector.
	DefaultEndpoint = "localhost:4317"

	// DefaultProfilingEndpoint is the local Pyroscope server.
	DefaultProfilingEndpoint = "http://localhost:4040"

	defaultServiceName = "dittosmb"
)

// DefaultProfileTypes are collected when none are configured. Mutex and
// block profiles need runtime sampling and stay opt-in.
var DefaultProfileTypes = []string{
	"cpu", "alloc_objects", "alloc_space", "inuse_objects", "inuse_space", "goroutines",
}

// Config selects the OTLP trace exporter. SampleRate is the fraction of
// root spans kept; 0 keeps everything, matching an unset config key.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Endpoint       string

	// Insecure dials the collector without TLS.
	Insecure   bool
	SampleRate float64
}

func (c Config) normalized() Config {
	if c.ServiceName == "" {
		c.ServiceName = defaultServiceName
	}
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.SampleRate <= 0 || c.SampleRate > 1 {
		c.SampleRate = 1
	}
	return c
}
