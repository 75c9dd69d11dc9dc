// Package telemetry wires kittyd's OpenTelemetry providers: traces,
// metrics, and the log bridge, all exported over OTLP gRPC.
//
// Telemetry never takes the process down. Exporter setup failures mark
// the instance degraded and everything else keeps running.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// Config holds OTLP export settings.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string

	// Endpoint is the OTLP gRPC collector address (host:port).
	Endpoint string
	Insecure bool

	// SampleRate is the trace sampling ratio in [0, 1].
	SampleRate float64

	// MetricInterval is the metric export period.
	MetricInterval time.Duration

	// ShutdownTimeout bounds flushing on shutdown.
	ShutdownTimeout time.Duration
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.ServiceName == "" {
		return errors.New("service name is required")
	}
	if c.Endpoint == "" {
		return errors.New("endpoint is required when telemetry is enabled")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample rate %f outside [0, 1]", c.SampleRate)
	}
	return nil
}

// withDefaults fills unset tuning values.
func (c *Config) withDefaults() *Config {
	out := *c
	if out.ServiceVersion == "" {
		out.ServiceVersion = "dev"
	}
	if out.SampleRate == 0 {
		out.SampleRate = 1
	}
	if out.MetricInterval == 0 {
		out.MetricInterval = 30 * time.Second
	}
	if out.ShutdownTimeout == 0 {
		out.ShutdownTimeout = 5 * time.Second
	}
	return &out
}
