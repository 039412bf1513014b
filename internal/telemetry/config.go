package telemetry

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fyrsmithlabs/agentflow/internal/config"
)

// Protocol selects the OTLP transport.
type Protocol string

const (
	ProtocolGRPC Protocol = "grpc"
	ProtocolHTTP Protocol = "http/protobuf"
)

// Config controls trace and metric export for a workflow run.
type Config struct {
	Enabled        bool
	Endpoint       string
	Protocol       Protocol
	Insecure       bool
	ServiceName    string
	ServiceVersion string

	// SampleRate is the fraction of root spans kept, 0 through 1.
	SampleRate float64

	// MetricInterval is the periodic reader's export interval. Zero turns
	// metric export off while keeping traces.
	MetricInterval  time.Duration
	ShutdownTimeout time.Duration
}

// NewDefaultConfig returns a disabled config aimed at a local collector.
func NewDefaultConfig() *Config {
	return &Config{
		Endpoint:        "localhost:4317",
		Protocol:        ProtocolGRPC,
		Insecure:        true,
		ServiceName:     "agentflow",
		ServiceVersion:  "0.1.0",
		SampleRate:      1,
		MetricInterval:  15 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}
}

// FromConfig maps the application's telemetry section onto a Config.
// Empty fields keep their defaults.
func FromConfig(tc config.TelemetryConfig) *Config {
	cfg := NewDefaultConfig()
	cfg.Enabled = tc.Enabled
	cfg.Insecure = tc.Insecure
	if tc.Endpoint != "" {
		cfg.Endpoint = tc.Endpoint
	}
	if tc.Protocol != "" {
		cfg.Protocol = Protocol(tc.Protocol)
	}
	if tc.ServiceName != "" {
		cfg.ServiceName = tc.ServiceName
	}
	if tc.ServiceVersion != "" {
		cfg.ServiceVersion = tc.ServiceVersion
	}
	if tc.SamplingRate > 0 {
		cfg.SampleRate = tc.SamplingRate
	}
	return cfg
}

// Validate reports every problem at once. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	var errs []error
	if c.Endpoint == "" {
		errs = append(errs, errors.New("endpoint is required"))
	}
	if c.ServiceName == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	switch c.Protocol {
	case "", ProtocolGRPC, ProtocolHTTP:
	default:
		errs = append(errs, fmt.Errorf("protocol must be %q or %q, got %q", ProtocolGRPC, ProtocolHTTP, c.Protocol))
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("sample rate must be between 0 and 1, got %g", c.SampleRate))
	}
	if c.MetricInterval < 0 {
		errs = append(errs, fmt.Errorf("metric interval must not be negative, got %s", c.MetricInterval))
	}
	if c.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("shutdown timeout must be positive"))
	}
	// Plaintext export only to the local machine.
	if c.Endpoint != "" && c.Insecure && !isLoopback(c.Endpoint) {
		errs = append(errs, fmt.Errorf("insecure export to non-local endpoint %q", c.Endpoint))
	}
	return errors.Join(errs...)
}

// isLoopback accepts host, host:port, [v6]:port and an optional URL scheme.
func isLoopback(endpoint string) bool {
	host := hostOnly(endpoint)
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func hostOnly(endpoint string) string {
	host := stripScheme(endpoint)
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.Trim(host, "[]")
}

// stripScheme leaves host:port, which is what the OTLP HTTP exporters want.
func stripScheme(endpoint string) string {
	for _, scheme := range []string{"https://", "http://"} {
		endpoint = strings.TrimPrefix(endpoint, scheme)
	}
	return strings.TrimSuffix(endpoint, "/")
}
