// Package telemetry exports agentflow traces and metrics over OTLP.
//
// The orchestrator opens a "workflow.execute" span per run and an
// "agent.invoke" span per agent call, and counts runs by final status.
// Those reach a collector over gRPC or HTTP/protobuf when enabled:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: grpc
//	  sampling_rate: 0.5
//
// Plaintext export is refused for non-loopback endpoints. Exporter setup
// failures degrade the instance (see Health) instead of failing the
// command, and a disabled or nil *Telemetry hands out no-op tracers.
//
// Tests use NewTestTelemetry, which keeps spans and metrics in memory.
package telemetry
