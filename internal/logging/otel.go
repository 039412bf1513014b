// internal/logging/otel.go
package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
)

// instrumentationName names the OTEL logger scope.
const instrumentationName = "github.com/fyrsmithlabs/agentflow"

// newCore tees the enabled sinks and wraps them in sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout || cfg.Output.Stderr {
		encoder, err := NewRedactingEncoder(newEncoder(cfg.Format), cfg.Redaction)
		if err != nil {
			return nil, fmt.Errorf("failed to create redacting encoder: %w", err)
		}
		if cfg.Output.Stdout {
			cores = append(cores, zapcore.NewCore(encoder, zapcore.Lock(os.Stdout), cfg.Level))
		}
		if cfg.Output.Stderr {
			cores = append(cores, zapcore.NewCore(encoder.Clone(), zapcore.Lock(os.Stderr), cfg.Level))
		}
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore(instrumentationName, otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := cores[0]
	if len(cores) > 1 {
		core = zapcore.NewTee(cores...)
	}
	return newSampledCore(core, cfg.Sampling), nil
}
