// Package logging provides structured logging with OpenTelemetry integration.
//
// # Overview
//
// The package wraps Zap with:
//   - a Trace level (-2) below Debug for prompt dumps
//   - stdout/stderr output teed with an otelzap core
//   - correlation fields pulled from context (trace, workflow, phase, role)
//   - key and pattern based secret redaction
//   - sampling below error level
//
// # Usage
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), provider)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithWorkflowID(ctx, id)
//	ctx = logging.WithPhase(ctx, "architecture")
//	logger.Info(ctx, "phase started", zap.Int("index", 1))
//
// produces
//
//	{"level":"info","ts":"...","msg":"phase started","service":"agentflow",
//	 "workflow_id":"...","phase":"architecture","index":1}
//
// # Testing
//
// NewTestLogger records entries through zaptest/observer and offers
// AssertLogged, AssertField and AssertNoValue helpers.
package logging
