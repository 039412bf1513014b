package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/logging"
)

// Connect dials the NATS server at url, retrying while the server comes up.
func Connect(ctx context.Context, url string, logger *logging.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("agentflow"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn(context.Background(), "disconnected from NATS", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	logger.Info(ctx, "connected to NATS", zap.String("url", url))
	return nc, nil
}

// Subscribe decodes every event of workflowID (all workflows when empty)
// and passes it to fn. Undecodable messages are skipped.
func Subscribe(nc *nats.Conn, prefix, workflowID string, fn func(Event)) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = "agentflow"
	}
	subject := WorkflowSubject(prefix, workflowID)
	sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
		var e Event
		if err := json.Unmarshal(msg.Data, &e); err != nil {
			return
		}
		fn(e)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}
