package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentflow/internal/events"
)

var eventsNATSURL string

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsNATSURL, "nats-url", "", "NATS server URL; defaults to events.nats_url")
}

// eventsCmd is the parent command for event bus operations
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the workflow event bus",
}

// eventsTailCmd prints events as they are published
var eventsTailCmd = &cobra.Command{
	Use:   "tail [workflow-id]",
	Short: "Print workflow events as they are published",
	Long: `Subscribe to the NATS event bus and print workflow events until
interrupted. Without a workflow id every workflow is followed.

Examples:
  agentflow events tail
  agentflow events tail --nats-url nats://127.0.0.1:4222 6f1c2a9e-...`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEventsTail,
}

func runEventsTail(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	url := a.cfg.Events.NATSURL
	if eventsNATSURL != "" {
		url = eventsNATSURL
	}
	if url == "" {
		return fmt.Errorf("no NATS server configured: set events.nats_url or --nats-url")
	}

	var workflowID string
	if len(args) == 1 {
		workflowID = args[0]
	}

	nc, err := events.Connect(ctx, url, a.logger)
	if err != nil {
		return err
	}
	defer nc.Close()

	sub, err := events.Subscribe(nc, a.cfg.Events.SubjectPrefix, workflowID, eventPrinter(cmd.OutOrStdout()))
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	<-ctx.Done()
	return nil
}

// eventPrinter serialises writes; NATS delivers on its own goroutine.
func eventPrinter(w io.Writer) func(events.Event) {
	var mu sync.Mutex
	return func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		who := ""
		if e.AgentRole != "" {
			who = " [" + string(e.AgentRole) + "]"
		}
		fmt.Fprintf(w, "%s %s %-9s%s %s\n",
			stampStyle.Render(formatStamp(e.Timestamp)),
			e.WorkflowID,
			kindStyle.Render(string(e.Type)),
			roleStyle.Render(who),
			e.Message,
		)
	}
}
