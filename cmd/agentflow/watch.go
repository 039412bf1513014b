package main

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentflow/internal/monitor"
)

var (
	watchServer   string
	watchInterval time.Duration
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchServer, "server", "http://127.0.0.1:9090", "agentflow serve URL")
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "refresh interval")
}

// watchCmd follows a workflow in a terminal dashboard
var watchCmd = &cobra.Command{
	Use:   "watch <workflow-id>",
	Short: "Follow a workflow in a live terminal dashboard",
	Long: `Follow a workflow's phase progress and activity in a terminal dashboard
fed by a running 'agentflow serve'. Refreshing stops once the workflow
finishes. Press r to refresh, q to quit.

Examples:
  agentflow watch 6f1c2a9e-...
  agentflow watch --server http://build-box:9090 --interval 5s 6f1c2a9e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive, got %s", watchInterval)
	}
	model := monitor.Watch(monitor.NewClient(watchServer), args[0], watchInterval)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
	_, err := p.Run()
	return err
}
