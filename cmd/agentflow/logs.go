package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/core"
)

var (
	logsWorkflowID string
	logsLimit      int
	logsRole       string
	logsPhase      string
	logsSearch     string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().StringVar(&logsWorkflowID, "workflow-id", "", "only entries of this workflow")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 10, "number of most recent entries to show")
	logsCmd.Flags().StringVar(&logsRole, "role", "", "only entries of this agent role")
	logsCmd.Flags().StringVar(&logsPhase, "phase", "", "only entries of this phase")
	logsCmd.Flags().StringVar(&logsSearch, "search", "", "case-insensitive text search in reasoning and descriptions")
}

// logsCmd prints recent activity log entries
var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent activity log entries",
	Long: `Show the most recent activity log entries across every run, oldest first.

Examples:
  agentflow logs --limit 20
  agentflow logs --workflow-id 6f1c2a9e-... --role architect`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	stampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	roleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45")).Bold(true)
	kindStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
)

func runLogs(cmd *cobra.Command, args []string) error {
	if logsLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", logsLimit)
	}
	f := activitylog.Filter{
		WorkflowID: logsWorkflowID,
		SearchText: logsSearch,
		Limit:      logsLimit,
	}
	if logsRole != "" {
		if !core.AgentRole(logsRole).Valid() {
			return fmt.Errorf("unknown role %q", logsRole)
		}
		f.AgentRole = core.AgentRole(logsRole)
	}
	if logsPhase != "" {
		if !core.WorkflowPhase(logsPhase).Valid() {
			return fmt.Errorf("unknown phase %q", logsPhase)
		}
		f.WorkflowPhase = core.WorkflowPhase(logsPhase)
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	reader := activitylog.NewDirReader(a.cfg.System.LogDir(), func(err error) {
		a.logger.Warn(cmd.Context(), "failed to read activity log", zap.Error(err))
	})
	entries := reader.Query(f)
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No activity recorded.")
		return nil
	}
	printEntries(cmd.OutOrStdout(), entries)
	return nil
}

func printEntries(w io.Writer, entries []activitylog.Entry) {
	for _, e := range entries {
		role := "system"
		if e.AgentRole != nil {
			role = string(*e.AgentRole)
		}
		if e.WorkflowPhase != nil {
			role += "/" + string(*e.WorkflowPhase)
		}

		kind, text := "entry", e.Reasoning
		switch {
		case e.Activity != nil:
			kind, text = string(e.Activity.Type), e.Activity.Description
		case e.Decision != nil:
			kind, text = "decision:"+e.Decision.DecisionType, e.Decision.Rationale
		}

		fmt.Fprintf(w, "%s %s %s %s\n",
			stampStyle.Render(formatStamp(e.Timestamp)),
			roleStyle.Render("["+role+"]"),
			kindStyle.Render(kind),
			text,
		)
	}
}
