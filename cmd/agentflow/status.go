package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusCmd prints a persisted workflow state
var statusCmd = &cobra.Command{
	Use:   "status <workflow-id>",
	Short: "Show the status of a workflow",
	Long: `Show the persisted status of a workflow: its current phase, completed
and failed phases, and every recorded transition.

Examples:
  agentflow status 6f1c2a9e-...`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	cellStyle  = lipgloss.NewStyle().Padding(0, 1)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	waitStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
)

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close(cmd.Context())

	state, err := workflow.NewFileRepository(a.cfg.System.StorageRoot).Load(args[0])
	if err != nil {
		return err
	}
	if state == nil {
		return fmt.Errorf("%w: %s", workflow.ErrWorkflowNotFound, args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderStatus(state))
	return nil
}

// renderStatus draws state as a key/value table followed by its transition
// history.
func renderStatus(state *workflow.State) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Workflow " + state.WorkflowID))
	b.WriteString("\n")

	reason, _ := state.Metadata["failure_reason"].(string)
	name, _ := state.Metadata["workflow_name"].(string)
	rows := [][]string{
		{"Name", orDash(name)},
		{"Status", statusText(state.Status)},
		{"Current phase", orDash(string(state.CurrentPhase))},
		{"Completed", phaseList(state.CompletedPhases)},
		{"Failed", phaseList(state.FailedPhases)},
		{"Created", formatStamp(state.CreatedAt)},
		{"Updated", formatStamp(state.UpdatedAt)},
	}
	if reason != "" {
		rows = append(rows, []string{"Failure reason", reason})
	}

	summary := table.New().
		Border(lipgloss.RoundedBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return cellStyle.Inherit(keyStyle)
			}
			return cellStyle
		}).
		Rows(rows...)
	b.WriteString(summary.Render())

	if len(state.Transitions) > 0 {
		history := table.New().
			Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, col int) lipgloss.Style { return cellStyle }).
			Headers("#", "From", "To", "Role", "At", "OK")
		for i, t := range state.Transitions {
			from, role := "-", "-"
			if t.FromPhase != nil {
				from = string(*t.FromPhase)
			}
			if t.AgentRole != nil {
				role = string(*t.AgentRole)
			}
			history.Row(fmt.Sprint(i+1), from, string(t.ToPhase), role, formatStamp(t.Timestamp), fmt.Sprint(t.Success))
		}
		b.WriteString("\n")
		b.WriteString(history.Render())
	}
	return b.String()
}

func statusText(s workflow.Status) string {
	switch s {
	case workflow.StatusCompleted:
		return okStyle.Render(string(s))
	case workflow.StatusFailed, workflow.StatusRolledBack:
		return badStyle.Render(string(s))
	default:
		return waitStyle.Render(string(s))
	}
}

func phaseList(phases []core.WorkflowPhase) string {
	if len(phases) == 0 {
		return "-"
	}
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func formatStamp(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
