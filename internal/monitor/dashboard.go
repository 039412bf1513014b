// Package monitor renders a live terminal dashboard of one workflow, polled
// from the agentflow HTTP API.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
	fetchTimeout    = 5 * time.Second
)

// FetchFunc loads the current snapshot of the watched workflow.
type FetchFunc func(ctx context.Context) (Snapshot, error)

// Model is the bubbletea dashboard model.
type Model struct {
	source     string
	fetch      FetchFunc
	interval   time.Duration
	lastUpdate time.Time
	snapshot   Snapshot
	loaded     bool
	err        error
	quitting   bool

	// New log entries per refresh, for the activity sparkline.
	entryHistory []float64

	phaseProgress progress.Model
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a dashboard that calls fetch every interval. source names
// where snapshots come from and is shown when fetching fails.
func NewModel(source string, fetch FetchFunc, interval time.Duration) Model {
	return Model{
		source:   source,
		fetch:    fetch,
		interval: interval,
		phaseProgress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
	}
}

// Watch builds a dashboard for workflow id served by client.
func Watch(client *Client, id string, interval time.Duration) Model {
	return NewModel(client.BaseURL(), func(ctx context.Context) (Snapshot, error) {
		return client.Fetch(ctx, id)
	}, interval)
}

// statusBadge returns a colored badge for a workflow status
func statusBadge(status workflow.Status) string {
	switch status {
	case workflow.StatusCompleted:
		return healthyStyle.Render("✓ COMPLETED")
	case workflow.StatusFailed, workflow.StatusRolledBack:
		return errorStyle.Render("✗ " + strings.ToUpper(string(status)))
	case "":
		return dimStyle.Render("…")
	default:
		return warningStyle.Render("● " + strings.ToUpper(string(status)))
	}
}

func phaseMarker(state PhaseState) string {
	switch state {
	case PhaseDone:
		return healthyStyle.Render("[✓]")
	case PhaseFailed:
		return errorStyle.Render("[✗]")
	case PhaseActive:
		return warningStyle.Render("[▶]")
	default:
		return dimStyle.Render("[ ]")
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}
	spark.Draw()
	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type snapshotMsg Snapshot
type errMsg struct{ err error }

// Init starts polling.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		m.refresh(),
	)
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) refresh() tea.Cmd {
	fetch := m.fetch
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		snap, err := fetch(ctx)
		if err != nil {
			return errMsg{err}
		}
		return snapshotMsg(snap)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.refresh()
		}

	case tickMsg:
		// A finished workflow no longer changes.
		if m.loaded && m.snapshot.Finished() {
			return m, nil
		}
		return m, tea.Batch(
			tick(m.interval),
			m.refresh(),
		)

	case snapshotMsg:
		snap := Snapshot(msg)
		added := 0
		if m.loaded {
			added = max(snap.TotalEntries-m.snapshot.TotalEntries, 0)
		}
		m.entryHistory = appendToHistory(m.entryHistory, float64(added))
		m.snapshot = snap
		m.loaded = true
		m.lastUpdate = time.Now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = msg.err
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render(" agentflow Monitor ")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot load workflow") + "\n\n")
	b.WriteString(dimStyle.Render("Source: ") + valueStyle.Render(m.source) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Is `agentflow serve` running?") + "\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	s := m.snapshot
	var b strings.Builder

	b.WriteString(headerStyle.Render(" agentflow Monitor ") + "\n")
	fmt.Fprintf(&b, "%s   %s %s   %s\n",
		statusBadge(s.Status),
		dimStyle.Render("Elapsed:"),
		valueStyle.Render(FormatDuration(s.Elapsed)),
		dimStyle.Render(FormatTime(m.lastUpdate)))

	b.WriteString("\n" + sectionStyle.Render("┃ Workflow") + "\n")
	name := s.Name
	if name == "" {
		name = "-"
	}
	b.WriteString(labelStyle.Render("  Name: ") + valueStyle.Render(name) +
		"  " + labelStyle.Render("ID: ") + dimStyle.Render(s.WorkflowID) + "\n")
	b.WriteString(labelStyle.Render("  Phase: ") + valueStyle.Render(string(s.CurrentPhase)) + "\n")
	b.WriteString(labelStyle.Render("  Progress: ") +
		m.phaseProgress.ViewAs(s.Progress()) +
		" " + dimStyle.Render(FormatPercentage(s.Progress())) + "\n")
	for _, p := range s.Phases {
		b.WriteString("    " + phaseMarker(s.PhaseState(p)) + " " + string(p) + "\n")
	}
	if s.FailureReason != "" {
		b.WriteString(labelStyle.Render("  Failure: ") + errorStyle.Render(s.FailureReason) + "\n")
	}

	b.WriteString("\n" + sectionStyle.Render("┃ Activity") + "\n")
	b.WriteString(labelStyle.Render("  Entries: ") +
		valueStyle.Render(fmt.Sprintf("%d", s.TotalEntries)) +
		"   " + createSparkline(m.entryHistory) + "\n")
	if line := countsLine(s.ActivityCounts); line != "" {
		b.WriteString(labelStyle.Render("  Types: ") + line + "\n")
	}
	if line := countsLine(s.AgentCounts); line != "" {
		b.WriteString(labelStyle.Render("  Agents: ") + line + "\n")
	}

	if len(s.Recent) > 0 {
		b.WriteString("\n" + sectionStyle.Render("┃ Recent") + "\n")
		for _, item := range s.Recent {
			desc := ""
			if item.Activity != nil {
				desc = *item.Activity
			}
			phase := core.WorkflowPhase("")
			if item.Phase != nil {
				phase = *item.Phase
			}
			fmt.Fprintf(&b, "  %s %s %s\n",
				dimStyle.Render(item.Timestamp.Local().Format("15:04:05")),
				labelStyle.Render(fmt.Sprintf("%-14s", phase)),
				desc)
		}
	}

	b.WriteString(footerStyle.Render("[q] quit  [r] refresh") + "\n")
	return containerStyle.Render(b.String())
}

// countsLine renders "key=n" pairs, largest first.
func countsLine[K ~string](counts map[K]int) string {
	if len(counts) == 0 {
		return ""
	}
	keys := make([]K, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = dimStyle.Render(string(k)+"=") + valueStyle.Render(fmt.Sprintf("%d", counts[k]))
	}
	return strings.Join(parts, "  ")
}
