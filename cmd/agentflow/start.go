package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentflow/internal/activitylog"
	"github.com/fyrsmithlabs/agentflow/internal/contextstore"
	"github.com/fyrsmithlabs/agentflow/internal/core"
	"github.com/fyrsmithlabs/agentflow/internal/debt"
	"github.com/fyrsmithlabs/agentflow/internal/events"
	"github.com/fyrsmithlabs/agentflow/internal/llm"
	"github.com/fyrsmithlabs/agentflow/internal/logging"
	"github.com/fyrsmithlabs/agentflow/internal/orchestrator"
	"github.com/fyrsmithlabs/agentflow/internal/templates"
	"github.com/fyrsmithlabs/agentflow/internal/vcs"
	"github.com/fyrsmithlabs/agentflow/internal/workflow"
)

var (
	startWorkflowName string
	startProvider     string
	startConfigPath   string
	startPhases       []string
)

func init() {
	rootCmd.AddCommand(startCmd)

	startCmd.Flags().StringVar(&startWorkflowName, "workflow", "", "workflow name")
	startCmd.Flags().StringVar(&startProvider, "provider", "", "LLM provider (claude, openai, ollama); defaults to llm.default_provider")
	startCmd.Flags().StringVar(&startConfigPath, "config", "", "workflow definition file (.yaml or .toml)")
	startCmd.Flags().StringSliceVar(&startPhases, "phases", nil, "comma-separated phases to run, overriding the definition")
}

// startCmd runs a workflow to completion
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run a workflow",
	Long: `Run a workflow through its phases, one agent per phase.

Without --config the five-phase development workflow is used:
analysis, architecture, implementation, debugging, review.

Examples:
  # Run the default workflow with the configured provider
  agentflow start --workflow checkout-redesign

  # Run two phases against a local model
  agentflow start --provider ollama --phases analysis,architecture

  # Run a workflow definition
  agentflow start --config workflows/release.toml`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wcfg, err := buildWorkflowConfig(startConfigPath, startWorkflowName, startPhases)
	if err != nil {
		return err
	}

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	run, err := newRunner(ctx, a, startProvider, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer run.close(context.Background())

	id, err := run.orch.ExecuteWorkflow(ctx, wcfg)
	if state, ok := run.orch.Workflows().State(id); ok {
		fmt.Fprintln(cmd.OutOrStdout(), renderStatus(state))
	}
	if items := run.orch.DebtTracker().Items(); len(items) > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%d technical debt item(s) recorded by review\n", len(items))
	}
	if err != nil {
		return err
	}

	status := run.orch.WorkflowStatus(id)
	if status.Status != workflow.StatusCompleted {
		return fmt.Errorf("workflow %s %s: %s", id, status.Status, status.FailureReason)
	}
	return nil
}

// buildWorkflowConfig resolves the definition file and flag overrides.
func buildWorkflowConfig(path, name string, phases []string) (core.WorkflowConfig, error) {
	cfg := core.DefaultWorkflowConfig(name)
	if path != "" {
		loaded, err := loadWorkflowConfig(path)
		if err != nil {
			return core.WorkflowConfig{}, err
		}
		cfg = loaded
		if name != "" {
			cfg.Name = name
		}
	}
	if len(phases) > 0 {
		parsed, err := parsePhases(phases)
		if err != nil {
			return core.WorkflowConfig{}, err
		}
		cfg.Phases = parsed
	}
	if cfg.Name == "" {
		cfg.Name = "development"
	}
	return cfg, cfg.Validate()
}

// runner owns the collaborators of one workflow run.
type runner struct {
	orch    *orchestrator.Orchestrator
	log     *activitylog.Log
	closers []func() error
	cancel  context.CancelFunc
	logger  *logging.Logger
}

func newRunner(ctx context.Context, a *app, providerName string, out io.Writer) (*runner, error) {
	cfg := a.cfg
	logger := a.logger
	r := &runner{logger: logger}
	watchCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if providerName == "" {
		providerName = cfg.LLM.DefaultProvider
	}
	provider, err := llm.New(cfg.LLM, providerName)
	if err != nil {
		r.close(ctx)
		return nil, err
	}
	if cfg.Secrets.ScrubPrompts {
		provider = llm.Scrubbing(provider, a.scrubber, logger)
	}

	loader, err := templates.NewLoader(cfg.System.AgentTemplatesDir, cfg.System.CustomTemplatesDir, templates.WithLogger(logger))
	if err != nil {
		r.close(ctx)
		return nil, err
	}
	if cfg.System.WatchTemplates {
		go func() {
			if err := loader.Watch(watchCtx); err != nil {
				logger.Warn(watchCtx, "template watcher stopped", zap.Error(err))
			}
		}()
	}

	bus := events.Emitter(events.NopBus{})
	logOpts := []activitylog.Option{activitylog.WithLogger(logger)}
	if cfg.Events.NATSURL != "" {
		nc, err := events.Connect(ctx, cfg.Events.NATSURL, logger)
		if err != nil {
			r.close(ctx)
			return nil, err
		}
		r.closers = append(r.closers, nc.Drain)
		bus = events.NewBus(nc, cfg.Events.SubjectPrefix, events.WithLogger(logger))
		logOpts = append(logOpts, activitylog.WithHook(events.ActivityHook(bus, logger)))
	}

	acts, err := activitylog.New(cfg.System.LogDir(), logOpts...)
	if err != nil {
		r.close(ctx)
		return nil, err
	}
	r.log = acts

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithTemplates(loader),
		orchestrator.WithActivityLog(acts),
		orchestrator.WithDebtTracker(debt.NewTracker()),
		orchestrator.WithEmitter(bus),
		orchestrator.WithTelemetry(a.tel),
		orchestrator.WithPersistence(
			workflow.NewFileRepository(cfg.System.StorageRoot),
			contextstore.NewFileRepository(cfg.System.StorageRoot),
		),
		orchestrator.WithProgress(progressPrinter(out)),
	}
	if cfg.VCS.Enabled {
		repo, err := vcs.Open(cfg.VCS.RepoPath,
			vcs.WithAuthor(cfg.VCS.AuthorName, cfg.VCS.AuthorEmail),
			vcs.WithLogger(logger))
		if err != nil {
			r.close(ctx)
			return nil, err
		}
		opts = append(opts, orchestrator.WithVCS(repo, cfg.VCS.CreateBranch))
	}

	orch, err := orchestrator.New(provider, opts...)
	if err != nil {
		r.close(ctx)
		return nil, err
	}
	r.orch = orch
	return r, nil
}

func (r *runner) close(ctx context.Context) {
	r.cancel()
	if r.log != nil {
		if err := r.log.Close(); err != nil {
			r.logger.Warn(ctx, "failed to close activity log", zap.Error(err))
		}
	}
	for _, c := range r.closers {
		if err := c(); err != nil {
			r.logger.Warn(ctx, "failed to close event connection", zap.Error(err))
		}
	}
}

func progressPrinter(out io.Writer) orchestrator.ProgressCallback {
	return func(p orchestrator.PhaseProgress) {
		fmt.Fprintf(out, "[%3d%%] %s\n", p.Percentage, p.Message)
	}
}
